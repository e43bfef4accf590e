package workers

// SynthesisRequest asks the speech worker to render text to audio.
type SynthesisRequest struct {
	Text        string   `json:"text" validate:"required,max=2000000"`
	Voice       string   `json:"voice" validate:"required,max=200"`
	ModelID     string   `json:"modelId,omitempty" validate:"max=200"`
	Style       string   `json:"style,omitempty" validate:"max=200"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// OCRRequest asks the OCR worker to extract text from a PDF. PDFPath is
// set by the server for uploads or given directly for files it can read.
type OCRRequest struct {
	PDFPath    string `json:"pdfPath" validate:"required"`
	Filename   string `json:"filename,omitempty"`
	TotalPages int    `json:"totalPages,omitempty" validate:"min=0,max=100000"`
}
