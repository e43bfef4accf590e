package validation

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/fedutinova/narrator/internal/common"
)

type sample struct {
	Voice string `json:"voice" validate:"required"`
	Steps int    `json:"steps" validate:"min=1,max=100"`
	Mode  string `json:"mode" validate:"omitempty,oneof=fast slow"`
}

func TestStruct(t *testing.T) {
	if errs := Struct(sample{Voice: "alice", Steps: 25}); errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}

	errs := Struct(sample{Steps: 0, Mode: "medium"})
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", errs)
	}
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Message
	}
	if fields["voice"] != "is required" {
		t.Errorf("voice: %q", fields["voice"])
	}
	if fields["steps"] != "must be at least 1" {
		t.Errorf("steps: %q", fields["steps"])
	}
	if !strings.Contains(fields["mode"], "fast slow") {
		t.Errorf("mode: %q", fields["mode"])
	}
	if !errors.Is(errs.Err(), common.ErrValidation) {
		t.Error("validation errors should match common.ErrValidation")
	}
	if ValidationErrors(nil).Err() != nil {
		t.Error("empty list should convert to a nil error")
	}
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(content)
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	return req.MultipartForm.File["file"][0]
}

func TestFile(t *testing.T) {
	pdf := fileHeader(t, "book.pdf", []byte("%PDF-1.7\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"))
	if errs := File("file", pdf, MaxPDFSize, "application/pdf"); errs != nil {
		t.Fatalf("pdf rejected: %v", errs)
	}

	fake := fileHeader(t, "book.pdf", []byte("just some text pretending"))
	if errs := File("file", fake, MaxPDFSize, "application/pdf"); len(errs) != 1 {
		t.Fatalf("expected text disguised as pdf to be rejected, got %v", errs)
	}
	if errs := File("file", fake, MaxPDFSize, "text/plain"); errs != nil {
		t.Fatalf("plain text rejected: %v", errs)
	}

	if errs := File("file", pdf, 4, "application/pdf"); len(errs) != 1 || !strings.Contains(errs[0].Message, "maximum size") {
		t.Fatalf("expected size error, got %v", errs)
	}
	if errs := File("file", nil, 0); len(errs) != 1 {
		t.Fatalf("expected missing file error, got %v", errs)
	}
}
