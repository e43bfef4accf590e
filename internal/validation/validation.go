package validation

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"reflect"
	"strings"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

const (
	MaxPDFSize    = 200 << 20 // 200mb
	MaxTextLength = 2_000_000
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Is lets callers match any validation failure with common.ErrValidation.
func (e ValidationErrors) Is(target error) bool {
	return target == common.ErrValidation
}

// Err returns nil for an empty list so callers can return it directly.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names, the ones clients actually send
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates v against its `validate` tags.
func Struct(v any) ValidationErrors {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationErrors{{Field: "request", Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{Field: fieldPath(fe), Message: describe(fe)})
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	// drop the top-level struct name
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte", "lte":
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}

// File checks an uploaded file's size and sniffs its content. Declared
// content types are ignored; the bytes decide.
func File(field string, fh *multipart.FileHeader, maxSize int64, allowed ...string) ValidationErrors {
	if fh == nil {
		return ValidationErrors{{Field: field, Message: "file is required"}}
	}
	if fh.Size == 0 {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("file %s is empty", fh.Filename)}}
	}
	if maxSize > 0 && fh.Size > maxSize {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("file %s exceeds maximum size of %d bytes", fh.Filename, maxSize)}}
	}

	f, err := fh.Open()
	if err != nil {
		return ValidationErrors{{Field: field, Message: "file cannot be read"}}
	}
	defer f.Close()

	mt, err := DetectType(f)
	if err != nil {
		return ValidationErrors{{Field: field, Message: "file cannot be read"}}
	}
	if !Allowed(mt, allowed...) {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("file %s has unsupported content type: %s", fh.Filename, mt.String()),
		}}
	}
	return nil
}

// DetectType sniffs r and rewinds it when possible.
func DetectType(r io.Reader) (*mimetype.MIME, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, err
	}
	if s, ok := r.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return mt, nil
}

// Allowed reports whether mt or one of its parents matches any of the
// allowed types. An empty list allows everything.
func Allowed(mt *mimetype.MIME, allowed ...string) bool {
	if len(allowed) == 0 {
		return true
	}
	for m := mt; m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}
