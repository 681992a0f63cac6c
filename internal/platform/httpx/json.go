package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// ErrInvalidBody reports a request body that could not be decoded or failed validation.
var ErrInvalidBody = errors.New("httpx: invalid request body")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists the fields of a decoded body that broke their validate tags.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + " (" + v.Rule + ")"
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidBody }

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// DecodeJSON decodes a single JSON object from the request body, rejecting unknown fields, then checks
// the validate tags on dst. Failures wrap ErrInvalidBody; tag failures are a *ValidationError.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidBody)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrInvalidBody)
	}
	return Validate(dst)
}

// Validate runs the validate tags on v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	// Namespaces start with the top-level type name unless the struct is anonymous.
	var prefix string
	if t := reflect.Indirect(reflect.ValueOf(v)).Type(); t.Name() != "" {
		prefix = t.Name() + "."
	}
	violations := make([]Violation, len(fieldErrs))
	for i, fe := range fieldErrs {
		violations[i] = Violation{Field: strings.TrimPrefix(fe.Namespace(), prefix), Rule: fe.Tag()}
	}
	return &ValidationError{Violations: violations}
}

// InvalidBody converts a DecodeJSON failure into a 400 envelope, listing violations when present.
func InvalidBody(err error) Error {
	out := NewError("invalid_request", err.Error(), http.StatusBadRequest)
	var validation *ValidationError
	if errors.As(err, &validation) {
		out = out.WithViolations(validation.Violations...)
	}
	return out
}
