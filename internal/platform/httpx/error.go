package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/quotations/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxTraceLen   = 64
)

// Error is the JSON error envelope every endpoint returns.
type Error struct {
	Code       string
	Message    string
	Status     int
	RequestID  string
	TraceID    string
	Violations []Violation
	Details    map[string]any
}

// Violation names a request field that failed validation and the rule it broke.
type Violation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type errorBody struct {
	Error      string      `json:"error"`
	Message    string      `json:"message"`
	Status     int         `json:"status"`
	RequestID  string      `json:"request_id,omitempty"`
	TraceID    string      `json:"trace_id,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, maxCodeLen),
		Message: clip(message, maxMessageLen),
		Status:  status,
	}
}

func (e Error) WithRequestID(id string) Error {
	e.RequestID = clip(id, maxCodeLen)
	return e
}

func (e Error) WithTraceID(id string) Error {
	e.TraceID = clip(id, maxTraceLen)
	return e
}

func (e Error) WithViolations(violations ...Violation) Error {
	e.Violations = append([]Violation(nil), violations...)
	return e
}

// WithDetails adds top-level keys next to the envelope fields. Envelope keys win on collision.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = maps.Clone(details)
	return e
}

// WriteError writes err as JSON, filling request and trace ids from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	body := errorBody{
		Error:      err.Code,
		Message:    err.Message,
		Status:     err.Status,
		RequestID:  err.RequestID,
		TraceID:    err.TraceID,
		Violations: err.Violations,
	}
	if body.Status == 0 {
		body.Status = http.StatusInternalServerError
	}
	if body.RequestID == "" {
		body.RequestID = clip(middleware.GetReqID(ctx), maxCodeLen)
	}
	if body.TraceID == "" {
		body.TraceID = clip(requestctx.TraceID(ctx), maxTraceLen)
	}

	if len(err.Details) == 0 {
		WriteJSON(w, body.Status, body)
		return
	}
	raw, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		WriteJSON(w, body.Status, body)
		return
	}
	merged := maps.Clone(err.Details)
	var envelope map[string]any
	_ = json.Unmarshal(raw, &envelope)
	maps.Copy(merged, envelope)
	WriteJSON(w, body.Status, merged)
}

func clip(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
