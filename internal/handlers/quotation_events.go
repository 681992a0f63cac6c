package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/quotations/internal/platform/httpx"
	"github.com/hanko-field/quotations/internal/platform/jobs"
	"github.com/hanko-field/quotations/internal/services"
)

// QuotationEventHandlers receives Pub/Sub push deliveries of quotation events and forwards them to the
// customer notifier.
type QuotationEventHandlers struct {
	quotations services.QuotationService
	notifier   services.QuotationEventPublisher
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// QuotationEventOption customises QuotationEventHandlers.
type QuotationEventOption func(*QuotationEventHandlers)

// WithQuotationEventLogger sets the event logger used for dropped deliveries.
func WithQuotationEventLogger(logger func(ctx context.Context, event string, fields map[string]any)) QuotationEventOption {
	return func(h *QuotationEventHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewQuotationEventHandlers constructs the push endpoint handlers.
func NewQuotationEventHandlers(quotations services.QuotationService, notifier services.QuotationEventPublisher, opts ...QuotationEventOption) *QuotationEventHandlers {
	h := &QuotationEventHandlers{
		quotations: quotations,
		notifier:   notifier,
		logger:     func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the push endpoint relative to the internal group.
func (h *QuotationEventHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/events/quotations", h.receive)
}

type pushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// receive acknowledges with 204 once the event is handled or can never be handled. Any other failure
// answers 500 so Pub/Sub redelivers.
func (h *QuotationEventHandlers) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotations == nil || h.notifier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifier_unavailable", "quotation notifier unavailable", http.StatusServiceUnavailable))
		return
	}

	var envelope pushEnvelope
	if err := httpx.DecodeJSON(r, &envelope); err != nil {
		writeInvalidBody(ctx, w, err)
		return
	}
	message, err := decodeQuotationEvent(envelope)
	if err != nil {
		h.logger(ctx, "quotation.event.decode.failed", map[string]any{
			"messageId":    envelope.Message.MessageID,
			"subscription": envelope.Subscription,
			"error":        err.Error(),
		})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	quotation, err := h.quotations.GetQuotation(ctx, services.QuotationLookup{QuotationID: message.QuotationID})
	if err != nil {
		if errors.Is(err, services.ErrQuotationNotFound) {
			h.logger(ctx, "quotation.event.quotation.missing", map[string]any{
				"messageId":   envelope.Message.MessageID,
				"quotationId": message.QuotationID,
			})
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeQuotationError(ctx, w, err)
		return
	}

	event := services.QuotationEvent{
		Type:        message.Type,
		QuotationID: quotation.ID,
		ReferenceID: quotation.ReferenceID,
		ShopID:      quotation.ShopID,
		ActorID:     message.ActorID,
		OccurredAt:  message.OccurredAt,
		Quotation:   quotation,
		Metadata:    message.Metadata,
	}
	if err := h.notifier.PublishQuotationEvent(ctx, event); err != nil {
		h.logger(ctx, "quotation.event.notify.failed", map[string]any{
			"messageId":   envelope.Message.MessageID,
			"quotationId": quotation.ID,
			"eventType":   message.Type,
			"error":       err.Error(),
		})
		httpx.WriteError(ctx, w, httpx.NewError("notification_failed", "quotation notification failed", http.StatusInternalServerError))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeQuotationEvent(envelope pushEnvelope) (jobs.QuotationEventMessage, error) {
	var message jobs.QuotationEventMessage
	raw := strings.TrimSpace(envelope.Message.Data)
	if raw == "" {
		return message, errors.New("push message has no data")
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return message, err
	}
	if err := json.Unmarshal(data, &message); err != nil {
		return message, err
	}
	if strings.TrimSpace(message.QuotationID) == "" {
		message.QuotationID = strings.TrimSpace(envelope.Message.Attributes["quotationId"])
	}
	if strings.TrimSpace(message.Type) == "" {
		message.Type = strings.TrimSpace(envelope.Message.Attributes["eventType"])
	}
	if message.QuotationID == "" || message.Type == "" {
		return message, errors.New("push message is missing quotation id or event type")
	}
	return message, nil
}
