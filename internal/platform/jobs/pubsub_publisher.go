package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/quotations/internal/services"
)

// QuotationEventMessage is the JSON payload published for each quotation event.
type QuotationEventMessage struct {
	Type              string         `json:"type"`
	QuotationID       string         `json:"quotationId"`
	ReferenceID       string         `json:"referenceId,omitempty"`
	ShopID            string         `json:"shopId"`
	ActorID           string         `json:"actorId,omitempty"`
	Status            string         `json:"status"`
	FulfillmentGroups []GroupSummary `json:"fulfillmentGroups"`
	OccurredAt        time.Time      `json:"occurredAt"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// GroupSummary carries the per-group state consumers need without the full aggregate.
type GroupSummary struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`
	TotalItemQuantity int     `json:"totalItemQuantity"`
	Total             float64 `json:"total"`
	CurrencyCode      string  `json:"currencyCode"`
	Tracking          string  `json:"tracking,omitempty"`
}

// PubSubQuotationPublisher publishes quotation events to a Pub/Sub topic, ordered per quotation.
type PubSubQuotationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubQuotationPublisher constructs a Pub/Sub backed quotation event publisher. Message ordering is
// enabled on the topic so events for one quotation arrive in the order they were produced.
func NewPubSubQuotationPublisher(topic *pubsub.Topic) (*PubSubQuotationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub quotation publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubQuotationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishQuotationEvent implements services.QuotationEventPublisher.
func (p *PubSubQuotationPublisher) PublishQuotationEvent(ctx context.Context, event services.QuotationEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub quotation publisher: not initialised")
	}

	data, err := p.marshal(newQuotationEventMessage(event))
	if err != nil {
		return fmt.Errorf("marshal quotation event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "quotationId", event.QuotationID)
	setAttr(attrs, "shopId", event.ShopID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: strings.TrimSpace(event.QuotationID),
	})
	if _, err := result.Get(ctx); err != nil {
		p.topic.ResumePublish(strings.TrimSpace(event.QuotationID))
		return fmt.Errorf("publish quotation event: %w", err)
	}
	return nil
}

func newQuotationEventMessage(event services.QuotationEvent) QuotationEventMessage {
	msg := QuotationEventMessage{
		Type:              event.Type,
		QuotationID:       event.QuotationID,
		ReferenceID:       event.ReferenceID,
		ShopID:            event.ShopID,
		ActorID:           event.ActorID,
		Status:            event.Quotation.Workflow.Status,
		FulfillmentGroups: make([]GroupSummary, 0, len(event.Quotation.Shipping)),
		OccurredAt:        event.OccurredAt.UTC(),
		Metadata:          event.Metadata,
	}
	for _, group := range event.Quotation.Shipping {
		msg.FulfillmentGroups = append(msg.FulfillmentGroups, GroupSummary{
			ID:                group.ID,
			Status:            group.Workflow.Status,
			TotalItemQuantity: group.TotalItemQuantity,
			Total:             group.Invoice.Total,
			CurrencyCode:      group.Invoice.CurrencyCode,
			Tracking:          group.Tracking,
		})
	}
	return msg
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.QuotationEventPublisher = (*PubSubQuotationPublisher)(nil)
