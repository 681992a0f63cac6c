package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/hanko-field/quotations/internal/domain"
	"github.com/hanko-field/quotations/internal/services"
)

func TestPubSubQuotationPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "quotation-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	defer topic.Stop()

	publisher, err := NewPubSubQuotationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubQuotationPublisher: %v", err)
	}

	occurredAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.QuotationEvent{
		Type:        services.QuotationEventCanceled,
		QuotationID: "quo_1",
		ReferenceID: "R-1",
		ShopID:      "shop-1",
		ActorID:     "acct-1",
		OccurredAt:  occurredAt,
		Quotation: domain.Quotation{
			ID:       "quo_1",
			Workflow: domain.Workflow{Status: "coreQuotationWorkflow/canceled"},
			Shipping: []domain.QuotationFulfillmentGroup{{
				ID:                "g1",
				TotalItemQuantity: 2,
				Invoice:           domain.Invoice{CurrencyCode: "JPY", Total: 3200},
				Workflow:          domain.Workflow{Status: "coreQuotationWorkflow/canceled"},
			}},
		},
	}

	if err := publisher.PublishQuotationEvent(ctx, event); err != nil {
		t.Fatalf("PublishQuotationEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload QuotationEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.QuotationID != "quo_1" || payload.Status != "coreQuotationWorkflow/canceled" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if len(payload.FulfillmentGroups) != 1 || payload.FulfillmentGroups[0].Total != 3200 {
		t.Fatalf("unexpected group summary %#v", payload.FulfillmentGroups)
	}
	if !payload.OccurredAt.Equal(occurredAt) {
		t.Fatalf("unexpected occurredAt %s", payload.OccurredAt)
	}
	if attr := messages[0].Attributes["eventType"]; attr != services.QuotationEventCanceled {
		t.Fatalf("expected event type attribute, got %q", attr)
	}
	if messages[0].OrderingKey != "quo_1" {
		t.Fatalf("expected ordering key quo_1, got %q", messages[0].OrderingKey)
	}
	if _, ok := messages[0].Attributes["actorId"]; ok {
		t.Fatalf("actor should not be exposed as an attribute")
	}
}

func TestNewPubSubQuotationPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubQuotationPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
