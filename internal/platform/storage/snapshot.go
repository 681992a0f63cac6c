package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/hanko-field/quotations/internal/services"
)

const snapshotContentType = "application/json"

// QuotationSnapshot is the archived form of a quotation at the moment an event occurred.
type QuotationSnapshot struct {
	EventType  string                    `json:"eventType"`
	ActorID    string                    `json:"actorId,omitempty"`
	OccurredAt time.Time                 `json:"occurredAt"`
	Summary    services.QuotationSummary `json:"summary"`
	Quotation  services.Quotation        `json:"quotation"`
}

// ObjectWriter opens a writer for a new object. Implementations must fail the write when the object
// already exists.
type ObjectWriter interface {
	NewObjectWriter(ctx context.Context, bucket, object string, metadata map[string]string) io.WriteCloser
}

// GCSObjectWriter writes objects through a Cloud Storage client.
type GCSObjectWriter struct {
	client *gcs.Client
}

// NewGCSObjectWriter wraps client.
func NewGCSObjectWriter(client *gcs.Client) (*GCSObjectWriter, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return &GCSObjectWriter{client: client}, nil
}

// NewObjectWriter implements ObjectWriter with a does-not-exist precondition.
func (w *GCSObjectWriter) NewObjectWriter(ctx context.Context, bucket, object string, metadata map[string]string) io.WriteCloser {
	handle := w.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true})
	writer := handle.NewWriter(ctx)
	writer.ContentType = snapshotContentType
	writer.Metadata = metadata
	return writer
}

// SnapshotWriter archives quotations to Cloud Storage when they are created or canceled.
type SnapshotWriter struct {
	objects ObjectWriter
	bucket  string
	prefix  string
	logger  *zap.Logger
}

// SnapshotOption customises a SnapshotWriter.
type SnapshotOption func(*SnapshotWriter)

// WithSnapshotPrefix sets the object prefix.
func WithSnapshotPrefix(prefix string) SnapshotOption {
	return func(w *SnapshotWriter) { w.prefix = strings.TrimSpace(prefix) }
}

// WithSnapshotLogger sets the logger.
func WithSnapshotLogger(logger *zap.Logger) SnapshotOption {
	return func(w *SnapshotWriter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewSnapshotWriter constructs a snapshot writer for bucket.
func NewSnapshotWriter(objects ObjectWriter, bucket string, opts ...SnapshotOption) (*SnapshotWriter, error) {
	if objects == nil {
		return nil, errors.New("storage: object writer is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: snapshot bucket is required")
	}
	w := &SnapshotWriter{objects: objects, bucket: bucket, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// PublishQuotationEvent implements services.QuotationEventPublisher. Only creation and cancellation are
// archived.
func (w *SnapshotWriter) PublishQuotationEvent(ctx context.Context, event services.QuotationEvent) error {
	switch event.Type {
	case services.QuotationEventCreated, services.QuotationEventCanceled:
	default:
		return nil
	}

	quotation := event.Quotation
	quotation.AnonymousAccessTokens = nil
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	object, err := BuildSnapshotPath(SnapshotPathParams{
		Prefix:      w.prefix,
		ShopID:      event.ShopID,
		QuotationID: event.QuotationID,
		EventType:   event.Type,
		OccurredAt:  occurredAt,
	})
	if err != nil {
		return err
	}

	data, err := json.Marshal(QuotationSnapshot{
		EventType:  event.Type,
		ActorID:    event.ActorID,
		OccurredAt: occurredAt.UTC(),
		Summary:    services.SummarizeQuotation(quotation),
		Quotation:  quotation,
	})
	if err != nil {
		return fmt.Errorf("storage: marshal snapshot: %w", err)
	}

	writer := w.objects.NewObjectWriter(ctx, w.bucket, object, map[string]string{
		"quotationId": event.QuotationID,
		"referenceId": event.ReferenceID,
		"eventType":   event.Type,
	})
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: write snapshot %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage: finalize snapshot %s: %w", object, err)
	}

	w.logger.Debug("quotation snapshot written",
		zap.String("bucket", w.bucket),
		zap.String("object", object),
		zap.String("quotationId", event.QuotationID),
	)
	return nil
}

var (
	_ ObjectWriter                     = (*GCSObjectWriter)(nil)
	_ services.QuotationEventPublisher = (*SnapshotWriter)(nil)
)
