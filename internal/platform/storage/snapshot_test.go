package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hanko-field/quotations/internal/domain"
	"github.com/hanko-field/quotations/internal/services"
)

type recordedObject struct {
	bucket   string
	object   string
	metadata map[string]string
	body     bytes.Buffer
	closed   bool
}

type fakeObjectWriter struct {
	objects  []*recordedObject
	closeErr error
}

func (f *fakeObjectWriter) NewObjectWriter(_ context.Context, bucket, object string, metadata map[string]string) io.WriteCloser {
	rec := &recordedObject{bucket: bucket, object: object, metadata: metadata}
	f.objects = append(f.objects, rec)
	return &fakeWriteCloser{rec: rec, closeErr: f.closeErr}
}

type fakeWriteCloser struct {
	rec      *recordedObject
	closeErr error
}

func (w *fakeWriteCloser) Write(p []byte) (int, error) { return w.rec.body.Write(p) }

func (w *fakeWriteCloser) Close() error {
	w.rec.closed = true
	return w.closeErr
}

func snapshotEvent(eventType string) services.QuotationEvent {
	occurred := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return services.QuotationEvent{
		Type:        eventType,
		QuotationID: "quo_1",
		ReferenceID: "R-100",
		ShopID:      "shop-1",
		ActorID:     "acct-1",
		OccurredAt:  occurred,
		Quotation: domain.Quotation{
			ID:           "quo_1",
			ReferenceID:  "R-100",
			ShopID:       "shop-1",
			CurrencyCode: "JPY",
			Shipping: []domain.QuotationFulfillmentGroup{{
				ID:                "fg_1",
				TotalItemQuantity: 2,
				Invoice:           domain.Invoice{Subtotal: 2000, Total: 2200, CurrencyCode: "JPY"},
			}},
			TotalItemQuantity:     2,
			AnonymousAccessTokens: []domain.AnonymousAccessToken{{HashedToken: "hash"}},
		},
	}
}

func TestSnapshotWriterArchivesCreatedQuotation(t *testing.T) {
	objects := &fakeObjectWriter{}
	writer, err := NewSnapshotWriter(objects, "archive", WithSnapshotPrefix("snapshots"))
	if err != nil {
		t.Fatalf("NewSnapshotWriter: %v", err)
	}

	if err := writer.PublishQuotationEvent(context.Background(), snapshotEvent(services.QuotationEventCreated)); err != nil {
		t.Fatalf("PublishQuotationEvent: %v", err)
	}
	if len(objects.objects) != 1 {
		t.Fatalf("expected one object, got %d", len(objects.objects))
	}
	rec := objects.objects[0]
	if rec.bucket != "archive" || !rec.closed {
		t.Fatalf("unexpected object %+v", rec)
	}
	if !strings.HasPrefix(rec.object, "snapshots/shops/shop-1/quotations/quo_1/") || !strings.HasSuffix(rec.object, "-quotation.created.json") {
		t.Fatalf("unexpected object name %s", rec.object)
	}
	if rec.metadata["referenceId"] != "R-100" {
		t.Fatalf("unexpected metadata %v", rec.metadata)
	}

	var snapshot QuotationSnapshot
	if err := json.Unmarshal(rec.body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Summary.Total != 2200 || snapshot.Summary.TotalItemQuantity != 2 {
		t.Fatalf("unexpected summary %+v", snapshot.Summary)
	}
	if len(snapshot.Quotation.AnonymousAccessTokens) != 0 {
		t.Fatalf("expected access tokens to be stripped")
	}
}

func TestSnapshotWriterIgnoresUpdates(t *testing.T) {
	objects := &fakeObjectWriter{}
	writer, _ := NewSnapshotWriter(objects, "archive")
	if err := writer.PublishQuotationEvent(context.Background(), snapshotEvent(services.QuotationEventUpdated)); err != nil {
		t.Fatalf("PublishQuotationEvent: %v", err)
	}
	if len(objects.objects) != 0 {
		t.Fatalf("expected no objects for updates")
	}
}

func TestSnapshotWriterReportsCloseFailure(t *testing.T) {
	objects := &fakeObjectWriter{closeErr: errors.New("precondition failed")}
	writer, _ := NewSnapshotWriter(objects, "archive")
	if err := writer.PublishQuotationEvent(context.Background(), snapshotEvent(services.QuotationEventCanceled)); err == nil {
		t.Fatalf("expected close failure to surface")
	}
}

func TestNewSnapshotWriterValidates(t *testing.T) {
	if _, err := NewSnapshotWriter(nil, "bucket"); err == nil {
		t.Fatalf("expected error without object writer")
	}
	if _, err := NewSnapshotWriter(&fakeObjectWriter{}, " "); err == nil {
		t.Fatalf("expected error without bucket")
	}
}
