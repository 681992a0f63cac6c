package storage

import (
	"testing"
	"time"
)

func TestBuildSnapshotPath(t *testing.T) {
	path, err := BuildSnapshotPath(SnapshotPathParams{
		Prefix:      "/quotations/",
		ShopID:      "shop-1",
		QuotationID: "quo_123",
		EventType:   "quotation.created",
		OccurredAt:  time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.FixedZone("JST", 9*3600)),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "quotations/shops/shop-1/quotations/quo_123/20250303T200607.890Z-quotation.created.json"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildSnapshotPathWithoutPrefix(t *testing.T) {
	path, err := BuildSnapshotPath(SnapshotPathParams{
		ShopID:      "shop-1",
		QuotationID: "quo_123",
		EventType:   "quotation.canceled",
		OccurredAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "shops/shop-1/quotations/quo_123/20250101T000000.000Z-quotation.canceled.json" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBuildSnapshotPathRejectsInvalidSegment(t *testing.T) {
	cases := []SnapshotPathParams{
		{ShopID: "../bad", QuotationID: "q", EventType: "e", OccurredAt: time.Now()},
		{ShopID: "s", QuotationID: "a/b", EventType: "e", OccurredAt: time.Now()},
		{ShopID: "s", QuotationID: "q", EventType: "", OccurredAt: time.Now()},
		{ShopID: "s", QuotationID: "q", EventType: "e"},
		{Prefix: "../up", ShopID: "s", QuotationID: "q", EventType: "e", OccurredAt: time.Now()},
	}
	for i, params := range cases {
		if _, err := BuildSnapshotPath(params); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
