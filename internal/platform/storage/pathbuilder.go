package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// SnapshotPathParams identify the quotation event a snapshot object records.
type SnapshotPathParams struct {
	Prefix      string
	ShopID      string
	QuotationID string
	EventType   string
	OccurredAt  time.Time
}

// BuildSnapshotPath composes "<prefix>/shops/<shop>/quotations/<id>/<timestamp>-<event>.json". Timestamps
// are UTC with millisecond precision so objects for one quotation list in event order.
func BuildSnapshotPath(params SnapshotPathParams) (string, error) {
	shopID, err := validateSegment("shopID", params.ShopID)
	if err != nil {
		return "", err
	}
	quotationID, err := validateSegment("quotationID", params.QuotationID)
	if err != nil {
		return "", err
	}
	event, err := validateSegment("eventType", params.EventType)
	if err != nil {
		return "", err
	}
	if params.OccurredAt.IsZero() {
		return "", fmt.Errorf("storage: occurredAt is required")
	}
	prefix := strings.Trim(strings.TrimSpace(params.Prefix), "/")
	if strings.Contains(prefix, "..") {
		return "", fmt.Errorf("storage: prefix contains invalid traversal sequence")
	}
	stamp := params.OccurredAt.UTC().Format("20060102T150405.000Z")
	name := fmt.Sprintf("%s-%s.json", stamp, event)
	return path.Join(prefix, "shops", shopID, "quotations", quotationID, name), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
