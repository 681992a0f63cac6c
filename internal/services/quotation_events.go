package services

import (
	"context"
	"errors"
)

// QuotationEventFanout delivers each event to every subscriber in order. Subscriber failures are joined.
type QuotationEventFanout []QuotationEventPublisher

// PublishQuotationEvent implements QuotationEventPublisher.
func (f QuotationEventFanout) PublishQuotationEvent(ctx context.Context, event QuotationEvent) error {
	var errs []error
	for _, subscriber := range f {
		if subscriber == nil {
			continue
		}
		if err := subscriber.PublishQuotationEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QuotationEventFunc adapts a function to QuotationEventPublisher.
type QuotationEventFunc func(ctx context.Context, event QuotationEvent) error

// PublishQuotationEvent implements QuotationEventPublisher.
func (fn QuotationEventFunc) PublishQuotationEvent(ctx context.Context, event QuotationEvent) error {
	return fn(ctx, event)
}

var (
	_ QuotationEventPublisher = QuotationEventFanout(nil)
	_ QuotationEventPublisher = QuotationEventFunc(nil)
)
