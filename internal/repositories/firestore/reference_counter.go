package firestore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/quotations/internal/domain"
	pfirestore "github.com/hanko-field/quotations/internal/platform/firestore"
	"github.com/hanko-field/quotations/internal/repositories"
	"github.com/hanko-field/quotations/internal/services"
)

const (
	countersCollection     = "counters"
	referenceCounterPrefix = "quotationReferences:"
	defaultReferenceStart  = 10000
)

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// ReferenceCounter issues sequential, shop-scoped quotation reference ids from a Firestore counter.
type ReferenceCounter struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	start    int64
	now      func() time.Time
}

// ReferenceCounterOption customises ReferenceCounter.
type ReferenceCounterOption func(*ReferenceCounter)

// WithReferenceStart sets the value the first reference of a shop follows.
func WithReferenceStart(start int64) ReferenceCounterOption {
	return func(c *ReferenceCounter) {
		if start >= 0 {
			c.start = start
		}
	}
}

// WithReferenceClock overrides the clock stamped on counter updates.
func WithReferenceClock(now func() time.Time) ReferenceCounterOption {
	return func(c *ReferenceCounter) {
		if now != nil {
			c.now = now
		}
	}
}

// NewReferenceCounter constructs a Firestore-backed reference id generator.
func NewReferenceCounter(provider *pfirestore.Provider, opts ...ReferenceCounterOption) (*ReferenceCounter, error) {
	if provider == nil {
		return nil, errors.New("reference counter requires firestore provider")
	}
	c := &ReferenceCounter{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
		start:    defaultReferenceStart,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Next atomically increments the shop's counter and returns the new value.
func (c *ReferenceCounter) Next(ctx context.Context, shopID string) (int64, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return 0, errors.New("reference counter: shop id is required")
	}
	id := referenceCounterPrefix + shopID

	var next int64
	err := c.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		current := c.start
		doc, err := c.counters.Get(ctx, id)
		switch {
		case err == nil:
			current = doc.Data.CurrentValue
		case isNotFound(err):
		default:
			return err
		}
		next = current + 1
		return c.counters.Set(ctx, id, counterDocument{CurrentValue: next, UpdatedAt: c.now().UTC()})
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// CreateReferenceID implements services.ReferenceIDGenerator.
func (c *ReferenceCounter) CreateReferenceID(ctx context.Context, quotation domain.Quotation, _ *domain.Cart) (string, error) {
	value, err := c.Next(ctx, quotation.ShopID)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(value, 10), nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

var _ services.ReferenceIDGenerator = (*ReferenceCounter)(nil)
