package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/quotations/internal/domain"
	"github.com/hanko-field/quotations/internal/repositories"
)

// ShopRateQuoter quotes the flat-rate fulfillment methods a shop has configured.
type ShopRateQuoter struct {
	methods repositories.FulfillmentMethodRepository
}

// NewShopRateQuoter constructs a ShopRateQuoter.
func NewShopRateQuoter(methods repositories.FulfillmentMethodRepository) (*ShopRateQuoter, error) {
	if methods == nil {
		return nil, errors.New("shop rate quoter: fulfillment method repository is required")
	}
	return &ShopRateQuoter{methods: methods}, nil
}

// QuoteFulfillment implements FulfillmentRateQuoter. Methods that do not serve the group's type or
// destination are left out.
func (q *ShopRateQuoter) QuoteFulfillment(ctx context.Context, view CommonQuotation) ([]FulfillmentRate, error) {
	methods, err := q.methods.ListByShop(ctx, view.ShopID)
	if err != nil {
		return nil, fmt.Errorf("list fulfillment methods for shop %s: %w", view.ShopID, err)
	}

	country := ""
	if view.ShippingAddress != nil {
		country = strings.ToUpper(strings.TrimSpace(view.ShippingAddress.Country))
	}
	itemTotal := view.Totals.GroupItemTotal.Amount

	rates := make([]FulfillmentRate, 0, len(methods))
	for _, method := range methods {
		if !methodServes(method, view.FulfillmentType, country) {
			continue
		}
		rate := method.Rate
		if method.FreeOver > 0 && itemTotal >= method.FreeOver {
			rate = 0
		}
		rates = append(rates, FulfillmentRate{
			Method: ShipmentMethod{
				ID:           method.ID,
				Carrier:      method.Carrier,
				Label:        method.Label,
				Group:        method.Group,
				Name:         method.Name,
				Handling:     method.Handling,
				Rate:         rate,
				CurrencyCode: view.CurrencyCode,
			},
			HandlingPrice: roundAmount(method.Handling),
			ShippingPrice: sumAmounts(rate, method.Handling),
			Rate:          roundAmount(rate),
		})
	}
	return rates, nil
}

func methodServes(method domain.FulfillmentMethod, fulfillmentType, country string) bool {
	if !method.Enabled {
		return false
	}
	if len(method.FulfillmentTypes) > 0 && !slices.Contains(method.FulfillmentTypes, fulfillmentType) {
		return false
	}
	if len(method.Countries) > 0 && country != "" {
		return slices.ContainsFunc(method.Countries, func(c string) bool { return strings.EqualFold(c, country) })
	}
	return true
}

// CachedRateQuoter memoises successful quotes for identical group contents and destinations. Entries do
// not see method changes until they expire, so a disabled method keeps quoting for up to ttl.
type CachedRateQuoter struct {
	next  FulfillmentRateQuoter
	cache *rateQuoteCache
}

// NewCachedRateQuoter wraps next with a TTL cache.
func NewCachedRateQuoter(next FulfillmentRateQuoter, ttl time.Duration, now func() time.Time) (*CachedRateQuoter, error) {
	if next == nil {
		return nil, errors.New("cached rate quoter: next quoter is required")
	}
	if ttl <= 0 {
		return nil, errors.New("cached rate quoter: ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &CachedRateQuoter{next: next, cache: newRateQuoteCache(ttl, now)}, nil
}

// QuoteFulfillment implements FulfillmentRateQuoter. Quotes containing an error entry are not cached.
func (c *CachedRateQuoter) QuoteFulfillment(ctx context.Context, view CommonQuotation) ([]FulfillmentRate, error) {
	key := buildRateCacheKey(view)
	if rates, ok := c.cache.Get(key); ok {
		return rates, nil
	}
	rates, err := c.next.QuoteFulfillment(ctx, view)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(rates, func(r FulfillmentRate) bool { return r.RequestStatus == RateRequestStatusError }) {
		c.cache.Put(key, rates)
	}
	return slices.Clone(rates), nil
}

type rateQuoteCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]rateCacheEntry
}

type rateCacheEntry struct {
	rates   []FulfillmentRate
	expires time.Time
}

func newRateQuoteCache(ttl time.Duration, now func() time.Time) *rateQuoteCache {
	return &rateQuoteCache{
		ttl: ttl,
		now: now,
		m:   make(map[string]rateCacheEntry),
	}
}

func (c *rateQuoteCache) Get(key string) ([]FulfillmentRate, bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false
	}
	return slices.Clone(entry.rates), true
}

func (c *rateQuoteCache) Put(key string, rates []FulfillmentRate) {
	c.mu.Lock()
	c.m[key] = rateCacheEntry{rates: slices.Clone(rates), expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func buildRateCacheKey(view CommonQuotation) string {
	baseParts := []string{
		view.ShopID,
		view.FulfillmentType,
		strings.ToUpper(view.CurrencyCode),
		formatAmount(view.Totals.GroupItemTotal.Amount),
	}
	if addr := view.ShippingAddress; addr != nil {
		baseParts = append([]string{
			strings.ToUpper(strings.TrimSpace(addr.Country)),
			strings.ToUpper(strings.TrimSpace(addr.PostalCode)),
			strings.ToUpper(strings.TrimSpace(derefString(addr.State))),
		}, baseParts...)
	}

	itemParts := make([]string, len(view.Items))
	for i, item := range view.Items {
		itemParts[i] = strings.Join([]string{
			item.ProductID,
			item.VariantID,
			fmt.Sprintf("%d", item.Quantity),
		}, ",")
	}
	if len(itemParts) > 0 {
		sort.Strings(itemParts)
		baseParts = append(baseParts, strings.Join(itemParts, ";"))
	}
	return strings.Join(baseParts, "|")
}

var (
	_ FulfillmentRateQuoter = (*ShopRateQuoter)(nil)
	_ FulfillmentRateQuoter = (*CachedRateQuoter)(nil)
)
