package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/quotations/internal/repositories"
)

// SurchargeRuleProvider applies the shop's enabled surcharge rules to a group.
type SurchargeRuleProvider struct {
	rules repositories.SurchargeRuleRepository
}

// NewSurchargeRuleProvider constructs a SurchargeRuleProvider.
func NewSurchargeRuleProvider(rules repositories.SurchargeRuleRepository) (*SurchargeRuleProvider, error) {
	if rules == nil {
		return nil, errors.New("surcharge rule provider: surcharge rule repository is required")
	}
	return &SurchargeRuleProvider{rules: rules}, nil
}

// GetSurcharges implements SurchargeProvider. A rule limited to products applies only when the group holds
// one of them; per-item rules charge once per matching unit.
func (p *SurchargeRuleProvider) GetSurcharges(ctx context.Context, view CommonQuotation) ([]Surcharge, error) {
	rules, err := p.rules.ListEnabled(ctx, view.ShopID)
	if err != nil {
		return nil, fmt.Errorf("list surcharge rules for shop %s: %w", view.ShopID, err)
	}

	country := ""
	if view.ShippingAddress != nil {
		country = strings.TrimSpace(view.ShippingAddress.Country)
	}

	var out []Surcharge
	for _, rule := range rules {
		if len(rule.DestinationCountries) > 0 &&
			!slices.ContainsFunc(rule.DestinationCountries, func(c string) bool { return strings.EqualFold(c, country) }) {
			continue
		}
		units := 0
		for _, item := range view.Items {
			if len(rule.ProductIDs) == 0 || slices.Contains(rule.ProductIDs, item.ProductID) {
				units += item.Quantity
			}
		}
		if units == 0 {
			continue
		}
		amount := roundAmount(rule.Amount)
		if rule.PerItem {
			amount = itemSubtotal(rule.Amount, units)
		}
		out = append(out, Surcharge{
			SurchargeID: rule.ID,
			Name:        rule.Name,
			Message:     rule.Message,
			Amount:      Money{Amount: amount, CurrencyCode: view.CurrencyCode},
		})
	}
	return out, nil
}

// RegionTaxProvider taxes taxable items and surcharges at a flat rate per destination country.
type RegionTaxProvider struct {
	rates       map[string]float64
	defaultRate float64
}

// NewRegionTaxProvider constructs a RegionTaxProvider from country rates (e.g. "JP": 0.10).
func NewRegionTaxProvider(rates map[string]float64, defaultRate float64) *RegionTaxProvider {
	normalized := make(map[string]float64, len(rates))
	for country, rate := range rates {
		normalized[strings.ToUpper(strings.TrimSpace(country))] = rate
	}
	return &RegionTaxProvider{rates: normalized, defaultRate: defaultRate}
}

// CalculateTaxes implements TaxProvider. The destination is the shipping address, then the shop origin.
func (p *RegionTaxProvider) CalculateTaxes(_ context.Context, view CommonQuotation) (TaxResult, error) {
	addr := view.ShippingAddress
	if addr == nil {
		addr = view.OriginAddress
	}
	rate := p.defaultRate
	if addr != nil {
		if r, ok := p.rates[strings.ToUpper(strings.TrimSpace(addr.Country))]; ok {
			rate = r
		}
	}
	if rate < 0 {
		return TaxResult{}, fmt.Errorf("%w: negative tax rate", ErrQuotationInvalid)
	}

	taxable := decimal.Zero
	for _, item := range view.Items {
		if item.IsTaxable {
			taxable = taxable.Add(toDecimal(item.Subtotal.Amount))
		}
	}
	for _, surcharge := range view.Surcharges {
		taxable = taxable.Add(toDecimal(surcharge.Amount.Amount))
	}
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}

	tax := taxable.Mul(decimal.NewFromFloat(rate))
	return TaxResult{
		TaxTotal:      fromDecimal(tax),
		TaxableAmount: fromDecimal(taxable),
	}, nil
}

var (
	_ SurchargeProvider = (*SurchargeRuleProvider)(nil)
	_ TaxProvider       = (*RegionTaxProvider)(nil)
)
