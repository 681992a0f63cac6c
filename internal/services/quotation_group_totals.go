package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type groupCalculator struct {
	providers QuotationProviders
	newID     func() string
	tracer    trace.Tracer
	logger    func(context.Context, string, map[string]any)
}

type groupTotalsInput struct {
	Group            *QuotationFulfillmentGroup
	SelectedMethodID string
	DiscountTotal    float64
	// ExpectedTotal is compared against the computed group total when set.
	ExpectedTotal *float64
}

type groupTotalsResult struct {
	Surcharges     []Surcharge
	SurchargeTotal float64
	TaxTotal       float64
	TaxableAmount  float64
}

// recalculate re-resolves the shipment method, then surcharges, then taxes, and finally rebuilds the invoice.
func (c *groupCalculator) recalculate(ctx context.Context, pc groupPricingContext, in groupTotalsInput) (groupTotalsResult, error) {
	group := in.Group
	ctx, span := c.tracer.Start(ctx, "quotation.group.recalculate", trace.WithAttributes(
		attribute.String("quotation.id", pc.QuotationID),
		attribute.String("fulfillment_group.id", group.ID),
	))
	defer span.End()

	if err := c.resolveShipmentMethod(ctx, pc, group, in.SelectedMethodID, in.DiscountTotal); err != nil {
		span.RecordError(err)
		return groupTotalsResult{}, err
	}

	surcharges, surchargeTotal, err := c.collectSurcharges(ctx, pc, *group, in.DiscountTotal)
	if err != nil {
		span.RecordError(err)
		return groupTotalsResult{}, err
	}

	taxes, err := c.computeTaxes(ctx, pc, *group, in.DiscountTotal, surcharges)
	if err != nil {
		span.RecordError(err)
		return groupTotalsResult{}, err
	}

	subtotals := make([]float64, len(group.Items))
	for i, item := range group.Items {
		subtotals[i] = item.Subtotal
	}
	subtotal := sumAmounts(subtotals...)
	shipping := roundAmount(group.ShipmentMethod.Rate)
	taxTotal := roundAmount(taxes.TaxTotal)
	taxable := roundAmount(taxes.TaxableAmount)
	discounts := roundAmount(in.DiscountTotal)
	total := subtractAmount(sumAmounts(subtotal, shipping, surchargeTotal, taxTotal), discounts)

	group.Invoice = Invoice{
		CurrencyCode:     pc.CurrencyCode,
		Subtotal:         subtotal,
		Shipping:         shipping,
		Taxes:            taxTotal,
		TaxableAmount:    taxable,
		Discounts:        discounts,
		Surcharges:       surchargeTotal,
		Total:            total,
		EffectiveTaxRate: ratio(taxTotal, taxable),
	}

	if in.ExpectedTotal != nil && !amountsMatch(*in.ExpectedTotal, total) {
		err := fmt.Errorf("%w: client provided total price %s for fulfillment group %s does not match actual total price %s",
			ErrQuotationInvalid, formatAmount(*in.ExpectedTotal), group.ID, formatAmount(total))
		span.RecordError(err)
		return groupTotalsResult{}, err
	}

	return groupTotalsResult{
		Surcharges:     surcharges,
		SurchargeTotal: surchargeTotal,
		TaxTotal:       taxTotal,
		TaxableAmount:  taxable,
	}, nil
}

func (c *groupCalculator) resolveShipmentMethod(ctx context.Context, pc groupPricingContext, group *QuotationFulfillmentGroup, methodID string, discountTotal float64) error {
	if c.providers.Rates == nil {
		return fmt.Errorf("%w: no fulfillment rate quoter configured", ErrQuotationInvalid)
	}
	rates, err := c.providers.Rates.QuoteFulfillment(ctx, buildCommonQuotation(pc, *group, discountTotal, nil))
	if err != nil {
		c.logger(ctx, "quotation.rates.failed", map[string]any{
			"quotationId": pc.QuotationID,
			"groupId":     group.ID,
			"error":       err.Error(),
		})
		return providerError(err, "fulfillment rate quote failed")
	}

	if idx := slices.IndexFunc(rates, func(r FulfillmentRate) bool { return r.RequestStatus == RateRequestStatusError }); idx >= 0 {
		return fmt.Errorf("%w: %s", ErrQuotationInvalid, rates[idx].Message)
	}

	idx := slices.IndexFunc(rates, func(r FulfillmentRate) bool { return r.Method.ID == methodID })
	if idx < 0 {
		return fmt.Errorf("%w: the selected fulfillment method is no longer available; fetch updated fulfillment options and try again with a valid method", ErrQuotationInvalid)
	}

	selected := rates[idx]
	group.ShipmentMethod = &ShipmentMethod{
		ID:           selected.Method.ID,
		Carrier:      selected.Method.Carrier,
		Label:        selected.Method.Label,
		Group:        selected.Method.Group,
		Name:         selected.Method.Name,
		Handling:     selected.HandlingPrice,
		Rate:         selected.Rate,
		CurrencyCode: pc.CurrencyCode,
	}
	return nil
}

func (c *groupCalculator) collectSurcharges(ctx context.Context, pc groupPricingContext, group QuotationFulfillmentGroup, discountTotal float64) ([]Surcharge, float64, error) {
	var out []Surcharge
	amounts := make([]float64, 0)
	for _, provider := range c.providers.Surcharges {
		if provider == nil {
			continue
		}
		applied, err := provider.GetSurcharges(ctx, buildCommonQuotation(pc, group, discountTotal, nil))
		if err != nil {
			c.logger(ctx, "quotation.surcharges.failed", map[string]any{
				"quotationId": pc.QuotationID,
				"groupId":     group.ID,
				"error":       err.Error(),
			})
			return nil, 0, providerError(err, "surcharge calculation failed")
		}
		for _, surcharge := range applied {
			if surcharge.ID == "" {
				surcharge.ID = surchargeIDPrefix + c.newID()
			}
			surcharge.FulfillmentGroupID = group.ID
			if surcharge.Amount.CurrencyCode == "" {
				surcharge.Amount.CurrencyCode = pc.CurrencyCode
			}
			out = append(out, surcharge)
			amounts = append(amounts, surcharge.Amount.Amount)
		}
	}
	return out, sumAmounts(amounts...), nil
}

func (c *groupCalculator) computeTaxes(ctx context.Context, pc groupPricingContext, group QuotationFulfillmentGroup, discountTotal float64, surcharges []Surcharge) (TaxResult, error) {
	if c.providers.Tax == nil {
		return TaxResult{}, nil
	}
	result, err := c.providers.Tax.CalculateTaxes(ctx, buildCommonQuotation(pc, group, discountTotal, surcharges))
	if err != nil {
		c.logger(ctx, "quotation.taxes.failed", map[string]any{
			"quotationId": pc.QuotationID,
			"groupId":     group.ID,
			"error":       err.Error(),
		})
		return TaxResult{}, providerError(err, "tax calculation failed")
	}
	return result, nil
}

// recalculateGroups recalculates the indexed groups concurrently. The returned surcharges follow group order.
func (c *groupCalculator) recalculateGroups(ctx context.Context, pc groupPricingContext, groups []QuotationFulfillmentGroup, indexes []int, discountTotal float64) ([]Surcharge, error) {
	results := make([]groupTotalsResult, len(indexes))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, idx := range indexes {
		group := &groups[idx]
		methodID := ""
		if group.ShipmentMethod != nil {
			methodID = group.ShipmentMethod.ID
		}
		discount := discountTotal
		if discount < 0 {
			discount = group.Invoice.Discounts
		}
		eg.Go(func() error {
			res, err := c.recalculate(egCtx, pc, groupTotalsInput{
				Group:            group,
				SelectedMethodID: methodID,
				DiscountTotal:    discount,
			})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var surcharges []Surcharge
	for _, res := range results {
		surcharges = append(surcharges, res.Surcharges...)
	}
	return surcharges, nil
}

// keepExistingDiscounts tells recalculateGroups to reuse each group's stored discount total.
const keepExistingDiscounts = -1

func providerError(err error, message string) error {
	for _, known := range []error{ErrQuotationInvalid, ErrQuotationInvalidParam, ErrQuotationNotFound, ErrQuotationPaymentFailed} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrQuotationInvalid, message, err)
}

// mergeSurcharges replaces the surcharges of recalculated groups and keeps those of untouched groups.
func mergeSurcharges(existing []Surcharge, groups []QuotationFulfillmentGroup, recalculated []int, fresh []Surcharge) []Surcharge {
	replaced := make(map[string]struct{}, len(recalculated))
	for _, idx := range recalculated {
		replaced[groups[idx].ID] = struct{}{}
	}
	out := make([]Surcharge, 0, len(existing)+len(fresh))
	for _, surcharge := range existing {
		if _, ok := replaced[surcharge.FulfillmentGroupID]; ok {
			continue
		}
		out = append(out, surcharge)
	}
	return append(out, fresh...)
}
