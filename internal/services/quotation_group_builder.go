package services

import (
	"context"
	"fmt"
	"strings"
)

type groupBuildInput struct {
	Input           FulfillmentGroupInput
	AdditionalItems []QuotationItem
	DiscountTotal   float64
}

// buildGroup creates a new fulfillment group from input and prices it.
func (c *groupCalculator) buildGroup(ctx context.Context, pc groupPricingContext, in groupBuildInput) (QuotationFulfillmentGroup, groupTotalsResult, error) {
	input := in.Input
	group := QuotationFulfillmentGroup{
		ID:       fulfillmentGroupIDPrefix + c.newID(),
		ShopID:   strings.TrimSpace(input.ShopID),
		Type:     strings.TrimSpace(input.Type),
		Address:  cloneAddress(input.ShippingAddress),
		Workflow: newWorkflow(QuotationStatusNew),
	}

	if len(input.Items) > 0 {
		if c.providers.Items == nil {
			return QuotationFulfillmentGroup{}, groupTotalsResult{}, fmt.Errorf("%w: no item builder configured", ErrQuotationInvalid)
		}
		group.Items = make([]QuotationItem, 0, len(input.Items)+len(in.AdditionalItems))
		for _, itemInput := range input.Items {
			item, err := c.providers.Items.BuildQuotationItem(ctx, itemInput, pc.CurrencyCode)
			if err != nil {
				return QuotationFulfillmentGroup{}, groupTotalsResult{}, providerError(err, "unable to build quotation item")
			}
			if item.ID == "" {
				item.ID = itemIDPrefix + c.newID()
			}
			if item.Workflow.Status == "" {
				item.Workflow = newWorkflow(QuotationStatusNew)
			}
			item.Subtotal = itemSubtotal(item.Price.Amount, item.Quantity)
			group.Items = append(group.Items, item)
		}
	}
	group.Items = append(group.Items, cloneItems(in.AdditionalItems)...)
	if len(group.Items) == 0 {
		return QuotationFulfillmentGroup{}, groupTotalsResult{}, fmt.Errorf("%w: fulfillment group must have at least one item", ErrQuotationInvalidParam)
	}

	refreshGroupProjections(&group)

	res, err := c.recalculate(ctx, pc, groupTotalsInput{
		Group:            &group,
		SelectedMethodID: strings.TrimSpace(input.SelectedFulfillmentMethodID),
		DiscountTotal:    in.DiscountTotal,
		ExpectedTotal:    input.TotalPrice,
	})
	if err != nil {
		return QuotationFulfillmentGroup{}, groupTotalsResult{}, err
	}
	return group, res, nil
}
