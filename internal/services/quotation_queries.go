package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/language"

	domain "github.com/hanko-field/quotations/internal/domain"
	"github.com/hanko-field/quotations/internal/platform/textutil"
	"github.com/hanko-field/quotations/internal/repositories"
)

const (
	defaultQuotationPageSize = 20
	maxQuotationPageSize     = 100

	quotationWorkflowPrefix = "coreQuotationWorkflow/"
)

// GetQuotation loads a quotation by id or by shop reference id. A matching anonymous token grants access
// without a capability check.
func (s *quotationService) GetQuotation(ctx context.Context, query QuotationLookup) (Quotation, error) {
	var (
		quotation Quotation
		err       error
	)
	switch id, ref := strings.TrimSpace(query.QuotationID), strings.TrimSpace(query.ReferenceID); {
	case id != "":
		quotation, err = s.quotations.FindByID(ctx, id)
	case ref != "":
		shopID := strings.TrimSpace(query.ShopID)
		if shopID == "" {
			return Quotation{}, fmt.Errorf("%w: shop id is required to look up a reference id", ErrQuotationInvalidParam)
		}
		quotation, err = s.quotations.FindByReferenceID(ctx, shopID, ref)
	default:
		return Quotation{}, fmt.Errorf("%w: quotation id or reference id is required", ErrQuotationInvalidParam)
	}
	if err != nil {
		return Quotation{}, mapQuotationRepositoryError(err)
	}

	if tokenMatches(quotation.AnonymousAccessTokens, strings.TrimSpace(query.Token)) {
		return quotation, nil
	}
	if err := s.authorize(ctx, quotation, actionRead, true); err != nil {
		return Quotation{}, err
	}
	return quotation, nil
}

// ListQuotations lists quotations for the given shops, or for one account when no shop is named.
func (s *quotationService) ListQuotations(ctx context.Context, filter QuotationListFilter) (domain.CursorPage[Quotation], error) {
	filter.AccountID = strings.TrimSpace(filter.AccountID)
	filter.ShopIDs = normalizeIDs(filter.ShopIDs)
	if len(filter.ShopIDs) == 0 && filter.AccountID == "" {
		return domain.CursorPage[Quotation]{}, fmt.Errorf("%w: shopIds or accountId is required", ErrQuotationInvalidParam)
	}

	if len(filter.ShopIDs) == 0 {
		if err := s.checkPermission(ctx, quotationsCapability, actionRead, PermissionScope{OwnerID: filter.AccountID}); err != nil {
			return domain.CursorPage[Quotation]{}, err
		}
	}
	for _, shopID := range filter.ShopIDs {
		if err := s.checkPermission(ctx, quotationsCapability, actionRead, PermissionScope{ShopID: shopID}); err != nil {
			return domain.CursorPage[Quotation]{}, err
		}
	}

	filter.Status = workflowStatuses(filter.Status)
	filter.SearchField = textutil.PlainText(filter.SearchField)
	if n := filter.Disjunctions(); n > repositories.MaxListDisjunctions {
		return domain.CursorPage[Quotation]{}, fmt.Errorf("%w: filter expands to %d query branches, limit is %d", ErrQuotationInvalidParam, n, repositories.MaxListDisjunctions)
	}
	if from, to := filter.CreatedAt.From, filter.CreatedAt.To; from != nil && to != nil && from.After(*to) {
		return domain.CursorPage[Quotation]{}, fmt.Errorf("%w: createdAt range start must not be after its end", ErrQuotationInvalidParam)
	}
	switch {
	case filter.Pagination.PageSize <= 0:
		filter.Pagination.PageSize = defaultQuotationPageSize
	case filter.Pagination.PageSize > maxQuotationPageSize:
		filter.Pagination.PageSize = maxQuotationPageSize
	}

	page, err := s.quotations.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Quotation]{}, mapQuotationRepositoryError(err)
	}
	return page, nil
}

// workflowStatuses expands short status names to their stored workflow form.
func workflowStatuses(statuses []string) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		status = strings.TrimSpace(status)
		if status == "" {
			continue
		}
		if status != QuotationStatusNew && !strings.Contains(status, "/") {
			status = quotationWorkflowPrefix + status
		}
		if !slices.Contains(out, status) {
			out = append(out, status)
		}
	}
	return out
}

// DisplayStatus returns the shop's label for a status in the closest configured language, or the status itself.
func (s *quotationService) DisplayStatus(ctx context.Context, shopID, status, lang string) (string, error) {
	status = strings.TrimSpace(status)
	if s.shops == nil || strings.TrimSpace(shopID) == "" {
		return status, nil
	}
	shop, err := s.shops.FindByID(ctx, strings.TrimSpace(shopID))
	if err != nil {
		mapped := mapQuotationRepositoryError(err)
		if errors.Is(mapped, ErrQuotationNotFound) {
			return status, nil
		}
		return "", mapped
	}
	return statusLabel(shop.StatusLabels[status], lang, status), nil
}

func statusLabel(labels []StatusLabel, lang, fallback string) string {
	if len(labels) == 0 {
		return fallback
	}
	tags := make([]language.Tag, 0, len(labels))
	candidates := make([]StatusLabel, 0, len(labels))
	for _, label := range labels {
		tag, err := language.Parse(label.Language)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		candidates = append(candidates, label)
	}
	if len(tags) == 0 {
		return fallback
	}

	matcher := language.NewMatcher(tags)
	_, idx, confidence := matcher.Match(language.Make(lang))
	if confidence == language.No {
		return fallback
	}
	if label := strings.TrimSpace(candidates[idx].Label); label != "" {
		return label
	}
	return fallback
}

// QuotationSummary aggregates the invoices of every fulfillment group.
type QuotationSummary struct {
	CurrencyCode      string
	ItemTotal         float64
	ShippingTotal     float64
	SurchargeTotal    float64
	TaxTotal          float64
	DiscountTotal     float64
	Total             float64
	TotalItemQuantity int
}

// SummarizeQuotation totals the group invoices of a quotation at the fixed money scale.
func SummarizeQuotation(q Quotation) QuotationSummary {
	var subtotals, shipping, surcharges, taxes, discounts, totals []float64
	for _, group := range q.Shipping {
		subtotals = append(subtotals, group.Invoice.Subtotal)
		shipping = append(shipping, group.Invoice.Shipping)
		surcharges = append(surcharges, group.Invoice.Surcharges)
		taxes = append(taxes, group.Invoice.Taxes)
		discounts = append(discounts, group.Invoice.Discounts)
		totals = append(totals, group.Invoice.Total)
	}
	return QuotationSummary{
		CurrencyCode:      q.CurrencyCode,
		ItemTotal:         sumAmounts(subtotals...),
		ShippingTotal:     sumAmounts(shipping...),
		SurchargeTotal:    sumAmounts(surcharges...),
		TaxTotal:          sumAmounts(taxes...),
		DiscountTotal:     sumAmounts(discounts...),
		Total:             sumAmounts(totals...),
		TotalItemQuantity: q.TotalItemQuantity,
	}
}
