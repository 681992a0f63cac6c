package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// Place builds every fulfillment group, authorizes payments that match the computed total, and inserts the quotation.
func (s *quotationService) Place(ctx context.Context, cmd PlaceQuotationCommand) (result PlaceQuotationResult, err error) {
	ctx, finish := s.startOperation(ctx, "place", "")
	defer func() { finish(err) }()

	if err := validateCommand(cmd); err != nil {
		return PlaceQuotationResult{}, err
	}
	if s.shops == nil {
		return PlaceQuotationResult{}, fmt.Errorf("%w: shop repository not configured", ErrQuotationServerError)
	}

	shop, err := s.shops.FindByID(ctx, strings.TrimSpace(cmd.ShopID))
	if err != nil {
		mapped := mapQuotationRepositoryError(err)
		if errors.Is(mapped, ErrQuotationNotFound) {
			return PlaceQuotationResult{}, fmt.Errorf("%w: shop not found", ErrQuotationNotFound)
		}
		return PlaceQuotationResult{}, mapped
	}

	accountID := strings.TrimSpace(cmd.Actor.AccountID)
	if accountID == "" && !shop.AllowGuestCheckout {
		return PlaceQuotationResult{}, fmt.Errorf("%w: guest checkout not allowed", ErrQuotationAccessDenied)
	}

	cart, err := s.loadCart(ctx, strings.TrimSpace(cmd.CartID))
	if err != nil {
		return PlaceQuotationResult{}, err
	}
	var discounts []AppliedDiscount
	discountTotal := 0.0
	if cart != nil {
		discounts = slices.Clone(cart.Discounts)
		discountTotal = cart.DiscountTotal
	}

	quotationID := quotationIDPrefix + s.newID()
	currency := strings.ToUpper(strings.TrimSpace(cmd.CurrencyCode))
	pc := groupPricingContext{
		QuotationID:    quotationID,
		AccountID:      accountID,
		CartID:         strings.TrimSpace(cmd.CartID),
		CurrencyCode:   currency,
		BillingAddress: cloneAddress(cmd.BillingAddress),
		OriginAddress:  shopOriginAddress(shop),
	}

	groups, surcharges, err := s.buildPlacementGroups(ctx, pc, cmd.FulfillmentGroups, discountTotal)
	if err != nil {
		return PlaceQuotationResult{}, err
	}

	totals := make([]float64, len(groups))
	for i, group := range groups {
		totals[i] = group.Invoice.Total
	}
	quotationTotal := sumAmounts(totals...)
	if err := verifyPaymentsMatchTotal(cmd.Payments, quotationTotal); err != nil {
		return PlaceQuotationResult{}, err
	}

	now := s.now()
	quotation := Quotation{
		ID:                quotationID,
		AccountID:         optionalString(accountID),
		ShopID:            shop.ID,
		CartID:            optionalString(strings.TrimSpace(cmd.CartID)),
		CurrencyCode:      currency,
		Email:             strings.TrimSpace(cmd.Email),
		BillingAddress:    cloneAddress(cmd.BillingAddress),
		PreferredLanguage: strings.TrimSpace(cmd.PreferredLanguage),
		Shipping:          groups,
		Surcharges:        surcharges,
		Discounts:         discounts,
		TotalItemQuantity: totalItemQuantity(groups),
		Workflow:          newWorkflow(QuotationStatusNew),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	payments, authorizers, err := s.authorizePayments(ctx, shop, quotation, cmd.Payments)
	if err != nil {
		return PlaceQuotationResult{}, err
	}
	quotation.Payments = payments
	defer func() {
		if err != nil {
			s.voidPayments(ctx, quotation.ID, authorizers, payments)
		}
	}()

	var token string
	if accountID == "" {
		secret, stored, err := s.issueAnonymousToken()
		if err != nil {
			return PlaceQuotationResult{}, err
		}
		token = secret
		quotation.AnonymousAccessTokens = []AnonymousAccessToken{stored}
	}

	referenceID, err := s.referenceID(ctx, quotation, cart)
	if err != nil {
		return PlaceQuotationResult{}, err
	}
	quotation.ReferenceID = referenceID

	customFields, err := s.transformCustomFields(ctx, quotation, cmd.CustomFields)
	if err != nil {
		return PlaceQuotationResult{}, err
	}
	quotation.CustomFields = customFields

	if err := s.quotations.Insert(ctx, quotation); err != nil {
		return PlaceQuotationResult{}, mapQuotationRepositoryError(err)
	}

	s.publishEvent(ctx, QuotationEventCreated, quotation, cmd.Actor, map[string]any{
		"anonymous": accountID == "",
	})
	return PlaceQuotationResult{Quotation: quotation, Token: token}, nil
}

func (s *quotationService) loadCart(ctx context.Context, cartID string) (*Cart, error) {
	if cartID == "" || s.carts == nil {
		return nil, nil
	}
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		mapped := mapQuotationRepositoryError(err)
		if errors.Is(mapped, ErrQuotationNotFound) {
			return nil, fmt.Errorf("%w: cart not found", ErrQuotationNotFound)
		}
		return nil, mapped
	}
	return &cart, nil
}

// buildPlacementGroups builds all groups concurrently. The cart discount is applied to the first group only
// so the quotation total counts it once.
func (s *quotationService) buildPlacementGroups(ctx context.Context, pc groupPricingContext, inputs []FulfillmentGroupInput, discountTotal float64) ([]QuotationFulfillmentGroup, []Surcharge, error) {
	groups := make([]QuotationFulfillmentGroup, len(inputs))
	results := make([]groupTotalsResult, len(inputs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, input := range inputs {
		discount := 0.0
		if i == 0 {
			discount = discountTotal
		}
		eg.Go(func() error {
			group, res, err := s.calc.buildGroup(egCtx, pc, groupBuildInput{
				Input:         input,
				DiscountTotal: discount,
			})
			if err != nil {
				return err
			}
			groups[i] = group
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var surcharges []Surcharge
	for _, res := range results {
		surcharges = append(surcharges, res.Surcharges...)
	}
	return groups, surcharges, nil
}

func verifyPaymentsMatchTotal(payments []PaymentInput, total float64) error {
	amounts := make([]float64, len(payments))
	for i, payment := range payments {
		amounts[i] = payment.Amount
	}
	paid := sumAmounts(amounts...)
	if !amountsMatch(paid, total) {
		return fmt.Errorf("%w: total amount of payments (%s) does not match quotation total (%s)",
			ErrQuotationPaymentFailed, formatAmount(paid), formatAmount(total))
	}
	return nil
}

// authorizePayments checks every method is enabled for the shop, then authorizes all payments concurrently.
// When any authorization fails the ones that succeeded are voided.
func (s *quotationService) authorizePayments(ctx context.Context, shop Shop, quotation Quotation, inputs []PaymentInput) ([]Payment, []PaymentAuthorizer, error) {
	if len(inputs) == 0 {
		return nil, nil, nil
	}

	authorizers := make([]PaymentAuthorizer, len(inputs))
	for i, input := range inputs {
		method := strings.TrimSpace(input.Method)
		if !slices.Contains(shop.AvailablePaymentMethods, method) {
			return nil, nil, fmt.Errorf("%w: payment method not enabled for this shop: %q", ErrQuotationPaymentFailed, method)
		}
		if s.providers.Payments == nil {
			return nil, nil, fmt.Errorf("%w: no payment providers configured", ErrQuotationPaymentFailed)
		}
		authorizer, ok := s.providers.Payments.PaymentMethod(method)
		if !ok || authorizer == nil {
			return nil, nil, fmt.Errorf("%w: payment method %q is not registered", ErrQuotationPaymentFailed, method)
		}
		authorizers[i] = authorizer
	}

	var shippingAddress *Address
	if len(quotation.Shipping) > 0 {
		shippingAddress = quotation.Shipping[0].Address
	}

	payments := make([]Payment, len(inputs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, input := range inputs {
		billing := input.BillingAddress
		if billing == nil {
			billing = quotation.BillingAddress
		}
		authInput := PaymentAuthorizationInput{
			QuotationID:     quotation.ID,
			AccountID:       derefString(quotation.AccountID),
			ShopID:          quotation.ShopID,
			Method:          strings.TrimSpace(input.Method),
			Amount:          roundAmount(input.Amount),
			CurrencyCode:    quotation.CurrencyCode,
			Email:           quotation.Email,
			BillingAddress:  cloneAddress(billing),
			ShippingAddress: cloneAddress(shippingAddress),
			Data:            maps.Clone(input.Data),
		}
		eg.Go(func() error {
			payment, err := authorizers[i].CreateAuthorizedPayment(egCtx, authInput)
			if err != nil {
				s.logger(egCtx, "quotation.payment.authorize.failed", map[string]any{
					"quotationId": quotation.ID,
					"method":      authInput.Method,
					"error":       err.Error(),
				})
				if errors.Is(err, ErrQuotationPaymentFailed) {
					return err
				}
				return fmt.Errorf("%w: %v", ErrQuotationPaymentFailed, err)
			}
			if payment.ID == "" {
				payment.ID = paymentIDPrefix + s.newID()
			}
			if payment.Method == "" {
				payment.Method = authInput.Method
			}
			if payment.CurrencyCode == "" {
				payment.CurrencyCode = authInput.CurrencyCode
			}
			if payment.CreatedAt.IsZero() {
				payment.CreatedAt = s.now()
			}
			payments[i] = payment
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		s.voidPayments(ctx, quotation.ID, authorizers, payments)
		return nil, nil, err
	}
	return payments, authorizers, nil
}

// voidPayments releases the authorizations in payments. Entries left zero by a failed authorization are
// skipped; void failures are logged only.
func (s *quotationService) voidPayments(ctx context.Context, quotationID string, authorizers []PaymentAuthorizer, payments []Payment) {
	ctx = context.WithoutCancel(ctx)
	for i, payment := range payments {
		if payment.ID == "" {
			continue
		}
		voider, ok := authorizers[i].(PaymentVoider)
		if !ok {
			continue
		}
		if err := voider.VoidAuthorizedPayment(ctx, payment); err != nil {
			s.logger(ctx, "quotation.payment.void.failed", map[string]any{
				"quotationId": quotationID,
				"paymentId":   payment.ID,
				"method":      payment.Method,
				"error":       err.Error(),
			})
			continue
		}
		s.logger(ctx, "quotation.payment.voided", map[string]any{
			"quotationId": quotationID,
			"paymentId":   payment.ID,
			"method":      payment.Method,
		})
	}
}

// referenceID asks the configured generator first, then falls back to the cart reference and a random id.
func (s *quotationService) referenceID(ctx context.Context, quotation Quotation, cart *Cart) (string, error) {
	if gen := s.providers.ReferenceIDs; gen != nil {
		ref, err := gen.CreateReferenceID(ctx, cloneQuotation(quotation), cart)
		if err != nil {
			return "", fmt.Errorf("%w: create reference id: %v", ErrQuotationServerError, err)
		}
		if ref = strings.TrimSpace(ref); ref != "" {
			return ref, nil
		}
	}
	if cart != nil && strings.TrimSpace(cart.ReferenceID) != "" {
		return strings.TrimSpace(cart.ReferenceID), nil
	}
	return ulid.Make().String(), nil
}

func (s *quotationService) transformCustomFields(ctx context.Context, quotation Quotation, fields map[string]any) (map[string]any, error) {
	current := maps.Clone(fields)
	for _, transformer := range s.providers.CustomFields {
		if transformer == nil {
			continue
		}
		next, err := transformer.TransformCustomFields(ctx, cloneQuotation(quotation), current)
		if err != nil {
			return nil, providerError(err, "custom fields rejected")
		}
		current = next
	}
	return current, nil
}
