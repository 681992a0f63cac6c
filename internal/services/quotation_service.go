package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/quotations/internal/platform/textutil"
	"github.com/hanko-field/quotations/internal/repositories"
)

const (
	quotationIDPrefix        = "quo_"
	fulfillmentGroupIDPrefix = "fg_"
	itemIDPrefix             = "qi_"
	surchargeIDPrefix        = "sur_"
	paymentIDPrefix          = "pay_"

	quotationsCapability = "quotations"

	actionRead       = "read"
	actionUpdate     = "update"
	actionCancelItem = "cancel:item"
	actionMoveItem   = "move:item"

	instrumentationName = "github.com/hanko-field/quotations/internal/services"
)

var commandValidator = validator.New(validator.WithRequiredStructEnabled())

// QuotationServiceDeps bundles collaborators required to construct the quotation service.
type QuotationServiceDeps struct {
	Quotations  repositories.QuotationRepository
	Shops       repositories.ShopRepository
	Carts       repositories.CartRepository
	Providers   QuotationProviders
	Permissions PermissionChecker
	Events      QuotationEventPublisher
	// OwnerMutableStatuses lists statuses in which the placing account may cancel or move items.
	OwnerMutableStatuses []string
	Clock                func() time.Time
	IDGenerator          func() string
	TokenGenerator       func() (string, error)
	Tracer               trace.Tracer
	Meter                metric.Meter
	Logger               func(ctx context.Context, event string, fields map[string]any)
}

type quotationService struct {
	quotations    repositories.QuotationRepository
	shops         repositories.ShopRepository
	carts         repositories.CartRepository
	providers     QuotationProviders
	permissions   PermissionChecker
	events        QuotationEventPublisher
	ownerStatuses []string
	calc          *groupCalculator
	clock         func() time.Time
	newID         func() string
	newToken      func() (string, error)
	tracer        trace.Tracer
	mutations     metric.Int64Counter
	logger        func(context.Context, string, map[string]any)
}

// NewQuotationService wires dependencies into a concrete QuotationService implementation.
func NewQuotationService(deps QuotationServiceDeps) (QuotationService, error) {
	if deps.Quotations == nil {
		return nil, errors.New("quotation service: quotation repository is required")
	}
	if deps.Permissions == nil {
		return nil, errors.New("quotation service: permission checker is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	tokenGen := deps.TokenGenerator
	if tokenGen == nil {
		tokenGen = newAnonymousTokenSecret
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	mutations, err := meter.Int64Counter("quotation.mutations",
		metric.WithDescription("Quotation mutations by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("quotation service: create mutation counter: %w", err)
	}

	ownerStatuses := slices.Clone(deps.OwnerMutableStatuses)
	if len(ownerStatuses) == 0 {
		ownerStatuses = slices.Clone(defaultOwnerMutableStatuses)
	}

	return &quotationService{
		quotations:    deps.Quotations,
		shops:         deps.Shops,
		carts:         deps.Carts,
		providers:     deps.Providers,
		permissions:   deps.Permissions,
		events:        deps.Events,
		ownerStatuses: ownerStatuses,
		calc: &groupCalculator{
			providers: deps.Providers,
			newID:     idGen,
			tracer:    tracer,
			logger:    logger,
		},
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		newToken:  tokenGen,
		tracer:    tracer,
		mutations: mutations,
		logger:    logger,
	}, nil
}

func (s *quotationService) AddFulfillmentGroup(ctx context.Context, cmd AddFulfillmentGroupCommand) (result AddFulfillmentGroupResult, err error) {
	ctx, finish := s.startOperation(ctx, "add_fulfillment_group", cmd.QuotationID)
	defer func() { finish(err) }()

	if err := validateCommand(cmd); err != nil {
		return AddFulfillmentGroupResult{}, err
	}
	moveIDs := normalizeIDs(cmd.MoveItemIDs)
	if len(cmd.FulfillmentGroup.Items) == 0 && len(moveIDs) == 0 {
		return AddFulfillmentGroupResult{}, fmt.Errorf("%w: fulfillment group requires items or moveItemIds", ErrQuotationInvalidParam)
	}

	quotation, err := s.load(ctx, cmd.QuotationID)
	if err != nil {
		return AddFulfillmentGroupResult{}, err
	}
	if err := s.authorize(ctx, quotation, actionUpdate, false); err != nil {
		return AddFulfillmentGroupResult{}, err
	}

	pc := s.pricingContext(ctx, quotation)
	groups := cloneGroups(quotation.Shipping)

	var (
		moving       []QuotationItem
		recalculated []int
		fresh        []Surcharge
	)
	if len(moveIDs) > 0 {
		if err := s.authorize(ctx, quotation, actionMoveItem, false); err != nil {
			return AddFulfillmentGroupResult{}, err
		}
		moving, recalculated, err = pullItems(groups, moveIDs)
		if err != nil {
			return AddFulfillmentGroupResult{}, err
		}
		fresh, err = s.calc.recalculateGroups(ctx, pc, groups, recalculated, keepExistingDiscounts)
		if err != nil {
			return AddFulfillmentGroupResult{}, err
		}
		for _, idx := range recalculated {
			rollUpGroupStatus(&groups[idx])
		}
	}

	// Discounts are not distributed to groups added after placement.
	newGroup, built, err := s.calc.buildGroup(ctx, pc, groupBuildInput{
		Input:           cmd.FulfillmentGroup,
		AdditionalItems: moving,
		DiscountTotal:   0,
	})
	if err != nil {
		return AddFulfillmentGroupResult{}, err
	}
	rollUpGroupStatus(&newGroup)
	groups = append(groups, newGroup)

	surcharges := append(mergeSurcharges(quotation.Surcharges, groups, recalculated, fresh), built.Surcharges...)
	updated, err := s.replaceFulfillment(ctx, quotation.ID, repositories.QuotationFulfillmentUpdate{
		Shipping:          groups,
		Surcharges:        surcharges,
		TotalItemQuantity: totalItemQuantity(groups),
		UpdatedAt:         s.now(),
	})
	if err != nil {
		return AddFulfillmentGroupResult{}, err
	}

	s.publishEvent(ctx, QuotationEventUpdated, updated, cmd.Actor, map[string]any{
		"operation":          "add_fulfillment_group",
		"fulfillmentGroupId": newGroup.ID,
	})
	return AddFulfillmentGroupResult{Quotation: updated, NewFulfillmentGroupID: newGroup.ID}, nil
}

func (s *quotationService) CancelItem(ctx context.Context, cmd CancelQuotationItemCommand) (result Quotation, err error) {
	ctx, finish := s.startOperation(ctx, "cancel_item", cmd.QuotationID)
	defer func() { finish(err) }()

	if err := validateCommand(cmd); err != nil {
		return Quotation{}, err
	}

	quotation, err := s.load(ctx, cmd.QuotationID)
	if err != nil {
		return Quotation{}, err
	}
	if err := s.authorize(ctx, quotation, actionCancelItem, true); err != nil {
		return Quotation{}, err
	}

	gate := newOwnerGate(quotation, cmd.Actor, s.ownerStatuses)
	if err := gate.checkQuotation(quotation.Workflow.Status); err != nil {
		return Quotation{}, err
	}

	var reason *string
	if cmd.Reason != nil {
		reason = optionalString(textutil.PlainText(*cmd.Reason))
	}

	groups := cloneGroups(quotation.Shipping)
	if _, err := cancelGroupItem(groups, itemCancellation{
		ItemID:    strings.TrimSpace(cmd.ItemID),
		Quantity:  cmd.CancelQuantity,
		Reason:    reason,
		NewItemID: itemIDPrefix + s.newID(),
	}, gate); err != nil {
		return Quotation{}, err
	}

	update := repositories.QuotationFulfillmentUpdate{
		Shipping:          groups,
		Surcharges:        slices.Clone(quotation.Surcharges),
		TotalItemQuantity: totalItemQuantity(groups),
		UpdatedAt:         s.now(),
	}

	fullyCanceled := false
	if allGroupsCanceled(groups) {
		if workflow, changed := pushStatus(quotation.Workflow, QuotationStatusCanceled); changed {
			update.Workflow = &workflow
			fullyCanceled = true
		}
	}

	updated, err := s.replaceFulfillment(ctx, quotation.ID, update)
	if err != nil {
		return Quotation{}, err
	}

	s.publishEvent(ctx, QuotationEventUpdated, updated, cmd.Actor, map[string]any{
		"operation": "cancel_item",
		"itemId":    cmd.ItemID,
	})
	if fullyCanceled {
		s.publishEvent(ctx, QuotationEventCanceled, updated, cmd.Actor, nil)
	}
	return updated, nil
}

func (s *quotationService) SplitItem(ctx context.Context, cmd SplitQuotationItemCommand) (result SplitQuotationItemResult, err error) {
	ctx, finish := s.startOperation(ctx, "split_item", cmd.QuotationID)
	defer func() { finish(err) }()

	if err := validateCommand(cmd); err != nil {
		return SplitQuotationItemResult{}, err
	}

	quotation, err := s.load(ctx, cmd.QuotationID)
	if err != nil {
		return SplitQuotationItemResult{}, err
	}
	if err := s.authorize(ctx, quotation, actionMoveItem, false); err != nil {
		return SplitQuotationItemResult{}, err
	}

	groups := cloneGroups(quotation.Shipping)
	newItemID := itemIDPrefix + s.newID()
	idx, err := splitGroupItem(groups, strings.TrimSpace(cmd.ItemID), cmd.NewItemQuantity, newItemID)
	if err != nil {
		return SplitQuotationItemResult{}, err
	}

	fresh, err := s.calc.recalculateGroups(ctx, s.pricingContext(ctx, quotation), groups, []int{idx}, keepExistingDiscounts)
	if err != nil {
		return SplitQuotationItemResult{}, err
	}
	rollUpGroupStatus(&groups[idx])

	updated, err := s.replaceFulfillment(ctx, quotation.ID, repositories.QuotationFulfillmentUpdate{
		Shipping:          groups,
		Surcharges:        mergeSurcharges(quotation.Surcharges, groups, []int{idx}, fresh),
		TotalItemQuantity: totalItemQuantity(groups),
		UpdatedAt:         s.now(),
	})
	if err != nil {
		return SplitQuotationItemResult{}, err
	}

	s.publishEvent(ctx, QuotationEventUpdated, updated, cmd.Actor, map[string]any{
		"operation": "split_item",
		"itemId":    cmd.ItemID,
		"newItemId": newItemID,
	})
	return SplitQuotationItemResult{Quotation: updated, NewItemID: newItemID}, nil
}

func (s *quotationService) MoveItems(ctx context.Context, cmd MoveQuotationItemsCommand) (result Quotation, err error) {
	ctx, finish := s.startOperation(ctx, "move_items", cmd.QuotationID)
	defer func() { finish(err) }()

	if err := validateCommand(cmd); err != nil {
		return Quotation{}, err
	}

	quotation, err := s.load(ctx, cmd.QuotationID)
	if err != nil {
		return Quotation{}, err
	}
	if err := s.authorize(ctx, quotation, actionMoveItem, true); err != nil {
		return Quotation{}, err
	}

	gate := newOwnerGate(quotation, cmd.Actor, s.ownerStatuses)
	if err := gate.checkQuotation(quotation.Workflow.Status); err != nil {
		return Quotation{}, err
	}

	groups := cloneGroups(quotation.Shipping)
	from, to, err := moveGroupItems(groups, normalizeIDs(cmd.ItemIDs), strings.TrimSpace(cmd.FromFulfillmentGroupID), strings.TrimSpace(cmd.ToFulfillmentGroupID), gate)
	if err != nil {
		return Quotation{}, err
	}

	changed := []int{from, to}
	fresh, err := s.calc.recalculateGroups(ctx, s.pricingContext(ctx, quotation), groups, changed, keepExistingDiscounts)
	if err != nil {
		return Quotation{}, err
	}
	for _, idx := range changed {
		rollUpGroupStatus(&groups[idx])
	}

	updated, err := s.replaceFulfillment(ctx, quotation.ID, repositories.QuotationFulfillmentUpdate{
		Shipping:          groups,
		Surcharges:        mergeSurcharges(quotation.Surcharges, groups, changed, fresh),
		TotalItemQuantity: totalItemQuantity(groups),
		UpdatedAt:         s.now(),
	})
	if err != nil {
		return Quotation{}, err
	}

	s.publishEvent(ctx, QuotationEventUpdated, updated, cmd.Actor, map[string]any{
		"operation":              "move_items",
		"fromFulfillmentGroupId": cmd.FromFulfillmentGroupID,
		"toFulfillmentGroupId":   cmd.ToFulfillmentGroupID,
	})
	return updated, nil
}

func (s *quotationService) UpdateFulfillmentGroup(ctx context.Context, cmd UpdateFulfillmentGroupCommand) (result Quotation, err error) {
	ctx, finish := s.startOperation(ctx, "update_fulfillment_group", cmd.QuotationID)
	defer func() { finish(err) }()

	if err := validateCommand(cmd); err != nil {
		return Quotation{}, err
	}

	quotation, err := s.load(ctx, cmd.QuotationID)
	if err != nil {
		return Quotation{}, err
	}
	if err := s.authorize(ctx, quotation, actionUpdate, false); err != nil {
		return Quotation{}, err
	}

	idx := findGroupIndex(quotation.Shipping, strings.TrimSpace(cmd.FulfillmentGroupID))
	if idx < 0 {
		return Quotation{}, fmt.Errorf("%w: quotation fulfillment group not found", ErrQuotationNotFound)
	}
	group := quotation.Shipping[idx]

	patch := repositories.FulfillmentGroupPatch{UpdatedAt: s.now()}
	changed := false
	if tracking := textutil.PlainText(cmd.Tracking); tracking != "" {
		patch.Tracking = &tracking
		changed = true
	}
	if trackingURL := strings.TrimSpace(cmd.TrackingURL); trackingURL != "" {
		patch.TrackingURL = &trackingURL
		changed = true
	}
	if workflow, pushed := pushStatus(group.Workflow, strings.TrimSpace(cmd.Status)); pushed {
		patch.Workflow = &workflow
		changed = true
	}
	if !changed {
		return quotation, nil
	}

	updated, err := s.quotations.UpdateFulfillmentGroup(ctx, quotation.ID, group.ID, patch)
	if err != nil {
		return Quotation{}, mapQuotationWriteError(err)
	}
	if updated.ID == "" {
		return Quotation{}, fmt.Errorf("%w: unable to update quotation", ErrQuotationServerError)
	}

	metadata := map[string]any{
		"operation":          "update_fulfillment_group",
		"fulfillmentGroupId": group.ID,
	}
	// First tracking number on a group means it has left the shop.
	if strings.TrimSpace(group.Tracking) == "" && patch.Tracking != nil {
		metadata[EventMetadataEmailAction] = EmailActionShipped
	}
	s.publishEvent(ctx, QuotationEventUpdated, updated, cmd.Actor, metadata)
	return updated, nil
}

func (s *quotationService) UpdateQuotation(ctx context.Context, cmd UpdateQuotationCommand) (result Quotation, err error) {
	ctx, finish := s.startOperation(ctx, "update_quotation", cmd.QuotationID)
	defer func() { finish(err) }()

	if err := validateCommand(cmd); err != nil {
		return Quotation{}, err
	}

	quotation, err := s.load(ctx, cmd.QuotationID)
	if err != nil {
		return Quotation{}, err
	}
	// Status changes are reserved for shop staff, so the owner is not passed to the check.
	if err := s.authorize(ctx, quotation, actionUpdate, false); err != nil {
		return Quotation{}, err
	}

	patch := repositories.QuotationHeaderPatch{UpdatedAt: s.now()}
	changed := false
	if email := strings.TrimSpace(cmd.Email); email != "" {
		patch.Email = &email
		changed = true
	}
	if cmd.CustomFields != nil {
		patch.CustomFields = maps.Clone(cmd.CustomFields)
		changed = true
	}
	if workflow, pushed := pushStatus(quotation.Workflow, strings.TrimSpace(cmd.Status)); pushed {
		patch.Workflow = &workflow
		changed = true
	}
	if !changed {
		return quotation, nil
	}

	updated, err := s.quotations.UpdateHeader(ctx, quotation.ID, patch)
	if err != nil {
		return Quotation{}, mapQuotationWriteError(err)
	}
	if updated.ID == "" {
		return Quotation{}, fmt.Errorf("%w: unable to update quotation", ErrQuotationServerError)
	}

	s.publishEvent(ctx, QuotationEventUpdated, updated, cmd.Actor, map[string]any{
		"operation": "update_quotation",
	})
	return updated, nil
}

func (s *quotationService) load(ctx context.Context, quotationID string) (Quotation, error) {
	quotationID = strings.TrimSpace(quotationID)
	if quotationID == "" {
		return Quotation{}, fmt.Errorf("%w: quotation id is required", ErrQuotationInvalidParam)
	}
	quotation, err := s.quotations.FindByID(ctx, quotationID)
	if err != nil {
		return Quotation{}, mapQuotationRepositoryError(err)
	}
	return quotation, nil
}

func (s *quotationService) authorize(ctx context.Context, quotation Quotation, action string, includeOwner bool) error {
	scope := PermissionScope{ShopID: quotation.ShopID}
	if includeOwner {
		scope.OwnerID = derefString(quotation.AccountID)
	}
	return s.checkPermission(ctx, quotationsCapability+":"+quotation.ID, action, scope)
}

func (s *quotationService) checkPermission(ctx context.Context, capability, action string, scope PermissionScope) error {
	if err := s.permissions.Validate(ctx, capability, action, scope); err != nil {
		if errors.Is(err, ErrQuotationAccessDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrQuotationAccessDenied, err)
	}
	return nil
}

func (s *quotationService) pricingContext(ctx context.Context, quotation Quotation) groupPricingContext {
	pc := groupPricingContext{
		QuotationID:    quotation.ID,
		AccountID:      derefString(quotation.AccountID),
		CartID:         derefString(quotation.CartID),
		CurrencyCode:   quotation.CurrencyCode,
		BillingAddress: cloneAddress(quotation.BillingAddress),
	}
	if s.shops == nil || quotation.ShopID == "" {
		return pc
	}
	shop, err := s.shops.FindByID(ctx, quotation.ShopID)
	if err != nil {
		s.logger(ctx, "quotation.shop.lookup.failed", map[string]any{
			"quotationId": quotation.ID,
			"shopId":      quotation.ShopID,
			"error":       err.Error(),
		})
		return pc
	}
	pc.OriginAddress = shopOriginAddress(shop)
	return pc
}

func shopOriginAddress(shop Shop) *Address {
	if len(shop.AddressBook) == 0 {
		return nil
	}
	return cloneAddress(&shop.AddressBook[0])
}

func (s *quotationService) replaceFulfillment(ctx context.Context, quotationID string, update repositories.QuotationFulfillmentUpdate) (Quotation, error) {
	updated, err := s.quotations.ReplaceFulfillment(ctx, quotationID, update)
	if err != nil {
		return Quotation{}, mapQuotationWriteError(err)
	}
	if updated.ID == "" {
		return Quotation{}, fmt.Errorf("%w: unable to update quotation", ErrQuotationServerError)
	}
	return updated, nil
}

// mapQuotationWriteError treats a missing document on write as an integrity fault: it was loaded moments earlier.
func mapQuotationWriteError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: unable to update quotation: %v", ErrQuotationServerError, err)
	}
	return mapQuotationRepositoryError(err)
}

func (s *quotationService) publishEvent(ctx context.Context, eventType string, quotation Quotation, actor QuotationActor, metadata map[string]any) {
	if s.events == nil {
		return
	}
	event := QuotationEvent{
		Type:        eventType,
		QuotationID: quotation.ID,
		ReferenceID: quotation.ReferenceID,
		ShopID:      quotation.ShopID,
		ActorID:     actor.UserID,
		OccurredAt:  s.now(),
		Quotation:   cloneQuotation(quotation),
		Metadata:    maps.Clone(metadata),
	}
	if err := s.events.PublishQuotationEvent(ctx, event); err != nil {
		s.logger(ctx, "quotation.event.publish.failed", map[string]any{
			"type":      eventType,
			"quotation": quotation.ID,
			"error":     err.Error(),
		})
	}
}

func (s *quotationService) startOperation(ctx context.Context, operation, quotationID string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "quotation."+operation, trace.WithAttributes(
		attribute.String("quotation.id", strings.TrimSpace(quotationID)),
	))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = QuotationErrorKind(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.mutations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
		span.End()
	}
}

func (s *quotationService) now() time.Time {
	return s.clock()
}

// QuotationErrorKind returns the short error kind for a quotation error.
func QuotationErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotationNotFound):
		return "not-found"
	case errors.Is(err, ErrQuotationInvalidParam):
		return "invalid-param"
	case errors.Is(err, ErrQuotationInvalid):
		return "invalid"
	case errors.Is(err, ErrQuotationAccessDenied):
		return "access-denied"
	case errors.Is(err, ErrQuotationPaymentFailed):
		return "payment-failed"
	case errors.Is(err, ErrQuotationUnavailable):
		return "unavailable"
	default:
		return "server-error"
	}
}

func validateCommand(cmd any) error {
	err := commandValidator.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return fmt.Errorf("%w: %s failed %q validation (value %v)", ErrQuotationInvalidParam, first.Namespace(), first.Tag(), first.Value())
	}
	return fmt.Errorf("%w: %v", ErrQuotationInvalidParam, err)
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
