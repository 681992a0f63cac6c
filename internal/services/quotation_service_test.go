package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/hanko-field/quotations/internal/domain"
	"github.com/hanko-field/quotations/internal/repositories"
)

type stubQuotationRepo struct {
	insertFn      func(context.Context, domain.Quotation) error
	findFn        func(context.Context, string) (domain.Quotation, error)
	findByRefFn   func(context.Context, string, string) (domain.Quotation, error)
	replaceFn     func(context.Context, string, repositories.QuotationFulfillmentUpdate) (domain.Quotation, error)
	updateGroupFn func(context.Context, string, string, repositories.FulfillmentGroupPatch) (domain.Quotation, error)
	updateHeadFn  func(context.Context, string, repositories.QuotationHeaderPatch) (domain.Quotation, error)
	appendTokenFn func(context.Context, string, domain.AnonymousAccessToken) error
	listFn        func(context.Context, repositories.QuotationListFilter) (domain.CursorPage[domain.Quotation], error)

	replaceCalls int
}

func (s *stubQuotationRepo) Insert(ctx context.Context, quotation domain.Quotation) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, quotation)
	}
	return nil
}

func (s *stubQuotationRepo) FindByID(ctx context.Context, quotationID string) (domain.Quotation, error) {
	if s.findFn != nil {
		return s.findFn(ctx, quotationID)
	}
	return domain.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationRepo) FindByReferenceID(ctx context.Context, shopID, referenceID string) (domain.Quotation, error) {
	if s.findByRefFn != nil {
		return s.findByRefFn(ctx, shopID, referenceID)
	}
	return domain.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationRepo) ReplaceFulfillment(ctx context.Context, quotationID string, update repositories.QuotationFulfillmentUpdate) (domain.Quotation, error) {
	s.replaceCalls++
	if s.replaceFn != nil {
		return s.replaceFn(ctx, quotationID, update)
	}
	return domain.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationRepo) UpdateFulfillmentGroup(ctx context.Context, quotationID, groupID string, patch repositories.FulfillmentGroupPatch) (domain.Quotation, error) {
	if s.updateGroupFn != nil {
		return s.updateGroupFn(ctx, quotationID, groupID, patch)
	}
	return domain.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationRepo) UpdateHeader(ctx context.Context, quotationID string, patch repositories.QuotationHeaderPatch) (domain.Quotation, error) {
	if s.updateHeadFn != nil {
		return s.updateHeadFn(ctx, quotationID, patch)
	}
	return domain.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationRepo) AppendAnonymousToken(ctx context.Context, quotationID string, token domain.AnonymousAccessToken) error {
	if s.appendTokenFn != nil {
		return s.appendTokenFn(ctx, quotationID, token)
	}
	return nil
}

func (s *stubQuotationRepo) List(ctx context.Context, filter repositories.QuotationListFilter) (domain.CursorPage[domain.Quotation], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Quotation]{}, nil
}

// applyReplace mimics the store applying a replace-style update to a loaded quotation.
func applyReplace(base domain.Quotation, update repositories.QuotationFulfillmentUpdate) domain.Quotation {
	out := base
	out.Shipping = update.Shipping
	out.Surcharges = update.Surcharges
	out.TotalItemQuantity = update.TotalItemQuantity
	out.UpdatedAt = update.UpdatedAt
	if update.Workflow != nil {
		out.Workflow = *update.Workflow
	}
	return out
}

type stubShopRepo struct {
	findFn func(context.Context, string) (domain.Shop, error)
}

func (s *stubShopRepo) FindByID(ctx context.Context, shopID string) (domain.Shop, error) {
	if s.findFn != nil {
		return s.findFn(ctx, shopID)
	}
	return domain.Shop{ID: shopID}, nil
}

type stubCartRepo struct {
	findFn func(context.Context, string) (domain.Cart, error)
}

func (s *stubCartRepo) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	if s.findFn != nil {
		return s.findFn(ctx, cartID)
	}
	return domain.Cart{}, errors.New("not implemented")
}

type stubPermissions struct {
	validateFn func(context.Context, string, string, PermissionScope) error
	calls      []string
}

func (s *stubPermissions) Validate(ctx context.Context, capability, action string, scope PermissionScope) error {
	s.calls = append(s.calls, action)
	if s.validateFn != nil {
		return s.validateFn(ctx, capability, action, scope)
	}
	return nil
}

type captureQuotationEvents struct {
	events []QuotationEvent
}

func (c *captureQuotationEvents) PublishQuotationEvent(_ context.Context, event QuotationEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureQuotationEvents) types() []string {
	out := make([]string, len(c.events))
	for i, event := range c.events {
		out[i] = event.Type
	}
	return out
}

type stubRateQuoter struct {
	quoteFn func(context.Context, CommonQuotation) ([]FulfillmentRate, error)
	calls   atomic.Int32
}

func (s *stubRateQuoter) QuoteFulfillment(ctx context.Context, view CommonQuotation) ([]FulfillmentRate, error) {
	s.calls.Add(1)
	if s.quoteFn != nil {
		return s.quoteFn(ctx, view)
	}
	return []FulfillmentRate{{
		Method:        ShipmentMethod{ID: "ground", Carrier: "Yamato", Label: "Ground", Name: "ground"},
		HandlingPrice: 0,
		ShippingPrice: 0,
		Rate:          0,
	}}, nil
}

type stubItemBuilder struct {
	buildFn func(context.Context, QuotationItemInput, string) (QuotationItem, error)
}

func (s *stubItemBuilder) BuildQuotationItem(ctx context.Context, input QuotationItemInput, currency string) (QuotationItem, error) {
	if s.buildFn != nil {
		return s.buildFn(ctx, input, currency)
	}
	return QuotationItem{
		ProductID: input.ProductID,
		VariantID: input.VariantID,
		Quantity:  input.Quantity,
		Price:     Money{Amount: input.Price, CurrencyCode: currency},
	}, nil
}

type quotationTestEnv struct {
	repo        *stubQuotationRepo
	permissions *stubPermissions
	events      *captureQuotationEvents
	rates       *stubRateQuoter
	svc         QuotationService
}

func newQuotationTestEnv(t *testing.T, stored domain.Quotation, mutate func(*QuotationServiceDeps)) *quotationTestEnv {
	t.Helper()
	env := &quotationTestEnv{
		permissions: &stubPermissions{},
		events:      &captureQuotationEvents{},
		rates:       &stubRateQuoter{},
	}
	env.repo = &stubQuotationRepo{
		findFn: func(_ context.Context, id string) (domain.Quotation, error) {
			if id != stored.ID {
				return domain.Quotation{}, &testRepoError{notFound: true}
			}
			return cloneQuotation(stored), nil
		},
		replaceFn: func(_ context.Context, _ string, update repositories.QuotationFulfillmentUpdate) (domain.Quotation, error) {
			return applyReplace(stored, update), nil
		},
	}

	var seq atomic.Int64
	deps := QuotationServiceDeps{
		Quotations:  env.repo,
		Shops:       &stubShopRepo{},
		Permissions: env.permissions,
		Events:      env.events,
		Providers: QuotationProviders{
			Items: &stubItemBuilder{},
			Rates: env.rates,
		},
		Clock: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			return fmt.Sprintf("%02d", seq.Add(1))
		},
		TokenGenerator: func() (string, error) { return "raw-token", nil },
	}
	if mutate != nil {
		mutate(&deps)
	}

	svc, err := NewQuotationService(deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.svc = svc
	return env
}

type testRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *testRepoError) Error() string       { return "repository error" }
func (e *testRepoError) IsNotFound() bool    { return e.notFound }
func (e *testRepoError) IsConflict() bool    { return e.conflict }
func (e *testRepoError) IsUnavailable() bool { return e.unavailable }

func testItem(id string, quantity int, price float64) domain.QuotationItem {
	return domain.QuotationItem{
		ID:        id,
		ProductID: "prod-" + id,
		VariantID: "var-" + id,
		ShopID:    "shop-1",
		Quantity:  quantity,
		Price:     domain.Money{Amount: price, CurrencyCode: "JPY"},
		Subtotal:  itemSubtotal(price, quantity),
		Workflow:  newWorkflow(QuotationStatusNew),
	}
}

func testGroup(id string, items ...domain.QuotationItem) domain.QuotationFulfillmentGroup {
	group := domain.QuotationFulfillmentGroup{
		ID:             id,
		ShopID:         "shop-1",
		Type:           "shipping",
		Items:          items,
		ShipmentMethod: &domain.ShipmentMethod{ID: "ground", Label: "Ground"},
		Workflow:       newWorkflow(QuotationStatusNew),
	}
	refreshGroupProjections(&group)
	return group
}

func testQuotation(groups ...domain.QuotationFulfillmentGroup) domain.Quotation {
	owner := "acct-1"
	return domain.Quotation{
		ID:                "quo_1",
		ReferenceID:       "R-1",
		AccountID:         &owner,
		ShopID:            "shop-1",
		CurrencyCode:      "JPY",
		Shipping:          groups,
		TotalItemQuantity: totalItemQuantity(groups),
		Workflow:          newWorkflow(QuotationStatusNew),
	}
}

func assertProjections(t *testing.T, q domain.Quotation) {
	t.Helper()
	total := 0
	for _, group := range q.Shipping {
		ids := make([]string, len(group.Items))
		quantity := 0
		for i, item := range group.Items {
			ids[i] = item.ID
			quantity += item.Quantity
		}
		if !slices.Equal(ids, group.ItemIDs) {
			t.Fatalf("group %s itemIds %v do not match items %v", group.ID, group.ItemIDs, ids)
		}
		if quantity != group.TotalItemQuantity {
			t.Fatalf("group %s totalItemQuantity %d, want %d", group.ID, group.TotalItemQuantity, quantity)
		}
		total += group.TotalItemQuantity
	}
	if total != q.TotalItemQuantity {
		t.Fatalf("quotation totalItemQuantity %d, want %d", q.TotalItemQuantity, total)
	}
}

func TestQuotationServiceCancelItemPartialQuantity(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 5, 5)))
	env := newQuotationTestEnv(t, stored, nil)

	reason := "  <b>changed mind</b> "
	updated, err := env.svc.CancelItem(context.Background(), CancelQuotationItemCommand{
		Actor:          QuotationActor{AccountID: "acct-1", UserID: "user-1"},
		QuotationID:    "quo_1",
		ItemID:         "qi_1",
		CancelQuantity: 2,
		Reason:         &reason,
	})
	if err != nil {
		t.Fatalf("cancel item: %v", err)
	}

	items := updated.Shipping[0].Items
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	canceled, sibling := items[0], items[1]
	if canceled.ID != "qi_1" || canceled.Quantity != 2 || canceled.Subtotal != 10 {
		t.Fatalf("unexpected canceled item %+v", canceled)
	}
	if canceled.Workflow.Status != QuotationItemStatusCanceled {
		t.Fatalf("expected canceled status, got %s", canceled.Workflow.Status)
	}
	if canceled.CancelReason == nil || *canceled.CancelReason != "changed mind" {
		t.Fatalf("expected sanitized reason, got %v", canceled.CancelReason)
	}
	if sibling.ID != "qi_01" || sibling.Quantity != 3 || sibling.Subtotal != 15 {
		t.Fatalf("unexpected sibling %+v", sibling)
	}
	if sibling.Workflow.Status != QuotationStatusNew || len(sibling.Workflow.History) != 1 {
		t.Fatalf("sibling should keep pre-cancel workflow, got %+v", sibling.Workflow)
	}
	if updated.Shipping[0].Workflow.Status != QuotationStatusNew {
		t.Fatalf("group should stay new while an item is live")
	}
	if updated.Workflow.Status != QuotationStatusNew {
		t.Fatalf("quotation should stay new")
	}
	assertProjections(t, updated)
	if env.rates.calls.Load() != 0 {
		t.Fatalf("cancel must not re-quote fulfillment, got %d quote calls", env.rates.calls.Load())
	}
	if got := env.events.types(); !slices.Equal(got, []string{QuotationEventUpdated}) {
		t.Fatalf("unexpected events %v", got)
	}
	if !slices.Equal(env.permissions.calls, []string{actionCancelItem}) {
		t.Fatalf("unexpected permission checks %v", env.permissions.calls)
	}
}

func TestQuotationServiceCancelItemSiblingKeepsWorkflowHistory(t *testing.T) {
	const processing = "coreQuotationItemWorkflow/processing"
	item := testItem("qi_1", 3, 100)
	item.Workflow, _ = pushStatus(item.Workflow, processing)
	stored := testQuotation(testGroup("fg_1", item))
	env := newQuotationTestEnv(t, stored, nil)

	updated, err := env.svc.CancelItem(context.Background(), CancelQuotationItemCommand{
		Actor:          QuotationActor{UserID: "staff-1"},
		QuotationID:    "quo_1",
		ItemID:         "qi_1",
		CancelQuantity: 1,
	})
	if err != nil {
		t.Fatalf("cancel item: %v", err)
	}

	items := updated.Shipping[0].Items
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	canceled, sibling := items[0], items[1]
	if want := []string{QuotationStatusNew, processing, QuotationItemStatusCanceled}; !slices.Equal(canceled.Workflow.History, want) {
		t.Fatalf("canceled history %v, want %v", canceled.Workflow.History, want)
	}
	if sibling.Workflow.Status != processing {
		t.Fatalf("sibling status %s, want %s", sibling.Workflow.Status, processing)
	}
	if want := []string{QuotationStatusNew, processing}; !slices.Equal(sibling.Workflow.History, want) {
		t.Fatalf("sibling history %v, want %v", sibling.Workflow.History, want)
	}
	if sibling.Quantity != 2 {
		t.Fatalf("sibling quantity %d, want 2", sibling.Quantity)
	}
}

func TestQuotationServiceCancelItemRollsUpToQuotation(t *testing.T) {
	stored := testQuotation(
		testGroup("fg_1", testItem("qi_1", 1, 100)),
		testGroup("fg_2", func() domain.QuotationItem {
			item := testItem("qi_2", 1, 100)
			item.Workflow, _ = pushStatus(item.Workflow, QuotationItemStatusCanceled)
			return item
		}()),
	)
	stored.Shipping[1].Workflow, _ = pushStatus(stored.Shipping[1].Workflow, QuotationStatusCanceled)
	env := newQuotationTestEnv(t, stored, nil)

	updated, err := env.svc.CancelItem(context.Background(), CancelQuotationItemCommand{
		Actor:          QuotationActor{UserID: "admin"},
		QuotationID:    "quo_1",
		ItemID:         "qi_1",
		CancelQuantity: 1,
	})
	if err != nil {
		t.Fatalf("cancel item: %v", err)
	}
	if len(updated.Shipping[0].Items) != 1 {
		t.Fatalf("full cancel must not create a sibling")
	}
	if updated.Shipping[0].Workflow.Status != QuotationStatusCanceled {
		t.Fatalf("expected group canceled, got %s", updated.Shipping[0].Workflow.Status)
	}
	if updated.Workflow.Status != QuotationStatusCanceled {
		t.Fatalf("expected quotation canceled, got %s", updated.Workflow.Status)
	}
	if got := env.events.types(); !slices.Equal(got, []string{QuotationEventUpdated, QuotationEventCanceled}) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestQuotationServiceCancelItemIsIdempotentOnStatus(t *testing.T) {
	item := testItem("qi_1", 1, 100)
	item.Workflow, _ = pushStatus(item.Workflow, QuotationItemStatusCanceled)
	stored := testQuotation(testGroup("fg_1", item, testItem("qi_2", 1, 100)))
	env := newQuotationTestEnv(t, stored, nil)

	updated, err := env.svc.CancelItem(context.Background(), CancelQuotationItemCommand{
		QuotationID:    "quo_1",
		ItemID:         "qi_1",
		CancelQuantity: 1,
	})
	if err != nil {
		t.Fatalf("cancel item: %v", err)
	}
	history := updated.Shipping[0].Items[0].Workflow.History
	if !slices.Equal(history, []string{QuotationStatusNew, QuotationItemStatusCanceled}) {
		t.Fatalf("status history duplicated: %v", history)
	}
}

func TestQuotationServiceCancelItemErrors(t *testing.T) {
	processing := testQuotation(testGroup("fg_1", testItem("qi_1", 2, 10)))
	processing.Workflow, _ = pushStatus(processing.Workflow, "coreQuotationWorkflow/processing")

	cases := []struct {
		name   string
		stored domain.Quotation
		cmd    CancelQuotationItemCommand
		perms  func(context.Context, string, string, PermissionScope) error
		want   error
	}{
		{
			name:   "quantity exceeds item",
			stored: testQuotation(testGroup("fg_1", testItem("qi_1", 2, 10))),
			cmd:    CancelQuotationItemCommand{QuotationID: "quo_1", ItemID: "qi_1", CancelQuantity: 3},
			want:   ErrQuotationInvalidParam,
		},
		{
			name:   "missing item",
			stored: testQuotation(testGroup("fg_1", testItem("qi_1", 2, 10))),
			cmd:    CancelQuotationItemCommand{QuotationID: "quo_1", ItemID: "qi_9", CancelQuantity: 1},
			want:   ErrQuotationNotFound,
		},
		{
			name:   "missing quotation",
			stored: testQuotation(testGroup("fg_1", testItem("qi_1", 2, 10))),
			cmd:    CancelQuotationItemCommand{QuotationID: "quo_9", ItemID: "qi_1", CancelQuantity: 1},
			want:   ErrQuotationNotFound,
		},
		{
			name:   "owner past allowed status",
			stored: processing,
			cmd:    CancelQuotationItemCommand{Actor: QuotationActor{AccountID: "acct-1"}, QuotationID: "quo_1", ItemID: "qi_1", CancelQuantity: 1},
			want:   ErrQuotationInvalid,
		},
		{
			name:   "zero quantity",
			stored: testQuotation(testGroup("fg_1", testItem("qi_1", 2, 10))),
			cmd:    CancelQuotationItemCommand{QuotationID: "quo_1", ItemID: "qi_1"},
			want:   ErrQuotationInvalidParam,
		},
		{
			name:   "permission denied",
			stored: testQuotation(testGroup("fg_1", testItem("qi_1", 2, 10))),
			cmd:    CancelQuotationItemCommand{QuotationID: "quo_1", ItemID: "qi_1", CancelQuantity: 1},
			perms: func(context.Context, string, string, PermissionScope) error {
				return errors.New("no capability")
			},
			want: ErrQuotationAccessDenied,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newQuotationTestEnv(t, tc.stored, nil)
			env.permissions.validateFn = tc.perms
			_, err := env.svc.CancelItem(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if env.repo.replaceCalls != 0 {
				t.Fatalf("no write expected on failure")
			}
		})
	}
}

func TestQuotationServiceCancelItemAdminBypassesOwnerGate(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 2, 10), testItem("qi_2", 1, 10)))
	stored.Workflow, _ = pushStatus(stored.Workflow, "coreQuotationWorkflow/processing")
	env := newQuotationTestEnv(t, stored, nil)

	if _, err := env.svc.CancelItem(context.Background(), CancelQuotationItemCommand{
		Actor:          QuotationActor{AccountID: "staff-1"},
		QuotationID:    "quo_1",
		ItemID:         "qi_1",
		CancelQuantity: 1,
	}); err != nil {
		t.Fatalf("non-owner should bypass status gate: %v", err)
	}
}

func TestQuotationServiceSplitItem(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 5, 100)))
	env := newQuotationTestEnv(t, stored, nil)

	result, err := env.svc.SplitItem(context.Background(), SplitQuotationItemCommand{
		QuotationID:     "quo_1",
		ItemID:          "qi_1",
		NewItemQuantity: 3,
	})
	if err != nil {
		t.Fatalf("split item: %v", err)
	}
	items := result.Quotation.Shipping[0].Items
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Quantity != 2 || items[0].Subtotal != 200 {
		t.Fatalf("unexpected original %+v", items[0])
	}
	if items[1].ID != result.NewItemID || items[1].Quantity != 3 || items[1].Subtotal != 300 {
		t.Fatalf("unexpected sibling %+v (new id %s)", items[1], result.NewItemID)
	}
	if items[1].Workflow.Status != items[0].Workflow.Status || items[1].Price != items[0].Price {
		t.Fatalf("split items should share price and status")
	}
	if env.rates.calls.Load() != 1 {
		t.Fatalf("expected group re-quote, got %d calls", env.rates.calls.Load())
	}
	if result.Quotation.Shipping[0].Invoice.Subtotal != 500 {
		t.Fatalf("expected recalculated subtotal 500, got %v", result.Quotation.Shipping[0].Invoice.Subtotal)
	}
	assertProjections(t, result.Quotation)
	if !slices.Equal(env.permissions.calls, []string{actionMoveItem}) {
		t.Fatalf("unexpected permission checks %v", env.permissions.calls)
	}
}

func TestQuotationServiceSplitItemRejectsFullQuantity(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 3, 100)))
	env := newQuotationTestEnv(t, stored, nil)

	_, err := env.svc.SplitItem(context.Background(), SplitQuotationItemCommand{
		QuotationID:     "quo_1",
		ItemID:          "qi_1",
		NewItemQuantity: 3,
	})
	if !errors.Is(err, ErrQuotationInvalidParam) {
		t.Fatalf("expected invalid param, got %v", err)
	}
}

func TestQuotationServiceSplitItemFailsWhenMethodUnavailable(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 3, 100)))
	env := newQuotationTestEnv(t, stored, nil)
	env.rates.quoteFn = func(context.Context, CommonQuotation) ([]FulfillmentRate, error) {
		return []FulfillmentRate{{Method: ShipmentMethod{ID: "express"}}}, nil
	}

	_, err := env.svc.SplitItem(context.Background(), SplitQuotationItemCommand{
		QuotationID:     "quo_1",
		ItemID:          "qi_1",
		NewItemQuantity: 1,
	})
	if !errors.Is(err, ErrQuotationInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "no longer available") {
		t.Fatalf("unexpected message %v", err)
	}
	if env.repo.replaceCalls != 0 {
		t.Fatalf("no write expected")
	}
}

func TestQuotationServiceRequotesAfterMethodDisabled(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 4, 100)))
	methods := &stubFulfillmentMethodRepo{methods: []domain.FulfillmentMethod{
		{ID: "ground", Label: "Ground", Enabled: true, Rate: 500},
	}}
	quoter, err := NewShopRateQuoter(methods)
	if err != nil {
		t.Fatalf("new quoter: %v", err)
	}
	env := newQuotationTestEnv(t, stored, func(deps *QuotationServiceDeps) {
		deps.Providers.Rates = quoter
	})

	split := SplitQuotationItemCommand{QuotationID: "quo_1", ItemID: "qi_1", NewItemQuantity: 1}
	if _, err := env.svc.SplitItem(context.Background(), split); err != nil {
		t.Fatalf("split with enabled method: %v", err)
	}

	methods.methods[0].Enabled = false
	_, err = env.svc.SplitItem(context.Background(), split)
	if !errors.Is(err, ErrQuotationInvalid) {
		t.Fatalf("expected invalid after disabling method, got %v", err)
	}
	if !strings.Contains(err.Error(), "no longer available") {
		t.Fatalf("unexpected message %v", err)
	}
	if env.repo.replaceCalls != 1 {
		t.Fatalf("expected only the first split to write, got %d writes", env.repo.replaceCalls)
	}
}

func TestQuotationServiceMoveItems(t *testing.T) {
	stored := testQuotation(
		testGroup("fg_1", testItem("i1", 1, 10), testItem("i2", 1, 10), testItem("i3", 1, 10)),
		testGroup("fg_2", testItem("i4", 1, 10), testItem("i5", 1, 10)),
	)
	stored.Surcharges = []domain.Surcharge{{ID: "sur_old", FulfillmentGroupID: "fg_1"}}
	env := newQuotationTestEnv(t, stored, nil)

	updated, err := env.svc.MoveItems(context.Background(), MoveQuotationItemsCommand{
		Actor:                  QuotationActor{AccountID: "acct-1"},
		QuotationID:            "quo_1",
		FromFulfillmentGroupID: "fg_1",
		ToFulfillmentGroupID:   "fg_2",
		ItemIDs:                []string{"i2", "i1"},
	})
	if err != nil {
		t.Fatalf("move items: %v", err)
	}
	if got := updated.Shipping[0].ItemIDs; !slices.Equal(got, []string{"i3"}) {
		t.Fatalf("unexpected source items %v", got)
	}
	if got := updated.Shipping[1].ItemIDs; !slices.Equal(got, []string{"i4", "i5", "i1", "i2"}) {
		t.Fatalf("unexpected destination items %v", got)
	}
	if updated.Shipping[0].TotalItemQuantity != 1 || updated.Shipping[1].TotalItemQuantity != 4 || updated.TotalItemQuantity != 5 {
		t.Fatalf("unexpected quantities %d/%d/%d", updated.Shipping[0].TotalItemQuantity, updated.Shipping[1].TotalItemQuantity, updated.TotalItemQuantity)
	}
	if len(updated.Surcharges) != 0 {
		t.Fatalf("surcharges of recalculated groups should be replaced, got %+v", updated.Surcharges)
	}
	if env.rates.calls.Load() != 2 {
		t.Fatalf("expected both groups re-quoted, got %d", env.rates.calls.Load())
	}
	assertProjections(t, updated)
}

func TestQuotationServiceMoveItemsIsAtomic(t *testing.T) {
	stored := testQuotation(
		testGroup("fg_1", testItem("A", 1, 10), testItem("C", 1, 10)),
		testGroup("fg_2", testItem("D", 1, 10)),
	)
	env := newQuotationTestEnv(t, stored, nil)

	_, err := env.svc.MoveItems(context.Background(), MoveQuotationItemsCommand{
		QuotationID:            "quo_1",
		FromFulfillmentGroupID: "fg_1",
		ToFulfillmentGroupID:   "fg_2",
		ItemIDs:                []string{"A", "B"},
	})
	if !errors.Is(err, ErrQuotationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if env.repo.replaceCalls != 0 {
		t.Fatalf("no write expected")
	}

	_, err = env.svc.MoveItems(context.Background(), MoveQuotationItemsCommand{
		QuotationID:            "quo_1",
		FromFulfillmentGroupID: "fg_1",
		ToFulfillmentGroupID:   "fg_2",
		ItemIDs:                []string{"A", "C"},
	})
	if !errors.Is(err, ErrQuotationInvalidParam) {
		t.Fatalf("expected invalid param for emptied group, got %v", err)
	}

	_, err = env.svc.MoveItems(context.Background(), MoveQuotationItemsCommand{
		QuotationID:            "quo_1",
		FromFulfillmentGroupID: "fg_1",
		ToFulfillmentGroupID:   "fg_9",
		ItemIDs:                []string{"A"},
	})
	if !errors.Is(err, ErrQuotationNotFound) {
		t.Fatalf("expected not found for destination, got %v", err)
	}
}

func TestQuotationServiceAddFulfillmentGroupWithMovedItems(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 1, 10), testItem("qi_2", 2, 10)))
	stored.Surcharges = []domain.Surcharge{{ID: "sur_keep", FulfillmentGroupID: "fg_other"}}
	env := newQuotationTestEnv(t, stored, nil)

	result, err := env.svc.AddFulfillmentGroup(context.Background(), AddFulfillmentGroupCommand{
		QuotationID: "quo_1",
		FulfillmentGroup: FulfillmentGroupInput{
			ShopID:                      "shop-1",
			Type:                        "shipping",
			SelectedFulfillmentMethodID: "ground",
			Items:                       []QuotationItemInput{{ProductID: "p9", VariantID: "v9", Quantity: 1, Price: 7}},
		},
		MoveItemIDs: []string{"qi_2"},
	})
	if err != nil {
		t.Fatalf("add group: %v", err)
	}
	q := result.Quotation
	if len(q.Shipping) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(q.Shipping))
	}
	added := q.Shipping[1]
	if added.ID != result.NewFulfillmentGroupID || !strings.HasPrefix(added.ID, fulfillmentGroupIDPrefix) {
		t.Fatalf("unexpected group id %s", added.ID)
	}
	if len(added.Items) != 2 || added.Items[1].ID != "qi_2" {
		t.Fatalf("moved item should follow built items, got %v", added.ItemIDs)
	}
	if added.Invoice.Discounts != 0 {
		t.Fatalf("new group should carry no discount")
	}
	if added.Invoice.Subtotal != 27 {
		t.Fatalf("unexpected subtotal %v", added.Invoice.Subtotal)
	}
	if q.TotalItemQuantity != 4 {
		t.Fatalf("unexpected total quantity %d", q.TotalItemQuantity)
	}
	if len(q.Surcharges) != 1 || q.Surcharges[0].ID != "sur_keep" {
		t.Fatalf("untouched surcharges should be kept, got %+v", q.Surcharges)
	}
	if !slices.Equal(env.permissions.calls, []string{actionUpdate, actionMoveItem}) {
		t.Fatalf("unexpected permission checks %v", env.permissions.calls)
	}
	assertProjections(t, q)
}

func TestQuotationServiceAddFulfillmentGroupRejectsEmptyingGroup(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 1, 10)))
	env := newQuotationTestEnv(t, stored, nil)

	_, err := env.svc.AddFulfillmentGroup(context.Background(), AddFulfillmentGroupCommand{
		QuotationID: "quo_1",
		FulfillmentGroup: FulfillmentGroupInput{
			ShopID:                      "shop-1",
			Type:                        "shipping",
			SelectedFulfillmentMethodID: "ground",
		},
		MoveItemIDs: []string{"qi_1"},
	})
	if !errors.Is(err, ErrQuotationInvalidParam) {
		t.Fatalf("expected invalid param, got %v", err)
	}

	_, err = env.svc.AddFulfillmentGroup(context.Background(), AddFulfillmentGroupCommand{
		QuotationID: "quo_1",
		FulfillmentGroup: FulfillmentGroupInput{
			ShopID:                      "shop-1",
			Type:                        "shipping",
			SelectedFulfillmentMethodID: "ground",
			Items:                       []QuotationItemInput{{ProductID: "p", VariantID: "v", Quantity: 1}},
		},
		MoveItemIDs: []string{"missing"},
	})
	if !errors.Is(err, ErrQuotationInvalidParam) {
		t.Fatalf("expected invalid param for unknown move id, got %v", err)
	}
}

func TestQuotationServiceUpdateFulfillmentGroup(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 1, 10)))
	env := newQuotationTestEnv(t, stored, nil)
	var patches []repositories.FulfillmentGroupPatch
	env.repo.updateGroupFn = func(_ context.Context, _ string, groupID string, patch repositories.FulfillmentGroupPatch) (domain.Quotation, error) {
		if groupID != "fg_1" {
			t.Fatalf("unexpected group %s", groupID)
		}
		patches = append(patches, patch)
		return stored, nil
	}

	if _, err := env.svc.UpdateFulfillmentGroup(context.Background(), UpdateFulfillmentGroupCommand{
		QuotationID:        "quo_1",
		FulfillmentGroupID: "fg_1",
		Status:             QuotationStatusNew,
	}); err != nil {
		t.Fatalf("update group: %v", err)
	}
	if len(patches) != 0 {
		t.Fatalf("unchanged status should not write")
	}
	if len(env.events.events) != 0 {
		t.Fatalf("unchanged status should not emit events")
	}

	if _, err := env.svc.UpdateFulfillmentGroup(context.Background(), UpdateFulfillmentGroupCommand{
		QuotationID:        "quo_1",
		FulfillmentGroupID: "fg_1",
		Tracking:           "TRK-1",
		TrackingURL:        "https://track.example.com/TRK-1",
		Status:             "coreQuotationWorkflow/shipped",
	}); err != nil {
		t.Fatalf("update group: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("expected one write, got %d", len(patches))
	}
	patch := patches[0]
	if patch.Tracking == nil || *patch.Tracking != "TRK-1" || patch.TrackingURL == nil {
		t.Fatalf("unexpected tracking patch %+v", patch)
	}
	if patch.Workflow == nil || !slices.Equal(patch.Workflow.History, []string{QuotationStatusNew, "coreQuotationWorkflow/shipped"}) {
		t.Fatalf("unexpected workflow patch %+v", patch.Workflow)
	}
	if len(env.events.events) != 1 || env.events.events[0].Metadata[EventMetadataEmailAction] != EmailActionShipped {
		t.Fatalf("first tracking number should request the shipped email, got %+v", env.events.events)
	}

	_, err := env.svc.UpdateFulfillmentGroup(context.Background(), UpdateFulfillmentGroupCommand{
		QuotationID:        "quo_1",
		FulfillmentGroupID: "fg_9",
		Status:             "x",
	})
	if !errors.Is(err, ErrQuotationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuotationServiceUpdateQuotation(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 1, 10)))
	env := newQuotationTestEnv(t, stored, nil)
	var got repositories.QuotationHeaderPatch
	env.repo.updateHeadFn = func(_ context.Context, _ string, patch repositories.QuotationHeaderPatch) (domain.Quotation, error) {
		got = patch
		out := stored
		out.Email = *patch.Email
		return out, nil
	}

	updated, err := env.svc.UpdateQuotation(context.Background(), UpdateQuotationCommand{
		QuotationID: "quo_1",
		Email:       "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("update quotation: %v", err)
	}
	if updated.Email != "buyer@example.com" || got.Workflow != nil {
		t.Fatalf("unexpected result %+v / patch %+v", updated, got)
	}

	_, err = env.svc.UpdateQuotation(context.Background(), UpdateQuotationCommand{
		QuotationID: "quo_1",
		Email:       "not-an-email",
	})
	if !errors.Is(err, ErrQuotationInvalidParam) {
		t.Fatalf("expected invalid param, got %v", err)
	}
}

func TestQuotationServiceReportsServerErrorWhenWriteHasNoEffect(t *testing.T) {
	stored := testQuotation(testGroup("fg_1", testItem("qi_1", 2, 10)))
	env := newQuotationTestEnv(t, stored, nil)
	env.repo.replaceFn = func(context.Context, string, repositories.QuotationFulfillmentUpdate) (domain.Quotation, error) {
		return domain.Quotation{}, nil
	}

	_, err := env.svc.CancelItem(context.Background(), CancelQuotationItemCommand{
		QuotationID:    "quo_1",
		ItemID:         "qi_1",
		CancelQuantity: 1,
	})
	if !errors.Is(err, ErrQuotationServerError) {
		t.Fatalf("expected server error, got %v", err)
	}

	env.repo.replaceFn = func(context.Context, string, repositories.QuotationFulfillmentUpdate) (domain.Quotation, error) {
		return domain.Quotation{}, &testRepoError{notFound: true}
	}
	_, err = env.svc.CancelItem(context.Background(), CancelQuotationItemCommand{
		QuotationID:    "quo_1",
		ItemID:         "qi_1",
		CancelQuantity: 1,
	})
	if !errors.Is(err, ErrQuotationServerError) {
		t.Fatalf("expected server error for vanished document, got %v", err)
	}
	if len(env.events.events) != 0 {
		t.Fatalf("failed writes must not emit events")
	}
}

func TestQuotationErrorKind(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("%w: x", ErrQuotationNotFound):      "not-found",
		fmt.Errorf("%w: x", ErrQuotationInvalidParam):  "invalid-param",
		fmt.Errorf("%w: x", ErrQuotationInvalid):       "invalid",
		fmt.Errorf("%w: x", ErrQuotationAccessDenied):  "access-denied",
		fmt.Errorf("%w: x", ErrQuotationPaymentFailed): "payment-failed",
		errors.New("boom"):                             "server-error",
	}
	for err, want := range cases {
		if got := QuotationErrorKind(err); got != want {
			t.Fatalf("QuotationErrorKind(%v) = %s, want %s", err, got, want)
		}
	}
}
