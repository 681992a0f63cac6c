package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/quotations/internal/domain"
	"github.com/hanko-field/quotations/internal/platform/auth"
	"github.com/hanko-field/quotations/internal/platform/httpx"
	"github.com/hanko-field/quotations/internal/services"
)

type stubQuotationService struct {
	placeFn         func(context.Context, services.PlaceQuotationCommand) (services.PlaceQuotationResult, error)
	addGroupFn      func(context.Context, services.AddFulfillmentGroupCommand) (services.AddFulfillmentGroupResult, error)
	cancelFn        func(context.Context, services.CancelQuotationItemCommand) (services.Quotation, error)
	splitFn         func(context.Context, services.SplitQuotationItemCommand) (services.SplitQuotationItemResult, error)
	moveFn          func(context.Context, services.MoveQuotationItemsCommand) (services.Quotation, error)
	updateGroupFn   func(context.Context, services.UpdateFulfillmentGroupCommand) (services.Quotation, error)
	updateFn        func(context.Context, services.UpdateQuotationCommand) (services.Quotation, error)
	addTokenFn      func(context.Context, services.AddAnonymousTokenCommand) (string, error)
	getFn           func(context.Context, services.QuotationLookup) (services.Quotation, error)
	listFn          func(context.Context, services.QuotationListFilter) (domain.CursorPage[services.Quotation], error)
	displayStatusFn func(context.Context, string, string, string) (string, error)
}

func (s *stubQuotationService) Place(ctx context.Context, cmd services.PlaceQuotationCommand) (services.PlaceQuotationResult, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.PlaceQuotationResult{}, errors.New("not implemented")
}

func (s *stubQuotationService) AddFulfillmentGroup(ctx context.Context, cmd services.AddFulfillmentGroupCommand) (services.AddFulfillmentGroupResult, error) {
	if s.addGroupFn != nil {
		return s.addGroupFn(ctx, cmd)
	}
	return services.AddFulfillmentGroupResult{}, errors.New("not implemented")
}

func (s *stubQuotationService) CancelItem(ctx context.Context, cmd services.CancelQuotationItemCommand) (services.Quotation, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationService) SplitItem(ctx context.Context, cmd services.SplitQuotationItemCommand) (services.SplitQuotationItemResult, error) {
	if s.splitFn != nil {
		return s.splitFn(ctx, cmd)
	}
	return services.SplitQuotationItemResult{}, errors.New("not implemented")
}

func (s *stubQuotationService) MoveItems(ctx context.Context, cmd services.MoveQuotationItemsCommand) (services.Quotation, error) {
	if s.moveFn != nil {
		return s.moveFn(ctx, cmd)
	}
	return services.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationService) UpdateFulfillmentGroup(ctx context.Context, cmd services.UpdateFulfillmentGroupCommand) (services.Quotation, error) {
	if s.updateGroupFn != nil {
		return s.updateGroupFn(ctx, cmd)
	}
	return services.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationService) UpdateQuotation(ctx context.Context, cmd services.UpdateQuotationCommand) (services.Quotation, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationService) AddAnonymousToken(ctx context.Context, cmd services.AddAnonymousTokenCommand) (string, error) {
	if s.addTokenFn != nil {
		return s.addTokenFn(ctx, cmd)
	}
	return "", errors.New("not implemented")
}

func (s *stubQuotationService) GetQuotation(ctx context.Context, query services.QuotationLookup) (services.Quotation, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Quotation{}, errors.New("not implemented")
}

func (s *stubQuotationService) ListQuotations(ctx context.Context, filter services.QuotationListFilter) (domain.CursorPage[services.Quotation], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Quotation]{}, errors.New("not implemented")
}

func (s *stubQuotationService) DisplayStatus(ctx context.Context, shopID, status, language string) (string, error) {
	if s.displayStatusFn != nil {
		return s.displayStatusFn(ctx, shopID, status, language)
	}
	return status, nil
}

var _ services.QuotationService = (*stubQuotationService)(nil)

func sampleQuotation() services.Quotation {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	account := "user-1"
	return services.Quotation{
		ID:           "q-1",
		ReferenceID:  "1001",
		ShopID:       "shop-1",
		AccountID:    &account,
		CurrencyCode: "USD",
		Email:        "buyer@example.com",
		Workflow:     services.Workflow{Status: "new", History: []string{"new"}},
		Shipping: []domain.QuotationFulfillmentGroup{{
			ID:     "g-1",
			ShopID: "shop-1",
			Type:   "shipping",
			Items: []domain.QuotationItem{{
				ID:        "i-1",
				ProductID: "p-1",
				VariantID: "v-1",
				Quantity:  2,
				Price:     domain.Money{Amount: 10, CurrencyCode: "USD"},
				Subtotal:  20,
				Workflow:  services.Workflow{Status: "new"},
			}},
			ItemIDs:           []string{"i-1"},
			TotalItemQuantity: 2,
			Invoice:           domain.Invoice{CurrencyCode: "USD", Subtotal: 20, Shipping: 5, Total: 25},
			Workflow:          services.Workflow{Status: "new"},
		}},
		TotalItemQuantity: 2,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func newQuotationRouter(svc services.QuotationService) chi.Router {
	h := NewQuotationHandlers(nil, svc)
	r := chi.NewRouter()
	r.Route("/quotations", h.Routes)
	return r
}

func withTestIdentity(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}))
}

func TestQuotationHandlersPlace(t *testing.T) {
	var captured services.PlaceQuotationCommand
	svc := &stubQuotationService{
		placeFn: func(_ context.Context, cmd services.PlaceQuotationCommand) (services.PlaceQuotationResult, error) {
			captured = cmd
			return services.PlaceQuotationResult{Quotation: sampleQuotation(), Token: "raw-token"}, nil
		},
		displayStatusFn: func(_ context.Context, _, _, lang string) (string, error) {
			if lang != "ja-JP" {
				return "", fmt.Errorf("unexpected language %s", lang)
			}
			return "新規", nil
		},
	}

	body := `{"shopId":"shop-1","currencyCode":"USD","email":"buyer@example.com",
		"fulfillmentGroups":[{"shopId":"shop-1","type":"shipping","selectedFulfillmentMethodId":"m-1",
		"items":[{"productId":"p-1","variantId":"v-1","quantity":2,"price":10}]}],
		"payments":[{"method":"manual","amount":25}]}`
	req := httptest.NewRequest(http.MethodPost, "/quotations/", strings.NewReader(body))
	req.Header.Set("Accept-Language", "ja-JP, en;q=0.8")
	req = withTestIdentity(req, "user-1")
	rr := httptest.NewRecorder()

	newQuotationRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Actor.AccountID != "user-1" || captured.ShopID != "shop-1" || captured.PreferredLanguage != "ja-JP" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if len(captured.FulfillmentGroups) != 1 || captured.FulfillmentGroups[0].Items[0].Quantity != 2 {
		t.Fatalf("unexpected groups %+v", captured.FulfillmentGroups)
	}
	if len(captured.Payments) != 1 || captured.Payments[0].Amount != 25 {
		t.Fatalf("unexpected payments %+v", captured.Payments)
	}

	var resp struct {
		Token     string            `json:"token"`
		Quotation quotationResponse `json:"quotation"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token != "raw-token" {
		t.Fatalf("expected token, got %q", resp.Token)
	}
	if resp.Quotation.ID != "q-1" || resp.Quotation.Summary.Total != 25 || resp.Quotation.DisplayStatus != "新規" {
		t.Fatalf("unexpected quotation %+v", resp.Quotation)
	}
}

func TestQuotationHandlersPlaceRejectsUnknownFields(t *testing.T) {
	svc := &stubQuotationService{}
	req := httptest.NewRequest(http.MethodPost, "/quotations/", strings.NewReader(`{"shopId":"s","bogus":true}`))
	rr := httptest.NewRecorder()

	newQuotationRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestQuotationHandlersGetUsesToken(t *testing.T) {
	var lookup services.QuotationLookup
	svc := &stubQuotationService{
		getFn: func(_ context.Context, query services.QuotationLookup) (services.Quotation, error) {
			lookup = query
			return sampleQuotation(), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/quotations/q-1?token=abc", nil)
	rr := httptest.NewRecorder()
	newQuotationRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if lookup.QuotationID != "q-1" || lookup.Token != "abc" {
		t.Fatalf("unexpected lookup %+v", lookup)
	}

	req = httptest.NewRequest(http.MethodGet, "/quotations/by-reference/shop-1/1001", nil)
	req.Header.Set(quotationTokenHeader, "hdr")
	rr = httptest.NewRecorder()
	newQuotationRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if lookup.ShopID != "shop-1" || lookup.ReferenceID != "1001" || lookup.Token != "hdr" {
		t.Fatalf("unexpected reference lookup %+v", lookup)
	}
}

func TestQuotationHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: missing", services.ErrQuotationNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: bad", services.ErrQuotationInvalidParam), http.StatusBadRequest, "invalid_param"},
		{fmt.Errorf("%w: status", services.ErrQuotationInvalid), http.StatusUnprocessableEntity, "invalid"},
		{fmt.Errorf("%w: nope", services.ErrQuotationAccessDenied), http.StatusForbidden, "access_denied"},
		{fmt.Errorf("%w: declined", services.ErrQuotationPaymentFailed), http.StatusPaymentRequired, "payment_failed"},
		{fmt.Errorf("%w: down", services.ErrQuotationUnavailable), http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "server_error"},
	}
	for _, tc := range cases {
		svc := &stubQuotationService{
			getFn: func(context.Context, services.QuotationLookup) (services.Quotation, error) {
				return services.Quotation{}, tc.err
			},
		}
		rr := httptest.NewRecorder()
		newQuotationRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/quotations/q-1", nil))

		if rr.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if body["error"] != tc.code {
			t.Fatalf("%v: expected code %s, got %v", tc.err, tc.code, body["error"])
		}
	}
}

func TestQuotationHandlersListScopesToCaller(t *testing.T) {
	var captured services.QuotationListFilter
	svc := &stubQuotationService{
		listFn: func(_ context.Context, filter services.QuotationListFilter) (domain.CursorPage[services.Quotation], error) {
			captured = filter
			return domain.CursorPage[services.Quotation]{Items: []services.Quotation{sampleQuotation()}, NextPageToken: "next"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/quotations/?status=new,canceled&paymentStatus=created&createdAfter=2025-01-01T00:00:00Z&pageSize=5", nil)
	req = withTestIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	newQuotationRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.AccountID != "user-1" || len(captured.ShopIDs) != 0 {
		t.Fatalf("expected account scoped filter, got %+v", captured)
	}
	if len(captured.Status) != 2 || captured.PaymentStatus[0] != "created" || captured.Pagination.PageSize != 5 {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if captured.CreatedAt.From == nil || !captured.CreatedAt.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected createdAt range %+v", captured.CreatedAt)
	}

	var body struct {
		Items         []quotationResponse `json:"items"`
		NextPageToken string              `json:"nextPageToken"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.NextPageToken != "next" {
		t.Fatalf("unexpected page %+v", body)
	}
}

func TestQuotationHandlersListWithShopFilter(t *testing.T) {
	var captured services.QuotationListFilter
	svc := &stubQuotationService{
		listFn: func(_ context.Context, filter services.QuotationListFilter) (domain.CursorPage[services.Quotation], error) {
			captured = filter
			return domain.CursorPage[services.Quotation]{}, nil
		},
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/quotations/?shopId=shop-1&shopId=shop-2", nil), "staff-1")
	rr := httptest.NewRecorder()
	newQuotationRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.AccountID != "" || len(captured.ShopIDs) != 2 {
		t.Fatalf("expected shop scoped filter, got %+v", captured)
	}
}

func TestQuotationHandlersListRejectsBadTimestamp(t *testing.T) {
	svc := &stubQuotationService{}
	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/quotations/?createdBefore=yesterday", nil), "user-1")
	rr := httptest.NewRecorder()
	newQuotationRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestQuotationHandlersListRequiresIdentity(t *testing.T) {
	rr := httptest.NewRecorder()
	newQuotationRouter(&stubQuotationService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/quotations/", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestQuotationHandlersItemMutations(t *testing.T) {
	var (
		cancel services.CancelQuotationItemCommand
		split  services.SplitQuotationItemCommand
		move   services.MoveQuotationItemsCommand
	)
	svc := &stubQuotationService{
		cancelFn: func(_ context.Context, cmd services.CancelQuotationItemCommand) (services.Quotation, error) {
			cancel = cmd
			return sampleQuotation(), nil
		},
		splitFn: func(_ context.Context, cmd services.SplitQuotationItemCommand) (services.SplitQuotationItemResult, error) {
			split = cmd
			return services.SplitQuotationItemResult{Quotation: sampleQuotation(), NewItemID: "i-2"}, nil
		},
		moveFn: func(_ context.Context, cmd services.MoveQuotationItemsCommand) (services.Quotation, error) {
			move = cmd
			return sampleQuotation(), nil
		},
	}
	router := newQuotationRouter(svc)

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/quotations/q-1/items/i-1:cancel", strings.NewReader(`{"cancelQuantity":1,"reason":"damaged"}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cancel.QuotationID != "q-1" || cancel.ItemID != "i-1" || cancel.CancelQuantity != 1 || cancel.Reason == nil || *cancel.Reason != "damaged" {
		t.Fatalf("unexpected cancel command %+v", cancel)
	}

	req = withTestIdentity(httptest.NewRequest(http.MethodPost, "/quotations/q-1/items/i-1:split", strings.NewReader(`{"newItemQuantity":1}`)), "user-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("split: expected 200, got %d", rr.Code)
	}
	var splitResp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &splitResp); err != nil {
		t.Fatalf("decode split: %v", err)
	}
	if split.ItemID != "i-1" || split.NewItemQuantity != 1 || splitResp["newItemId"] != "i-2" {
		t.Fatalf("unexpected split %+v / %v", split, splitResp["newItemId"])
	}

	req = withTestIdentity(httptest.NewRequest(http.MethodPost, "/quotations/q-1/items:move", strings.NewReader(`{"fromFulfillmentGroupId":"g-1","toFulfillmentGroupId":"g-2","itemIds":["i-1"]}`)), "user-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("move: expected 200, got %d", rr.Code)
	}
	if move.FromFulfillmentGroupID != "g-1" || move.ToFulfillmentGroupID != "g-2" || len(move.ItemIDs) != 1 {
		t.Fatalf("unexpected move command %+v", move)
	}
}

func TestQuotationHandlersRejectInvalidBodiesBeforeService(t *testing.T) {
	called := false
	svc := &stubQuotationService{
		cancelFn: func(context.Context, services.CancelQuotationItemCommand) (services.Quotation, error) {
			called = true
			return sampleQuotation(), nil
		},
		moveFn: func(context.Context, services.MoveQuotationItemsCommand) (services.Quotation, error) {
			called = true
			return sampleQuotation(), nil
		},
	}
	router := newQuotationRouter(svc)

	cases := []struct {
		path  string
		body  string
		field string
	}{
		{"/quotations/q-1/items/i-1:cancel", `{"cancelQuantity":0}`, "cancelQuantity"},
		{"/quotations/q-1/items:move", `{"fromFulfillmentGroupId":"g-1","toFulfillmentGroupId":"g-2","itemIds":[]}`, "itemIds"},
	}
	for _, tc := range cases {
		req := withTestIdentity(httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)), "user-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.path, rr.Code, rr.Body.String())
		}
		var body struct {
			Violations []httpx.Violation `json:"violations"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Violations) != 1 || body.Violations[0].Field != tc.field {
			t.Fatalf("%s: unexpected violations %+v", tc.path, body.Violations)
		}
	}
	if called {
		t.Fatalf("service must not run for invalid bodies")
	}
}

func TestQuotationHandlersGroupMutations(t *testing.T) {
	var (
		add    services.AddFulfillmentGroupCommand
		update services.UpdateFulfillmentGroupCommand
	)
	svc := &stubQuotationService{
		addGroupFn: func(_ context.Context, cmd services.AddFulfillmentGroupCommand) (services.AddFulfillmentGroupResult, error) {
			add = cmd
			return services.AddFulfillmentGroupResult{Quotation: sampleQuotation(), NewFulfillmentGroupID: "g-2"}, nil
		},
		updateGroupFn: func(_ context.Context, cmd services.UpdateFulfillmentGroupCommand) (services.Quotation, error) {
			update = cmd
			return sampleQuotation(), nil
		},
	}
	router := newQuotationRouter(svc)

	body := `{"fulfillmentGroup":{"shopId":"shop-1","type":"shipping","selectedFulfillmentMethodId":"m-2","items":[]},"moveItemIds":["i-1"]}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/quotations/q-1/fulfillment-groups", strings.NewReader(body)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add group: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if add.FulfillmentGroup.SelectedFulfillmentMethodID != "m-2" || len(add.MoveItemIDs) != 1 {
		t.Fatalf("unexpected add command %+v", add)
	}

	req = withTestIdentity(httptest.NewRequest(http.MethodPatch, "/quotations/q-1/fulfillment-groups/g-1", strings.NewReader(`{"tracking":"1Z999","trackingUrl":"https://track.example.com/1Z999"}`)), "staff-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("update group: expected 200, got %d", rr.Code)
	}
	if update.FulfillmentGroupID != "g-1" || update.Tracking != "1Z999" || update.Actor.AccountID != "staff-1" {
		t.Fatalf("unexpected update command %+v", update)
	}
}

func TestQuotationHandlersUpdateAndToken(t *testing.T) {
	var update services.UpdateQuotationCommand
	svc := &stubQuotationService{
		updateFn: func(_ context.Context, cmd services.UpdateQuotationCommand) (services.Quotation, error) {
			update = cmd
			return sampleQuotation(), nil
		},
		addTokenFn: func(_ context.Context, cmd services.AddAnonymousTokenCommand) (string, error) {
			if cmd.QuotationID != "q-1" {
				return "", fmt.Errorf("%w: unexpected id", services.ErrQuotationNotFound)
			}
			return "fresh-token", nil
		},
	}
	router := newQuotationRouter(svc)

	req := withTestIdentity(httptest.NewRequest(http.MethodPatch, "/quotations/q-1", strings.NewReader(`{"status":"canceled","customFields":{"po":"42"}}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rr.Code)
	}
	if update.Status != "canceled" || update.CustomFields["po"] != "42" {
		t.Fatalf("unexpected update command %+v", update)
	}

	req = withTestIdentity(httptest.NewRequest(http.MethodPost, "/quotations/q-1/access-tokens", nil), "user-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("token: expected 201, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["token"] != "fresh-token" {
		t.Fatalf("unexpected token body %v (%v)", body, err)
	}
}

func TestQuotationHandlersUnavailableWithoutService(t *testing.T) {
	rr := httptest.NewRecorder()
	newQuotationRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/quotations/q-1", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
