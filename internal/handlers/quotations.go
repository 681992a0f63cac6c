package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/quotations/internal/domain"
	"github.com/hanko-field/quotations/internal/platform/auth"
	"github.com/hanko-field/quotations/internal/platform/httpx"
	"github.com/hanko-field/quotations/internal/platform/pagination"
	"github.com/hanko-field/quotations/internal/services"
)

const (
	quotationTokenHeader = "X-Quotation-Token"
	defaultQuotationPage = 20
	maxQuotationPage     = 100
)

// QuotationHandlers exposes quotation placement, lookup, and fulfillment mutations.
type QuotationHandlers struct {
	authn      *auth.Authenticator
	quotations services.QuotationService
}

// NewQuotationHandlers constructs the handlers. A nil authenticator leaves identity resolution to outer
// middleware.
func NewQuotationHandlers(authn *auth.Authenticator, quotations services.QuotationService) *QuotationHandlers {
	return &QuotationHandlers{authn: authn, quotations: quotations}
}

// Routes registers the /quotations endpoints.
func (h *QuotationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(public chi.Router) {
		if h.authn != nil {
			public.Use(h.authn.OptionalFirebaseAuth())
		}
		public.Post("/", h.placeQuotation)
		public.Get("/{quotationID}", h.getQuotation)
		public.Get("/by-reference/{shopID}/{referenceID}", h.getQuotationByReference)
	})

	r.Group(func(private chi.Router) {
		if h.authn != nil {
			private.Use(h.authn.RequireFirebaseAuth())
		}
		private.Get("/", h.listQuotations)
		private.Patch("/{quotationID}", h.updateQuotation)
		private.Post("/{quotationID}/fulfillment-groups", h.addFulfillmentGroup)
		private.Patch("/{quotationID}/fulfillment-groups/{groupID}", h.updateFulfillmentGroup)
		private.Post("/{quotationID}/items/{itemID}:cancel", h.cancelItem)
		private.Post("/{quotationID}/items/{itemID}:split", h.splitItem)
		private.Post("/{quotationID}/items:move", h.moveItems)
		private.Post("/{quotationID}/access-tokens", h.addAccessToken)
	})
}

func (h *QuotationHandlers) placeQuotation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req placeQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidBody(ctx, w, err)
		return
	}

	cmd := req.toCommand(actorFromContext(ctx))
	if cmd.PreferredLanguage == "" {
		cmd.PreferredLanguage = preferredLanguage(r)
	}
	result, err := h.quotations.Place(ctx, cmd)
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}

	payload := map[string]any{
		"quotation": h.response(ctx, r, result.Quotation),
	}
	if result.Token != "" {
		payload["token"] = result.Token
	}
	httpx.WriteJSON(w, http.StatusCreated, payload)
}

func (h *QuotationHandlers) getQuotation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	quotation, err := h.quotations.GetQuotation(ctx, services.QuotationLookup{
		QuotationID: chi.URLParam(r, "quotationID"),
		Token:       accessToken(r),
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.response(ctx, r, quotation))
}

func (h *QuotationHandlers) getQuotationByReference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	quotation, err := h.quotations.GetQuotation(ctx, services.QuotationLookup{
		ShopID:      chi.URLParam(r, "shopID"),
		ReferenceID: chi.URLParam(r, "referenceID"),
		Token:       accessToken(r),
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.response(ctx, r, quotation))
}

func (h *QuotationHandlers) listQuotations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	page, err := pagination.FromRequest(r, pagination.Options{DefaultPageSize: defaultQuotationPage, MaxPageSize: maxQuotationPage})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.InvalidBody(err))
		return
	}

	query := r.URL.Query()
	filter := services.QuotationListFilter{
		ShopIDs:           splitValues(query["shopId"]),
		Status:            splitValues(query["status"]),
		FulfillmentStatus: splitValues(query["fulfillmentStatus"]),
		PaymentStatus:     splitValues(query["paymentStatus"]),
		SearchField:       strings.TrimSpace(query.Get("search")),
		Pagination: domain.Pagination{
			PageSize:  page.PageSize,
			PageToken: page.PageToken,
		},
	}
	if len(filter.ShopIDs) == 0 {
		filter.AccountID = identity.UID
	}
	for key, target := range map[string]**time.Time{"createdAfter": &filter.CreatedAt.From, "createdBefore": &filter.CreatedAt.To} {
		raw := strings.TrimSpace(query.Get(key))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", key+" must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		ts = ts.UTC()
		*target = &ts
	}

	result, err := h.quotations.ListQuotations(ctx, filter)
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	items := make([]quotationResponse, len(result.Items))
	for i, quotation := range result.Items {
		items[i] = newQuotationResponse(quotation, "")
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":         items,
		"nextPageToken": result.NextPageToken,
	})
}

func (h *QuotationHandlers) updateQuotation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req updateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidBody(ctx, w, err)
		return
	}
	quotation, err := h.quotations.UpdateQuotation(ctx, services.UpdateQuotationCommand{
		Actor:        actorFromContext(ctx),
		QuotationID:  chi.URLParam(r, "quotationID"),
		Email:        req.Email,
		Status:       req.Status,
		CustomFields: req.CustomFields,
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.response(ctx, r, quotation))
}

func (h *QuotationHandlers) addFulfillmentGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req addFulfillmentGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidBody(ctx, w, err)
		return
	}
	result, err := h.quotations.AddFulfillmentGroup(ctx, services.AddFulfillmentGroupCommand{
		Actor:            actorFromContext(ctx),
		QuotationID:      chi.URLParam(r, "quotationID"),
		FulfillmentGroup: req.FulfillmentGroup.toInput(),
		MoveItemIDs:      req.MoveItemIDs,
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"quotation":             h.response(ctx, r, result.Quotation),
		"newFulfillmentGroupId": result.NewFulfillmentGroupID,
	})
}

func (h *QuotationHandlers) updateFulfillmentGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req updateFulfillmentGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidBody(ctx, w, err)
		return
	}
	quotation, err := h.quotations.UpdateFulfillmentGroup(ctx, services.UpdateFulfillmentGroupCommand{
		Actor:              actorFromContext(ctx),
		QuotationID:        chi.URLParam(r, "quotationID"),
		FulfillmentGroupID: chi.URLParam(r, "groupID"),
		Tracking:           req.Tracking,
		TrackingURL:        req.TrackingURL,
		Status:             req.Status,
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.response(ctx, r, quotation))
}

func (h *QuotationHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req cancelItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidBody(ctx, w, err)
		return
	}
	quotation, err := h.quotations.CancelItem(ctx, services.CancelQuotationItemCommand{
		Actor:          actorFromContext(ctx),
		QuotationID:    chi.URLParam(r, "quotationID"),
		ItemID:         chi.URLParam(r, "itemID"),
		CancelQuantity: req.CancelQuantity,
		Reason:         req.Reason,
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.response(ctx, r, quotation))
}

func (h *QuotationHandlers) splitItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req splitItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidBody(ctx, w, err)
		return
	}
	result, err := h.quotations.SplitItem(ctx, services.SplitQuotationItemCommand{
		Actor:           actorFromContext(ctx),
		QuotationID:     chi.URLParam(r, "quotationID"),
		ItemID:          chi.URLParam(r, "itemID"),
		NewItemQuantity: req.NewItemQuantity,
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"quotation": h.response(ctx, r, result.Quotation),
		"newItemId": result.NewItemID,
	})
}

func (h *QuotationHandlers) moveItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req moveItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidBody(ctx, w, err)
		return
	}
	quotation, err := h.quotations.MoveItems(ctx, services.MoveQuotationItemsCommand{
		Actor:                  actorFromContext(ctx),
		QuotationID:            chi.URLParam(r, "quotationID"),
		FromFulfillmentGroupID: req.FromFulfillmentGroupID,
		ToFulfillmentGroupID:   req.ToFulfillmentGroupID,
		ItemIDs:                req.ItemIDs,
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.response(ctx, r, quotation))
}

func (h *QuotationHandlers) addAccessToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	token, err := h.quotations.AddAnonymousToken(ctx, services.AddAnonymousTokenCommand{
		Actor:       actorFromContext(ctx),
		QuotationID: chi.URLParam(r, "quotationID"),
	})
	if err != nil {
		writeQuotationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (h *QuotationHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.quotations == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quotation_service_unavailable", "quotation service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

// response renders q with its status label in the caller's language. Label lookup failures fall back to
// the raw status.
func (h *QuotationHandlers) response(ctx context.Context, r *http.Request, q services.Quotation) quotationResponse {
	lang := preferredLanguage(r)
	if lang == "" {
		lang = q.PreferredLanguage
	}
	label, err := h.quotations.DisplayStatus(ctx, q.ShopID, q.Workflow.Status, lang)
	if err != nil {
		label = ""
	}
	return newQuotationResponse(q, label)
}

func actorFromContext(ctx context.Context) services.QuotationActor {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return services.QuotationActor{}
	}
	uid := strings.TrimSpace(identity.UID)
	return services.QuotationActor{AccountID: uid, UserID: uid}
}

func accessToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(quotationTokenHeader)); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func preferredLanguage(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if header == "" {
		return ""
	}
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	return strings.TrimSpace(first)
}

func splitValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeInvalidBody(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, httpx.InvalidBody(err))
}

// writeQuotationError maps quotation error kinds onto HTTP statuses.
func writeQuotationError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrQuotationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrQuotationInvalidParam):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrQuotationInvalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrQuotationAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrQuotationPaymentFailed):
		status = http.StatusPaymentRequired
	case errors.Is(err, services.ErrQuotationUnavailable):
		status = http.StatusServiceUnavailable
	}

	kind := services.QuotationErrorKind(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		message = http.StatusText(status)
	case http.StatusForbidden:
		message = "access denied"
	}
	httpx.WriteError(ctx, w, httpx.NewError(strings.ReplaceAll(kind, "-", "_"), message, status))
}
