package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/quotations/internal/domain"
	pfirestore "github.com/hanko-field/quotations/internal/platform/firestore"
	"github.com/hanko-field/quotations/internal/platform/pagination"
	"github.com/hanko-field/quotations/internal/repositories"
)

const (
	quotationCollection = "quotations"
	defaultListSize     = 20
)

// QuotationRepository persists quotation aggregates as single documents. Groups, items, payments, and
// surcharges are embedded arrays rewritten as a whole inside a transaction.
type QuotationRepository struct {
	base     *pfirestore.BaseRepository[quotationDocument]
	provider *pfirestore.Provider
}

// NewQuotationRepository constructs a Firestore-backed quotation repository.
func NewQuotationRepository(provider *pfirestore.Provider) (*QuotationRepository, error) {
	if provider == nil {
		return nil, errors.New("quotation repository requires firestore provider")
	}
	return &QuotationRepository{
		base:     pfirestore.NewBaseRepository[quotationDocument](provider, quotationCollection),
		provider: provider,
	}, nil
}

// Insert creates the quotation document. An existing ID yields a conflict.
func (r *QuotationRepository) Insert(ctx context.Context, quotation domain.Quotation) error {
	id := strings.TrimSpace(quotation.ID)
	if id == "" {
		return errors.New("quotation repository: quotation id is required")
	}
	return r.base.Create(ctx, id, toQuotationDocument(quotation))
}

// FindByID loads a quotation by document ID.
func (r *QuotationRepository) FindByID(ctx context.Context, quotationID string) (domain.Quotation, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(quotationID))
	if err != nil {
		return domain.Quotation{}, err
	}
	return withDocumentID(doc), nil
}

// FindByReferenceID loads the quotation a shop knows by its reference.
func (r *QuotationRepository) FindByReferenceID(ctx context.Context, shopID, referenceID string) (domain.Quotation, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("shopId", "==", strings.TrimSpace(shopID)).
			Where("referenceId", "==", strings.TrimSpace(referenceID)).
			Limit(1)
	})
	if err != nil {
		return domain.Quotation{}, err
	}
	if len(docs) == 0 {
		return domain.Quotation{}, pfirestore.NotFound("quotations.findByReferenceId", "quotation %s not found in shop %s", referenceID, shopID)
	}
	return withDocumentID(docs[0]), nil
}

// ReplaceFulfillment rewrites shipping, surcharges, and totals (and the workflow when provided) in one
// transaction and returns the stored result.
func (r *QuotationRepository) ReplaceFulfillment(ctx context.Context, quotationID string, update repositories.QuotationFulfillmentUpdate) (domain.Quotation, error) {
	return r.mutate(ctx, quotationID, func(q *domain.Quotation) error {
		q.Shipping = update.Shipping
		q.Surcharges = update.Surcharges
		q.TotalItemQuantity = update.TotalItemQuantity
		if update.Workflow != nil {
			q.Workflow = *update.Workflow
		}
		q.UpdatedAt = update.UpdatedAt
		return nil
	})
}

// UpdateFulfillmentGroup patches tracking and workflow of one group. Firestore cannot address a single
// array element, so the group is changed on the loaded aggregate and the document is rewritten inside the
// transaction; other groups are written back unchanged.
func (r *QuotationRepository) UpdateFulfillmentGroup(ctx context.Context, quotationID, groupID string, patch repositories.FulfillmentGroupPatch) (domain.Quotation, error) {
	return r.mutate(ctx, quotationID, func(q *domain.Quotation) error {
		idx := slices.IndexFunc(q.Shipping, func(g domain.QuotationFulfillmentGroup) bool { return g.ID == groupID })
		if idx < 0 {
			return pfirestore.NotFound("quotations.updateFulfillmentGroup", "fulfillment group %s not found on quotation %s", groupID, quotationID)
		}
		group := &q.Shipping[idx]
		if patch.Tracking != nil {
			group.Tracking = *patch.Tracking
		}
		if patch.TrackingURL != nil {
			group.TrackingURL = *patch.TrackingURL
		}
		if patch.Workflow != nil {
			group.Workflow = *patch.Workflow
		}
		updatedAt := patch.UpdatedAt
		group.UpdatedAt = &updatedAt
		q.UpdatedAt = patch.UpdatedAt
		return nil
	})
}

// UpdateHeader patches quotation-level fields.
func (r *QuotationRepository) UpdateHeader(ctx context.Context, quotationID string, patch repositories.QuotationHeaderPatch) (domain.Quotation, error) {
	return r.mutate(ctx, quotationID, func(q *domain.Quotation) error {
		if patch.Email != nil {
			q.Email = *patch.Email
		}
		if patch.CustomFields != nil {
			q.CustomFields = patch.CustomFields
		}
		if patch.Workflow != nil {
			q.Workflow = *patch.Workflow
		}
		q.UpdatedAt = patch.UpdatedAt
		return nil
	})
}

// AppendAnonymousToken adds a hashed access token without rewriting the rest of the document.
func (r *QuotationRepository) AppendAnonymousToken(ctx context.Context, quotationID string, token domain.AnonymousAccessToken) error {
	return r.base.Update(ctx, strings.TrimSpace(quotationID), []firestore.Update{
		{Path: "anonymousAccessTokens", Value: firestore.ArrayUnion(anonymousTokenDocument(token))},
	})
}

// List returns quotations newest first. Payment status is matched after the query because Firestore
// allows a single array-contains-any filter, which fulfillment status already uses.
func (r *QuotationRepository) List(ctx context.Context, filter repositories.QuotationListFilter) (domain.CursorPage[domain.Quotation], error) {
	if n := filter.Disjunctions(); n > repositories.MaxListDisjunctions {
		return domain.CursorPage[domain.Quotation]{}, fmt.Errorf("quotation repository: filter expands to %d disjunctions, limit is %d", n, repositories.MaxListDisjunctions)
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Quotation]{}, err
	}
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultListSize
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = applyListFilter(q, filter)
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Quotation]{}, err
	}

	page := domain.CursorPage[domain.Quotation]{Items: make([]domain.Quotation, 0, min(len(docs), pageSize))}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[i-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.Data.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Quotation]{}, err
			}
			page.NextPageToken = token
			break
		}
		if len(filter.PaymentStatus) > 0 && !containsAny(doc.Data.PaymentStatuses, filter.PaymentStatus) {
			continue
		}
		page.Items = append(page.Items, withDocumentID(doc))
	}
	return page, nil
}

func applyListFilter(q firestore.Query, filter repositories.QuotationListFilter) firestore.Query {
	switch len(filter.ShopIDs) {
	case 0:
	case 1:
		q = q.Where("shopId", "==", filter.ShopIDs[0])
	default:
		q = q.Where("shopId", "in", filter.ShopIDs)
	}
	if account := strings.TrimSpace(filter.AccountID); account != "" {
		q = q.Where("accountId", "==", account)
	}
	if len(filter.Status) > 0 {
		q = q.Where("workflow.status", "in", filter.Status)
	}
	if len(filter.FulfillmentStatus) > 0 {
		q = q.Where("shippingStatuses", "array-contains-any", filter.FulfillmentStatus)
	}
	if from := filter.CreatedAt.From; from != nil {
		q = q.Where("createdAt", ">=", *from)
	}
	if to := filter.CreatedAt.To; to != nil {
		q = q.Where("createdAt", "<=", *to)
	}
	if search := strings.TrimSpace(filter.SearchField); search != "" {
		q = q.WhereEntity(firestore.OrFilter{Filters: []firestore.EntityFilter{
			firestore.PropertyFilter{Path: "id", Operator: "==", Value: search},
			firestore.PropertyFilter{Path: "referenceId", Operator: "==", Value: search},
			firestore.PropertyFilter{Path: "email", Operator: "==", Value: search},
		}})
	}
	return q
}

// mutate applies fn to the stored quotation inside a transaction and writes the whole document back.
func (r *QuotationRepository) mutate(ctx context.Context, quotationID string, fn func(*domain.Quotation) error) (domain.Quotation, error) {
	id := strings.TrimSpace(quotationID)
	var result domain.Quotation
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			return err
		}
		quotation := withDocumentID(doc)
		if err := fn(&quotation); err != nil {
			return err
		}
		if quotation.UpdatedAt.IsZero() {
			quotation.UpdatedAt = time.Now().UTC()
		}
		if err := r.base.Set(ctx, id, toQuotationDocument(quotation)); err != nil {
			return err
		}
		result = quotation
		return nil
	})
	if err != nil {
		return domain.Quotation{}, err
	}
	return result, nil
}

func withDocumentID(doc pfirestore.Document[quotationDocument]) domain.Quotation {
	quotation := doc.Data.toDomain()
	quotation.ID = doc.ID
	if quotation.CreatedAt.IsZero() {
		quotation.CreatedAt = doc.CreateTime
	}
	return quotation
}

func containsAny(values, wanted []string) bool {
	for _, value := range values {
		if slices.Contains(wanted, value) {
			return true
		}
	}
	return false
}

var _ repositories.QuotationRepository = (*QuotationRepository)(nil)
