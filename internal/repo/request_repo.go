package repo

import (
	"context"
	"sort"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
)

func setRequestID(r *domain.ServiceRequest, id string) {
	if r.ID == "" {
		r.ID = id
	}
}

func setBusinessID(b *domain.Business, id string) {
	if b.ID == "" {
		b.ID = id
	}
}

// CreateRequest stores r under a fresh id with a server-assigned createdAt.
func CreateRequest(ctx context.Context, st docstore.Store, r domain.ServiceRequest) (*domain.ServiceRequest, error) {
	if r.ID == "" {
		r.ID = st.NewID()
	}
	body, err := toDoc(r, "createdAt")
	if err != nil {
		return nil, err
	}
	res, err := st.Set(ctx, domain.CollectionRequests, r.ID, body)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = res.UpdateTime
	return &r, nil
}

// GetRequest returns the request or ErrNotFound.
func GetRequest(ctx context.Context, st docstore.Store, id string) (*domain.ServiceRequest, error) {
	doc, err := st.Get(ctx, domain.CollectionRequests, id)
	if err != nil {
		return nil, err
	}
	return decodeOne(doc, setRequestID)
}

// SetRequestStatus overwrites the request status.
func SetRequestStatus(ctx context.Context, st docstore.Store, id, status string) error {
	_, err := st.Update(ctx, domain.CollectionRequests, id, map[string]any{"status": status})
	return err
}

// RequestsForBusinessQuery lists a business's requests newest first. It
// needs the requests(businessId, createdAt) composite index.
func RequestsForBusinessQuery(businessID string) docstore.Query {
	return docstore.From(domain.CollectionRequests).
		Where("businessId", businessID).
		OrderBy("createdAt", docstore.Desc)
}

// ListRequestsForBusinesses fetches the requests of several businesses,
// chunking the id list to the store's set-membership limit, newest first.
func ListRequestsForBusinesses(ctx context.Context, st docstore.Store, businessIDs []string) ([]domain.ServiceRequest, error) {
	if len(businessIDs) == 0 {
		return []domain.ServiceRequest{}, nil
	}
	docs, err := docstore.QueryIn(ctx, st, docstore.From(domain.CollectionRequests), "businessId", businessIDs)
	if err != nil {
		return nil, err
	}
	reqs := DecodeRequests(docs)
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

// DecodeRequests maps request documents, skipping malformed ones.
func DecodeRequests(docs []docstore.Document) []domain.ServiceRequest {
	return decodeAll(docs, setRequestID)
}

// CreateBusiness stores b under a fresh id with a server-assigned createdAt.
func CreateBusiness(ctx context.Context, st docstore.Store, b domain.Business) (*domain.Business, error) {
	if b.ID == "" {
		b.ID = st.NewID()
	}
	if b.Services == nil {
		b.Services = []string{}
	}
	body, err := toDoc(b, "createdAt")
	if err != nil {
		return nil, err
	}
	res, err := st.Set(ctx, domain.CollectionBusinesses, b.ID, body)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = res.UpdateTime
	return &b, nil
}

// GetBusiness returns the business or ErrNotFound.
func GetBusiness(ctx context.Context, st docstore.Store, id string) (*domain.Business, error) {
	doc, err := st.Get(ctx, domain.CollectionBusinesses, id)
	if err != nil {
		return nil, err
	}
	return decodeOne(doc, setBusinessID)
}

// ListBusinesses returns every business ordered by name.
func ListBusinesses(ctx context.Context, st docstore.Store) ([]domain.Business, error) {
	docs, err := st.Query(ctx, docstore.From(domain.CollectionBusinesses).OrderBy("name", docstore.Asc))
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, setBusinessID), nil
}

// ListBusinessesForOwner returns the businesses owned by ownerID.
func ListBusinessesForOwner(ctx context.Context, st docstore.Store, ownerID string) ([]domain.Business, error) {
	docs, err := st.Query(ctx, docstore.From(domain.CollectionBusinesses).Where("ownerId", ownerID))
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, setBusinessID), nil
}
