package services

import (
	"context"
	"strings"

	"github.com/tbourn/go-repair-backend/internal/catalog"
	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/repo"
)

// BusinessService lists and searches businesses and keeps user profiles.
type BusinessService struct {
	Store docstore.Store

	// SearchLimit caps search results; zero means 20.
	SearchLimit int
}

// NewBusinessService constructs a BusinessService.
func NewBusinessService(st docstore.Store) *BusinessService {
	return &BusinessService{Store: st, SearchLimit: 20}
}

// Create stores a business owned by ownerID.
func (s *BusinessService) Create(ctx context.Context, ownerID string, b domain.Business) (*domain.Business, error) {
	b.ID = ""
	b.OwnerID = ownerID
	b.Name = strings.TrimSpace(b.Name)
	return repo.CreateBusiness(ctx, s.Store, b)
}

// Get returns the business stored under id.
func (s *BusinessService) Get(ctx context.Context, id string) (*domain.Business, bool) {
	b, err := repo.GetBusiness(ctx, s.Store, id)
	if err != nil {
		if !repo.IsNotFound(err) {
			logFrom(ctx).Warn().Err(err).Str("business_id", id).Msg("business lookup failed")
		}
		return nil, false
	}
	return b, true
}

// List returns every business by name, or an empty list when the store
// fails.
func (s *BusinessService) List(ctx context.Context) []domain.Business {
	bs, err := repo.ListBusinesses(ctx, s.Store)
	if err != nil {
		logFrom(ctx).Warn().Err(err).Msg("business list failed")
		return []domain.Business{}
	}
	return bs
}

// Search ranks businesses against q by their name, description and
// services. A blank query lists everything.
func (s *BusinessService) Search(ctx context.Context, q string) []domain.Business {
	all := s.List(ctx)
	if strings.TrimSpace(q) == "" {
		return all
	}
	limit := s.SearchLimit
	if limit <= 0 {
		limit = 20
	}
	byID := make(map[string]domain.Business, len(all))
	for _, b := range all {
		byID[b.ID] = b
	}
	hits := catalog.NewIndex(all).TopK(q, limit)
	out := make([]domain.Business, 0, len(hits))
	for _, h := range hits {
		out = append(out, byID[h.BusinessID])
	}
	return out
}

// Seed stores the given businesses when the collection is empty and
// reports how many were written.
func (s *BusinessService) Seed(ctx context.Context, businesses []domain.Business) (int, error) {
	existing, err := s.Store.Query(ctx, docstore.From(domain.CollectionBusinesses).Limit(1))
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	n := 0
	for _, b := range businesses {
		if _, err := repo.CreateBusiness(ctx, s.Store, b); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// UserService keeps the profile fields used for name resolution.
type UserService struct {
	Store docstore.Store
}

// NewUserService constructs a UserService.
func NewUserService(st docstore.Store) *UserService {
	return &UserService{Store: st}
}

// UpsertProfile writes the display name and email of uid.
func (s *UserService) UpsertProfile(ctx context.Context, uid, nombre, email string) error {
	return repo.UpsertProfile(ctx, s.Store, domain.UserProfile{
		UID:    uid,
		Nombre: strings.TrimSpace(nombre),
		Email:  strings.TrimSpace(email),
	})
}
