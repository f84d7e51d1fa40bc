package services

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/observability"
	"github.com/tbourn/go-repair-backend/internal/repo"
)

var requestStatuses = map[string]struct{}{
	domain.RequestPending:   {},
	domain.RequestAccepted:  {},
	domain.RequestRejected:  {},
	domain.RequestCompleted: {},
}

// RequestService handles the service-request intake that precedes a
// repair order.
type RequestService struct {
	Store docstore.Store
	Names *NameResolver
}

// NewRequestService constructs a RequestService.
func NewRequestService(st docstore.Store, names *NameResolver) *RequestService {
	return &RequestService{Store: st, Names: names}
}

// Create stores a pending request for an existing business. Blank client
// name and email are filled from the user's profile.
func (s *RequestService) Create(ctx context.Context, r domain.ServiceRequest) (*domain.ServiceRequest, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("business.id", r.BusinessID),
			attribute.String("client.id", r.ClientID),
		),
	)
	defer span.End()

	if strings.TrimSpace(r.BusinessID) == "" || strings.TrimSpace(r.ClientID) == "" {
		return nil, ErrInvalidParticipants
	}
	if _, err := repo.GetBusiness(ctx, s.Store, r.BusinessID); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	if (r.ClientName == "" || r.ClientEmail == "") && s.Names != nil {
		if info, ok := s.Names.ResolveUserInfo(ctx, r.ClientID); ok {
			if r.ClientName == "" {
				r.ClientName = info.Name
			}
			if r.ClientEmail == "" {
				r.ClientEmail = info.Email
			}
		}
	}
	r.ID = ""
	r.Status = domain.RequestPending
	return repo.CreateRequest(ctx, s.Store, r)
}

// Get returns the request stored under id.
func (s *RequestService) Get(ctx context.Context, id string) (*domain.ServiceRequest, bool) {
	r, err := repo.GetRequest(ctx, s.Store, id)
	if err != nil {
		if !repo.IsNotFound(err) {
			logFrom(ctx).Warn().Err(err).Str("request_id", id).Msg("request lookup failed")
		}
		return nil, false
	}
	return r, true
}

// ListForBusiness returns a business's requests newest first. Without the
// composite index it sorts an equality query here; on any other failure it
// returns an empty list.
func (s *RequestService) ListForBusiness(ctx context.Context, businessID string) []domain.ServiceRequest {
	docs, err := s.Store.Query(ctx, repo.RequestsForBusinessQuery(businessID))
	if err == nil {
		return repo.DecodeRequests(docs)
	}
	lg := logFrom(ctx).With().Str("business_id", businessID).Logger()
	if !docstore.IsIndexError(err) {
		lg.Warn().Err(err).Msg("request query failed")
		return []domain.ServiceRequest{}
	}

	observability.ListenerFallbacks.WithLabelValues("business_requests").Inc()
	docs, err = s.Store.Query(ctx, docstore.From(domain.CollectionRequests).Where("businessId", businessID))
	if err != nil {
		lg.Warn().Err(err).Msg("request fallback query failed")
		return []domain.ServiceRequest{}
	}
	reqs := repo.DecodeRequests(docs)
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs
}

// ListForOwner returns the requests addressed to any business of ownerID,
// newest first.
func (s *RequestService) ListForOwner(ctx context.Context, ownerID string) []domain.ServiceRequest {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "ListForOwner", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	lg := logFrom(ctx).With().Str("owner_id", ownerID).Logger()
	businesses, err := repo.ListBusinessesForOwner(ctx, s.Store, ownerID)
	if err != nil {
		lg.Warn().Err(err).Msg("owner businesses query failed")
		return []domain.ServiceRequest{}
	}
	ids := make([]string, 0, len(businesses))
	for _, b := range businesses {
		ids = append(ids, b.ID)
	}
	reqs, err := repo.ListRequestsForBusinesses(ctx, s.Store, ids)
	if err != nil {
		lg.Warn().Err(err).Int("businesses", len(ids)).Msg("owner requests query failed")
		return []domain.ServiceRequest{}
	}
	return reqs
}

// UpdateStatus moves a request along pending → accepted|rejected,
// accepted → completed.
func (s *RequestService) UpdateStatus(ctx context.Context, id, status string) (*domain.ServiceRequest, error) {
	if _, ok := requestStatuses[status]; !ok {
		return nil, ErrInvalidStatus
	}
	r, err := repo.GetRequest(ctx, s.Store, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if !domain.CanTransitionRequest(r.Status, status) {
		return nil, ErrInvalidStatus
	}
	if r.Status == status {
		return r, nil
	}
	if err := repo.SetRequestStatus(ctx, s.Store, id, status); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	r.Status = status
	return r, nil
}
