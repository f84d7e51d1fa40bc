package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/repo"
)

// preferredNameField is checked before nameFields.
const preferredNameField = "nombre"

var nameFields = []string{"displayName", "name", "email", "username"}

// userSource fetches one candidate user document.
type userSource struct {
	name  string
	fetch func(ctx context.Context, st docstore.Store, uid string) (*docstore.Document, error)
}

// userSources lists the user lookups in resolution order: by document id in
// each user collection, then by the "uid" field in each.
var userSources = func() []userSource {
	var out []userSource
	for _, col := range repo.UserCollections {
		col := col
		out = append(out, userSource{
			name: col + "/{id}",
			fetch: func(ctx context.Context, st docstore.Store, uid string) (*docstore.Document, error) {
				return repo.GetUserDoc(ctx, st, col, uid)
			},
		})
	}
	for _, col := range repo.UserCollections {
		col := col
		out = append(out, userSource{
			name: col + " where uid",
			fetch: func(ctx context.Context, st docstore.Store, uid string) (*docstore.Document, error) {
				return repo.FindUserDocByUID(ctx, st, col, uid)
			},
		})
	}
	return out
}()

// NameResolver turns user and business ids into human-readable names by
// trying several sources in order. A failing source is logged and skipped.
type NameResolver struct {
	Store docstore.Store
}

// NewNameResolver returns a resolver over st.
func NewNameResolver(st docstore.Store) *NameResolver {
	return &NameResolver{Store: st}
}

// ResolveDisplayName returns the first non-blank name found for uid.
func (r *NameResolver) ResolveDisplayName(ctx context.Context, uid string) (string, bool) {
	tr := otel.Tracer("services/NameResolver")
	ctx, span := tr.Start(ctx, "ResolveDisplayName", trace.WithAttributes(attribute.String("user.id", uid)))
	defer span.End()

	if strings.TrimSpace(uid) == "" {
		return "", false
	}
	var name string
	r.eachUserDoc(ctx, uid, func(d *docstore.Document) bool {
		name = pickName(d.Data)
		return name != ""
	})
	return name, name != ""
}

// ResolveUserInfo returns the "nombre" and email of the first user document
// where either is non-blank.
func (r *NameResolver) ResolveUserInfo(ctx context.Context, uid string) (*domain.UserInfo, bool) {
	tr := otel.Tracer("services/NameResolver")
	ctx, span := tr.Start(ctx, "ResolveUserInfo", trace.WithAttributes(attribute.String("user.id", uid)))
	defer span.End()

	if strings.TrimSpace(uid) == "" {
		return nil, false
	}
	var info *domain.UserInfo
	r.eachUserDoc(ctx, uid, func(d *docstore.Document) bool {
		name, email := stringField(d.Data, preferredNameField), stringField(d.Data, "email")
		if name == "" && email == "" {
			return false
		}
		info = &domain.UserInfo{Name: name, Email: email}
		return true
	})
	return info, info != nil
}

// BusinessOwner returns the ownerId of a business.
func (r *NameResolver) BusinessOwner(ctx context.Context, businessID string) (string, bool) {
	b, err := repo.GetBusiness(ctx, r.Store, businessID)
	if err != nil {
		if !repo.IsNotFound(err) {
			logFrom(ctx).Warn().Err(err).Str("business_id", businessID).Msg("business owner lookup failed")
		}
		return "", false
	}
	owner := strings.TrimSpace(b.OwnerID)
	return owner, owner != ""
}

// ResolveBusinessName tries, in order: the business name, the owner's
// display name, the owner of the most recent chat with the business, and
// finally the business id used as a user id.
func (r *NameResolver) ResolveBusinessName(ctx context.Context, businessID string) (string, bool) {
	tr := otel.Tracer("services/NameResolver")
	ctx, span := tr.Start(ctx, "ResolveBusinessName", trace.WithAttributes(attribute.String("business.id", businessID)))
	defer span.End()

	if strings.TrimSpace(businessID) == "" {
		return "", false
	}
	lg := logFrom(ctx).With().Str("business_id", businessID).Logger()

	var owner string
	b, err := repo.GetBusiness(ctx, r.Store, businessID)
	switch {
	case err == nil:
		if name := strings.TrimSpace(b.Name); name != "" {
			return name, true
		}
		owner = strings.TrimSpace(b.OwnerID)
	case !repo.IsNotFound(err):
		lg.Warn().Err(err).Msg("business lookup failed")
	}

	if owner != "" {
		if name, ok := r.ResolveDisplayName(ctx, owner); ok {
			return name, true
		}
	}

	chat, err := repo.LatestChatForBusiness(ctx, r.Store, businessID)
	if err != nil {
		lg.Warn().Err(err).Msg("latest chat lookup failed")
	} else if chat != nil && chat.OwnerID != "" && chat.OwnerID != owner {
		if name, ok := r.ResolveDisplayName(ctx, chat.OwnerID); ok {
			return name, true
		}
	}

	for _, col := range repo.UserCollections {
		d, err := repo.GetUserDoc(ctx, r.Store, col, businessID)
		if err != nil {
			if !repo.IsNotFound(err) {
				lg.Warn().Err(err).Str("collection", col).Msg("user lookup failed")
			}
			continue
		}
		if name := pickName(d.Data); name != "" {
			return name, true
		}
	}
	return "", false
}

// eachUserDoc calls fn with the user documents found for uid, source by
// source, until fn reports true.
func (r *NameResolver) eachUserDoc(ctx context.Context, uid string, fn func(*docstore.Document) bool) {
	for _, src := range userSources {
		d, err := src.fetch(ctx, r.Store, uid)
		if err != nil {
			if !repo.IsNotFound(err) {
				logFrom(ctx).Warn().Err(err).Str("user_id", uid).Str("source", src.name).Msg("user lookup failed")
			}
			continue
		}
		if fn(d) {
			return
		}
	}
}

func pickName(data map[string]any) string {
	if v := stringField(data, preferredNameField); v != "" {
		return v
	}
	for _, f := range nameFields {
		if v := stringField(data, f); v != "" {
			return v
		}
	}
	return ""
}

func stringField(data map[string]any, field string) string {
	s, _ := data[field].(string)
	return strings.TrimSpace(s)
}
