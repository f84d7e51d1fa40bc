package repo

import (
	"context"
	"errors"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
)

// UserCollections are the user collections in lookup order: the current
// one first, then the legacy one.
var UserCollections = []string{domain.CollectionUsers, domain.CollectionLegacyUsers}

// GetUserDoc returns the raw user document stored under id in collection,
// or ErrNotFound.
func GetUserDoc(ctx context.Context, st docstore.Store, collection, id string) (*docstore.Document, error) {
	return st.Get(ctx, collection, id)
}

// FindUserDocByUID returns the first document in collection whose "uid"
// field equals uid, or ErrNotFound. It covers user documents stored under
// an id that differs from the user id.
func FindUserDocByUID(ctx context.Context, st docstore.Store, collection, uid string) (*docstore.Document, error) {
	docs, err := st.Query(ctx, docstore.From(collection).Where("uid", uid).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

// UpsertProfile merges name and email into users/{uid}, creating the
// document when it does not exist. Other fields of an existing document are
// kept.
func UpsertProfile(ctx context.Context, st docstore.Store, p domain.UserProfile) error {
	updates := map[string]any{"uid": p.UID, "nombre": p.Nombre, "email": p.Email}
	_, err := st.Update(ctx, domain.CollectionUsers, p.UID, updates)
	if errors.Is(err, ErrNotFound) {
		_, err = st.Set(ctx, domain.CollectionUsers, p.UID, updates)
	}
	return err
}
