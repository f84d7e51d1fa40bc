package repo

import (
	"context"
	"testing"

	"github.com/tbourn/go-repair-backend/internal/domain"
)

func TestFindUserDocByUID(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_, _ = st.Set(ctx, domain.CollectionLegacyUsers, "random-doc-id", map[string]any{"uid": "u1", "name": "Legacy"})

	if _, err := GetUserDoc(ctx, st, domain.CollectionLegacyUsers, "u1"); !IsNotFound(err) {
		t.Fatalf("direct get should miss, got %v", err)
	}
	doc, err := FindUserDocByUID(ctx, st, domain.CollectionLegacyUsers, "u1")
	if err != nil || doc.Data["name"] != "Legacy" {
		t.Fatalf("FindUserDocByUID = %+v, %v", doc, err)
	}
	if _, err := FindUserDocByUID(ctx, st, domain.CollectionUsers, "u1"); !IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestUpsertProfile_CreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	if err := UpsertProfile(ctx, st, domain.UserProfile{UID: "u1", Nombre: "Ana", Email: "a@x.io"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = st.Update(ctx, domain.CollectionUsers, "u1", map[string]any{"rol": "cliente"})
	if err := UpsertProfile(ctx, st, domain.UserProfile{UID: "u1", Nombre: "Ana B", Email: "a@x.io"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	doc, _ := GetUserDoc(ctx, st, domain.CollectionUsers, "u1")
	if doc.Data["nombre"] != "Ana B" || doc.Data["rol"] != "cliente" {
		t.Fatalf("profile = %+v", doc.Data)
	}
}
