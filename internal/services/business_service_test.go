package services

import (
	"context"
	"testing"

	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/repo"
)

func TestBusinessService_CreateGetList(t *testing.T) {
	ctx := context.Background()
	svc := NewBusinessService(newStore(t))

	b, err := svc.Create(ctx, "owner-1", domain.Business{ID: "ignored", Name: "  Zeta  ", OwnerID: "spoofed"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID == "ignored" || b.OwnerID != "owner-1" || b.Name != "Zeta" {
		t.Fatalf("business = %+v", b)
	}
	_, _ = svc.Create(ctx, "owner-2", domain.Business{Name: "Alpha"})

	if got, ok := svc.Get(ctx, b.ID); !ok || got.Name != "Zeta" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if _, ok := svc.Get(ctx, "missing"); ok {
		t.Fatalf("expected absent")
	}
	list := svc.List(ctx)
	if len(list) != 2 || list[0].Name != "Alpha" {
		t.Fatalf("List = %+v", list)
	}
}

func TestBusinessService_Search(t *testing.T) {
	ctx := context.Background()
	svc := NewBusinessService(newStore(t))
	_, _ = svc.Create(ctx, "o", domain.Business{Name: "Laptop Clinic", Services: []string{"screens"}})
	_, _ = svc.Create(ctx, "o", domain.Business{Name: "Data Rescue", Description: "disk recovery"})

	got := svc.Search(ctx, "laptop screens")
	if len(got) != 1 || got[0].Name != "Laptop Clinic" {
		t.Fatalf("Search = %+v", got)
	}
	if all := svc.Search(ctx, "  "); len(all) != 2 {
		t.Fatalf("blank query should list all, got %d", len(all))
	}
}

func TestBusinessService_SeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	svc := NewBusinessService(newStore(t))
	seed := []domain.Business{{Name: "A", OwnerID: "o"}, {Name: "B", OwnerID: "o"}}

	n, err := svc.Seed(ctx, seed)
	if err != nil || n != 2 {
		t.Fatalf("first seed = %d, %v", n, err)
	}
	n, err = svc.Seed(ctx, seed)
	if err != nil || n != 0 {
		t.Fatalf("second seed = %d, %v", n, err)
	}
}

func TestUserService_UpsertProfile(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	svc := NewUserService(st)
	if err := svc.UpsertProfile(ctx, "u1", " Ana ", "ana@x.io"); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	doc, err := repo.GetUserDoc(ctx, st, domain.CollectionUsers, "u1")
	if err != nil || doc.Data["nombre"] != "Ana" {
		t.Fatalf("profile = %+v, %v", doc, err)
	}
	if got, _ := NewNameResolver(st).ResolveDisplayName(ctx, "u1"); got != "Ana" {
		t.Fatalf("resolver = %q", got)
	}
}
