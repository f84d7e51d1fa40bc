package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/tbourn/go-repair-backend/internal/domain"
)

func TestRequests_CreateListStatus(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	r1, err := CreateRequest(ctx, st, domain.ServiceRequest{BusinessID: "b1", ClientID: "c", Status: domain.RequestPending})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	r2, _ := CreateRequest(ctx, st, domain.ServiceRequest{BusinessID: "b1", ClientID: "c", Status: domain.RequestPending})
	if r1.ID == "" || r1.CreatedAt.IsZero() || !r2.CreatedAt.After(r1.CreatedAt) {
		t.Fatalf("unexpected requests: %+v %+v", r1, r2)
	}

	docs, err := st.Query(ctx, RequestsForBusinessQuery("b1"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	reqs := DecodeRequests(docs)
	if len(reqs) != 2 || reqs[0].ID != r2.ID {
		t.Fatalf("newest first expected: %+v", reqs)
	}

	if err := SetRequestStatus(ctx, st, r1.ID, domain.RequestAccepted); err != nil {
		t.Fatalf("SetRequestStatus: %v", err)
	}
	got, _ := GetRequest(ctx, st, r1.ID)
	if got.Status != domain.RequestAccepted {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestListRequestsForBusinesses_ChunksPastLimit(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	var ids []string
	for i := 0; i < 23; i++ {
		id := fmt.Sprintf("b%02d", i)
		ids = append(ids, id)
		if _, err := CreateRequest(ctx, st, domain.ServiceRequest{BusinessID: id}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_, _ = CreateRequest(ctx, st, domain.ServiceRequest{BusinessID: "unrelated"})

	reqs, err := ListRequestsForBusinesses(ctx, st, ids)
	if err != nil {
		t.Fatalf("ListRequestsForBusinesses: %v", err)
	}
	if len(reqs) != 23 {
		t.Fatalf("got %d requests; want 23", len(reqs))
	}
	if reqs[0].BusinessID != "b22" {
		t.Fatalf("expected newest first, got %s", reqs[0].BusinessID)
	}

	empty, err := ListRequestsForBusinesses(ctx, st, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty ids = %v, %v", empty, err)
	}
}

func TestBusinesses_CreateGetListForOwner(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	b, err := CreateBusiness(ctx, st, domain.Business{Name: "Zeta Fix", OwnerID: "o1"})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	_, _ = CreateBusiness(ctx, st, domain.Business{Name: "Alpha PC", OwnerID: "o2"})

	got, err := GetBusiness(ctx, st, b.ID)
	if err != nil || got.Name != "Zeta Fix" || got.Services == nil {
		t.Fatalf("GetBusiness = %+v, %v", got, err)
	}
	all, _ := ListBusinesses(ctx, st)
	if len(all) != 2 || all[0].Name != "Alpha PC" {
		t.Fatalf("ListBusinesses = %+v", all)
	}
	mine, _ := ListBusinessesForOwner(ctx, st, "o1")
	if len(mine) != 1 || mine[0].ID != b.ID {
		t.Fatalf("ListBusinessesForOwner = %+v", mine)
	}
}
