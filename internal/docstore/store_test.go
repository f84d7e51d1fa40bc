package docstore_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/docstore/docstoretest"
)

func TestGetSet_RoundTrip_AndNotFound(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{})

	if _, err := st.Get(ctx, "users", "nope"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	type user struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	if _, err := st.Set(ctx, "users", "u1", user{Name: "Ana", Age: 30}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	doc, err := st.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got user
	if err := doc.DataTo(&got); err != nil {
		t.Fatalf("DataTo: %v", err)
	}
	if got.Name != "Ana" || got.Age != 30 || doc.Version != 1 {
		t.Fatalf("unexpected doc: %+v version=%d", got, doc.Version)
	}

	// Replace bumps the version and keeps the creation time.
	if _, err := st.Set(ctx, "users", "u1", map[string]any{"name": "Bea"}); err != nil {
		t.Fatalf("Set replace: %v", err)
	}
	doc2, _ := st.Get(ctx, "users", "u1")
	if doc2.Version != 2 || doc2.Data["name"] != "Bea" || doc2.Data["age"] != nil {
		t.Fatalf("replace should overwrite: %+v", doc2)
	}
	if !doc2.CreateTime.Equal(doc.CreateTime) {
		t.Fatalf("create time changed: %v -> %v", doc.CreateTime, doc2.CreateTime)
	}
}

func TestServerTimestamp_Resolved(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	st := docstoretest.Open(t, docstore.Options{Clock: func() time.Time { return fixed }})

	res, err := st.Set(ctx, "chats", "c", map[string]any{"updatedAt": docstore.ServerTimestamp})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !res.UpdateTime.Equal(fixed) {
		t.Fatalf("update time = %v; want %v", res.UpdateTime, fixed)
	}
	doc, _ := st.Get(ctx, "chats", "c")
	var v struct {
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := doc.DataTo(&v); err != nil {
		t.Fatalf("DataTo: %v", err)
	}
	if !v.UpdatedAt.Equal(fixed) {
		t.Fatalf("updatedAt = %v; want %v", v.UpdatedAt, fixed)
	}
}

func TestNow_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st := docstoretest.Open(t, docstore.Options{Clock: func() time.Time { return fixed }})
	a, b := st.Now(), st.Now()
	if !b.After(a) {
		t.Fatalf("Now not increasing: %v then %v", a, b)
	}
}

func TestUpdate_MergeNotFoundAndPrecondition(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{})

	if _, err := st.Update(ctx, "chats", "missing", map[string]any{"x": 1}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	_, _ = st.Set(ctx, "chats", "c1", map[string]any{"a": "1", "b": "2"})
	if _, err := st.Update(ctx, "chats", "c1", map[string]any{"b": "3"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, _ := st.Get(ctx, "chats", "c1")
	if doc.Data["a"] != "1" || doc.Data["b"] != "3" || doc.Version != 2 {
		t.Fatalf("merge failed: %+v v%d", doc.Data, doc.Version)
	}

	if _, err := st.Update(ctx, "chats", "c1", map[string]any{"b": "4"}, docstore.MatchVersion(1)); !errors.Is(err, docstore.ErrConflict) {
		t.Fatalf("want ErrConflict on stale version, got %v", err)
	}
	if _, err := st.Update(ctx, "chats", "c1", map[string]any{"b": "4"}, docstore.MatchVersion(2)); err != nil {
		t.Fatalf("Update with current version: %v", err)
	}
}

func TestUpdate_ConcurrentWritersDoNotLoseFields(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{})
	_, _ = st.Set(ctx, "c", "d", map[string]any{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := st.Update(ctx, "c", "d", map[string]any{fmt.Sprintf("f%d", i): true}); err != nil {
				t.Errorf("Update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	doc, _ := st.Get(ctx, "c", "d")
	for i := 0; i < 4; i++ {
		if doc.Data[fmt.Sprintf("f%d", i)] != true {
			t.Fatalf("field f%d lost: %+v", i, doc.Data)
		}
	}
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{})
	_, _ = st.Set(ctx, "orders", "o1", map[string]any{"x": "y"})
	if err := st.Delete(ctx, "orders", "o1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, "orders", "o1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := st.Get(ctx, "orders", "o1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}

func seedMessages(t *testing.T, st docstore.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []struct {
		id, chat string
		at       time.Time
	}{
		{"m3", "c1", base.Add(3 * time.Second)},
		{"m1", "c1", base.Add(1 * time.Second)},
		{"m2", "c1", base.Add(2 * time.Second)},
		{"x1", "c2", base},
	}
	for _, r := range rows {
		if _, err := st.Set(ctx, "messages", r.id, map[string]any{"chatId": r.chat, "timestamp": r.at}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestQuery_EqualityOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{})
	seedMessages(t, st)

	q := docstore.From("messages").Where("chatId", "c1").OrderBy("timestamp", docstore.Asc)
	docs, err := st.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := fmt.Sprint(ids(docs)); got != "[m1 m2 m3]" {
		t.Fatalf("asc order = %s", got)
	}

	docs, err = st.Query(ctx, docstore.From("messages").Where("chatId", "c1").OrderBy("timestamp", docstore.Desc).Limit(2))
	if err != nil {
		t.Fatalf("Query desc: %v", err)
	}
	if got := fmt.Sprint(ids(docs)); got != "[m3 m2]" {
		t.Fatalf("desc+limit = %s", got)
	}

	docs, _ = st.Query(ctx, docstore.From("messages").Where("chatId", "none"))
	if len(docs) != 0 {
		t.Fatalf("expected no docs, got %v", ids(docs))
	}
}

func TestQuery_MissingIndex(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{Indexes: docstoretest.NoIndexes})
	seedMessages(t, st)

	_, err := st.Query(ctx, docstore.From("messages").Where("chatId", "c1").OrderBy("timestamp", docstore.Asc))
	if !errors.Is(err, docstore.ErrIndexRequired) || !docstore.IsIndexError(err) {
		t.Fatalf("want index error, got %v", err)
	}

	// Equality alone and ordering alone need no composite index.
	if _, err := st.Query(ctx, docstore.From("messages").Where("chatId", "c1")); err != nil {
		t.Fatalf("equality only: %v", err)
	}
	if _, err := st.Query(ctx, docstore.From("messages").OrderBy("timestamp", docstore.Desc)); err != nil {
		t.Fatalf("order only: %v", err)
	}
}

func TestQuery_WhereIn_AndLimit(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{})
	for i := 0; i < 12; i++ {
		_, _ = st.Set(ctx, "requests", fmt.Sprintf("r%02d", i), map[string]any{"businessId": fmt.Sprintf("b%d", i)})
	}

	docs, err := st.Query(ctx, docstore.WhereIn(docstore.From("requests"), "businessId", []string{"b1", "b3", "zz"}))
	if err != nil {
		t.Fatalf("Query in: %v", err)
	}
	if got := fmt.Sprint(ids(docs)); got != "[r01 r03]" {
		t.Fatalf("in = %s", got)
	}

	many := make([]string, 11)
	for i := range many {
		many[i] = fmt.Sprintf("b%d", i)
	}
	if _, err := st.Query(ctx, docstore.WhereIn(docstore.From("requests"), "businessId", many)); !errors.Is(err, docstore.ErrTooManyValues) {
		t.Fatalf("want ErrTooManyValues, got %v", err)
	}

	docs, err = docstore.QueryIn(ctx, st, docstore.From("requests"), "businessId", append(many, "b11"))
	if err != nil {
		t.Fatalf("QueryIn: %v", err)
	}
	if len(docs) != 12 {
		t.Fatalf("QueryIn returned %d docs; want 12", len(docs))
	}

	empty, err := st.Query(ctx, docstore.WhereIn(docstore.From("requests"), "businessId", []string{}))
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty in = %v, %v", ids(empty), err)
	}
}

func TestListen_InitialAndUpdates(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{})

	l := st.Listen(ctx, docstore.From("messages").Where("chatId", "c1").OrderBy("timestamp", docstore.Asc))
	defer l.Stop()

	first := docstoretest.Next(t, l, 2*time.Second)
	if first.Err != nil || len(first.Docs) != 0 {
		t.Fatalf("initial snapshot = %+v", first)
	}

	_, _ = st.Set(ctx, "messages", "m1", map[string]any{"chatId": "c1", "timestamp": docstore.ServerTimestamp})
	s := docstoretest.Next(t, l, 2*time.Second)
	if fmt.Sprint(ids(s.Docs)) != "[m1]" {
		t.Fatalf("after first write: %v", ids(s.Docs))
	}

	// A write outside the result set does not produce a snapshot; the next
	// one reflects the following relevant write.
	_, _ = st.Set(ctx, "messages", "other", map[string]any{"chatId": "c2", "timestamp": docstore.ServerTimestamp})
	_, _ = st.Set(ctx, "messages", "m2", map[string]any{"chatId": "c1", "timestamp": docstore.ServerTimestamp})
	s = docstoretest.Next(t, l, 2*time.Second)
	if fmt.Sprint(ids(s.Docs)) != "[m1 m2]" {
		t.Fatalf("after second write: %v", ids(s.Docs))
	}
}

func TestListen_IndexErrorClosesChannel(t *testing.T) {
	st := docstoretest.Open(t, docstore.Options{Indexes: docstoretest.NoIndexes})
	l := st.Listen(context.Background(), docstore.From("chats").Where("ownerUid", "o").OrderBy("updatedAt", docstore.Desc))
	defer l.Stop()

	s := docstoretest.Next(t, l, time.Second)
	if !docstore.IsIndexError(s.Err) {
		t.Fatalf("want index error, got %v", s.Err)
	}
	if _, ok := <-l.Snapshots(); ok {
		t.Fatalf("channel should be closed after error")
	}
}

func TestListen_StopReleasesSubscription(t *testing.T) {
	bus := docstore.NewLocalBus()
	st := docstoretest.Open(t, docstore.Options{Bus: bus})

	l := st.Listen(context.Background(), docstore.From("invoices").Where("clientUid", "c"))
	_ = docstoretest.Next(t, l, time.Second)
	l.Stop()
	l.Stop() // idempotent

	deadline := time.Now().Add(2 * time.Second)
	for bus.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released; %d subscribers", bus.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFailed_DeliversOneError(t *testing.T) {
	boom := errors.New("boom")
	l := docstore.Failed(boom)
	s := <-l.Snapshots()
	if !errors.Is(s.Err, boom) {
		t.Fatalf("err = %v", s.Err)
	}
	if _, ok := <-l.Snapshots(); ok {
		t.Fatalf("expected closed channel")
	}
	l.Stop()
}

func TestInt64_SurvivesSetUpdateAndQuery(t *testing.T) {
	ctx := context.Background()
	st := docstoretest.Open(t, docstore.Options{})

	type priced struct {
		Price int64 `json:"price"`
		Total int64 `json:"total"`
	}
	const big = int64(1<<53 + 1)
	if _, err := st.Set(ctx, "items", "a", priced{Price: big, Total: math.MaxInt64}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// A merge rewrites the stored body; untouched numbers must stay exact.
	if _, err := st.Update(ctx, "items", "a", map[string]any{"note": "x"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, err := st.Get(ctx, "items", "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got priced
	if err := doc.DataTo(&got); err != nil {
		t.Fatalf("DataTo: %v", err)
	}
	if got.Price != big || got.Total != math.MaxInt64 {
		t.Fatalf("precision lost: %+v", got)
	}

	if _, err := st.Set(ctx, "items", "b", priced{Price: big - 1}); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	docs, err := st.Query(ctx, docstore.From("items").OrderBy("price", docstore.Desc))
	if err != nil || len(docs) != 2 {
		t.Fatalf("Query = %d, %v", len(docs), err)
	}
	if docs[0].ID != "a" || docs[1].ID != "b" {
		t.Fatalf("integers adjacent in float64 ordered wrong: %s, %s", docs[0].ID, docs[1].ID)
	}
}
