package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/docstore/docstoretest"
	"github.com/tbourn/go-repair-backend/internal/domain"
)

var errBoom = errors.New("boom")

// faultyStore wraps a real store and fails selected calls.
type faultyStore struct {
	docstore.Store

	listenErr error
	queryErr  func(q docstore.Query) error
	getErr    map[string]error // by collection
	setErr    map[string]error // by collection
	updateErr map[string]error // by collection
	deleteErr error
}

func (f *faultyStore) Listen(ctx context.Context, q docstore.Query) docstore.Listener {
	if f.listenErr != nil {
		return docstore.Failed(f.listenErr)
	}
	return f.Store.Listen(ctx, q)
}

func (f *faultyStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if f.queryErr != nil {
		if err := f.queryErr(q); err != nil {
			return nil, err
		}
	}
	return f.Store.Query(ctx, q)
}

func (f *faultyStore) Get(ctx context.Context, col, id string) (*docstore.Document, error) {
	if err := f.getErr[col]; err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, col, id)
}

func (f *faultyStore) Set(ctx context.Context, col, id string, data any) (docstore.WriteResult, error) {
	if err := f.setErr[col]; err != nil {
		return docstore.WriteResult{}, err
	}
	return f.Store.Set(ctx, col, id, data)
}

func (f *faultyStore) Update(ctx context.Context, col, id string, u map[string]any, pre ...docstore.Precondition) (docstore.WriteResult, error) {
	if err := f.updateErr[col]; err != nil {
		return docstore.WriteResult{}, err
	}
	return f.Store.Update(ctx, col, id, u, pre...)
}

func (f *faultyStore) Delete(ctx context.Context, col, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.Delete(ctx, col, id)
}

func newStore(t *testing.T) *docstore.GormStore {
	t.Helper()
	return docstoretest.Open(t, docstore.Options{})
}

func newFaulty(t *testing.T) *faultyStore {
	t.Helper()
	return &faultyStore{Store: newStore(t)}
}

// recorder collects the lists delivered to a subscriber.
type recorder[T any] struct {
	mu  sync.Mutex
	got [][]T
	ch  chan []T
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{ch: make(chan []T, 32)}
}

func (r *recorder[T]) on(items []T) {
	r.mu.Lock()
	r.got = append(r.got, items)
	r.mu.Unlock()
	r.ch <- items
}

func (r *recorder[T]) next(t *testing.T) []T {
	t.Helper()
	select {
	case items := <-r.ch:
		return items
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for update")
		return nil
	}
}

// waitFor returns the first delivered list accepted by ok.
func (r *recorder[T]) waitFor(t *testing.T, ok func([]T) bool) []T {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case items := <-r.ch:
			if ok(items) {
				return items
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching update")
			return nil
		}
	}
}

func waitDone(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("subscription did not end")
	}
}

func seedBusiness(t *testing.T, st docstore.Store, b domain.Business) *domain.Business {
	t.Helper()
	svc := NewBusinessService(st)
	out, err := svc.Create(context.Background(), b.OwnerID, b)
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
	return out
}

// fakeNotifier records notifications and optionally fails.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *fakeNotifier) SendMessage(_ context.Context, chatID, senderID, receiverID, text string) (*domain.Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, chatID+"|"+senderID+"|"+receiverID+"|"+text)
	if n.err != nil {
		return nil, n.err
	}
	return &domain.Message{ChatID: chatID, Text: text}, nil
}
