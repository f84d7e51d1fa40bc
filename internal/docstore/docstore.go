// Package docstore is a collection-oriented document store with realtime
// query listeners. Documents are JSON objects addressed by (collection, id).
//
// The store supports get-by-id, equality and set-membership filters, ordered
// queries with a limit, listeners that re-deliver the full result set after
// every relevant write, atomic single-document set/update/delete, and
// server-assigned timestamps. Filtered queries ordered on another field
// require a declared composite index, mirroring hosted document databases;
// callers are expected to degrade gracefully when one is missing.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// MaxInValues is the largest value list accepted by a set-membership filter.
const MaxInValues = 10

var (
	// ErrNotFound is returned by Get and Update when the document is absent.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrConflict is returned by Update when a version precondition fails.
	ErrConflict = errors.New("docstore: version conflict")

	// ErrTooManyValues is returned when a WhereIn filter exceeds MaxInValues.
	ErrTooManyValues = errors.New("docstore: too many values in set-membership filter")

	// ErrIndexRequired is returned for filtered queries ordered on another
	// field when no composite index covers them.
	ErrIndexRequired = errors.New("docstore: FAILED_PRECONDITION: The query requires an index")

	// ErrInvalidQuery is returned for queries without a collection.
	ErrInvalidQuery = errors.New("docstore: invalid query")
)

// IsIndexError reports whether err signals a missing composite index. It
// inspects the error text, so it also recognizes errors that crossed a
// process boundary and lost their identity.
func IsIndexError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIndexRequired) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "index")
}

type serverTimestamp struct{}

// ServerTimestamp is a sentinel value. Placed in the data of Set or Update,
// it is replaced by the store clock at commit.
var ServerTimestamp any = serverTimestamp{}

// Document is a stored JSON object plus store metadata.
type Document struct {
	Collection string
	ID         string
	Data       map[string]any
	Version    int64
	CreateTime time.Time
	UpdateTime time.Time

	raw []byte
}

// DataTo decodes the document body into v.
func (d Document) DataTo(v any) error {
	if d.raw != nil {
		return json.Unmarshal(d.raw, v)
	}
	b, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// NewDocument builds a Document from a JSON-able body. It is mostly useful
// to fakes and tests.
func NewDocument(collection, id string, data any) (Document, error) {
	m, err := ToMap(data)
	if err != nil {
		return Document{}, err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return Document{}, err
	}
	return Document{Collection: collection, ID: id, Data: m, raw: raw}, nil
}

// WriteResult describes a committed write.
type WriteResult struct {
	UpdateTime time.Time
}

// Precondition constrains an Update.
type Precondition struct {
	version int64
}

// MatchVersion makes an Update fail with ErrConflict unless the stored
// document has the given version.
func MatchVersion(v int64) Precondition { return Precondition{version: v} }

// Snapshot is one delivery of a listener: the full current result set, or
// a terminal error.
type Snapshot struct {
	Docs     []Document
	Err      error
	ReadTime time.Time
}

// Listener streams snapshots for a query until stopped. After a snapshot
// with a non-nil Err the channel is closed.
type Listener interface {
	Snapshots() <-chan Snapshot
	Stop()
}

// Store is the document store contract.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Listen(ctx context.Context, q Query) Listener
	Set(ctx context.Context, collection, id string, data any) (WriteResult, error)
	Update(ctx context.Context, collection, id string, updates map[string]any, pre ...Precondition) (WriteResult, error)
	Delete(ctx context.Context, collection, id string) error
	NewID() string
	Now() time.Time
}

// ToMap converts a struct (or map) into a JSON object map.
func ToMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m, err := decodeObject(b)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// decodeObject unmarshals a JSON object keeping numbers as json.Number, so
// int64 fields survive a round trip through the map form.
func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// resolveSentinels replaces ServerTimestamp values, including inside nested
// objects, with now.
func resolveSentinels(m map[string]any, now time.Time) {
	for k, v := range m {
		switch val := v.(type) {
		case serverTimestamp:
			m[k] = now
		case map[string]any:
			resolveSentinels(val, now)
		}
	}
}

// Failed returns a Listener that delivers a single error snapshot.
func Failed(err error) Listener {
	l := newListener()
	l.ch <- Snapshot{Err: err}
	close(l.ch)
	return l
}

type listener struct {
	ch   chan Snapshot
	done chan struct{}
	once sync.Once
}

func newListener() *listener {
	return &listener{ch: make(chan Snapshot, 1), done: make(chan struct{})}
}

func (l *listener) Snapshots() <-chan Snapshot { return l.ch }

func (l *listener) Stop() { l.once.Do(func() { close(l.done) }) }
