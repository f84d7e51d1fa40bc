package docstore

import (
	"context"
	"strconv"
	"strings"
)

// Listen starts a realtime listener for q. The current result set is
// delivered first; afterwards a new snapshot is delivered whenever a write
// to the collection changes the result set. Delivery is never concurrent
// for one listener. Stop (or cancelling ctx) releases the listener.
func (s *GormStore) Listen(ctx context.Context, q Query) Listener {
	if err := q.validate(s.indexes); err != nil {
		return Failed(err)
	}

	l := newListener()
	dirty := make(chan struct{}, 1)
	cancel := s.bus.Subscribe(func(c Change) {
		if c.Collection != q.collection {
			return
		}
		select {
		case dirty <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(l.ch)
		defer cancel()

		first := true
		var last string

		// emit runs the query and delivers the result if it changed. It
		// reports false when the listener must terminate.
		emit := func() bool {
			docs, err := s.Query(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				select {
				case l.ch <- Snapshot{Err: err, ReadTime: s.Now()}:
				case <-l.done:
				case <-ctx.Done():
				}
				return false
			}
			fp := fingerprint(docs)
			if !first && fp == last {
				return true
			}
			first, last = false, fp
			select {
			case l.ch <- Snapshot{Docs: docs, ReadTime: s.Now()}:
				return true
			case <-l.done:
				return false
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.done:
				return
			case <-dirty:
				if !emit() {
					return
				}
			}
		}
	}()

	return l
}

func fingerprint(docs []Document) string {
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.ID)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(d.Version, 10))
		b.WriteByte(';')
	}
	return b.String()
}
