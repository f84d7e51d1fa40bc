package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/observability"
)

// Subscription is the handle of a realtime stream. Stop it exactly when the
// caller loses interest; further Stop calls are no-ops.
type Subscription struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// Stop ends the stream. No callback starts after Stop returns, although one
// that is already running may still finish.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.cancel()
	})
}

// Done is closed once the stream has delivered its last update.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// follow listens on q and hands every snapshot to onDocs. When the listener
// fails, onErr runs once and the subscription ends. Panics raised by the
// callbacks are logged and never cross this boundary.
func follow(ctx context.Context, st docstore.Store, q docstore.Query, stream string,
	onDocs func([]docstore.Document), onErr func(error)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	l := st.Listen(ctx, q)
	lg := logFrom(ctx).With().Str("stream", stream).Str("query", q.String()).Logger()

	observability.ActiveListeners.WithLabelValues(stream).Inc()
	go func() {
		defer close(sub.done)
		defer observability.ActiveListeners.WithLabelValues(stream).Dec()
		defer l.Stop()

		for snap := range l.Snapshots() {
			if sub.stopped.Load() {
				return
			}
			if snap.Err != nil {
				lg.Warn().Err(snap.Err).Msg("listener failed")
				guard(lg, func() { onErr(snap.Err) })
				return
			}
			guard(lg, func() { onDocs(snap.Docs) })
		}
	}()
	return sub
}

func guard(lg zerolog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Msg("subscriber callback panicked")
		}
	}()
	fn()
}

// logFrom returns the request logger carried by ctx, or the global one.
func logFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
