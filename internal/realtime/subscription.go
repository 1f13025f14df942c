package realtime

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// SubscriptionConfig describes one filtered change subscription.
type SubscriptionConfig[R Keyed] struct {
	Table  string
	Source Source

	// Deliver receives normalized events in arrival order
	Deliver func(Event[R])

	// Filter rejects inserts and updates outside the principal's scope.
	// Deletes always pass.
	Filter func(R) bool

	// Hydrate loads a row by id when the notification was too large to carry it
	Hydrate func(ctx context.Context, id uuid.UUID) (R, bool, error)

	// OnReconnect runs after the stream is re-established following an error
	OnReconnect func(ctx context.Context)

	// InitialInterval and MaxInterval bound the resubscribe backoff
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Subscription delivers filtered change events for one table until stopped.
type Subscription[R Keyed] struct {
	cfg SubscriptionConfig[R]

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewSubscription creates a stopped subscription
func NewSubscription[R Keyed](cfg SubscriptionConfig[R]) *Subscription[R] {
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	return &Subscription[R]{cfg: cfg}
}

// Start opens the stream and begins delivering events. The first subscribe
// attempt happens before Start returns; if it fails the subscription keeps
// retrying in the background.
func (s *Subscription[R]) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	stream, err := s.cfg.Source.Subscribe(runCtx, s.cfg.Table)
	if err != nil {
		log.Printf("[realtime] %v", &SubscriptionError{Table: s.cfg.Table, Err: err})
		stream = nil
	}
	go s.run(runCtx, stream, err != nil)
}

// Stop cancels the stream and waits for the delivery loop to exit. No event
// is delivered after Stop returns.
func (s *Subscription[R]) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Subscription[R]) run(ctx context.Context, stream Stream, reconnecting bool) {
	defer close(s.done)
	defer func() {
		if stream != nil {
			_ = stream.Close()
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval

	for {
		if stream == nil {
			if !sleepCtx(ctx, b.NextBackOff()) {
				return
			}
			st, err := s.cfg.Source.Subscribe(ctx, s.cfg.Table)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[realtime] resubscribe to %s failed: %v", s.cfg.Table, err)
				continue
			}
			stream = st
			b.Reset()
			if reconnecting {
				log.Printf("[realtime] resubscribed to %s", s.cfg.Table)
				if s.cfg.OnReconnect != nil {
					s.cfg.OnReconnect(ctx)
				}
			}
			reconnecting = false
		}

		ch, err := stream.Next(ctx)
		if err != nil {
			_ = stream.Close()
			stream = nil
			if ctx.Err() != nil {
				return
			}
			log.Printf("[realtime] %v", &SubscriptionError{Table: s.cfg.Table, Err: err})
			reconnecting = true
			continue
		}

		s.dispatch(ctx, ch)
	}
}

func (s *Subscription[R]) dispatch(ctx context.Context, ch *Change) {
	if ch.Partial && ch.Op != OpDelete {
		s.hydrate(ctx, ch)
		return
	}

	ev, err := Normalize[R](ch)
	if err != nil {
		log.Printf("[realtime] dropping change on %s: %v", s.cfg.Table, err)
		return
	}
	s.deliver(ctx, ev)
}

func (s *Subscription[R]) hydrate(ctx context.Context, ch *Change) {
	if s.cfg.Hydrate == nil {
		log.Printf("[realtime] dropping partial %s on %s %s: no hydrator", ch.Op, s.cfg.Table, ch.ID)
		return
	}
	rec, found, err := s.cfg.Hydrate(ctx, ch.ID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[realtime] %v", &EnrichmentError{Ref: s.cfg.Table, ID: ch.ID, Err: err})
		}
		return
	}
	if !found {
		// deleted before we could read it
		s.deliver(ctx, DeletedEvent[R](ch.ID))
		return
	}
	if ch.Op == OpInsert {
		s.deliver(ctx, CreatedEvent(rec))
	} else {
		s.deliver(ctx, UpdatedEvent(rec))
	}
}

func (s *Subscription[R]) deliver(ctx context.Context, ev Event[R]) {
	if ctx.Err() != nil {
		return
	}
	if ev.Kind != Deleted && s.cfg.Filter != nil && !s.cfg.Filter(ev.Record) {
		return
	}
	s.cfg.Deliver(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
