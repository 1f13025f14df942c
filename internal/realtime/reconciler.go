package realtime

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// seedConcurrency bounds enrichment lookups while seeding
const seedConcurrency = 8

// Enricher resolves a record's references. Lookup failures must be absorbed
// into the returned value, never raised.
type Enricher[R, E Keyed] interface {
	Enrich(ctx context.Context, rec R) E
}

// EnricherFunc adapts a function to Enricher
type EnricherFunc[R, E Keyed] func(ctx context.Context, rec R) E

// Enrich calls f(ctx, rec)
func (f EnricherFunc[R, E]) Enrich(ctx context.Context, rec R) E {
	return f(ctx, rec)
}

// Identity returns an enricher for records without references
func Identity[R Keyed]() Enricher[R, R] {
	return EnricherFunc[R, R](func(_ context.Context, rec R) R { return rec })
}

// Stopper is an active subscription owned by a reconciler
type Stopper interface {
	Stop()
}

// Based is implemented by enriched records that wrap their source record
type Based[R any] interface {
	Base() R
}

type task[R Keyed] struct {
	ctx     context.Context
	ev      Event[R]
	session uint64
	done    chan struct{}

	// reenrich tasks recompute the current record instead of applying ev
	reenrich bool
}

// Reconciler owns the canonical ordered collection for one table.
// It is the only writer; readers get copies.
type Reconciler[R, E Keyed] struct {
	name     string
	enricher Enricher[R, E]

	mu       sync.Mutex
	idle     *sync.Cond
	items    []E
	version  uint64
	epoch    uint64 // bumped whenever the collection is replaced wholesale
	touched  map[uuid.UUID]uint64 // version of the last event commit per key
	session  uint64
	ctx      context.Context
	cancel   context.CancelFunc
	queues   map[uuid.UUID][]*task[R]
	inflight int
	sub      Stopper

	notifyMu     sync.Mutex
	lastNotified uint64
	nextListener uint64
	listeners    []listener[E]
}

type listener[E any] struct {
	id uint64
	fn func([]E)
}

// NewReconciler creates an empty reconciler. name is used in log lines.
func NewReconciler[R, E Keyed](name string, enricher Enricher[R, E]) *Reconciler[R, E] {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler[R, E]{
		name:     name,
		enricher: enricher,
		touched:  make(map[uuid.UUID]uint64),
		ctx:      ctx,
		cancel:   cancel,
		queues:   make(map[uuid.UUID][]*task[R]),
	}
	r.idle = sync.NewCond(&r.mu)
	return r
}

// OnChange registers fn to receive a copy of the collection after every
// change. Notifications may coalesce; fn always sees the newest state.
// The returned func unregisters fn.
func (r *Reconciler[R, E]) OnChange(fn func([]E)) (cancel func()) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.nextListener++
	id := r.nextListener
	r.listeners = append(r.listeners, listener[E]{id: id, fn: fn})
	return func() {
		r.notifyMu.Lock()
		defer r.notifyMu.Unlock()
		r.listeners = slices.DeleteFunc(r.listeners, func(l listener[E]) bool { return l.id == id })
	}
}

// Snapshot returns a copy of the collection
func (r *Reconciler[R, E]) Snapshot() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

// Len returns the number of records in the collection
func (r *Reconciler[R, E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Get returns the record with the given identifier
func (r *Reconciler[R, E]) Get(id uuid.UUID) (E, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(id); i >= 0 {
		return r.items[i], true
	}
	var zero E
	return zero, false
}

// Version returns a counter bumped by every change to the collection
func (r *Reconciler[R, E]) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Seed replaces the collection with the enriched records, keeping their order.
// If ctx is cancelled before enrichment completes the collection is left
// untouched and ctx's error is returned.
func (r *Reconciler[R, E]) Seed(ctx context.Context, records []R) error {
	return r.seed(ctx, records, 0, false)
}

// SeedSince replaces the collection with a snapshot fetched after version
// mark was observed. Records changed by events committed after mark keep
// their live state, so a snapshot racing the change stream cannot roll them back.
func (r *Reconciler[R, E]) SeedSince(ctx context.Context, records []R, mark uint64) error {
	return r.seed(ctx, records, mark, true)
}

func (r *Reconciler[R, E]) seed(ctx context.Context, records []R, mark uint64, merge bool) error {
	r.mu.Lock()
	session := r.session
	sessionCtx := r.ctx
	r.mu.Unlock()

	records = dedupe(records)
	enriched := make([]E, len(records))

	lookupCtx, cancel := mergeCancel(ctx, sessionCtx)
	defer cancel()

	g := new(errgroup.Group)
	g.SetLimit(seedConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			enriched[i] = r.enricher.Enrich(lookupCtx, rec)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if session != r.session {
		r.mu.Unlock()
		log.Printf("[realtime] %s: discarded seed from stale session", r.name)
		return nil
	}
	if merge {
		enriched = r.mergeLive(enriched, mark)
	}
	r.items = enriched
	clear(r.touched)
	r.epoch++
	r.version++
	v, snap := r.version, slices.Clone(r.items)
	r.mu.Unlock()

	r.notify(v, snap)
	return nil
}

// mergeLive overlays records touched after mark onto a snapshot. Caller holds mu.
func (r *Reconciler[R, E]) mergeLive(snapshot []E, mark uint64) []E {
	inSnapshot := make(map[uuid.UUID]bool, len(snapshot))
	merged := make([]E, 0, len(snapshot))
	for _, e := range snapshot {
		id := e.Key()
		inSnapshot[id] = true
		if r.touched[id] > mark {
			if i := r.indexOf(id); i >= 0 {
				merged = append(merged, r.items[i])
			}
			continue
		}
		merged = append(merged, e)
	}

	var fresh []E
	for _, e := range r.items {
		if !inSnapshot[e.Key()] && r.touched[e.Key()] > mark {
			fresh = append(fresh, e)
		}
	}
	return append(fresh, merged...)
}

// Submit queues an event. The returned channel is closed once the event has
// been applied or discarded. Events for the same identifier are applied in
// submission order.
func (r *Reconciler[R, E]) Submit(ev Event[R]) <-chan struct{} {
	return r.enqueue(ev, false)
}

// Reenrich queues a lookup refresh of the record with the given identifier,
// ordered with the events for that identifier. It is a no-op for unknown ids
// and for collections whose records do not expose their source record.
func (r *Reconciler[R, E]) Reenrich(id uuid.UUID) <-chan struct{} {
	return r.enqueue(DeletedEvent[R](id), true)
}

// ReenrichWhere queues a lookup refresh for every record whose source record
// matches, including records whose events are still queued or being
// enriched; those are refreshed after they commit. Returns the number of
// records queued.
func (r *Reconciler[R, E]) ReenrichWhere(match func(R) bool) int {
	r.mu.Lock()
	keys := make(map[uuid.UUID]struct{})
	for _, e := range r.items {
		if rec, ok := base[R](e); ok && match(rec) {
			keys[e.Key()] = struct{}{}
		}
	}
	for key, q := range r.queues {
		for _, t := range q {
			if !t.reenrich && t.ev.Kind != Deleted && match(t.ev.Record) {
				keys[key] = struct{}{}
				break
			}
		}
	}
	var start []uuid.UUID
	for key := range keys {
		if _, drain := r.enqueueLocked(DeletedEvent[R](key), true); drain {
			start = append(start, key)
		}
	}
	r.mu.Unlock()

	for _, key := range start {
		go r.drain(key)
	}
	return len(keys)
}

func (r *Reconciler[R, E]) enqueue(ev Event[R], reenrich bool) <-chan struct{} {
	r.mu.Lock()
	t, drain := r.enqueueLocked(ev, reenrich)
	r.mu.Unlock()

	if drain {
		go r.drain(ev.Key())
	}
	return t.done
}

// enqueueLocked appends a task to its key's queue and reports whether the
// queue needs a new drain goroutine. Caller holds mu.
func (r *Reconciler[R, E]) enqueueLocked(ev Event[R], reenrich bool) (*task[R], bool) {
	t := &task[R]{ctx: r.ctx, ev: ev, session: r.session, done: make(chan struct{}), reenrich: reenrich}
	key := ev.Key()
	q, running := r.queues[key]
	r.queues[key] = append(q, t)
	r.inflight++
	return t, !running
}

// Apply submits an event and waits until it has been applied.
// Cancelling ctx stops the wait, not the event.
func (r *Reconciler[R, E]) Apply(ctx context.Context, ev Event[R]) error {
	select {
	case <-r.Submit(ev):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until no events are queued or being enriched
func (r *Reconciler[R, E]) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.inflight > 0 {
		r.idle.Wait()
	}
}

// Attach makes sub the reconciler's active subscription, stopping any
// previous one.
func (r *Reconciler[R, E]) Attach(sub Stopper) {
	r.mu.Lock()
	prev := r.sub
	r.sub = sub
	r.mu.Unlock()

	if prev != nil && prev != sub {
		prev.Stop()
	}
}

// Reset clears the collection and stops the active subscription. Lookups in
// flight are cancelled and their results discarded.
func (r *Reconciler[R, E]) Reset() {
	r.mu.Lock()
	r.session++
	r.cancel()
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.items = nil
	clear(r.touched)
	r.epoch++
	r.version++
	sub := r.sub
	r.sub = nil
	v := r.version
	r.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	r.notify(v, nil)
}

func (r *Reconciler[R, E]) drain(key uuid.UUID) {
	for {
		r.mu.Lock()
		q := r.queues[key]
		if len(q) == 0 {
			delete(r.queues, key)
			r.mu.Unlock()
			return
		}
		t := q[0]
		r.mu.Unlock()

		r.process(t)

		r.mu.Lock()
		r.queues[key] = r.queues[key][1:]
		r.inflight--
		if r.inflight == 0 {
			r.idle.Broadcast()
		}
		r.mu.Unlock()
		close(t.done)
	}
}

func (r *Reconciler[R, E]) process(t *task[R]) {
	if t.reenrich {
		r.refresh(t)
		return
	}

	var enriched E
	if t.ev.Kind != Deleted {
		enriched = r.enricher.Enrich(t.ctx, t.ev.Record)
	}

	r.mu.Lock()
	if t.session != r.session {
		r.mu.Unlock()
		log.Printf("[realtime] %s: discarded %s %s from stale session", r.name, t.ev.Kind, t.ev.Key())
		return
	}

	changed := true
	switch t.ev.Kind {
	case Created:
		// a create for a known id is a late or duplicate notification
		if i := r.indexOf(t.ev.Key()); i >= 0 && !newer(enriched, r.items[i]) {
			changed = false
			break
		}
		r.upsert(enriched)
	case Updated:
		r.upsert(enriched)
	case Deleted:
		changed = r.remove(t.ev.ID)
	}
	r.touched[t.ev.Key()] = r.version + 1
	if !changed {
		// still recorded above so a racing snapshot cannot resurrect or roll back the key
		r.mu.Unlock()
		return
	}
	r.version++
	v, snap := r.version, slices.Clone(r.items)
	r.mu.Unlock()

	r.notify(v, snap)
}

// refresh re-enriches the current record for t's key and replaces it in place
// unless the collection was reseeded or reset meanwhile.
func (r *Reconciler[R, E]) refresh(t *task[R]) {
	key := t.ev.Key()

	r.mu.Lock()
	i := r.indexOf(key)
	if i < 0 || t.session != r.session {
		r.mu.Unlock()
		return
	}
	current, epoch := r.items[i], r.epoch
	r.mu.Unlock()

	rec, ok := base[R](current)
	if !ok {
		return
	}
	enriched := r.enricher.Enrich(t.ctx, rec)

	r.mu.Lock()
	if t.session != r.session || epoch != r.epoch {
		r.mu.Unlock()
		return
	}
	if i = r.indexOf(key); i < 0 {
		r.mu.Unlock()
		return
	}
	r.items[i] = enriched
	r.version++
	v, snap := r.version, slices.Clone(r.items)
	r.mu.Unlock()

	r.notify(v, snap)
}

// base recovers the source record from an enriched one
func base[R any](e any) (R, bool) {
	if b, ok := e.(Based[R]); ok {
		return b.Base(), true
	}
	rec, ok := e.(R)
	return rec, ok
}

// upsert replaces a record in place or inserts it at the front. Caller holds mu.
func (r *Reconciler[R, E]) upsert(e E) {
	if i := r.indexOf(e.Key()); i >= 0 {
		r.items[i] = e
		return
	}
	r.items = slices.Insert(r.items, 0, e)
}

// remove deletes a record if present. Caller holds mu.
func (r *Reconciler[R, E]) remove(id uuid.UUID) bool {
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.items = slices.Delete(r.items, i, i+1)
	return true
}

func (r *Reconciler[R, E]) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(r.items, func(e E) bool { return e.Key() == id })
}

func (r *Reconciler[R, E]) notify(version uint64, snap []E) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if version <= r.lastNotified {
		return
	}
	r.lastNotified = version
	for _, l := range r.listeners {
		l.fn(snap)
	}
}

type recency interface {
	LastActivity() time.Time
}

// newer reports whether a is strictly more recent than b. Records without
// timestamps are never considered newer.
func newer[E any](a, b E) bool {
	ra, okA := any(a).(recency)
	rb, okB := any(b).(recency)
	if !okA || !okB {
		return false
	}
	return ra.LastActivity().After(rb.LastActivity())
}

// dedupe keeps the first occurrence of each identifier
func dedupe[R Keyed](records []R) []R {
	seen := make(map[uuid.UUID]bool, len(records))
	out := make([]R, 0, len(records))
	for _, rec := range records {
		if seen[rec.Key()] {
			continue
		}
		seen[rec.Key()] = true
		out = append(out, rec)
	}
	return out
}

// mergeCancel returns a context cancelled when either parent is done
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
