package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hiring-board/internal/realtime"
)

type fakeConn struct {
	notes  chan *pgconn.Notification
	errs   chan error
	closed atomic.Bool

	mu    sync.Mutex
	execs []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{notes: make(chan *pgconn.Notification), errs: make(chan error, 1)}
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n := <-c.notes:
		return n, nil
	case err := <-c.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  error
}

func (d *fakeDialer) connect(context.Context) (listenConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func notify(t *testing.T, c *fakeConn, id uuid.UUID) {
	t.Helper()
	payload := fmt.Sprintf(`{"op":"DELETE","table":"jobs","id":%q}`, id.String())
	select {
	case c.notes <- &pgconn.Notification{Channel: "jobs_changes", Payload: payload}:
	case <-time.After(2 * time.Second):
		t.Fatal("listener is not reading")
	}
}

func next(t *testing.T, st realtime.Stream) (*realtime.Change, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return st.Next(ctx)
}

func TestListener_SharesOneConnectionPerTable(t *testing.T) {
	d := &fakeDialer{}
	l := newListener(d.connect)
	defer l.Close()
	ctx := context.Background()

	a, err := l.Subscribe(ctx, "jobs")
	require.NoError(t, err)
	b, err := l.Subscribe(ctx, "jobs")
	require.NoError(t, err)

	require.Equal(t, 1, d.count())
	conn := d.last()
	conn.mu.Lock()
	assert.Equal(t, []string{`LISTEN "jobs_changes"`}, conn.execs)
	conn.mu.Unlock()
	assert.Equal(t, 2, l.Streams("jobs"))

	id := uuid.New()
	notify(t, conn, id)
	for _, st := range []realtime.Stream{a, b} {
		ch, err := next(t, st)
		require.NoError(t, err)
		assert.Equal(t, id, ch.ID)
		assert.Equal(t, realtime.OpDelete, ch.Op)
	}

	require.NoError(t, a.Close())
	assert.False(t, conn.closed.Load(), "connection closed while a stream is open")

	require.NoError(t, b.Close())
	require.Eventually(t, conn.closed.Load, 2*time.Second, time.Millisecond)
	assert.Zero(t, l.Streams("jobs"))

	c, err := l.Subscribe(ctx, "jobs")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 2, d.count())
}

func TestListener_TablesUseSeparateConnections(t *testing.T) {
	d := &fakeDialer{}
	l := newListener(d.connect)
	defer l.Close()

	for _, table := range []string{"jobs", "applications", "jobs", "applications"} {
		_, err := l.Subscribe(context.Background(), table)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, d.count())
	assert.Equal(t, 2, l.Streams("jobs"))
	assert.Equal(t, 2, l.Streams("applications"))
}

func TestListener_ConnectionLossFailsEveryStream(t *testing.T) {
	d := &fakeDialer{}
	l := newListener(d.connect)
	defer l.Close()
	ctx := context.Background()

	a, err := l.Subscribe(ctx, "jobs")
	require.NoError(t, err)
	b, err := l.Subscribe(ctx, "jobs")
	require.NoError(t, err)
	conn := d.last()

	conn.errs <- errors.New("connection reset by peer")

	for _, st := range []realtime.Stream{a, b} {
		_, err := next(t, st)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset by peer")
	}
	require.Eventually(t, conn.closed.Load, 2*time.Second, time.Millisecond)
	assert.Zero(t, l.Streams("jobs"))

	// resubscribing opens a fresh connection
	c, err := l.Subscribe(ctx, "jobs")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 2, d.count())

	id := uuid.New()
	notify(t, d.last(), id)
	ch, err := next(t, c)
	require.NoError(t, err)
	assert.Equal(t, id, ch.ID)
}

func TestListener_DropsStreamThatFallsBehind(t *testing.T) {
	d := &fakeDialer{}
	l := newListener(d.connect)
	defer l.Close()

	slow, err := l.Subscribe(context.Background(), "jobs")
	require.NoError(t, err)
	conn := d.last()

	for range streamBuffer + 1 {
		notify(t, conn, uuid.New())
	}
	require.Eventually(t, func() bool { return l.Streams("jobs") == 0 }, 2*time.Second, time.Millisecond)

	// buffered changes are still handed out before the failure
	for range streamBuffer {
		_, err := next(t, slow)
		require.NoError(t, err)
	}
	_, err = next(t, slow)
	assert.ErrorIs(t, err, errFellBehind)
	require.Eventually(t, conn.closed.Load, 2*time.Second, time.Millisecond)
}

func TestListener_ConnectFailure(t *testing.T) {
	d := &fakeDialer{fail: errors.New("too many clients")}
	l := newListener(d.connect)
	defer l.Close()

	st, err := l.Subscribe(context.Background(), "jobs")
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many clients")
	assert.Zero(t, l.Streams("jobs"))
}

func TestListener_Close(t *testing.T) {
	d := &fakeDialer{}
	l := newListener(d.connect)

	st, err := l.Subscribe(context.Background(), "jobs")
	require.NoError(t, err)
	conn := d.last()

	l.Close()

	_, err = next(t, st)
	assert.ErrorIs(t, err, errListenerClosed)
	require.Eventually(t, conn.closed.Load, 2*time.Second, time.Millisecond)

	_, err = l.Subscribe(context.Background(), "jobs")
	assert.ErrorIs(t, err, errListenerClosed)
	require.NoError(t, st.Close())
}
