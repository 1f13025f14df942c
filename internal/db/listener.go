package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/hiring-board/internal/realtime"
)

const (
	// closeTimeout bounds closing a listening connection
	closeTimeout = 5 * time.Second

	// streamBuffer is how many changes a stream may fall behind before it is
	// dropped and has to resubscribe
	streamBuffer = 256
)

var (
	errStreamClosed   = errors.New("stream closed")
	errListenerClosed = errors.New("listener closed")
	errFellBehind     = errors.New("stream fell behind the change feed")
)

// ChannelName returns the NOTIFY channel the triggers publish table changes on
func ChannelName(table string) string {
	return table + "_changes"
}

// listenConn is the part of *pgx.Conn a feed uses
type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener opens change streams over LISTEN/NOTIFY. Every table is followed
// on one dedicated connection outside the query pool, shared by all of its
// streams; the connection is opened with the first stream and closed with
// the last.
type Listener struct {
	connect func(ctx context.Context) (listenConn, error)

	mu     sync.Mutex
	feeds  map[string]*feed
	closed bool
}

// NewListener creates a listener that connects with config
func NewListener(config *pgx.ConnConfig) *Listener {
	return newListener(func(ctx context.Context) (listenConn, error) {
		return pgx.ConnectConfig(ctx, config.Copy())
	})
}

func newListener(connect func(ctx context.Context) (listenConn, error)) *Listener {
	return &Listener{connect: connect, feeds: make(map[string]*feed)}
}

// Listener returns the change source backed by this database
func (db *DB) Listener() *Listener {
	db.listenerOnce.Do(func() {
		db.listener = NewListener(db.pool.Config().ConnConfig)
	})
	return db.listener
}

// Subscribe starts following changes to table. It fails if the table's
// connection cannot be opened.
func (l *Listener) Subscribe(ctx context.Context, table string) (realtime.Stream, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, errListenerClosed
	}
	f, ok := l.feeds[table]
	if !ok {
		f = &feed{
			table:   table,
			channel: pgx.Identifier{ChannelName(table)}.Sanitize(),
			connect: l.connect,
			subs:    make(map[*feedStream]struct{}),
		}
		l.feeds[table] = f
	}
	l.mu.Unlock()

	return f.subscribe(ctx)
}

// Streams returns the number of open streams on table
func (l *Listener) Streams(table string) int {
	l.mu.Lock()
	f := l.feeds[table]
	l.mu.Unlock()
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every stream and closes the listening connections
func (l *Listener) Close() {
	l.mu.Lock()
	l.closed = true
	feeds := l.feeds
	l.feeds = make(map[string]*feed)
	l.mu.Unlock()

	for _, f := range feeds {
		f.shutdown(errListenerClosed)
	}
}

// feed fans one table's notifications out to its streams
type feed struct {
	table   string
	channel string
	connect func(ctx context.Context) (listenConn, error)

	mu     sync.Mutex
	subs   map[*feedStream]struct{}
	gen    uint64
	cancel context.CancelFunc // set while a connection is listening
	closed bool
}

func (f *feed) subscribe(ctx context.Context) (*feedStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, errListenerClosed
	}
	if f.cancel == nil {
		if err := f.listen(ctx); err != nil {
			return nil, err
		}
	}
	st := &feedStream{
		feed:   f,
		ch:     make(chan *realtime.Change, streamBuffer),
		failed: make(chan struct{}),
	}
	f.subs[st] = struct{}{}
	return st, nil
}

// listen opens the connection and starts reading. Caller holds mu.
func (f *feed) listen(ctx context.Context) error {
	conn, err := f.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+f.channel); err != nil {
		closeConn(conn)
		return fmt.Errorf("failed to listen on %s: %w", f.channel, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	f.gen++
	f.cancel = cancel
	go f.read(readCtx, conn, f.gen)
	return nil
}

func (f *feed) read(ctx context.Context, conn listenConn, gen uint64) {
	defer closeConn(conn)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[db] listener on %s lost: %v", f.channel, err)
			}
			f.drop(gen, fmt.Errorf("failed to wait for notification: %w", err))
			return
		}

		ch, err := DecodeChange(n.Payload)
		if err != nil {
			log.Printf("[db] dropping notification on %s: %v", f.channel, err)
			continue
		}
		if ch.Table == "" {
			ch.Table = f.table
		}
		f.publish(gen, ch)
	}
}

func (f *feed) publish(gen uint64, ch *realtime.Change) {
	var behind []*feedStream

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	for st := range f.subs {
		select {
		case st.ch <- ch:
		default:
			delete(f.subs, st)
			behind = append(behind, st)
		}
	}
	f.stopIfIdle()
	f.mu.Unlock()

	for _, st := range behind {
		log.Printf("[db] dropping slow stream on %s", f.channel)
		st.fail(errFellBehind)
	}
}

// drop fails every stream of connection gen after the connection was lost
func (f *feed) drop(gen uint64, err error) {
	f.mu.Lock()
	if gen != f.gen || f.cancel == nil {
		f.mu.Unlock()
		return
	}
	f.cancel()
	f.cancel = nil
	subs := f.subs
	f.subs = make(map[*feedStream]struct{})
	f.mu.Unlock()

	for st := range subs {
		st.fail(err)
	}
}

func (f *feed) unsubscribe(st *feedStream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, st)
	f.stopIfIdle()
}

// stopIfIdle closes the connection once no stream is left. Caller holds mu.
func (f *feed) stopIfIdle() {
	if len(f.subs) > 0 || f.cancel == nil {
		return
	}
	f.cancel()
	f.cancel = nil
	f.gen++
}

func (f *feed) shutdown(err error) {
	f.mu.Lock()
	f.closed = true
	subs := f.subs
	f.subs = make(map[*feedStream]struct{})
	f.stopIfIdle()
	f.mu.Unlock()

	for st := range subs {
		st.fail(err)
	}
}

// feedStream is one subscriber's view of a feed
type feedStream struct {
	feed   *feed
	ch     chan *realtime.Change
	failed chan struct{}
	err    error
	once   sync.Once
}

// Next blocks until the next change arrives. Changes received before the
// stream failed are still returned first.
func (s *feedStream) Next(ctx context.Context) (*realtime.Change, error) {
	select {
	case ch := <-s.ch:
		return ch, nil
	case <-s.failed:
		select {
		case ch := <-s.ch:
			return ch, nil
		default:
			return nil, s.err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close detaches the stream from its feed
func (s *feedStream) Close() error {
	s.feed.unsubscribe(s)
	s.fail(errStreamClosed)
	return nil
}

func (s *feedStream) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.failed)
	})
}

func closeConn(conn listenConn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = conn.Close(ctx)
}

// DecodeChange parses a trigger payload
func DecodeChange(payload string) (*realtime.Change, error) {
	var ch realtime.Change
	if err := json.Unmarshal([]byte(payload), &ch); err != nil {
		return nil, fmt.Errorf("failed to decode change: %w", err)
	}
	if ch.Op == "" {
		return nil, fmt.Errorf("change without op")
	}
	return &ch, nil
}
