// Package client implements the Rill binary protocol client: a single
// persistent connection carrying framed request/response exchanges for
// the user-management and session command family.
package client

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValerySidorin/rill/internal/pool"
	"github.com/ValerySidorin/rill/internal/proto/command"
	"github.com/ValerySidorin/rill/internal/wire"
	"github.com/ValerySidorin/rill/observability"
	"github.com/quic-go/quic-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Conn owns one transport connection and dispatches exchanges over it.
//
// Exchanges are strictly serialized: a send issued while another is in
// flight queues behind it and is processed in submission order, so a
// Conn is safe for use from multiple goroutines. Cancelling a context
// after the request frame has been written does not abort the
// exchange; the eventual response frame is still read and discarded
// before the next request proceeds.
type Conn struct {
	tr Transport

	mu sync.Mutex // serializes exchanges, FIFO

	pmu  sync.Mutex
	pch  chan []byte // receiver of the in-flight response, if any
	skip int         // responses to discard for abandoned exchanges

	timeout time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
	closeCh   chan struct{}
	readErr   error // set before closeCh is closed

	wg sync.WaitGroup
	l  *slog.Logger
}

// Connect dials the server over TCP. A nil tlsConf means plaintext.
func Connect(ctx context.Context, addr string, tlsConf *tls.Config, opts ...Option) (*Conn, error) {
	tr, err := dialTCP(ctx, addr, tlsConf)
	if err != nil {
		return nil, err
	}
	return NewConn(tr, opts...), nil
}

// ConnectQUIC dials the server over QUIC, running all exchanges on one
// bidirectional stream. tlsConf must carry the "rill" next proto.
func ConnectQUIC(ctx context.Context, addr string, tlsConf *tls.Config, quicConf *quic.Config, opts ...Option) (*Conn, error) {
	tr, err := dialQUIC(ctx, addr, tlsConf, quicConf)
	if err != nil {
		return nil, err
	}
	return NewConn(tr, opts...), nil
}

// NewConn wraps an already-established transport. The Conn takes
// exclusive ownership of it.
func NewConn(tr Transport, opts ...Option) *Conn {
	c := &Conn{
		tr:      tr,
		closeCh: make(chan struct{}),
		l:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// Users returns the user-management command surface of this connection.
func (c *Conn) Users() *Users {
	return &Users{c: c}
}

// Ping performs an empty exchange to verify the connection is alive.
func (c *Conn) Ping(ctx context.Context) error {
	return c.sendAndRelease(ctx, command.PING, nil)
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := c.tr.Close()
	c.fail(ErrConnClosed)
	c.wg.Wait()
	return err
}

func (c *Conn) readLoop() {
	defer c.wg.Done()

	for {
		buf, err := c.tr.ReadFrame()
		if err != nil {
			if !c.closed.Load() {
				c.l.Error("read loop", "err", err)
			}
			c.fail(fmt.Errorf("transport: %w", err))
			return
		}
		c.dispatch(buf)
	}
}

// dispatch routes one response frame: to the waiting exchange, to the
// discard count of an abandoned exchange, or back to the pool.
func (c *Conn) dispatch(buf []byte) {
	c.pmu.Lock()
	if c.skip > 0 {
		c.skip--
		c.pmu.Unlock()
		pool.Put(buf)
		return
	}
	ch := c.pch
	c.pch = nil
	c.pmu.Unlock()

	if ch == nil {
		c.l.Warn("dropping unsolicited frame", "len", len(buf))
		pool.Put(buf)
		return
	}
	ch <- buf // cap 1, never blocks
}

func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.readErr = err
		close(c.closeCh)
	})
}

// send performs one exchange: frames [4-byte LE code][payload] into a
// single transport frame, waits for the response frame and checks its
// 4-byte status. On status 0 the returned payload buffer is owned by
// the caller for exactly one decode pass and must go back to
// internal/pool; on any failure no buffer is returned.
func (c *Conn) send(ctx context.Context, code command.Code, payload []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if observability.TracingEnabled() {
		var span trace.Span
		ctx, span = observability.Tracer().Start(ctx, "rill.exchange",
			trace.WithAttributes(attribute.String("rill.command", code.String())))
		defer span.End()
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()

	ch := make(chan []byte, 1)
	c.pmu.Lock()
	c.pch = ch
	c.pmu.Unlock()

	req := pool.Get(wire.Uint32Len + len(payload))
	req = binary.LittleEndian.AppendUint32(req, uint32(code))
	req = append(req, payload...)
	err := c.tr.WriteFrame(req)
	pool.Put(req)
	if err != nil {
		c.pmu.Lock()
		c.pch = nil
		c.pmu.Unlock()
		if observability.MetricsEnabled() {
			observability.IncError(code.String(), "write")
		}
		return nil, err
	}

	select {
	case buf := <-ch:
		if observability.MetricsEnabled() {
			observability.IncOp(code.String())
			observability.ObserveExchangeLatency(code.String(), time.Since(start))
		}

		if len(buf) < wire.Uint32Len {
			pool.Put(buf)
			return nil, fmt.Errorf("read status: %w", wire.ErrMalformed)
		}
		status := binary.LittleEndian.Uint32(buf)
		if status != 0 {
			pool.Put(buf)
			if observability.MetricsEnabled() {
				observability.IncError(code.String(), "status")
			}
			return nil, ServerError{Code: status}
		}
		return buf[wire.Uint32Len:], nil

	case <-ctx.Done():
		c.abandon(ch)
		return nil, ctx.Err()

	case <-c.closeCh:
		c.abandon(ch)
		return nil, c.readErr
	}
}

// sendAndRelease is send for operations with no meaningful success
// payload; the response buffer is released immediately.
func (c *Conn) sendAndRelease(ctx context.Context, code command.Code, payload []byte) error {
	buf, err := c.send(ctx, code, payload)
	if err != nil {
		return err
	}
	pool.Put(buf)
	return nil
}

// abandon gives up on the in-flight exchange while keeping the
// one-request-at-a-time invariant: whenever the response does arrive,
// it is released without being delivered to anyone.
func (c *Conn) abandon(ch chan []byte) {
	c.pmu.Lock()
	if c.pch != nil {
		c.pch = nil
		c.skip++
		c.pmu.Unlock()
		return
	}
	c.pmu.Unlock()

	// The read loop already claimed the channel; the delivery into its
	// single buffered slot cannot block.
	select {
	case buf := <-ch:
		pool.Put(buf)
	case <-c.closeCh:
	}
}
