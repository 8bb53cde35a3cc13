package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
)

var (
	ErrConnectionClosed = errors.New("hub: connection closed")
	ErrSendQueueFull    = errors.New("hub: send queue full")
)

// Conn is a registered, authenticated connection. Outbound frames are
// queued and written by a dedicated goroutine so a slow peer never blocks
// the caller.
type Conn struct {
	id        string
	identity  domain.Identity
	transport Transport
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	send         chan []byte
	writeTimeout time.Duration

	connectedAt  time.Time
	lastActivity atomic.Int64

	mu        sync.Mutex
	closed    bool
	closeCode CloseCode
	reason    string
	closing   chan struct{}
	done      chan struct{}

	// onWriteError is called at most once when the transport fails.
	onWriteError func(*Conn, error)
}

func newConn(parent context.Context, id string, identity domain.Identity, t Transport, queue int, writeTimeout time.Duration, now time.Time, logger *slog.Logger) *Conn {
	ctx, cancel := context.WithCancel(parent)
	c := &Conn{
		id:           id,
		identity:     identity,
		transport:    t,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		send:         make(chan []byte, queue),
		writeTimeout: writeTimeout,
		connectedAt:  now,
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	c.touch(now)
	return c
}

func (c *Conn) ID() string                { return c.id }
func (c *Conn) Identity() domain.Identity { return c.identity }
func (c *Conn) Context() context.Context  { return c.ctx }

// Done is closed once the transport has been closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) touch(t time.Time) { c.lastActivity.Store(t.UnixNano()) }

func (c *Conn) LastActivity() time.Time { return time.Unix(0, c.lastActivity.Load()) }

// Send queues v as a JSON frame.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Conn) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// close flushes queued frames and closes the transport with code. Only the
// first call has any effect.
func (c *Conn) close(code CloseCode, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeCode = code
	c.reason = reason
	close(c.closing)
	c.mu.Unlock()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCode returns the code the connection was closed with, or 0.
func (c *Conn) CloseCode() CloseCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *Conn) writeLoop() {
	defer func() {
		c.mu.Lock()
		code, reason := c.closeCode, c.reason
		c.mu.Unlock()
		if code == 0 {
			code, reason = CloseInternal, "write failed"
		}

		if err := c.transport.Close(code, reason); err != nil {
			c.logger.Debug("transport close", "err", err)
		}
		c.cancel()
		close(c.done)
	}()

	for {
		select {
		case data := <-c.send:
			if !c.write(data) {
				return
			}
		case <-c.closing:
			// No more enqueues can happen once closing is closed.
			for {
				select {
				case data := <-c.send:
					if !c.write(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) write(data []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if err := c.transport.Write(ctx, data); err != nil {
		c.logger.Warn("write failed", "err", err)
		if c.onWriteError != nil {
			c.onWriteError(c, err)
		}
		return false
	}
	return true
}
