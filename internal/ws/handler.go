package ws

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-server/internal/fanout"
	"github.com/DoyleJ11/lobby-server/internal/metrics"
	"github.com/DoyleJ11/lobby-server/internal/router"
)

type Config struct {
	OutboxSize   int
	ReadLimit    int64
	WriteTimeout time.Duration
	PingInterval time.Duration // <= 0 disables heartbeats

	// In dev ONLY, you can loosen origin checks:
	// OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	OriginPatterns []string

	// Stop is closed when the server is going away. Connections flush what is
	// queued and close with StatusGoingAway.
	Stop <-chan struct{}

	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// client is the fanout.Conn for one websocket.
type client struct {
	conn *websocket.Conn
	out  chan []byte
	open atomic.Bool
}

func newClient(conn *websocket.Conn, size int) *client {
	if size <= 0 {
		size = 32
	}
	c := &client{conn: conn, out: make(chan []byte, size)}
	c.open.Store(true)
	return c
}

// Send never blocks: a full outbox drops the message for this client only.
func (c *client) Send(payload []byte) error {
	if !c.open.Load() {
		return fanout.ErrClosed
	}
	select {
	case c.out <- payload:
		return nil
	default:
		return fanout.ErrBackpressure
	}
}

func (c *client) Open() bool { return c.open.Load() }

func Handler(rt *router.Router, cfg Config) http.HandlerFunc {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		if cfg.ReadLimit > 0 {
			conn.SetReadLimit(cfg.ReadLimit)
		}

		cfg.Metrics.ConnOpened()
		defer cfg.Metrics.ConnClosed()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := newClient(conn, cfg.OutboxSize)
		s := router.NewSession(c)

		// Writer goroutine
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			if err := c.writeLoop(ctx, cfg); err != nil && ctx.Err() == nil {
				log.Debug("writer stopped", zap.Error(err))
			}
			cancel()
		}()

		// Reader loop
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.String("member", s.MemberID()), zap.Error(err))
					}
				}
				break
			}
			if typ != websocket.MessageText {
				cfg.Metrics.Dropped("binary")
				continue
			}
			rt.Route(ctx, s, data)
		}

		c.open.Store(false)
		rt.Disconnect(s)
		cancel()
		<-writerDone
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (c *client) writeLoop(ctx context.Context, cfg Config) error {
	var tick <-chan time.Time
	if cfg.PingInterval > 0 {
		t := time.NewTicker(cfg.PingInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-cfg.Stop:
			c.flush(cfg.WriteTimeout)
			c.open.Store(false)
			return c.conn.Close(websocket.StatusGoingAway, "server shutting down")

		case payload := <-c.out:
			if err := c.write(ctx, cfg.WriteTimeout, payload); err != nil {
				return err
			}

		case <-tick:
			pctx, cancel := withTimeout(ctx, cfg.WriteTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// flush writes whatever is already queued, giving up on the first error.
func (c *client) flush(timeout time.Duration) {
	for {
		select {
		case payload := <-c.out:
			if err := c.write(context.Background(), timeout, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *client) write(ctx context.Context, timeout time.Duration, payload []byte) error {
	wctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, payload)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
