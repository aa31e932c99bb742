package fanout

import (
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-server/internal/metrics"
)

// Fanout delivers one serialized message to a set of members, best effort.
type Fanout struct {
	conns   *Registry
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(conns *Registry, log *zap.Logger, m *metrics.Metrics) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{conns: conns, log: log.Named("fanout"), metrics: m}
}

func (f *Fanout) Registry() *Registry { return f.conns }

// Broadcast encodes msg once and sends it to every id whose connection is
// open. A failure on one connection never stops delivery to the rest and
// nothing is retried. The returned error aggregates per-member failures.
func (f *Fanout) Broadcast(msg any, ids []string) (int, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}

	delivered := 0
	var errs error
	for _, id := range ids {
		c, ok := f.conns.Lookup(id)
		if !ok || !c.Open() {
			f.metrics.Delivery("skipped")
			continue
		}
		if err := c.Send(payload); err != nil {
			f.metrics.Delivery("failed")
			errs = multierr.Append(errs, fmt.Errorf("member %s: %w", id, err))
			continue
		}
		f.metrics.Delivery("ok")
		delivered++
	}

	if errs != nil {
		f.log.Debug("partial delivery", zap.Int("delivered", delivered), zap.Error(errs))
	}
	return delivered, errs
}

// Unicast sends msg straight to c, for replies to connections that are not
// (yet) registered under a member id.
func (f *Fanout) Unicast(c Conn, msg any) error {
	if !c.Open() {
		return ErrClosed
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return c.Send(payload)
}
