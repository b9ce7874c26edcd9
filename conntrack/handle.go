package conntrack

import (
	"context"
	"sync"
)

// Dumper is a source of flow snapshots. Implementations need not be safe for
// concurrent use; Handle serializes calls.
type Dumper interface {
	Dump() ([]Flow, error)
	Close() error
}

// Handle is a filtered view over a shared Dumper. Handles derived with
// WithFilter share the underlying connection and its lock.
type Handle struct {
	conn    *sharedConn
	filters []Filter
}

type sharedConn struct {
	mu     sync.Mutex
	dumper Dumper
	closed bool
}

// NewHandle wraps d in a Handle with no filter.
func NewHandle(d Dumper) *Handle {
	return &Handle{conn: &sharedConn{dumper: d}}
}

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig)

type connectConfig struct {
	netns string
}

// WithNetNS dumps the conntrack table of the network namespace at path
// (e.g. /var/run/netns/blue) instead of the caller's namespace.
func WithNetNS(path string) ConnectOption {
	return func(c *connectConfig) { c.netns = path }
}

// Connect opens a connection to the kernel conntrack subsystem.
func Connect(ctx context.Context, opts ...ConnectOption) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cfg connectConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	d, err := dialKernel(cfg)
	if err != nil {
		return nil, &OpError{Op: "connect", Err: err}
	}
	return NewHandle(d), nil
}

// WithFilter returns a handle whose dumps only contain flows that also match
// f. The receiver is unchanged.
func (h *Handle) WithFilter(f Filter) *Handle {
	if f.IsEmpty() {
		return h
	}
	filters := make([]Filter, 0, len(h.filters)+1)
	filters = append(filters, h.filters...)
	filters = append(filters, f)
	return &Handle{conn: h.conn, filters: filters}
}

// Filters returns the filters applied by this handle.
func (h *Handle) Filters() []Filter {
	return append([]Filter(nil), h.filters...)
}

// Dump takes a snapshot of the conntrack table and returns the flows that
// match every filter of the handle. The connection lock is held only for the
// kernel call. The call itself is not interruptible; ctx is checked before
// and after waiting for the lock.
func (h *Handle) Dump(ctx context.Context) ([]Flow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flows, err := h.conn.dump(ctx)
	if err != nil {
		return nil, err
	}
	if len(h.filters) == 0 {
		return flows, nil
	}
	out := flows[:0]
	for i := range flows {
		if h.match(&flows[i]) {
			out = append(out, flows[i])
		}
	}
	return out, nil
}

func (h *Handle) match(f *Flow) bool {
	for _, filter := range h.filters {
		if !filter.Match(f) {
			return false
		}
	}
	return true
}

// Close releases the underlying connection for every handle sharing it.
func (h *Handle) Close() error {
	c := h.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.dumper.Close(); err != nil {
		return &OpError{Op: "close", Err: err}
	}
	return nil
}

func (c *sharedConn) dump(ctx context.Context) ([]Flow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flows, err := c.dumper.Dump()
	if err != nil {
		return nil, &OpError{Op: "dump", Err: err}
	}
	return flows, nil
}
