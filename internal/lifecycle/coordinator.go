package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ironsheep/imageview-bridge/internal/engine"
	"github.com/ironsheep/imageview-bridge/internal/request"
	"github.com/ironsheep/imageview-bridge/internal/transform"
)

// ErrReleased is returned when reconfiguring a binding after Teardown.
var ErrReleased = errors.New("lifecycle: binding released")

// Phase is the lifecycle state of a binding.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequesting
	PhaseSucceeded
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequesting:
		return "requesting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// token identifies one issued request. Callbacks carry the token they were
// issued with; only the binding's current token is forwarded.
type token struct {
	id       string
	handle   engine.Disposable
	terminal bool
}

// Binding is the per-view request slot.
type Binding struct {
	id     string
	sink   Sink
	target engine.Target

	mu          sync.Mutex
	accumulated *request.Descriptor
	issued      *request.Descriptor
	current     *token
	phase       Phase
	released    bool
}

// ID returns the view id.
func (b *Binding) ID() string { return b.id }

// Phase returns the current lifecycle phase.
func (b *Binding) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Descriptor returns the accumulated configuration, if any was applied.
func (b *Binding) Descriptor() (request.Descriptor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.accumulated == nil {
		return request.Descriptor{}, false
	}
	return *b.accumulated, true
}

// Coordinator owns one request slot per view and guarantees at most one
// live engine handle per binding.
type Coordinator struct {
	engine  engine.Engine
	reducer *request.Reducer
	log     zerolog.Logger
	metrics *metrics

	mu       sync.Mutex
	bindings map[string]*Binding
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	log           zerolog.Logger
	meter         metric.Meter
	unknownPolicy transform.UnknownPolicy
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMeter sets the meter used for lifecycle counters.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithUnknownTransformPolicy selects how unrecognized transforms in a
// fragment are handled.
func WithUnknownTransformPolicy(p transform.UnknownPolicy) Option {
	return func(o *options) { o.unknownPolicy = p }
}

// NewCoordinator creates a Coordinator issuing requests to eng.
func NewCoordinator(eng engine.Engine, opts ...Option) (*Coordinator, error) {
	o := options{
		log:   zerolog.Nop(),
		meter: noop.NewMeterProvider().Meter("imageview-bridge"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := newMetrics(o.meter)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: failed to create metrics: %w", err)
	}

	return &Coordinator{
		engine:   eng,
		reducer:  request.NewReducer(request.WithUnknownTransformPolicy(o.unknownPolicy)),
		log:      o.log.With().Str("component", "lifecycle").Logger(),
		metrics:  m,
		bindings: make(map[string]*Binding),
	}, nil
}

// Bind realises a view. sink receives its events and target, when not nil,
// its images. Binding an id that is already bound tears the old binding
// down first.
func (c *Coordinator) Bind(viewID string, sink Sink, target engine.Target) *Binding {
	if sink == nil {
		sink = discardSink{}
	}
	b := &Binding{id: viewID, sink: sink, target: target}

	c.mu.Lock()
	old := c.bindings[viewID]
	c.bindings[viewID] = b
	c.mu.Unlock()

	if old != nil {
		c.log.Warn().Str("view_id", viewID).Msg("view bound twice; releasing previous binding")
		c.release(old)
	}
	c.log.Debug().Str("view_id", viewID).Msg("view bound")
	return b
}

// Lookup returns the live binding for viewID.
func (c *Coordinator) Lookup(viewID string) (*Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bindings[viewID]
	return b, ok
}

// Reconfigure applies fragment to the binding's configuration and issues
// the result when it differs from the last issued descriptor.
//
// A *request.ConfigError from the reducer is returned as is; the binding's
// configuration and in-flight request are left untouched. Calls for one
// binding must be serialised by the caller.
func (c *Coordinator) Reconfigure(b *Binding, fragment request.Fragment) error {
	log := c.log.With().Str("view_id", b.id).Logger()

	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return ErrReleased
	}

	d, warnings, err := c.reducer.Apply(b.accumulated, fragment)
	if err != nil {
		b.mu.Unlock()
		log.Debug().Err(err).Msg("configuration rejected")
		return err
	}
	b.accumulated = &d
	for _, w := range warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if b.issued != nil && b.issued.Equal(d) {
		b.mu.Unlock()
		c.metrics.inc(c.metrics.noop)
		log.Debug().Msg("descriptor unchanged; not reissued")
		return nil
	}

	var prev engine.Disposable
	if b.current != nil {
		prev = b.current.handle
	}
	tok := &token{id: uuid.NewString()}
	b.current = tok
	b.issued = &d
	b.phase = PhaseRequesting
	b.mu.Unlock()

	// prev is no longer current, so anything it reports from here on is
	// dropped by the bridge.
	c.dispose(prev)

	h := c.engine.Issue(d, &bridge{c: c, b: b, tok: tok})

	b.mu.Lock()
	if b.current != tok || b.released {
		b.mu.Unlock()
		h.Dispose()
		c.metrics.inc(c.metrics.superseded)
		return nil
	}
	tok.handle = h
	b.mu.Unlock()

	c.metrics.inc(c.metrics.issued)
	log.Debug().Str("request_id", tok.id).Str("handle", h.ID()).Str("uri", d.URI()).Msg("request issued")
	return nil
}

// Teardown disposes the binding's handle and releases it. Calling it more
// than once has no further effect.
func (c *Coordinator) Teardown(b *Binding) {
	c.mu.Lock()
	if c.bindings[b.id] == b {
		delete(c.bindings, b.id)
	}
	c.mu.Unlock()

	c.release(b)
}

// Close tears down every binding.
func (c *Coordinator) Close() {
	c.mu.Lock()
	bindings := make([]*Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		bindings = append(bindings, b)
	}
	clear(c.bindings)
	c.mu.Unlock()

	for _, b := range bindings {
		c.release(b)
	}
}

// Len returns the number of live bindings.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bindings)
}

func (c *Coordinator) release(b *Binding) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	var cur engine.Disposable
	if b.current != nil {
		cur = b.current.handle
	}
	b.current = nil
	b.phase = PhaseIdle
	b.mu.Unlock()

	c.dispose(cur)
	c.log.Debug().Str("view_id", b.id).Msg("view released")
}

// dispose cancels h if it is still live.
func (c *Coordinator) dispose(h engine.Disposable) {
	if h == nil || h.IsDisposed() {
		return
	}
	h.Dispose()
	c.metrics.inc(c.metrics.superseded)
}
