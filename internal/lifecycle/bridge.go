package lifecycle

import (
	"image"

	"github.com/ironsheep/imageview-bridge/internal/engine"
)

// bridge is the engine listener for one issued request. It forwards
// callbacks to the binding's sink only while its token is current.
type bridge struct {
	c   *Coordinator
	b   *Binding
	tok *token
}

var (
	_ engine.Listener = (*bridge)(nil)
	_ engine.Target   = (*bridge)(nil)
)

func (l *bridge) OnStart() {
	l.deliver(EventStart, nil, PhaseRequesting, false)
}

func (l *bridge) OnCancel() {
	l.deliver(EventCancel, nil, PhaseCancelled, true)
}

func (l *bridge) OnError(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	l.deliver(EventError, ErrorPayload{Error: msg}, PhaseFailed, true)
}

func (l *bridge) OnSuccess(m engine.Metadata) {
	l.deliver(EventSuccess, newSuccessPayload(m), PhaseSucceeded, true)
}

// SetImage hands images for the current request to the view's target.
func (l *bridge) SetImage(kind engine.ImageKind, img image.Image) {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()
	if !l.live() || l.b.target == nil {
		return
	}
	l.b.target.SetImage(kind, img)
}

// live reports whether callbacks for l.tok may still reach the consumer.
// The caller holds l.b.mu.
func (l *bridge) live() bool {
	return !l.b.released && l.b.current == l.tok && !l.tok.terminal
}

func (l *bridge) deliver(name EventName, payload any, phase Phase, terminal bool) {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()

	if !l.live() {
		l.c.metrics.event(l.c.metrics.dropped, name)
		l.c.log.Debug().
			Str("view_id", l.b.id).
			Str("request_id", l.tok.id).
			Str("event", string(name)).
			Msg("stale callback dropped")
		return
	}

	if terminal {
		l.tok.terminal = true
	}
	l.b.phase = phase
	l.b.sink.Emit(Event{ViewID: l.b.id, Name: name, Payload: payload})
	l.c.metrics.event(l.c.metrics.forwarded, name)
}
