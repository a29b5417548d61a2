package lifecycle

import (
	"github.com/ironsheep/imageview-bridge/internal/cachekey"
	"github.com/ironsheep/imageview-bridge/internal/engine"
)

// EventName is the consumer-visible name of a lifecycle event.
type EventName string

const (
	EventStart   EventName = "onCoilStart"
	EventCancel  EventName = "onCoilCancel"
	EventError   EventName = "onCoilError"
	EventSuccess EventName = "onCoilSuccess"
)

// Event is one lifecycle notification for a view. Payload is nil for start
// and cancel, ErrorPayload for errors and SuccessPayload for successes.
type Event struct {
	ViewID  string
	Name    EventName
	Payload any
}

// ErrorPayload carries the engine's failure description.
type ErrorPayload struct {
	Error string `json:"error"`
}

// SuccessPayload describes where a result came from and how it is cached.
type SuccessPayload struct {
	IsSampled                          bool               `json:"isSampled"`
	DataSource                         string             `json:"dataSource"`
	CachedInMemory                     bool               `json:"cachedInMemory"`
	MemoryCacheKey                     *cachekey.External `json:"memoryCacheKey,omitempty"`
	IsPlaceholderMemoryCacheKeyPresent bool               `json:"isPlaceholderMemoryCacheKeyPresent"`
}

// newSuccessPayload freezes engine metadata into a payload. cachedInMemory
// follows the presence of an engine key even when that key cannot be
// reconstructed; the key itself is then omitted.
func newSuccessPayload(m engine.Metadata) SuccessPayload {
	p := SuccessPayload{
		IsSampled:                          m.IsSampled,
		DataSource:                         m.DataSource.String(),
		CachedInMemory:                     m.MemoryCacheKey != nil,
		IsPlaceholderMemoryCacheKeyPresent: m.IsPlaceholderMemoryCacheKeyPresent,
	}
	if m.MemoryCacheKey == nil {
		return p
	}
	key, err := cachekey.FromExternal(*m.MemoryCacheKey)
	if err != nil {
		return p
	}
	if ext, err := cachekey.ToExternal(key); err == nil {
		p.MemoryCacheKey = &ext
	}
	return p
}

// Sink receives events for one view. Emit is called with the binding lock
// held and must not call back into the Coordinator for the same binding.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type discardSink struct{}

func (discardSink) Emit(Event) {}
