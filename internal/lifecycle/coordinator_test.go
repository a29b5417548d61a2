package lifecycle

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ironsheep/imageview-bridge/internal/cachekey"
	"github.com/ironsheep/imageview-bridge/internal/engine"
	"github.com/ironsheep/imageview-bridge/internal/request"
	"github.com/ironsheep/imageview-bridge/internal/transform"
)

// fakeEngine records Issue and Dispose calls and lets tests fire callbacks
// for any issued request, including superseded ones.
type fakeEngine struct {
	mu      sync.Mutex
	ops     []string
	issued  []*fakeRequest
	onIssue func(engine.Listener)
}

type fakeRequest struct {
	d request.Descriptor
	l engine.Listener
	h *fakeHandle
}

type fakeHandle struct {
	id       string
	e        *fakeEngine
	disposed atomic.Bool
}

func (h *fakeHandle) ID() string { return h.id }
func (h *fakeHandle) IsDisposed() bool { return h.disposed.Load() }

func (h *fakeHandle) Dispose() {
	if h.disposed.CompareAndSwap(false, true) {
		h.e.record("dispose:" + h.id)
	}
}

func (e *fakeEngine) record(op string) {
	e.mu.Lock()
	e.ops = append(e.ops, op)
	e.mu.Unlock()
}

func (e *fakeEngine) Issue(d request.Descriptor, l engine.Listener) engine.Disposable {
	e.mu.Lock()
	h := &fakeHandle{id: fmt.Sprintf("h%d", len(e.issued)+1), e: e}
	e.issued = append(e.issued, &fakeRequest{d: d, l: l, h: h})
	e.ops = append(e.ops, "issue:"+d.URI())
	onIssue := e.onIssue
	e.mu.Unlock()

	if onIssue != nil {
		onIssue(l)
	}
	return h
}

func (e *fakeEngine) SetOptions(request.LoaderOptions) {}
func (e *fakeEngine) Prefetch(context.Context, []string, engine.Tier) error { return nil }
func (e *fakeEngine) ClearMemoryCache() {}
func (e *fakeEngine) ClearDiskCache() error { return nil }
func (e *fakeEngine) ClearAllCache() error { return nil }

func (e *fakeEngine) request(i int) *fakeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.issued[i]
}

func (e *fakeEngine) issueCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.issued)
}

func (e *fakeEngine) operations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ops...)
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (s *sinkRecorder) Emit(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *sinkRecorder) names() []EventName {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]EventName, len(s.events))
	for i, e := range s.events {
		names[i] = e.Name
	}
	return names
}

func (s *sinkRecorder) last() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

type targetRecorder struct {
	mu    sync.Mutex
	kinds []engine.ImageKind
}

func (r *targetRecorder) SetImage(kind engine.ImageKind, _ image.Image) {
	r.mu.Lock()
	r.kinds = append(r.kinds, kind)
	r.mu.Unlock()
}

func newTestCoordinator(t *testing.T, eng engine.Engine, opts ...Option) (*Coordinator, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	c, err := NewCoordinator(eng, append([]Option{WithMeter(mp.Meter("test"))}, opts...)...)
	require.NoError(t, err)
	return c, reader
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func source(uri string) request.Fragment {
	return request.Fragment{"source": map[string]any{"uri": uri}}
}

func TestReconfigure_IdenticalFragmentIssuesOnce(t *testing.T) {
	eng := &fakeEngine{}
	c, reader := newTestCoordinator(t, eng)
	b := c.Bind("v1", &sinkRecorder{}, nil)

	require.NoError(t, c.Reconfigure(b, source("a.png")))
	require.NoError(t, c.Reconfigure(b, source("a.png")))
	require.NoError(t, c.Reconfigure(b, request.Fragment{}))

	assert.Equal(t, 1, eng.issueCount())
	assert.Equal(t, int64(1), counterValue(t, reader, "imageview.requests.issued"))
	assert.Equal(t, int64(2), counterValue(t, reader, "imageview.requests.noop"))
	assert.Equal(t, PhaseRequesting, b.Phase())

	require.NoError(t, c.Reconfigure(b, request.Fragment{"crossfade": true}))
	assert.Equal(t, 2, eng.issueCount())
}

func TestReconfigure_DisposesPreviousBeforeIssuing(t *testing.T) {
	eng := &fakeEngine{}
	c, reader := newTestCoordinator(t, eng)
	b := c.Bind("v1", &sinkRecorder{}, nil)

	require.NoError(t, c.Reconfigure(b, source("a.png")))
	require.NoError(t, c.Reconfigure(b, source("b.png")))

	assert.Equal(t, []string{"issue:a.png", "dispose:h1", "issue:b.png"}, eng.operations())
	assert.True(t, eng.request(0).h.IsDisposed())
	assert.False(t, eng.request(1).h.IsDisposed())
	assert.Equal(t, int64(1), counterValue(t, reader, "imageview.requests.superseded"))
}

func TestReconfigure_DoesNotDisposeFinishedHandleTwice(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	b := c.Bind("v1", &sinkRecorder{}, nil)

	require.NoError(t, c.Reconfigure(b, source("a.png")))
	eng.request(0).h.Dispose()
	require.NoError(t, c.Reconfigure(b, source("b.png")))

	assert.Equal(t, []string{"issue:a.png", "dispose:h1", "issue:b.png"}, eng.operations())
}

func TestEndToEnd_SingleRequest(t *testing.T) {
	eng := &fakeEngine{}
	c, reader := newTestCoordinator(t, eng)
	sink := &sinkRecorder{}
	b := c.Bind("v1", sink, nil)

	require.NoError(t, c.Reconfigure(b, request.Fragment{
		"source": map[string]any{"uri": "a.png", "diskCachePolicy": "ENABLED"},
	}))
	require.Equal(t, 1, eng.issueCount())
	d1 := eng.request(0)
	assert.Equal(t, request.PolicyEnabled, d1.d.DiskCachePolicy())

	d1.l.OnStart()
	d1.l.OnSuccess(engine.Metadata{DataSource: engine.SourceNetwork})

	assert.Equal(t, []EventName{EventStart, EventSuccess}, sink.names())
	payload, ok := sink.last().Payload.(SuccessPayload)
	require.True(t, ok)
	assert.Equal(t, "NETWORK", payload.DataSource)
	assert.False(t, payload.CachedInMemory)
	assert.Nil(t, payload.MemoryCacheKey)
	assert.Equal(t, "v1", sink.last().ViewID)
	assert.Equal(t, PhaseSucceeded, b.Phase())
	assert.Equal(t, int64(2), counterValue(t, reader, "imageview.events.forwarded"))
}

func TestEndToEnd_ReconfigureBeforeResolution(t *testing.T) {
	eng := &fakeEngine{}
	c, reader := newTestCoordinator(t, eng)
	sink := &sinkRecorder{}
	b := c.Bind("v1", sink, nil)

	require.NoError(t, c.Reconfigure(b, source("a.png")))
	d1 := eng.request(0)
	d1.l.OnStart()

	require.NoError(t, c.Reconfigure(b, source("b.png")))
	assert.True(t, d1.h.IsDisposed())
	d2 := eng.request(1)
	assert.Equal(t, "b.png", d2.d.URI())

	// late callbacks for the superseded request
	d1.l.OnCancel()
	d1.l.OnSuccess(engine.Metadata{DataSource: engine.SourceNetwork})

	d2.l.OnStart()
	d2.l.OnSuccess(engine.Metadata{DataSource: engine.SourceDisk})

	assert.Equal(t, []EventName{EventStart, EventStart, EventSuccess}, sink.names())
	payload := sink.last().Payload.(SuccessPayload)
	assert.Equal(t, "DISK", payload.DataSource)
	assert.Equal(t, int64(2), counterValue(t, reader, "imageview.events.dropped"))
}

func TestTeardown(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	sink := &sinkRecorder{}
	b := c.Bind("v1", sink, nil)

	require.NoError(t, c.Reconfigure(b, source("a.png")))
	d1 := eng.request(0)

	c.Teardown(b)
	assert.True(t, d1.h.IsDisposed())
	assert.Equal(t, PhaseIdle, b.Phase())

	d1.l.OnStart()
	d1.l.OnCancel()
	assert.Empty(t, sink.names())

	c.Teardown(b)
	assert.Equal(t, []string{"issue:a.png", "dispose:h1"}, eng.operations())

	assert.ErrorIs(t, c.Reconfigure(b, source("b.png")), ErrReleased)
	assert.Equal(t, 1, eng.issueCount())

	_, ok := c.Lookup("v1")
	assert.False(t, ok)
}

func TestTeardown_WithoutRequest(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	b := c.Bind("v1", nil, nil)

	c.Teardown(b)
	c.Teardown(b)
	assert.Empty(t, eng.operations())
}

func TestReconfigure_ConfigErrorLeavesStateUntouched(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	b := c.Bind("v1", &sinkRecorder{}, nil)

	require.NoError(t, c.Reconfigure(b, request.Fragment{
		"source":    map[string]any{"uri": "a.png"},
		"crossfade": 200,
	}))

	tests := []struct {
		name     string
		fragment request.Fragment
		is       error
	}{
		{"crossfade", request.Fragment{"source": map[string]any{"uri": "b.png"}, "crossfade": "slow"}, request.ErrInvalidCrossfadeType},
		{"header", request.Fragment{"source": map[string]any{"uri": "b.png", "headers": map[string]any{"X": 1}}}, request.ErrInvalidHeaderValue},
		{"policy", request.Fragment{"source": map[string]any{"uri": "b.png", "diskCachePolicy": "MAYBE"}}, request.ErrUnknownCachePolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Reconfigure(b, tt.fragment)
			assert.ErrorIs(t, err, tt.is)

			var ce *request.ConfigError
			assert.True(t, errors.As(err, &ce))

			d, ok := b.Descriptor()
			require.True(t, ok)
			assert.Equal(t, "a.png", d.URI())
			assert.Equal(t, 200, d.CrossfadeMillis())
			assert.Equal(t, 1, eng.issueCount())
			assert.False(t, eng.request(0).h.IsDisposed())
		})
	}
}

func TestReconfigure_RejectUnknownTransforms(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng, WithUnknownTransformPolicy(transform.RejectUnknown))
	b := c.Bind("v1", nil, nil)

	err := c.Reconfigure(b, request.Fragment{
		"source":     map[string]any{"uri": "a.png"},
		"transforms": []any{map[string]any{"className": "sepia"}},
	})
	assert.ErrorIs(t, err, request.ErrUnknownTransform)
	assert.Zero(t, eng.issueCount())
}

func TestReconfigure_DropUnknownTransformsByDefault(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	b := c.Bind("v1", nil, nil)

	require.NoError(t, c.Reconfigure(b, request.Fragment{
		"source":     map[string]any{"uri": "a.png"},
		"transforms": []any{map[string]any{"className": "sepia"}, map[string]any{"className": "circle"}},
	}))
	assert.Equal(t, []transform.Transform{transform.NewCircle()}, eng.request(0).d.Transforms())
}

func TestBridge_SecondTerminalDropped(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	sink := &sinkRecorder{}
	b := c.Bind("v1", sink, nil)
	require.NoError(t, c.Reconfigure(b, source("a.png")))

	l := eng.request(0).l
	l.OnStart()
	l.OnSuccess(engine.Metadata{})
	l.OnError(errors.New("late"))
	l.OnCancel()

	assert.Equal(t, []EventName{EventStart, EventSuccess}, sink.names())
	assert.Equal(t, PhaseSucceeded, b.Phase())
}

func TestBridge_TerminalBeforeStartIsForwarded(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	sink := &sinkRecorder{}
	b := c.Bind("v1", sink, nil)
	require.NoError(t, c.Reconfigure(b, source("a.png")))

	l := eng.request(0).l
	l.OnError(errors.New("boom"))
	l.OnStart()

	assert.Equal(t, []EventName{EventError}, sink.names())
	assert.Equal(t, ErrorPayload{Error: "boom"}, sink.last().Payload)
	assert.Equal(t, PhaseFailed, b.Phase())
}

func TestBridge_CancelForCurrentRequestIsForwarded(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	sink := &sinkRecorder{}
	b := c.Bind("v1", sink, nil)
	require.NoError(t, c.Reconfigure(b, source("a.png")))

	l := eng.request(0).l
	l.OnStart()
	l.OnCancel()

	assert.Equal(t, []EventName{EventStart, EventCancel}, sink.names())
	assert.Nil(t, sink.last().Payload)
	assert.Equal(t, PhaseCancelled, b.Phase())
}

func TestBridge_SuccessPayloadKeys(t *testing.T) {
	simple, err := cachekey.ToExternal(cachekey.Simple("thumb"))
	require.NoError(t, err)
	malformed := cachekey.External{Type: "complex"}

	tests := []struct {
		name       string
		meta       engine.Metadata
		wantCached bool
		wantKey    bool
	}{
		{"no key", engine.Metadata{DataSource: engine.SourceNetwork}, false, false},
		{"simple key", engine.Metadata{DataSource: engine.SourceMemory, MemoryCacheKey: &simple}, true, true},
		{"malformed key", engine.Metadata{DataSource: engine.SourceMemory, MemoryCacheKey: &malformed}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newSuccessPayload(tt.meta)
			assert.Equal(t, tt.wantCached, p.CachedInMemory)
			if !tt.wantKey {
				assert.Nil(t, p.MemoryCacheKey)
				return
			}
			require.NotNil(t, p.MemoryCacheKey)
			assert.Equal(t, "simple", p.MemoryCacheKey.Type)
			assert.NotSame(t, tt.meta.MemoryCacheKey, p.MemoryCacheKey)
		})
	}
}

func TestBridge_TargetImagesFollowCurrentRequest(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	target := &targetRecorder{}
	b := c.Bind("v1", nil, target)

	require.NoError(t, c.Reconfigure(b, source("a.png")))
	first := eng.request(0).l.(engine.Target)
	first.SetImage(engine.ImagePlaceholder, image.NewNRGBA(image.Rect(0, 0, 1, 1)))

	require.NoError(t, c.Reconfigure(b, source("b.png")))
	first.SetImage(engine.ImageResult, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	eng.request(1).l.(engine.Target).SetImage(engine.ImageResult, image.NewNRGBA(image.Rect(0, 0, 1, 1)))

	assert.Equal(t, []engine.ImageKind{engine.ImagePlaceholder, engine.ImageResult}, target.kinds)
}

func TestBind_ReplacesExistingBinding(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	old := c.Bind("v1", nil, nil)
	require.NoError(t, c.Reconfigure(old, source("a.png")))

	fresh := c.Bind("v1", nil, nil)
	assert.True(t, eng.request(0).h.IsDisposed())

	got, ok := c.Lookup("v1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
	assert.ErrorIs(t, c.Reconfigure(old, source("b.png")), ErrReleased)

	// tearing down the stale binding must not drop the new one
	c.Teardown(old)
	_, ok = c.Lookup("v1")
	assert.True(t, ok)
}

func TestClose_ReleasesEveryBinding(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	a := c.Bind("a", nil, nil)
	b := c.Bind("b", nil, nil)
	require.NoError(t, c.Reconfigure(a, source("a.png")))
	require.NoError(t, c.Reconfigure(b, source("b.png")))
	require.Equal(t, 2, c.Len())

	c.Close()

	assert.Zero(t, c.Len())
	assert.True(t, eng.request(0).h.IsDisposed())
	assert.True(t, eng.request(1).h.IsDisposed())
	assert.ErrorIs(t, c.Reconfigure(a, source("c.png")), ErrReleased)
}

func TestReconfigure_SynchronousEngineCallbacks(t *testing.T) {
	eng := &fakeEngine{onIssue: func(l engine.Listener) { l.OnStart() }}
	c, _ := newTestCoordinator(t, eng)
	sink := &sinkRecorder{}
	b := c.Bind("v1", sink, nil)

	require.NoError(t, c.Reconfigure(b, source("a.png")))
	assert.Equal(t, []EventName{EventStart}, sink.names())
}

func TestBridge_ConcurrentStaleCallbacks(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestCoordinator(t, eng)
	sink := &sinkRecorder{}
	b := c.Bind("v1", sink, nil)

	const rounds = 20
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		require.NoError(t, c.Reconfigure(b, source(fmt.Sprintf("%d.png", i))))
		l := eng.request(i).l
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.OnStart()
			l.OnCancel()
		}()
	}
	wg.Wait()

	for _, name := range sink.names() {
		assert.Contains(t, []EventName{EventStart, EventCancel}, name)
	}
	for i := 0; i < rounds-1; i++ {
		assert.True(t, eng.request(i).h.IsDisposed(), "request %d should be disposed", i)
	}
	assert.False(t, eng.request(rounds-1).h.IsDisposed())
}

func TestCoordinator_WithLocalEngine(t *testing.T) {
	eng, err := engine.NewLocal(engine.WithDiskCacheDir(t.TempDir()))
	require.NoError(t, err)
	c, _ := newTestCoordinator(t, eng)

	done := make(chan Event, 4)
	b := c.Bind("v1", SinkFunc(func(e Event) { done <- e }), nil)

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	require.NoError(t, c.Reconfigure(b, source(uri)))

	var events []EventName
	for len(events) < 2 {
		select {
		case e := <-done:
			events = append(events, e.Name)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out; events so far: %v", events)
		}
	}
	assert.Equal(t, []EventName{EventStart, EventSuccess}, events)
	assert.Equal(t, PhaseSucceeded, b.Phase())
}
