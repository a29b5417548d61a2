package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ironsheep/imageview-bridge/internal/cachekey"
	"github.com/ironsheep/imageview-bridge/internal/imaging"
	"github.com/ironsheep/imageview-bridge/internal/request"
	"github.com/ironsheep/imageview-bridge/internal/transform"
)

// prefetchConcurrency bounds parallel loads in Prefetch.
const prefetchConcurrency = 4

// loaderDefaults are the process-wide values a descriptor falls back to.
type loaderDefaults struct {
	disk, memory, network request.CachePolicy

	crossfade   int
	placeholder request.ImageRef
	errorImage  request.ImageRef
	fallback    request.ImageRef

	addLastModified bool
}

// initialDefaults apply until the first SetOptions call.
func initialDefaults() loaderDefaults {
	return loaderDefaults{
		disk:    request.PolicyEnabled,
		memory:  request.PolicyEnabled,
		network: request.PolicyEnabled,
	}
}

// baseDefaults are the values SetOptions starts from before applying the
// provided fields.
func baseDefaults() loaderDefaults {
	return loaderDefaults{
		disk:      request.PolicyEnabled,
		memory:    request.PolicyDisabled,
		network:   request.PolicyEnabled,
		crossfade: request.DefaultCrossfade,
	}
}

// Local is the reference Engine. It resolves requests through a bounded
// memory cache, a disk cache of network responses and the source itself.
type Local struct {
	log         zerolog.Logger
	client      *http.Client
	maxAttempts uint
	memory      *imaging.MemoryCache
	disk        *diskCache
	group       singleflight.Group

	mu       sync.RWMutex
	defaults loaderDefaults
}

var _ Engine = (*Local)(nil)

// LocalOption configures a Local engine.
type LocalOption func(*localConfig)

type localConfig struct {
	log           zerolog.Logger
	client        *http.Client
	diskDir       string
	memoryEntries int
	maxAttempts   uint
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) LocalOption {
	return func(c *localConfig) { c.log = l }
}

// WithHTTPClient sets the client used for network fetches.
func WithHTTPClient(client *http.Client) LocalOption {
	return func(c *localConfig) { c.client = client }
}

// WithDiskCacheDir sets the disk cache directory.
func WithDiskCacheDir(dir string) LocalOption {
	return func(c *localConfig) { c.diskDir = dir }
}

// WithMemoryCacheEntries bounds the memory cache.
func WithMemoryCacheEntries(n int) LocalOption {
	return func(c *localConfig) { c.memoryEntries = n }
}

// WithMaxFetchAttempts sets how many times a network fetch is tried.
func WithMaxFetchAttempts(n uint) LocalOption {
	return func(c *localConfig) { c.maxAttempts = n }
}

// NewLocal creates a Local engine and its disk cache directory.
func NewLocal(opts ...LocalOption) (*Local, error) {
	cfg := localConfig{
		log:           zerolog.Nop(),
		client:        &http.Client{Timeout: 30 * time.Second},
		diskDir:       filepath.Join(os.TempDir(), "imageview-bridge"),
		memoryEntries: imaging.DefaultMemoryCacheEntries,
		maxAttempts:   3,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxAttempts == 0 {
		cfg.maxAttempts = 1
	}

	disk, err := newDiskCache(cfg.diskDir)
	if err != nil {
		return nil, err
	}

	return &Local{
		log:         cfg.log.With().Str("component", "engine").Logger(),
		client:      cfg.client,
		maxAttempts: cfg.maxAttempts,
		memory:      imaging.NewMemoryCache(cfg.memoryEntries),
		disk:        disk,
		defaults:    initialDefaults(),
	}, nil
}

// handle is the Disposable returned by Local.Issue.
type handle struct {
	id       string
	cancel   context.CancelFunc
	disposed atomic.Bool
}

func (h *handle) ID() string { return h.id }

func (h *handle) Dispose() {
	if h.disposed.CompareAndSwap(false, true) {
		h.cancel()
	}
}

func (h *handle) IsDisposed() bool { return h.disposed.Load() }

// Issue starts loading d on its own goroutine.
func (e *Local) Issue(d request.Descriptor, l Listener) Disposable {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{id: uuid.NewString(), cancel: cancel}

	go func() {
		defer cancel()
		e.serve(ctx, h.id, d, l)
	}()
	return h
}

// ended tracks whether a terminal callback has been delivered.
type ended struct {
	Listener
	done bool
}

func (t *ended) OnCancel() { t.done = true; t.Listener.OnCancel() }
func (t *ended) OnError(err error) { t.done = true; t.Listener.OnError(err) }
func (t *ended) OnSuccess(m Metadata) { t.done = true; t.Listener.OnSuccess(m) }

// serve runs one request. A panic while loading is reported as OnError
// unless a terminal callback was already delivered.
func (e *Local) serve(ctx context.Context, id string, d request.Descriptor, l Listener) {
	tracked := &ended{Listener: l}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e.log.Error().Str("request_id", id).Str("uri", d.URI()).Interface("panic", r).Msg("request panicked")
		if !tracked.done {
			l.OnError(fmt.Errorf("%w: %v", ErrLoadPanicked, r))
		}
	}()

	target, _ := l.(Target)
	e.run(ctx, id, d, tracked, target)
}

func (e *Local) run(ctx context.Context, id string, d request.Descriptor, l Listener, target Target) {
	defaults := e.snapshot()
	log := e.log.With().Str("request_id", id).Str("uri", d.URI()).Logger()

	size, _ := d.Size()
	setImage := func(kind ImageKind, img image.Image) {
		if target != nil && img != nil {
			target.SetImage(kind, img)
		}
	}
	resolve := func(ref request.ImageRef) image.Image {
		if ref == "" {
			return nil
		}
		img, err := imaging.ResolveRef(string(ref), size.Width, size.Height)
		if err != nil {
			log.Warn().Err(err).Msg("failed to resolve image reference")
			return nil
		}
		return img
	}

	l.OnStart()

	if err := imaging.CheckSize(size.Width, size.Height); err != nil {
		l.OnError(err)
		return
	}

	var placeholderCached bool
	if key, ok := d.PlaceholderMemoryCacheKey(); ok {
		if ext, err := cachekey.ToExternal(key); err == nil {
			if img, ok := e.memory.Get(ext.Canonical()); ok {
				placeholderCached = true
				setImage(ImagePlaceholder, img)
			}
		}
	}
	if !placeholderCached {
		setImage(ImagePlaceholder, resolve(firstRef(d.Placeholder(), defaults.placeholder)))
	}

	if crossfade := effectiveCrossfade(d, defaults); crossfade > 0 {
		log.Debug().Int("crossfade_ms", crossfade).Msg("crossfade requested; not animated")
	}
	if d.VideoFrameMillis() != 0 || d.VideoFrameMicros() != 0 {
		log.Debug().Int64("video_frame_ms", d.VideoFrameMillis()).Int64("video_frame_us", d.VideoFrameMicros()).
			Msg("video frame requested; decoding first frame only")
	}

	if d.URI() == "" {
		setImage(ImageFallback, resolve(firstRef(d.FallbackImage(), defaults.fallback, d.ErrorImage(), defaults.errorImage)))
		l.OnError(ErrNullRequestData)
		return
	}

	img, meta, err := e.load(ctx, d, defaults)
	if ctx.Err() != nil {
		log.Debug().Msg("request cancelled")
		l.OnCancel()
		return
	}
	if err != nil {
		log.Debug().Err(err).Msg("request failed")
		setImage(ImageError, resolve(firstRef(d.ErrorImage(), defaults.errorImage)))
		l.OnError(err)
		return
	}

	meta.IsPlaceholderMemoryCacheKeyPresent = placeholderCached
	setImage(ImageResult, img)
	log.Debug().Str("data_source", meta.DataSource.String()).Bool("sampled", meta.IsSampled).Msg("request succeeded")
	l.OnSuccess(meta)
}

// load resolves d through memory, disk and source, honouring the
// effective cache policies.
func (e *Local) load(ctx context.Context, d request.Descriptor, defaults loaderDefaults) (image.Image, Metadata, error) {
	diskPolicy := d.DiskCachePolicy().Or(defaults.disk)
	memoryPolicy := d.MemoryCachePolicy().Or(defaults.memory)
	networkPolicy := d.NetworkCachePolicy().Or(defaults.network)

	key, err := cachekey.ToExternal(e.memoryKey(d, defaults))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("engine: invalid memory cache key: %w", err)
	}
	canonical := key.Canonical()

	if memoryPolicy.ReadEnabled() {
		if img, ok := e.memory.Get(canonical); ok {
			return img, Metadata{DataSource: SourceMemory, MemoryCacheKey: &key}, nil
		}
	}

	raw, err := e.readSource(ctx, d, diskPolicy, networkPolicy)
	if err != nil {
		return nil, Metadata{}, err
	}

	img, err := imaging.Decode(raw.data)
	if err != nil {
		return nil, Metadata{}, err
	}

	meta := Metadata{DataSource: raw.source}
	if size, ok := d.Size(); ok {
		img, meta.IsSampled = imaging.Resize(img, size.Width, size.Height, d.Scale() == request.ScaleFill)
	}
	img = imaging.ApplyTransforms(img, d.Transforms())

	if memoryPolicy.WriteEnabled() {
		e.memory.Put(canonical, img)
		meta.MemoryCacheKey = &key
	}
	return img, meta, nil
}

// readSource returns the encoded bytes for d. Network responses go through
// the disk cache when the disk policy allows it.
func (e *Local) readSource(ctx context.Context, d request.Descriptor, diskPolicy, networkPolicy request.CachePolicy) (fetched, error) {
	kind, _, err := classify(d.URI())
	if err != nil {
		return fetched{}, err
	}
	if kind != sourceHTTP {
		return e.fetchSource(ctx, d.URI(), nil)
	}

	if diskPolicy.ReadEnabled() {
		if data, ok := e.disk.Get(d.URI()); ok {
			return fetched{data: data, source: SourceDisk}, nil
		}
	}
	if !networkPolicy.ReadEnabled() {
		return fetched{}, ErrNetworkDisabled
	}

	raw, err := e.fetchSource(ctx, d.URI(), d.Headers())
	if err != nil {
		return fetched{}, err
	}
	if diskPolicy.WriteEnabled() {
		if err := e.disk.Put(d.URI(), raw.data); err != nil {
			e.log.Warn().Err(err).Str("uri", d.URI()).Msg("disk cache write failed")
		}
	}
	return raw, nil
}

// memoryKey returns the descriptor's explicit memory cache key or derives
// one from the URI, transforms, size and decode parameters.
func (e *Local) memoryKey(d request.Descriptor, defaults loaderDefaults) cachekey.Key {
	if k, ok := d.MemoryCacheKey(); ok {
		return k
	}

	var size cachekey.Size
	if s, ok := d.Size(); ok {
		size = cachekey.Size{Width: s.Width, Height: s.Height}
	}

	params := map[string]string{}
	if d.Scale() == request.ScaleFill {
		params["scale"] = d.Scale().String()
	}
	if ms := d.VideoFrameMillis(); ms != 0 {
		params["videoFrameMillis"] = strconv.FormatInt(ms, 10)
	}
	if us := d.VideoFrameMicros(); us != 0 {
		params["videoFrameMicros"] = strconv.FormatInt(us, 10)
	}
	if defaults.addLastModified {
		if kind, path, err := classify(d.URI()); err == nil && kind == sourceFile {
			if info, err := os.Stat(path); err == nil {
				params["lastModified"] = strconv.FormatInt(info.ModTime().UnixMilli(), 10)
			}
		}
	}

	return cachekey.NewComplex(d.URI(), transform.CacheKeys(d.Transforms()), size, params)
}

// SetOptions replaces the loader defaults. Fields left nil keep the base
// values: disk ENABLED, memory DISABLED, network ENABLED, crossfade 100ms.
func (e *Local) SetOptions(o request.LoaderOptions) {
	d := baseDefaults()
	if o.DiskCachePolicy != nil {
		d.disk = *o.DiskCachePolicy
	}
	if o.MemoryCachePolicy != nil {
		d.memory = *o.MemoryCachePolicy
	}
	if o.NetworkCachePolicy != nil {
		d.network = *o.NetworkCachePolicy
	}
	if o.Crossfade != nil {
		d.crossfade = *o.Crossfade
	}
	if o.Placeholder != nil {
		d.placeholder = *o.Placeholder
	}
	if o.Error != nil {
		d.errorImage = *o.Error
	}
	if o.Fallback != nil {
		d.fallback = *o.Fallback
	}
	if o.AddLastModifiedToFileCacheKey != nil {
		d.addLastModified = *o.AddLastModifiedToFileCacheKey
	}

	e.mu.Lock()
	e.defaults = d
	e.mu.Unlock()

	e.log.Info().
		Str("disk_policy", d.disk.String()).
		Str("memory_policy", d.memory.String()).
		Str("network_policy", d.network.String()).
		Int("crossfade_ms", d.crossfade).
		Msg("loader options updated")
}

func (e *Local) snapshot() loaderDefaults {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaults
}

// Prefetch loads uris into tier. DISK writes only the disk cache, MEMORY
// only the memory cache. Failures are joined and returned once every load
// has ended.
func (e *Local) Prefetch(ctx context.Context, uris []string, tier Tier) error {
	disk, memory := request.PolicyEnabled, request.PolicyDisabled
	if tier == TierMemory {
		disk, memory = request.PolicyDisabled, request.PolicyEnabled
	}
	defaults := e.snapshot()

	var g errgroup.Group
	g.SetLimit(prefetchConcurrency)
	var errs []error
	var mu sync.Mutex
	for _, uri := range uris {
		if uri == "" {
			continue
		}
		g.Go(func() error {
			d := request.New(uri, request.WithCachePolicies(disk, memory, request.PolicyUnset))
			if _, _, err := e.load(ctx, d, defaults); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("prefetch %s: %w", uri, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	e.log.Debug().Int("count", len(uris)).Str("tier", tier.String()).Int("failed", len(errs)).Msg("prefetch finished")
	return errors.Join(errs...)
}

// ClearMemoryCache empties the memory cache.
func (e *Local) ClearMemoryCache() {
	e.memory.Clear()
}

// ClearDiskCache empties the disk cache.
func (e *Local) ClearDiskCache() error {
	return e.disk.Clear()
}

// ClearAllCache clears the tiers whose default policy is not DISABLED.
func (e *Local) ClearAllCache() error {
	d := e.snapshot()
	if d.memory != request.PolicyDisabled {
		e.ClearMemoryCache()
	}
	if d.disk != request.PolicyDisabled {
		return e.ClearDiskCache()
	}
	return nil
}

// effectiveCrossfade prefers an explicit descriptor value, including an
// explicit 0, over the loader default.
func effectiveCrossfade(d request.Descriptor, defaults loaderDefaults) int {
	if d.HasCrossfade() {
		return d.CrossfadeMillis()
	}
	return defaults.crossfade
}

func firstRef(refs ...request.ImageRef) request.ImageRef {
	for _, r := range refs {
		if r != "" {
			return r
		}
	}
	return ""
}
