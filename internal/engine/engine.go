// Package engine defines the contract between the declarative view layer and
// the image loading engine, and provides Local, a reference engine that
// loads from the network, the filesystem and data URIs.
//
// The view layer only ever talks to an Engine: it issues immutable request
// descriptors, keeps the returned Disposable, and receives lifecycle
// callbacks on a Listener. Callbacks may arrive on any goroutine.
package engine

import (
	"context"
	"fmt"
	"image"

	"github.com/ironsheep/imageview-bridge/internal/cachekey"
	"github.com/ironsheep/imageview-bridge/internal/request"
)

// Engine loads images for request descriptors.
type Engine interface {
	// Issue starts loading d and reports progress to l. The returned
	// Disposable cancels the load. Issue must not block on the load itself.
	Issue(d request.Descriptor, l Listener) Disposable

	// SetOptions replaces the process-wide loader defaults.
	SetOptions(o request.LoaderOptions)

	// Prefetch loads uris into the given cache tier without a view.
	Prefetch(ctx context.Context, uris []string, tier Tier) error

	ClearMemoryCache()
	ClearDiskCache() error

	// ClearAllCache clears every tier whose default policy is not DISABLED.
	ClearAllCache() error
}

// Disposable is a handle to one issued request.
type Disposable interface {
	ID() string
	Dispose()
	IsDisposed() bool
}

// Listener receives the lifecycle of one issued request. Exactly one of
// OnCancel, OnError or OnSuccess is called per Issue, normally after
// OnStart.
type Listener interface {
	OnStart()
	OnCancel()
	OnError(err error)
	OnSuccess(m Metadata)
}

// Target receives decoded images. A Listener that also implements Target
// is given the placeholder, result, error and fallback images.
type Target interface {
	SetImage(kind ImageKind, img image.Image)
}

// ImageKind says which slot an image delivered to a Target fills.
type ImageKind int

const (
	ImagePlaceholder ImageKind = iota
	ImageResult
	ImageError
	ImageFallback
)

func (k ImageKind) String() string {
	switch k {
	case ImagePlaceholder:
		return "placeholder"
	case ImageResult:
		return "result"
	case ImageError:
		return "error"
	case ImageFallback:
		return "fallback"
	default:
		return fmt.Sprintf("ImageKind(%d)", int(k))
	}
}

// DataSource is where a successful result came from.
type DataSource int

const (
	SourceMemory DataSource = iota
	SourceDisk
	SourceNetwork
)

func (s DataSource) String() string {
	switch s {
	case SourceMemory:
		return "MEMORY"
	case SourceDisk:
		return "DISK"
	case SourceNetwork:
		return "NETWORK"
	default:
		return fmt.Sprintf("DataSource(%d)", int(s))
	}
}

// MarshalText encodes the source name for JSON payloads.
func (s DataSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Metadata describes a successful load.
type Metadata struct {
	IsSampled  bool
	DataSource DataSource

	// MemoryCacheKey is the key the result is stored under in the memory
	// cache; nil when the result was not read from or written to it.
	MemoryCacheKey *cachekey.External

	IsPlaceholderMemoryCacheKeyPresent bool
}

// Tier selects the cache a prefetch loads into.
type Tier int

const (
	TierDisk Tier = iota
	TierMemory
)

func (t Tier) String() string {
	if t == TierMemory {
		return "MEMORY"
	}
	return "DISK"
}

// ParseTier parses "DISK" or "MEMORY". "MEMOR" is accepted as MEMORY for
// clients that still send the misspelled constant.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "DISK":
		return TierDisk, nil
	case "MEMORY", "MEMOR":
		return TierMemory, nil
	default:
		return TierDisk, fmt.Errorf("engine: unknown cache tier %q", s)
	}
}
