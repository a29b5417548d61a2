package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ironsheep/imageview-bridge/internal/imaging"
)

// maxResponseBytes bounds a single network response.
const maxResponseBytes = 64 << 20

var (
	// ErrNullRequestData is reported when a request has no URI.
	ErrNullRequestData = errors.New("null request data")
	// ErrNetworkDisabled is reported when the network policy forbids the
	// fetch a request needs.
	ErrNetworkDisabled = errors.New("engine: network reads disabled by networkCachePolicy")
	// ErrUnsupportedScheme is reported for URIs the engine cannot fetch.
	ErrUnsupportedScheme = errors.New("engine: unsupported uri scheme")
	// ErrLoadPanicked is reported when a load panics.
	ErrLoadPanicked = errors.New("engine: load panicked")
)

// HTTPError is a non-retryable HTTP status.
type HTTPError struct {
	StatusCode int
	URI        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("engine: HTTP %d fetching %s", e.StatusCode, e.URI)
}

type sourceKind int

const (
	sourceHTTP sourceKind = iota
	sourceFile
	sourceData
)

func classify(uri string) (sourceKind, string, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return sourceHTTP, uri, nil
	case strings.HasPrefix(uri, "data:"):
		return sourceData, uri, nil
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return 0, "", fmt.Errorf("engine: invalid file uri: %w", err)
		}
		return sourceFile, u.Path, nil
	case !strings.Contains(uri, "://"):
		return sourceFile, uri, nil
	default:
		return 0, "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, uri)
	}
}

// fetched is raw image bytes plus where they came from.
type fetched struct {
	data   []byte
	source DataSource
}

// fetchSource reads the bytes behind uri from the filesystem, a data URI or
// the network. Concurrent network fetches of the same URI and headers share
// one download; a caller whose ctx ends stops waiting without aborting it.
func (e *Local) fetchSource(ctx context.Context, uri string, headers map[string]string) (fetched, error) {
	kind, target, err := classify(uri)
	if err != nil {
		return fetched{}, err
	}

	switch kind {
	case sourceData:
		data, err := imaging.DecodeDataURI(target)
		if err != nil {
			return fetched{}, err
		}
		return fetched{data: data, source: SourceMemory}, nil
	case sourceFile:
		data, err := os.ReadFile(target)
		if err != nil {
			return fetched{}, fmt.Errorf("engine: failed to read %s: %w", target, err)
		}
		return fetched{data: data, source: SourceDisk}, nil
	}

	ch := e.group.DoChan(flightKey(uri, headers), func() (any, error) {
		return e.fetchHTTP(context.WithoutCancel(ctx), uri, headers)
	})
	select {
	case <-ctx.Done():
		return fetched{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return fetched{}, r.Err
		}
		return fetched{data: r.Val.([]byte), source: SourceNetwork}, nil
	}
}

func flightKey(uri string, headers map[string]string) string {
	if len(headers) == 0 {
		return uri
	}
	var b strings.Builder
	b.WriteString(uri)
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		b.WriteString("\n" + k + ":" + headers[k])
	}
	return b.String()
}

// fetchHTTP performs a GET, retrying transport failures, 429 and 5xx
// responses with exponential backoff.
func (e *Local) fetchHTTP(ctx context.Context, uri string, headers map[string]string) ([]byte, error) {
	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("engine: invalid request: %w", err))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("engine: failed to fetch %s: %w", uri, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, &HTTPError{StatusCode: resp.StatusCode, URI: uri}
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, backoff.Permanent(&HTTPError{StatusCode: resp.StatusCode, URI: uri})
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("engine: failed to read response from %s: %w", uri, err)
		}
		return data, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.log.Debug().Err(err).Str("uri", uri).Dur("retry_in", next).Msg("fetch failed, retrying")
		}),
	)
}
