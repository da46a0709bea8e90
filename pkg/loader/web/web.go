package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// WebSource fetches documents over HTTP. Refs for URLs without a known
// extension use FormatHTML and are extracted with readability.
type WebSource struct {
	client *http.Client

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewWebSource creates a web source. A nil client uses a client with a 60
// second timeout.
func NewWebSource(client *http.Client) *WebSource {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &WebSource{
		client: client,
		cache:  make(map[string][]byte),
	}
}

// Refs creates one ref per URL.
func (l *WebSource) Refs(urls ...string) []loader.DocumentRef {
	refs := make([]loader.DocumentRef, 0, len(urls))
	for _, u := range urls {
		format, ok := loader.FormatFromPath(u)
		if !ok {
			format = loader.FormatHTML
		}
		refs = append(refs, loader.DocumentRef{
			ID:     loader.DocumentID(u),
			Path:   u,
			Title:  u,
			Format: format,
			Source: l,
		})
	}
	return refs
}

// Fetch downloads ref.Path. Results are cached.
func (l *WebSource) Fetch(ctx context.Context, ref loader.DocumentRef) ([]byte, error) {
	key := loader.CacheKey(ref)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
		}

		result, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		l.cacheMu.Lock()
		l.cache[key] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
