package catalog

import (
	"context"
	"sync"

	"github.com/jpalmerr/nasbridge/internal/nasapi"
)

// Memo is a [Fetcher] that requests each endpoint at most once and replays
// the first response afterwards, failures included. One Memo spans one poll
// cycle, so discovery and collection share the same documents.
type Memo struct {
	api Fetcher

	mu        sync.Mutex
	responses map[string]nasapi.Response
}

// NewMemo wraps api.
func NewMemo(api Fetcher) *Memo {
	return &Memo{api: api, responses: make(map[string]nasapi.Response)}
}

// Get returns the cached response for endpoint, fetching it on first use.
// Concurrent first calls for the same endpoint may both reach api; the
// first stored response wins.
func (m *Memo) Get(ctx context.Context, endpoint string) nasapi.Response {
	m.mu.Lock()
	resp, ok := m.responses[endpoint]
	m.mu.Unlock()
	if ok {
		return resp
	}

	resp = m.api.Get(ctx, endpoint)

	m.mu.Lock()
	defer m.mu.Unlock()
	if first, ok := m.responses[endpoint]; ok {
		return first
	}
	m.responses[endpoint] = resp
	return resp
}
