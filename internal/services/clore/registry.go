package clore

import (
	"sync"
	"time"
)

// Registry hands out one Client per owner, created lazily on first use.
// Clients are dropped explicitly when an owner is deactivated or changes
// API key, instead of living forever in an implicit process-wide map.
type Registry struct {
	baseURL string
	spacing time.Duration

	mu      sync.Mutex
	clients map[uint]*registryEntry
}

type registryEntry struct {
	apiKey string
	client *Client
}

func NewRegistry(baseURL string, spacing time.Duration) *Registry {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if spacing <= 0 {
		spacing = DefaultRequestSpacing
	}
	return &Registry{
		baseURL: baseURL,
		spacing: spacing,
		clients: make(map[uint]*registryEntry),
	}
}

// Get returns the client for an owner, creating it on first use. A changed
// API key replaces the cached client so stale credentials never linger.
func (r *Registry) Get(ownerID uint, apiKey string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.clients[ownerID]; ok && entry.apiKey == apiKey {
		return entry.client
	}
	client := NewClientWith(apiKey, r.baseURL, r.spacing)
	r.clients[ownerID] = &registryEntry{apiKey: apiKey, client: client}
	return client
}

// Drop disposes the cached client for an owner
func (r *Registry) Drop(ownerID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, ownerID)
}

// Len reports how many owner clients are live
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
