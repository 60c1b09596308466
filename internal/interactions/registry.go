package interactions

import (
	"context"
	"sync"
)

// HandlerFunc handles an interaction for an embedded bot, one that runs
// inside the server process instead of behind a webhook.
type HandlerFunc func(ctx context.Context, in Interaction) (*BotResponse, error)

// HandlerRegistry maps bot IDs to in-process handlers. Bots with a
// registered handler are delivered directly, bypassing the webhook client.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]HandlerFunc)}
}

// Register installs fn as the handler for botID, replacing any previous one.
func (r *HandlerRegistry) Register(botID string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[botID] = fn
}

// Lookup returns the handler for botID, if any.
func (r *HandlerRegistry) Lookup(botID string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[botID]
	return fn, ok
}
