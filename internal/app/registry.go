package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

type channelEntry struct {
	UserID domain.UserID
	Cancel context.CancelFunc
}

// Registry tracks the open client event channels of this process.
type Registry struct {
	mu       sync.RWMutex
	channels map[domain.QueueID]*channelEntry
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[domain.QueueID]*channelEntry)}
}

func (r *Registry) Bind(queueID domain.QueueID, userID domain.UserID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[queueID] = &channelEntry{UserID: userID, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("queue", string(queueID)).Str("user", string(userID)).Msg("bound channel")
}

func (r *Registry) Unbind(queueID domain.QueueID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, queueID)
	log.Info().Str("module", "app.registry").Str("queue", string(queueID)).Msg("unbind channel")
}

func (r *Registry) UserOf(queueID domain.QueueID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[queueID]
	if !ok {
		return "", false
	}
	return e.UserID, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// CancelAll closes every channel, used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(r.channels))
	for _, e := range r.channels {
		if e.Cancel != nil {
			cancels = append(cancels, e.Cancel)
		}
	}
	r.mu.RUnlock()
	for _, c := range cancels {
		c()
	}
}
