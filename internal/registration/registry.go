package registration

import (
	"strings"
	"sync"

	"mybk-gateway/internal/markup"
	"mybk-gateway/internal/upstream"
)

// Flow is the live state of one registration workflow: the automation
// context plus the identifiers resolved for a period. It exists only
// in process memory; after a restart the caller must resolve the
// period again.
type Flow struct {
	Actx *upstream.Context

	PeriodID  string
	DrawingID string
	OwnerID   string

	Window *markup.Window
}

// Registry keys live flows by session token and period. Eviction is
// tied to session deletion.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Flow
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]*Flow)}
}

func key(token, periodID string) string {
	return token + ":" + periodID
}

func (r *Registry) Get(token, periodID string) (*Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.m[key(token, periodID)]
	return f, ok
}

func (r *Registry) Put(token, periodID string, f *Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key(token, periodID)] = f
}

// EvictSession drops every flow belonging to a session token.
func (r *Registry) EvictSession(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.m {
		if strings.HasPrefix(k, token+":") {
			delete(r.m, k)
		}
	}
}
