// Package session holds the in-process per-user state: the identity to
// workspace mapping and the duplicate-suppression tables. Nothing in here
// survives a restart; the on-disk workspaces and the container runtime are
// the durable layers.
package session

import "sync"

type Session struct {
	WorkspaceDir string
}

// Registry maps a logged-in user to its session. Entries are created on the
// first successful login or registration and consulted afterwards.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

func (r *Registry) Put(user string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[user] = s
}

func (r *Registry) Get(user string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[user]
	return s, ok
}

func (r *Registry) Forget(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, user)
}
