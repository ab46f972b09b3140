package dispatch

import "sync"

// Registry maps a user or captain identity to its current live connection.
// At most one connection per identity: a reconnect supersedes the previous
// session rather than appending to it.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]string // identity -> connection id
	byConn map[string]string // connection id -> identity
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]string), byConn: make(map[string]string)}
}

// Register installs the mapping and reports the connection it replaced, if
// any. Callers tracking per-identity state (presence gauges) key off
// superseded to avoid double counting reconnects.
func (r *Registry) Register(identity, connectionID string) (prev string, superseded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byUser[identity]; ok {
		delete(r.byConn, old)
		prev, superseded = old, true
	}
	r.byUser[identity] = connectionID
	r.byConn[connectionID] = identity
	return prev, superseded
}

// Unregister is keyed by connection id, not identity: a late disconnect event
// from a superseded session must not clobber the mapping the reconnect just
// installed. Idempotent.
func (r *Registry) Unregister(connectionID string) (identity string, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byConn[connectionID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connectionID)
	if r.byUser[identity] == connectionID {
		delete(r.byUser, identity)
	}
	return identity, true
}

func (r *Registry) Lookup(identity string) (connectionID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connectionID, ok = r.byUser[identity]
	return connectionID, ok
}
