package realtime

import "sync"

// Registry is the per-process map from identity to live connections.
// A single identity may own several concurrent connections (multi-tab,
// multi-device). Entirely in-memory; rebuilt from nothing on restart as
// clients reconnect.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*registeredConn       // connID → conn
	byUser map[string]map[string]*registeredConn // userID → connID → conn
}

type registeredConn struct {
	conn     Conn
	identity Identity
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*registeredConn),
		byUser: make(map[string]map[string]*registeredConn),
	}
}

// Register adds a connection and returns its id. Never fails; a reused
// connection id replaces the stale entry.
func (r *Registry) Register(identity Identity, conn Conn) string {
	id := conn.ID()
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[id]; ok {
		r.removeLocked(id, old)
	}
	rc := &registeredConn{conn: conn, identity: identity}
	r.conns[id] = rc
	if r.byUser[identity.UserID] == nil {
		r.byUser[identity.UserID] = make(map[string]*registeredConn)
	}
	r.byUser[identity.UserID][id] = rc
	return id
}

// Unregister removes a connection. Idempotent. Reports the identity that
// owned the connection and whether it was the identity's last one.
func (r *Registry) Unregister(connID string) (identity Identity, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, found := r.conns[connID]
	if !found {
		return Identity{}, false, false
	}
	r.removeLocked(connID, rc)
	return rc.identity, len(r.byUser[rc.identity.UserID]) == 0, true
}

func (r *Registry) removeLocked(connID string, rc *registeredConn) {
	delete(r.conns, connID)
	if set, ok := r.byUser[rc.identity.UserID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, rc.identity.UserID)
		}
	}
}

// ConnectionsFor returns every live connection an identity owns, for
// targeted delivery across all its devices.
func (r *Registry) ConnectionsFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for _, rc := range set {
		conns = append(conns, rc.conn)
	}
	return conns
}

// IdentityOf resolves a connection id to its identity.
func (r *Registry) IdentityOf(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.conns[connID]
	if !ok {
		return Identity{}, false
	}
	return rc.identity, true
}

// Conn returns the live connection for an id, if still registered.
func (r *Registry) Conn(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return rc.conn, true
}

// Alive reports whether a connection is still registered. The coordinator
// checks this before committing broadcasts for actions that may have been
// overtaken by a disconnect.
func (r *Registry) Alive(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

// Online reports whether the identity has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Count returns the number of live connections in this process.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
