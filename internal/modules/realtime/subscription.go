package realtime

import "sync"

// Subscriptions tracks which live connections belong to which broadcast
// groups. Dual indexes keep both directions O(1): group → connections for
// fanout, connection → groups for teardown. Pure bookkeeping; it never
// sends events itself.
type Subscriptions struct {
	mu      sync.RWMutex
	byGroup map[string]map[string]struct{}
	byConn  map[string]map[string]struct{}
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		byGroup: make(map[string]map[string]struct{}),
		byConn:  make(map[string]map[string]struct{}),
	}
}

func (s *Subscriptions) Subscribe(connID, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byGroup[group] == nil {
		s.byGroup[group] = make(map[string]struct{})
	}
	s.byGroup[group][connID] = struct{}{}
	if s.byConn[connID] == nil {
		s.byConn[connID] = make(map[string]struct{})
	}
	s.byConn[connID][group] = struct{}{}
}

func (s *Subscriptions) Unsubscribe(connID, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(connID, group)
}

func (s *Subscriptions) removeLocked(connID, group string) {
	if members, ok := s.byGroup[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(s.byGroup, group)
		}
	}
	if groups, ok := s.byConn[connID]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(s.byConn, connID)
		}
	}
}

// DropConn removes a connection from every group and returns the groups it
// was subscribed to.
func (s *Subscriptions) DropConn(connID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := s.byConn[connID]
	if len(groups) == 0 {
		return nil
	}
	dropped := make([]string, 0, len(groups))
	for group := range groups {
		dropped = append(dropped, group)
		if members, ok := s.byGroup[group]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(s.byGroup, group)
			}
		}
	}
	delete(s.byConn, connID)
	return dropped
}

// Members returns the connection ids currently subscribed to a group.
func (s *Subscriptions) Members(group string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.byGroup[group]
	if len(members) == 0 {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Subscribed reports whether a connection is in a group.
func (s *Subscriptions) Subscribed(connID, group string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byConn[connID][group]
	return ok
}
