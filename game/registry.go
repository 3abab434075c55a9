package game

import "sync"

// Registry maps every participant's live connection to the shared runtime
// match. It is keyed by connection id, not match id: each player's socket
// maps independently to the same match. A secondary matchID -> connection-id
// index backs the "purge everything for this match" path, so termination
// never scans.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]int          // connection id -> match id
	matches map[int]*Match          // match id -> shared instance
	index   map[int]map[string]bool // match id -> connection ids
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]int),
		matches: make(map[int]*Match),
		index:   make(map[int]map[string]bool),
	}
}

// Register binds a connection to a match. Binding the same connection again
// replaces its previous entry.
func (r *Registry) Register(connID string, match *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[connID]; ok && prev != match.MatchID {
		r.dropLocked(connID, prev)
	}

	r.conns[connID] = match.MatchID
	r.matches[match.MatchID] = match
	if _, ok := r.index[match.MatchID]; !ok {
		r.index[match.MatchID] = make(map[string]bool)
	}
	r.index[match.MatchID][connID] = true
}

// ByConnection returns the match the connection is bound to.
func (r *Registry) ByConnection(connID string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matchID, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	match, ok := r.matches[matchID]
	return match, ok
}

// Connections returns every connection id bound to the match.
func (r *Registry) Connections(matchID int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.index[matchID]))
	for connID := range r.index[matchID] {
		ids = append(ids, connID)
	}
	return ids
}

// RemoveMatch purges every registry entry referencing the match and returns
// the connection ids that were bound to it. Removing an unknown match is a
// no-op.
func (r *Registry) RemoveMatch(matchID int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]string, 0, len(r.index[matchID]))
	for connID := range r.index[matchID] {
		delete(r.conns, connID)
		removed = append(removed, connID)
	}
	delete(r.index, matchID)
	delete(r.matches, matchID)
	return removed
}

func (r *Registry) dropLocked(connID string, matchID int) {
	delete(r.conns, connID)
	if set, ok := r.index[matchID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.index, matchID)
			delete(r.matches, matchID)
		}
	}
}
