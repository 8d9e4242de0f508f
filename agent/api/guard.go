package api

import "sync"

// runGuard allows one in-flight run per user.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunGuard() *runGuard {
	return &runGuard{running: make(map[string]struct{})}
}

func (g *runGuard) acquire(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[userID]; busy {
		return false
	}
	g.running[userID] = struct{}{}
	return true
}

func (g *runGuard) release(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, userID)
}
