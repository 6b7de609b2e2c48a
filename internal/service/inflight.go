package service

import "sync"

// inflightGuard admits at most one publish per post id.
type inflightGuard struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{ids: make(map[string]struct{})}
}

// acquire marks id as publishing; false means another publish holds it.
func (g *inflightGuard) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.ids[id]; busy {
		return false
	}
	g.ids[id] = struct{}{}
	return true
}

func (g *inflightGuard) release(id string) {
	g.mu.Lock()
	delete(g.ids, id)
	g.mu.Unlock()
}
