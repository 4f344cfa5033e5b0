package core

import (
	"strings"
	"sync"
)

// JobGuard is a running flag per job key. A trigger that fires while the
// previous run is still active is skipped, never queued.
type JobGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewJobGuard() *JobGuard {
	return &JobGuard{running: map[string]struct{}{}}
}

// TryStart marks key as running. The returned release must be called when
// the run ends; ok is false when key is already running.
func (g *JobGuard) TryStart(key string) (release func(), ok bool) {
	if g == nil {
		return func() {}, true
	}
	key = strings.TrimSpace(key)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = map[string]struct{}{}
	}
	if _, busy := g.running[key]; busy {
		return func() {}, false
	}
	g.running[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		})
	}, true
}

func (g *JobGuard) Running(key string) bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.running[strings.TrimSpace(key)]
	return busy
}
