package usecase

import "sync"

// BatchGuard tracks which classes are referenced by in-flight batch runs so
// the registry can refuse deletes that a running batch might still read.
// Upserts stay allowed: every document resolves its class exactly once, so a
// concurrent run observes either the old or the new definition, never a mix
// within one document.
type BatchGuard struct {
	mu       sync.Mutex
	byClass  map[string]int
	wildcard int
}

func NewBatchGuard() *BatchGuard {
	return &BatchGuard{byClass: make(map[string]int)}
}

// Acquire registers a run against className for its whole duration. An empty
// className marks an auto-classify run, which may read any class. The
// returned release is safe to call more than once.
func (g *BatchGuard) Acquire(className string) func() {
	g.mu.Lock()
	if className == "" {
		g.wildcard++
	} else {
		g.byClass[className]++
	}
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if className == "" {
				g.wildcard--
				return
			}
			g.byClass[className]--
			if g.byClass[className] <= 0 {
				delete(g.byClass, className)
			}
		})
	}
}

// InUse reports whether any in-flight run could read className.
func (g *BatchGuard) InUse(className string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.wildcard > 0 || g.byClass[className] > 0
}
