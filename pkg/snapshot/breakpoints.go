package snapshot

import (
	"slices"
	"sync"
)

// Breakpoints is the set of snapshot labels currently armed. Until the first
// successful poll nothing is known and every label counts as active.
type Breakpoints struct {
	mu     sync.RWMutex
	known  bool
	labels map[string]struct{}
}

func NewBreakpoints() *Breakpoints {
	return &Breakpoints{labels: make(map[string]struct{})}
}

// Set replaces the armed labels and reports whether the set changed.
func (b *Breakpoints) Set(labels []string) bool {
	next := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		next[l] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := !b.known || len(next) != len(b.labels)
	if !changed {
		for l := range next {
			if _, ok := b.labels[l]; !ok {
				changed = true
				break
			}
		}
	}
	b.labels = next
	b.known = true
	return changed
}

// Active reports whether snapshots labelled label should be recorded. With
// no breakpoints known, or an empty set received, every label is active.
func (b *Breakpoints) Active(label string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.known || len(b.labels) == 0 {
		return true
	}
	_, ok := b.labels[label]
	return ok
}

// Labels returns the armed labels in sorted order.
func (b *Breakpoints) Labels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.labels))
	for l := range b.labels {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}
