package mqtt

import (
	"sync"

	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// Subscription is one active topic filter.
type Subscription struct {
	Filter string
	QoS    QoS

	// Kind is the handler slot that receives messages matched by Filter.
	Kind message.Kind
}

// Registry tracks active subscriptions keyed by filter, in insertion order.
//
// It is safe for concurrent use. Re-subscribing an existing filter replaces
// its QoS and kind but keeps its original position.
type Registry struct {
	mu      sync.RWMutex
	byKey   map[string]int
	ordered []Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]int)}
}

// Put inserts or replaces the subscription for sub.Filter.
//
// Returns the previous entry and true when the filter was already present.
func (r *Registry) Put(sub Subscription) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.byKey[sub.Filter]; ok {
		prev := r.ordered[i]
		r.ordered[i] = sub
		return prev, true
	}
	r.byKey[sub.Filter] = len(r.ordered)
	r.ordered = append(r.ordered, sub)
	return Subscription{}, false
}

// Remove deletes the subscription for filter. Absent filters are a no-op.
func (r *Registry) Remove(filter string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byKey[filter]
	if !ok {
		return Subscription{}, false
	}
	prev := r.ordered[i]
	r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
	delete(r.byKey, filter)
	for j := i; j < len(r.ordered); j++ {
		r.byKey[r.ordered[j].Filter] = j
	}
	return prev, true
}

// Get returns the subscription for an exact filter string.
func (r *Registry) Get(filter string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byKey[filter]
	if !ok {
		return Subscription{}, false
	}
	return r.ordered[i], true
}

// Snapshot returns a copy of all subscriptions in insertion order.
func (r *Registry) Snapshot() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscription, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// Clear removes every subscription.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = make(map[string]int)
	r.ordered = nil
}

// Match returns the most specific subscription whose filter matches the
// concrete topic: fewest wildcards, then longest literal prefix, then the
// earliest subscribed.
func (r *Registry) Match(concrete string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best     Subscription
		bestRank topic.Specificity
		found    bool
	)
	for _, sub := range r.ordered {
		if !topic.Match(sub.Filter, concrete) {
			continue
		}
		rank := topic.SpecificityOf(sub.Filter)
		if !found || rank.MoreSpecificThan(bestRank) {
			best, bestRank, found = sub, rank, true
		}
	}
	return best, found
}
