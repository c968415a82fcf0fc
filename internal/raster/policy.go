package raster

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Policy decides which cache entries survive. Methods are called with the
// cache lock held.
type Policy interface {
	// Admit records a new key and returns the keys that must be evicted.
	Admit(key string) []string
	// Touch records a hit on an existing key.
	Touch(key string)
}

// Unbounded keeps every entry for the life of the cache.
type Unbounded struct{}

func (Unbounded) Admit(string) []string { return nil }

func (Unbounded) Touch(string) {}

// LRU evicts the least recently used entry once capacity is exceeded.
type LRU struct {
	list    *simplelru.LRU[string, struct{}]
	evicted []string
}

// NewLRU returns a policy that keeps at most capacity entries.
func NewLRU(capacity int) (*LRU, error) {
	p := &LRU{}
	list, err := simplelru.NewLRU[string, struct{}](capacity, func(key string, _ struct{}) {
		p.evicted = append(p.evicted, key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU policy: %w", err)
	}
	p.list = list
	return p, nil
}

func (p *LRU) Admit(key string) []string {
	p.evicted = nil
	p.list.Add(key, struct{}{})
	evicted := p.evicted
	p.evicted = nil
	return evicted
}

func (p *LRU) Touch(key string) {
	p.list.Get(key)
}

// NewPolicy maps a configured policy name to a Policy.
func NewPolicy(name string, capacity int) (Policy, error) {
	switch name {
	case "", "unbounded":
		return Unbounded{}, nil
	case "lru":
		return NewLRU(capacity)
	default:
		return nil, fmt.Errorf("unknown cache policy: %s", name)
	}
}
