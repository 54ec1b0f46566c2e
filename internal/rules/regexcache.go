package rules

import (
	"regexp"
	"sync"
)

// RegexCache is an explicit keyed store of compiled patterns shared across
// rule evaluations. Population is serialized so a pattern compiles at most
// once; invalidation is driven by rule edits, never by time.
type RegexCache struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

func NewRegexCache() *RegexCache {
	return &RegexCache{compiled: make(map[string]*regexp.Regexp)}
}

// Get returns the compiled form of pattern, compiling and caching it on
// first use.
func (c *RegexCache) Get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.compiled[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.compiled[pattern] = re
	return re, nil
}

// Invalidate drops the given patterns. Called by the rule store when the
// owning rule's condition text is edited or the rule is deleted.
func (c *RegexCache) Invalidate(patterns ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range patterns {
		delete(c.compiled, p)
	}
}

// Retain evicts every cached pattern not present in keep and reports how
// many were dropped. The snapshot provider calls this on refresh so the
// cache never outgrows the active rule set.
func (c *RegexCache) Retain(keep map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for p := range c.compiled {
		if _, ok := keep[p]; !ok {
			delete(c.compiled, p)
			dropped++
		}
	}
	return dropped
}

// Len reports how many patterns are currently cached.
func (c *RegexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.compiled)
}
