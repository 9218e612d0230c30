package flag

// dedupCache remembers the most recent message keys, evicting the oldest
// once full. Not safe for concurrent use.
type dedupCache struct {
	size  int
	keys  map[string]struct{}
	order []string
}

func newDedupCache(size int) *dedupCache {
	if size <= 0 {
		size = DefaultDedupSize
	}
	return &dedupCache{
		size: size,
		keys: make(map[string]struct{}, size),
	}
}

// add records key and reports whether it was new.
func (c *dedupCache) add(key string) bool {
	if _, ok := c.keys[key]; ok {
		return false
	}
	c.keys[key] = struct{}{}
	c.order = append(c.order, key)
	for len(c.order) > c.size {
		oldest := c.order[0]
		c.order[0] = ""
		c.order = c.order[1:]
		delete(c.keys, oldest)
	}
	return true
}
