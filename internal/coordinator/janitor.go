package coordinator

import "go.uber.org/zap"

// pruneStale drops auxiliary-map entries that outlived their session:
// name-index entries whose id left the live cache, and lock entries for ids
// in neither the cache nor the active-load set. Keeps the maps bounded
// across long uptimes; eviction on disconnect already handles the common
// case.
func (c *Coordinator) pruneStale() (removed int) {
	c.nameIndex.Range(func(k, v any) bool {
		if _, ok := c.profiles.Load(v.(string)); !ok {
			c.nameIndex.Delete(k)
			removed++
		}
		return true
	})

	removed += c.locks.prune(func(id string) bool {
		if _, ok := c.profiles.Load(id); ok {
			return true
		}
		_, loading := c.loads.Load(id)
		return loading
	})

	if removed > 0 {
		c.log.Debug("janitor pruned stale entries", zap.Int("removed", removed))
	}
	return removed
}
