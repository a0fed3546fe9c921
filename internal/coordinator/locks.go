package coordinator

import "sync"

// lockTable is the per-id lock map guarding the snapshot-copy step. Entries
// are created lazily on first use and pruned by the janitor once an id has
// left both the live cache and the active-load set.
type lockTable struct {
	m sync.Map // id -> *sync.RWMutex
}

func (t *lockTable) get(id string) *sync.RWMutex {
	if v, ok := t.m.Load(id); ok {
		return v.(*sync.RWMutex)
	}
	v, _ := t.m.LoadOrStore(id, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

func (t *lockTable) remove(id string) {
	t.m.Delete(id)
}

func (t *lockTable) len() int {
	n := 0
	t.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// prune removes entries for ids the keep func rejects, returning how many
// were dropped.
func (t *lockTable) prune(keep func(id string) bool) int {
	removed := 0
	t.m.Range(func(k, _ any) bool {
		if !keep(k.(string)) {
			t.m.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

func (t *lockTable) clear() {
	t.m.Range(func(k, _ any) bool {
		t.m.Delete(k)
		return true
	})
}
