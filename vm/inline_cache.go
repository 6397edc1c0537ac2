package vm

// ---------------------------------------------------------------------------
// Inline caches for virtual and interface call sites
// ---------------------------------------------------------------------------

// Each invokevirtual or invokeinterface instruction gets its own cache, keyed
// by the instruction's offset in the calling method. Vtables never change once
// a class is linked, so a cached (receiver class, target) pair stays valid.

// CacheState is the state of one call-site cache.
type CacheState uint8

const (
	CacheEmpty CacheState = iota
	CacheMonomorphic
	CachePolymorphic
	CacheMegamorphic
)

// MaxPICEntries bounds a polymorphic cache; one more receiver class makes
// the site megamorphic.
const MaxPICEntries = 6

type cacheEntry struct {
	class  *Class
	target *Method
}

// InlineCache holds the dispatch results seen at one call site.
type InlineCache struct {
	State   CacheState
	entries [MaxPICEntries]cacheEntry
	count   int

	Hits   uint64
	Misses uint64
}

// Lookup returns the cached target for a receiver class, or nil on a miss.
func (ic *InlineCache) Lookup(class *Class) *Method {
	for j := 0; j < ic.count; j++ {
		if ic.entries[j].class == class {
			ic.Hits++
			return ic.entries[j].target
		}
	}
	ic.Misses++
	return nil
}

// Update records a dispatch result, moving the cache towards megamorphic.
func (ic *InlineCache) Update(class *Class, target *Method) {
	if target == nil || ic.State == CacheMegamorphic {
		return
	}
	for j := 0; j < ic.count; j++ {
		if ic.entries[j].class == class {
			return
		}
	}
	if ic.count == MaxPICEntries {
		ic.State = CacheMegamorphic
		ic.entries = [MaxPICEntries]cacheEntry{}
		ic.count = 0
		return
	}
	ic.entries[ic.count] = cacheEntry{class: class, target: target}
	ic.count++
	if ic.count == 1 {
		ic.State = CacheMonomorphic
	} else {
		ic.State = CachePolymorphic
	}
}

// callSite returns the cache for the instruction at pc in m.
func (m *Method) callSite(pc int) *InlineCache {
	if m.sites == nil {
		m.sites = make(map[int]*InlineCache)
	}
	ic := m.sites[pc]
	if ic == nil {
		ic = &InlineCache{}
		m.sites[pc] = ic
	}
	return ic
}

// CallSite returns the cache for the call instruction at pc, or nil if that
// instruction has not dispatched yet.
func (m *Method) CallSite(pc int) *InlineCache {
	return m.sites[pc]
}
