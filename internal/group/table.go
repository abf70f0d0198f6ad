// Package group implements the bounded per-interface group table shared
// by the IGMP and MLD subsystems: a fixed prefix of registered groups
// that is never evicted, followed by a dynamic suffix of learned groups
// capped at a configured limit.
package group

// Handle is an opaque data-plane outbound subscriber. The control plane
// never dereferences it beyond the Activate/Deactivate calls.
type Handle interface {
	ActivateOutbound()
	DeactivateOutbound()
}

// Entry is one group record. Addr is [4]byte for IGMP or [16]byte for
// MLD. Entries are held by pointer in Table so that their addresses
// remain stable across table growth — no index arithmetic is needed to
// survive a later append, unlike the reference implementation's
// reallocated C array.
type Entry[Addr comparable] struct {
	Addr   Addr
	Active bool
	Fixed  bool

	// Subscribers is the set of data-plane handles to toggle when this
	// group transitions between active and inactive. Populated only for
	// fixed (registered) entries.
	Subscribers []Handle

	// GroupQueriesRemaining is the outstanding last-member query burst
	// counter, owned by the membership state machine.
	GroupQueriesRemaining int

	// V1HostPresent is set by the IGMP membership state machine when a
	// v1 report was recently seen for this group; MLD never sets it.
	V1HostPresent bool
}

// Table is a per-interface group table: a fixed prefix of length
// fixedCount permanently reserved by RegisterGroup, followed by a
// dynamic suffix bounded by maxDynamic.
type Table[Addr comparable] struct {
	entries     []*Entry[Addr]
	fixedCount  int
	maxDynamic  int
	isLinkLocal func(Addr) bool
	zero        Addr
}

// New creates an empty table. isLinkLocal reports whether an address
// falls in the link-scope range that must never be tracked (224.0.0.0/24
// for IGMP, ff02::/16 for MLD).
func New[Addr comparable](maxDynamic int, isLinkLocal func(Addr) bool) *Table[Addr] {
	return &Table[Addr]{
		maxDynamic:  maxDynamic,
		isLinkLocal: isLinkLocal,
	}
}

// RegisterFixed ensures a fixed-prefix entry exists for addr and returns
// it, creating one if necessary. Fixed entries are only ever created
// during initialization, before the owning control-plane goroutine
// starts; they are never evicted or shrunk.
func (t *Table[Addr]) RegisterFixed(addr Addr) *Entry[Addr] {
	for _, e := range t.entries[:t.fixedCount] {
		if e.Addr == addr {
			return e
		}
	}

	e := &Entry[Addr]{Addr: addr, Fixed: true}
	t.entries = append(t.entries, nil)
	copy(t.entries[t.fixedCount+1:], t.entries[t.fixedCount:])
	t.entries[t.fixedCount] = e
	t.fixedCount++
	return e
}

// FindOrInsert looks up addr, preferring a fixed-prefix match, then an
// active dynamic match, then reusing the first inactive dynamic slot,
// then extending the dynamic suffix if capacity remains. It returns nil
// if addr is link-scope or the dynamic suffix is at capacity with no
// inactive slot to reuse; tableFull reports the latter case so the
// caller can log and count it distinctly from the link-scope rejection.
func (t *Table[Addr]) FindOrInsert(addr Addr) (entry *Entry[Addr], tableFull bool) {
	if addr == t.zero || (t.isLinkLocal != nil && t.isLinkLocal(addr)) {
		return nil, false
	}

	for _, e := range t.entries[:t.fixedCount] {
		if e.Addr == addr {
			return e, false
		}
	}

	var firstInactive *Entry[Addr]
	for _, e := range t.entries[t.fixedCount:] {
		if e.Addr == addr && e.Active {
			return e, false
		}
		if firstInactive == nil && !e.Active {
			firstInactive = e
		}
	}

	if firstInactive != nil {
		firstInactive.Addr = addr
		return firstInactive, false
	}

	if len(t.entries)-t.fixedCount >= t.maxDynamic {
		return nil, true
	}

	e := &Entry[Addr]{Addr: addr}
	t.entries = append(t.entries, e)
	return e, false
}

// Tighten pops trailing inactive dynamic entries, shrinking the table's
// backing slice after a group expiry.
func (t *Table[Addr]) Tighten() {
	for len(t.entries) > t.fixedCount && !t.entries[len(t.entries)-1].Active {
		t.entries = t.entries[:len(t.entries)-1]
	}
}

// DynamicCount returns the current number of occupied dynamic slots
// (active or inactive-but-not-yet-tightened).
func (t *Table[Addr]) DynamicCount() int {
	return len(t.entries) - t.fixedCount
}

// FixedCount returns the number of fixed-prefix entries.
func (t *Table[Addr]) FixedCount() int {
	return t.fixedCount
}

// All returns every entry, fixed prefix first.
func (t *Table[Addr]) All() []*Entry[Addr] {
	return t.entries
}
