package h2disp

import (
	"sync"
	"sync/atomic"
)

type entryKind int8

const (
	entryOpen entryKind = iota
	entryLocalReset
	entryFailed
)

// streamEntry is the sum-typed table value. It is never mutated in
// place; transitions replace the pointer via CompareAndSwap, so pointer
// identity doubles as the CAS token the observer and the shutdown
// coordinator race over.
type streamEntry struct {
	kind    entryKind
	handler StreamHandler
	cause   error
}

// StreamTable is the concurrent id->entry map plus the monotonic
// ClosedHighWater counter. The zero value is ready to use.
type StreamTable struct {
	m         sync.Map // uint32 -> *streamEntry
	highWater atomic.Uint32
}

func (t *StreamTable) insert(id uint32, h StreamHandler) (*streamEntry, error) {
	e := &streamEntry{kind: entryOpen, handler: h}
	if _, loaded := t.m.LoadOrStore(id, e); loaded {
		return nil, &DuplicateStreamError{ID: id}
	}
	return e, nil
}

func (t *StreamTable) load(id uint32) (*streamEntry, bool) {
	v, ok := t.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*streamEntry), true
}

// casReplace transitions id from old to replacement. Returns false
// without side effects if the current value isn't old (already removed,
// or already transitioned by a racing shutdown/observer).
func (t *StreamTable) casReplace(id uint32, old, replacement *streamEntry) bool {
	return t.m.CompareAndSwap(id, old, replacement)
}

// remove deletes id if it still holds exactly `old`, and if so offers id
// to ClosedHighWater.
func (t *StreamTable) remove(id uint32, old *streamEntry) bool {
	if !t.m.CompareAndDelete(id, old) {
		return false
	}
	t.offerHighWater(id)
	return true
}

func (t *StreamTable) offerHighWater(id uint32) {
	for {
		cur := t.highWater.Load()
		if id <= cur {
			return
		}
		if t.highWater.CompareAndSwap(cur, id) {
			return
		}
	}
}

// HighWater returns the largest stream id known to have been retired.
func (t *StreamTable) HighWater() uint32 { return t.highWater.Load() }

// Len reports the current table size. It is O(n) and intended for
// diagnostics/tests, not hot-path use.
func (t *StreamTable) Len() int {
	n := 0
	t.m.Range(func(any, any) bool { n++; return true })
	return n
}

// rangeOpen invokes fn for every entry that was Open at the moment it was
// observed. Used only by the shutdown coordinator, which tolerates
// entries disappearing underneath it (they are only ever removed, never
// re-inserted as Open once the connection starts closing).
func (t *StreamTable) rangeOpen(fn func(id uint32, e *streamEntry)) {
	t.m.Range(func(k, v any) bool {
		e := v.(*streamEntry)
		if e.kind == entryOpen {
			fn(k.(uint32), e)
		}
		return true
	})
}
