// Package replacer implements the LRU-K replacement policy the buffer
// pool manager uses to pick eviction victims (spec §4.2).
package replacer

import (
	"container/list"
	"sync"

	"pagestore/types"
)

type entry struct {
	frame     types.FrameID
	useCount  int
	evictable bool
	elem      *list.Element // position in history or cache list
	inHistory bool
}

// LRUKReplacer tracks access history over frame ids and selects a victim
// frame for eviction using the k-distance policy: frames seen fewer than
// k times are evicted FIFO ahead of any frame that has reached k
// accesses, which is evicted by true LRU among the cache list.
type LRUKReplacer struct {
	mu sync.Mutex

	k        int
	history  *list.List // front = most recently inserted, back = oldest
	cache    *list.List // front = most recently used, back = least recently used
	entries  map[types.FrameID]*entry
	currSize int
}

// New returns a replacer with the given k parameter. numFrames is
// accepted for parity with the pack's constructors but the replacer
// itself grows its tracking map lazily as frames are recorded.
func New(numFrames int, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:       k,
		history: list.New(),
		cache:   list.New(),
		entries: make(map[types.FrameID]*entry, numFrames),
	}
}

// RecordAccess must be called on every access to frame while it is in
// use. See spec §4.2 for the exact history→cache promotion rule.
func (r *LRUKReplacer) RecordAccess(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[frame]
	if !ok {
		e = &entry{frame: frame}
		e.useCount = 1
		if e.useCount >= r.k {
			e.elem = r.cache.PushFront(frame)
		} else {
			e.elem = r.history.PushFront(frame)
			e.inHistory = true
		}
		r.entries[frame] = e
		return
	}

	e.useCount++
	switch {
	case e.useCount == r.k:
		r.history.Remove(e.elem)
		e.elem = r.cache.PushFront(frame)
		e.inHistory = false
	case e.useCount > r.k:
		r.cache.MoveToFront(e.elem)
	}
}

// SetEvictable marks frame evictable or not, adjusting the evictable
// frame count. Unknown frames are ignored.
func (r *LRUKReplacer) SetEvictable(frame types.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[frame]
	if !ok {
		return
	}
	if e.evictable == evictable {
		return
	}
	e.evictable = evictable
	if evictable {
		r.currSize++
	} else {
		r.currSize--
	}
}

// Evict selects and removes the next victim: the oldest evictable frame
// in history, or failing that the least-recently-used evictable frame
// in cache.
func (r *LRUKReplacer) Evict() (types.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if victim, ok := r.evictFrom(r.history, true); ok {
		return victim, true
	}
	if victim, ok := r.evictFrom(r.cache, false); ok {
		return victim, true
	}
	return 0, false
}

func (r *LRUKReplacer) evictFrom(l *list.List, fromHistory bool) (types.FrameID, bool) {
	for el := l.Back(); el != nil; el = el.Prev() {
		frame := el.Value.(types.FrameID)
		e := r.entries[frame]
		if !e.evictable {
			continue
		}
		l.Remove(el)
		delete(r.entries, frame)
		r.currSize--
		return frame, true
	}
	return 0, false
}

// Remove drops frame's tracked history entirely. The caller asserts the
// frame is evictable; removing a non-evictable frame is a contract
// violation.
func (r *LRUKReplacer) Remove(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[frame]
	if !ok {
		return
	}
	if !e.evictable {
		panic("replacer: Remove called on non-evictable frame")
	}
	if e.inHistory {
		r.history.Remove(e.elem)
	} else {
		r.cache.Remove(e.elem)
	}
	delete(r.entries, frame)
	r.currSize--
}

// Size reports the number of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
