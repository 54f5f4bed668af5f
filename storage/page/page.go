// Package page defines the fixed-size frame-backed Page the buffer pool
// hands out to callers.
package page

import (
	"sync/atomic"

	lock "github.com/viney-shih/go-lock"

	"pagestore/types"
)

// Type tags the page header so a zero-copy typed view (leaf vs internal,
// see storage/index/bplustree) can be selected without a separate
// out-of-band registry.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeHeader
	TypeBPlusLeaf
	TypeBPlusInternal
)

// Page is one frame's worth of state: the raw fixed-size byte buffer plus
// the pin count, dirty flag, and per-page reader/writer latch spec §3
// requires. Page identity (ID) is stable for the page's lifetime; the
// frame it occupies is an implementation detail of the buffer pool.
type Page struct {
	ID       types.PageID
	Data     [types.PageSize]byte
	PinCount int32 // accessed only under the BPM latch
	dirty    atomic.Bool
	latch    lock.RWMutex
}

// New returns a zeroed page for id, latch unheld, pin count zero.
func New(id types.PageID) *Page {
	return &Page{ID: id, latch: lock.NewCASMutex()}
}

func (p *Page) Lock()    { p.latch.Lock() }
func (p *Page) Unlock()  { p.latch.Unlock() }
func (p *Page) RLock()   { p.latch.RLock() }
func (p *Page) RUnlock() { p.latch.RUnlock() }

// IsDirty reports whether the page's in-memory contents have diverged
// from disk.
func (p *Page) IsDirty() bool { return p.dirty.Load() }

// MarkDirty sets the dirty flag. Per spec §5 this flag is monotone: call
// ClearDirty only after a successful flush.
func (p *Page) MarkDirty() { p.dirty.Store(true) }

// ClearDirty clears the dirty flag; only the buffer pool, immediately
// after a successful write-through, may call this.
func (p *Page) ClearDirty() { p.dirty.Store(false) }

// Reset zeroes the page's contents and identity in place so a freed
// frame can be reused for a different page id without reallocating its
// backing array.
func (p *Page) Reset(id types.PageID) {
	p.ID = id
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.PinCount = 0
	p.dirty.Store(false)
}
