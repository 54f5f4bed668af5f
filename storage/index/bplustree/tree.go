// Package bplustree implements the durable, key-ordered B+Tree index
// whose nodes live in buffer-pool-managed pages (spec §4.4): search,
// insert, remove with latch-crabbing concurrency, and a forward leaf
// iterator.
package bplustree

import (
	"cmp"
	"sync"

	lock "github.com/viney-shih/go-lock"
	"go.uber.org/zap"

	"pagestore/buffer/pool"
	"pagestore/storage/page"
	"pagestore/types"
)

type operation int

const (
	opSearch operation = iota
	opInsert
	opDelete
)

// BPlusTree is a generic B+Tree index keyed by K with leaf values of
// type V, backed entirely by pages fetched through a pool.Manager.
type BPlusTree[K cmp.Ordered, V any] struct {
	name string
	bpm  *pool.Manager
	kc   KeyCodec[K]
	vc   ValueCodec[V]

	leafMaxSize     int
	internalMaxSize int

	// rootLatch guards the identity of the root (spec §5 latch
	// hierarchy: BPM latch, then the B+Tree root latch, then per-page
	// latches top-down). rootMu additionally guards rootID itself since
	// the root latch alone does not prevent a torn read/write of a
	// plain int64 across goroutines without a memory fence.
	rootLatch lock.RWMutex
	rootMu    sync.Mutex
	rootID    types.PageID

	log *zap.Logger
}

// New returns a B+Tree named name (used as the key into the buffer
// pool's header record table), loading any existing root for that name.
func New[K cmp.Ordered, V any](name string, bpm *pool.Manager, kc KeyCodec[K], vc ValueCodec[V], leafMaxSize, internalMaxSize int, log *zap.Logger) *BPlusTree[K, V] {
	if log == nil {
		log = zap.NewNop()
	}

	leafWidth := kc.Size() + vc.Size()
	if leafHeaderSize+(leafMaxSize+1)*leafWidth > types.PageSize {
		panic("bplustree: leaf_max_size does not fit in a page")
	}
	internalWidth := kc.Size() + 8
	if internalHeaderSize+(internalMaxSize+1)*internalWidth > types.PageSize {
		panic("bplustree: internal_max_size does not fit in a page")
	}

	rootID := types.InvalidPageID
	if id, ok := bpm.GetIndexRoot(name); ok {
		rootID = id
	}

	return &BPlusTree[K, V]{
		name:            name,
		bpm:             bpm,
		kc:              kc,
		vc:              vc,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootLatch:       lock.NewCASMutex(),
		rootID:          rootID,
		log:             log,
	}
}

func (t *BPlusTree[K, V]) getRootID() types.PageID {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	return t.rootID
}

func (t *BPlusTree[K, V]) setRootID(id types.PageID) {
	t.rootMu.Lock()
	t.rootID = id
	t.rootMu.Unlock()
	t.bpm.SetIndexRoot(t.name, id)
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree[K, V]) IsEmpty() bool {
	return t.getRootID() == types.InvalidPageID
}

// GetRootPageID returns the current root page id, or InvalidPageID if
// the tree is empty.
func (t *BPlusTree[K, V]) GetRootPageID() types.PageID {
	return t.getRootID()
}

func (t *BPlusTree[K, V]) minLeafSize() int     { return minSizeFor(t.leafMaxSize) }
func (t *BPlusTree[K, V]) minInternalSize() int { return minSizeFor(t.internalMaxSize) }

// isSafe implements spec §4.4.2/§4.4.3's per-operation safety predicate:
// a node is safe when the pending operation cannot possibly need to
// propagate a structural change past it.
func (t *BPlusTree[K, V]) isSafe(pg *page.Page, op operation) bool {
	isLeaf := pageTypeOf(pg) == page.TypeBPlusLeaf
	size := getSize(pg)
	switch op {
	case opInsert:
		if isLeaf {
			return size < t.leafMaxSize-1
		}
		return size < t.internalMaxSize
	case opDelete:
		if isLeaf {
			return size > t.minLeafSize()
		}
		return size > t.minInternalSize()
	default:
		return true
	}
}

// GetValue looks up key under a shared root latch and a chain of shared
// per-page latches (spec §4.4.1).
func (t *BPlusTree[K, V]) GetValue(key K) (V, bool) {
	var zero V

	leaf := t.findLeafShared(key)
	if leaf == nil {
		return zero, false
	}
	defer func() {
		leaf.RUnlock()
		t.bpm.UnpinPage(getPageID(leaf), false)
	}()

	return asLeaf(leaf, t.kc, t.vc).find(key)
}
