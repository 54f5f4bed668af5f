package bplustree

import (
	"cmp"
	"encoding/binary"

	"pagestore/storage/page"
	"pagestore/types"
)

// Page header layout, common to both node kinds (spec §6 "On-disk page
// layout"): type tag, current size, max size, parent id, page id.
const (
	offType     = 0
	offSize     = 1
	offMaxSize  = 5
	offParentID = 9
	offPageID   = 17
	commonHeaderSize = 25

	// leaves additionally carry a next-leaf pointer right after the
	// common header.
	offNextPageID  = commonHeaderSize
	leafHeaderSize = commonHeaderSize + 8

	internalHeaderSize = commonHeaderSize
)

func pageTypeOf(pg *page.Page) page.Type { return page.Type(pg.Data[offType]) }

func getSize(pg *page.Page) int {
	return int(int32(binary.LittleEndian.Uint32(pg.Data[offSize : offSize+4])))
}
func setSize(pg *page.Page, n int) {
	binary.LittleEndian.PutUint32(pg.Data[offSize:offSize+4], uint32(int32(n)))
}
func getMaxSize(pg *page.Page) int {
	return int(int32(binary.LittleEndian.Uint32(pg.Data[offMaxSize : offMaxSize+4])))
}
func setMaxSize(pg *page.Page, n int) {
	binary.LittleEndian.PutUint32(pg.Data[offMaxSize:offMaxSize+4], uint32(int32(n)))
}
func getParentID(pg *page.Page) types.PageID {
	return types.PageID(int64(binary.LittleEndian.Uint64(pg.Data[offParentID : offParentID+8])))
}
func setParentID(pg *page.Page, id types.PageID) {
	binary.LittleEndian.PutUint64(pg.Data[offParentID:offParentID+8], uint64(int64(id)))
}
func getPageID(pg *page.Page) types.PageID {
	return types.PageID(int64(binary.LittleEndian.Uint64(pg.Data[offPageID : offPageID+8])))
}
func setPageID(pg *page.Page, id types.PageID) {
	binary.LittleEndian.PutUint64(pg.Data[offPageID:offPageID+8], uint64(int64(id)))
}
func getNextPageID(pg *page.Page) types.PageID {
	return types.PageID(int64(binary.LittleEndian.Uint64(pg.Data[offNextPageID : offNextPageID+8])))
}
func setNextPageID(pg *page.Page, id types.PageID) {
	binary.LittleEndian.PutUint64(pg.Data[offNextPageID:offNextPageID+8], uint64(int64(id)))
}

// minSizeFor implements spec §3's min_size = ceil(max_size/2), shared by
// leaves and internal nodes.
func minSizeFor(maxSize int) int {
	return (maxSize + 1) / 2
}

// leafNode is a zero-copy typed view over a frame holding a B+Tree leaf:
// an ordered sequence of (key, value) pairs plus a next-leaf pointer.
type leafNode[K cmp.Ordered, V any] struct {
	pg *page.Page
	kc KeyCodec[K]
	vc ValueCodec[V]
}

func asLeaf[K cmp.Ordered, V any](pg *page.Page, kc KeyCodec[K], vc ValueCodec[V]) *leafNode[K, V] {
	return &leafNode[K, V]{pg: pg, kc: kc, vc: vc}
}

func initLeaf[K cmp.Ordered, V any](pg *page.Page, id, parent types.PageID, maxSize int, kc KeyCodec[K], vc ValueCodec[V]) *leafNode[K, V] {
	pg.Data[offType] = byte(page.TypeBPlusLeaf)
	setSize(pg, 0)
	setMaxSize(pg, maxSize)
	setParentID(pg, parent)
	setPageID(pg, id)
	setNextPageID(pg, types.InvalidPageID)
	return asLeaf(pg, kc, vc)
}

func (n *leafNode[K, V]) entryWidth() int { return n.kc.Size() + n.vc.Size() }
func (n *leafNode[K, V]) keyOffset(i int) int {
	return leafHeaderSize + i*n.entryWidth()
}
func (n *leafNode[K, V]) valOffset(i int) int { return n.keyOffset(i) + n.kc.Size() }

func (n *leafNode[K, V]) Size() int             { return getSize(n.pg) }
func (n *leafNode[K, V]) setSize(s int)         { setSize(n.pg, s) }
func (n *leafNode[K, V]) MaxSize() int          { return getMaxSize(n.pg) }
func (n *leafNode[K, V]) PageID() types.PageID  { return getPageID(n.pg) }
func (n *leafNode[K, V]) ParentID() types.PageID { return getParentID(n.pg) }
func (n *leafNode[K, V]) SetParentID(id types.PageID) { setParentID(n.pg, id) }
func (n *leafNode[K, V]) NextPageID() types.PageID    { return getNextPageID(n.pg) }
func (n *leafNode[K, V]) SetNextPageID(id types.PageID) { setNextPageID(n.pg, id) }

func (n *leafNode[K, V]) KeyAt(i int) K   { return n.kc.Decode(n.pg.Data[n.keyOffset(i):]) }
func (n *leafNode[K, V]) ValueAt(i int) V { return n.vc.Decode(n.pg.Data[n.valOffset(i):]) }
func (n *leafNode[K, V]) setKeyAt(i int, k K)   { n.kc.Encode(n.pg.Data[n.keyOffset(i):], k) }
func (n *leafNode[K, V]) setValueAt(i int, v V) { n.vc.Encode(n.pg.Data[n.valOffset(i):], v) }

// lowerBound returns the index of the first key >= key, or Size() if
// none.
func (n *leafNode[K, V]) lowerBound(key K) int {
	lo, hi := 0, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.KeyAt(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (n *leafNode[K, V]) insertAt(idx int, key K, val V) {
	size := n.Size()
	for i := size; i > idx; i-- {
		n.setKeyAt(i, n.KeyAt(i-1))
		n.setValueAt(i, n.ValueAt(i-1))
	}
	n.setKeyAt(idx, key)
	n.setValueAt(idx, val)
	n.setSize(size + 1)
}

func (n *leafNode[K, V]) removeAt(idx int) {
	size := n.Size()
	for i := idx; i < size-1; i++ {
		n.setKeyAt(i, n.KeyAt(i+1))
		n.setValueAt(i, n.ValueAt(i+1))
	}
	n.setSize(size - 1)
}

// find returns the value for key if present, via binary search.
func (n *leafNode[K, V]) find(key K) (V, bool) {
	idx := n.lowerBound(key)
	if idx < n.Size() && n.KeyAt(idx) == key {
		return n.ValueAt(idx), true
	}
	var zero V
	return zero, false
}

// moveHalfTo moves this leaf's upper half of entries to dst, used when
// splitting a leaf whose size has just reached max_size.
func (n *leafNode[K, V]) moveHalfTo(dst *leafNode[K, V]) {
	size := n.Size()
	mid := size / 2
	for i := mid; i < size; i++ {
		dst.insertAt(dst.Size(), n.KeyAt(i), n.ValueAt(i))
	}
	n.setSize(mid)
}

// internalNode is a zero-copy typed view over a frame holding a B+Tree
// internal page: an ordered sequence of (key, child_page_id) pairs where
// key[0] is an ignored routing sentinel.
type internalNode[K cmp.Ordered] struct {
	pg *page.Page
	kc KeyCodec[K]
}

func asInternal[K cmp.Ordered](pg *page.Page, kc KeyCodec[K]) *internalNode[K] {
	return &internalNode[K]{pg: pg, kc: kc}
}

func initInternal[K cmp.Ordered](pg *page.Page, id, parent types.PageID, maxSize int, kc KeyCodec[K]) *internalNode[K] {
	pg.Data[offType] = byte(page.TypeBPlusInternal)
	setSize(pg, 0)
	setMaxSize(pg, maxSize)
	setParentID(pg, parent)
	setPageID(pg, id)
	return asInternal(pg, kc)
}

func (n *internalNode[K]) entryWidth() int { return n.kc.Size() + 8 }
func (n *internalNode[K]) keyOffset(i int) int {
	return internalHeaderSize + i*n.entryWidth()
}
func (n *internalNode[K]) childOffset(i int) int { return n.keyOffset(i) + n.kc.Size() }

func (n *internalNode[K]) Size() int              { return getSize(n.pg) }
func (n *internalNode[K]) setSize(s int)          { setSize(n.pg, s) }
func (n *internalNode[K]) MaxSize() int           { return getMaxSize(n.pg) }
func (n *internalNode[K]) PageID() types.PageID   { return getPageID(n.pg) }
func (n *internalNode[K]) ParentID() types.PageID { return getParentID(n.pg) }
func (n *internalNode[K]) SetParentID(id types.PageID) { setParentID(n.pg, id) }

func (n *internalNode[K]) KeyAt(i int) K { return n.kc.Decode(n.pg.Data[n.keyOffset(i):]) }
func (n *internalNode[K]) setKeyAt(i int, k K) { n.kc.Encode(n.pg.Data[n.keyOffset(i):], k) }
func (n *internalNode[K]) ChildAt(i int) types.PageID {
	return types.PageID(int64(binary.LittleEndian.Uint64(n.pg.Data[n.childOffset(i):])))
}
func (n *internalNode[K]) setChildAt(i int, id types.PageID) {
	binary.LittleEndian.PutUint64(n.pg.Data[n.childOffset(i):], uint64(int64(id)))
}

func (n *internalNode[K]) insertAt(idx int, key K, child types.PageID) {
	size := n.Size()
	for i := size; i > idx; i-- {
		n.setKeyAt(i, n.KeyAt(i-1))
		n.setChildAt(i, n.ChildAt(i-1))
	}
	n.setKeyAt(idx, key)
	n.setChildAt(idx, child)
	n.setSize(size + 1)
}

func (n *internalNode[K]) removeAt(idx int) {
	size := n.Size()
	for i := idx; i < size-1; i++ {
		n.setKeyAt(i, n.KeyAt(i+1))
		n.setChildAt(i, n.ChildAt(i+1))
	}
	n.setSize(size - 1)
}

// indexOfChild returns the slot holding childID, or -1.
func (n *internalNode[K]) indexOfChild(childID types.PageID) int {
	for i := 0; i < n.Size(); i++ {
		if n.ChildAt(i) == childID {
			return i
		}
	}
	return -1
}

// lookupChild implements spec §4.4.1's descent rule: the child whose
// range contains key, or the leftmost/rightmost child when requested by
// the no-arg iterator endpoints.
func (n *internalNode[K]) lookupChild(key K, leftmost, rightmost bool) types.PageID {
	if leftmost {
		return n.ChildAt(0)
	}
	if rightmost {
		return n.ChildAt(n.Size() - 1)
	}
	// binary search over keys [1..size) for the first index i with
	// key[i] > key: a key below every indexed key goes to child 0; a key
	// equal to key[i] goes to child i; otherwise child i-1.
	lo, hi := 1, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.KeyAt(mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	// lo is the first index with key[lo] > key (or Size() if none).
	return n.ChildAt(lo - 1)
}

// moveHalfTo moves this internal node's upper half of entries (including
// their child pointers) to dst, used when splitting an internal page
// that has just overflowed past max_size.
func (n *internalNode[K]) moveHalfTo(dst *internalNode[K]) {
	size := n.Size()
	mid := size / 2
	for i := mid; i < size; i++ {
		dst.insertAt(dst.Size(), n.KeyAt(i), n.ChildAt(i))
	}
	n.setSize(mid)
}
