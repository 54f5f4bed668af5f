package bplustree

import (
	"cmp"

	"pagestore/storage/page"
	"pagestore/types"
)

// Iterator walks leaf entries in ascending key order, holding a single
// read-latched, pinned leaf page at a time (spec §9 Supplemented
// Features). The zero value is not usable; construct via Begin/BeginAt/
// End.
type Iterator[K cmp.Ordered, V any] struct {
	tree *BPlusTree[K, V]
	pg   *page.Page
	leaf *leafNode[K, V]
	idx  int
}

// Begin returns an iterator positioned at the smallest key in the tree.
func (t *BPlusTree[K, V]) Begin() *Iterator[K, V] {
	pg := t.findLeafForEndpoint(true)
	return &Iterator[K, V]{tree: t, pg: pg, leaf: wrapLeafOrNil(t, pg)}
}

// BeginAt returns an iterator positioned at the first entry with key >=
// key.
func (t *BPlusTree[K, V]) BeginAt(key K) *Iterator[K, V] {
	pg := t.findLeafShared(key)
	it := &Iterator[K, V]{tree: t, pg: pg, leaf: wrapLeafOrNil(t, pg)}
	if it.leaf != nil {
		it.idx = it.leaf.lowerBound(key)
		it.advancePastEnd()
	}
	return it
}

// End returns an iterator positioned just past the last entry of the
// rightmost leaf, mirroring Begin's descent to the leftmost one. It
// holds that leaf's read latch and pin, and Done reports false for it
// until Next or Close is called.
func (t *BPlusTree[K, V]) End() *Iterator[K, V] {
	pg := t.findLeafForEndpoint(false)
	leaf := wrapLeafOrNil(t, pg)
	idx := 0
	if leaf != nil {
		idx = leaf.Size()
	}
	return &Iterator[K, V]{tree: t, pg: pg, leaf: leaf, idx: idx}
}

func wrapLeafOrNil[K cmp.Ordered, V any](t *BPlusTree[K, V], pg *page.Page) *leafNode[K, V] {
	if pg == nil {
		return nil
	}
	return asLeaf(pg, t.kc, t.vc)
}

// Done reports whether the iterator has exhausted the tree.
func (it *Iterator[K, V]) Done() bool {
	return it.leaf == nil
}

// Key returns the current entry's key. Must not be called when Done.
func (it *Iterator[K, V]) Key() K { return it.leaf.KeyAt(it.idx) }

// Value returns the current entry's value. Must not be called when
// Done.
func (it *Iterator[K, V]) Value() V { return it.leaf.ValueAt(it.idx) }

// Next advances to the following entry, crossing into the next leaf
// page as needed, and releases the previous leaf's latch/pin.
func (it *Iterator[K, V]) Next() {
	if it.leaf == nil {
		return
	}
	it.idx++
	it.advancePastEnd()
}

func (it *Iterator[K, V]) advancePastEnd() {
	for it.leaf != nil && it.idx >= it.leaf.Size() {
		nextID := it.leaf.NextPageID()
		if nextID == types.InvalidPageID {
			it.pg.RUnlock()
			it.tree.bpm.UnpinPage(getPageID(it.pg), false)
			it.pg, it.leaf, it.idx = nil, nil, 0
			return
		}

		// latch-couple: acquire the next leaf before releasing this
		// one, so no window exists with neither leaf latched.
		next, ok := it.tree.bpm.FetchPage(nextID)
		if !ok {
			panic("bplustree: buffer pool exhausted advancing iterator")
		}
		next.RLock()

		prev := it.pg
		it.pg = next
		it.leaf = asLeaf(next, it.tree.kc, it.tree.vc)
		it.idx = 0

		prev.RUnlock()
		it.tree.bpm.UnpinPage(getPageID(prev), false)
	}
}

// Close releases the iterator's held leaf latch/pin, if any. Safe to
// call multiple times.
func (it *Iterator[K, V]) Close() {
	if it.pg == nil {
		return
	}
	it.pg.RUnlock()
	it.tree.bpm.UnpinPage(getPageID(it.pg), false)
	it.pg, it.leaf = nil, nil
}
