package bplustree

import (
	"pagestore/storage/page"
	"pagestore/txn"
	"pagestore/types"
)

// Remove deletes key, a no-op (returning false) if key is absent.
func (t *BPlusTree[K, V]) Remove(key K) bool {
	tx := txn.New()

	leafPg := t.descendForWrite(key, opDelete, tx)
	if leafPg == nil {
		t.releaseAll(tx)
		return false
	}
	leaf := asLeaf(leafPg, t.kc, t.vc)

	idx := leaf.lowerBound(key)
	if idx >= leaf.Size() || leaf.KeyAt(idx) != key {
		t.releaseAll(tx)
		return false
	}
	leaf.removeAt(idx)
	tx.PopPage() // leafPg's own slot; we hold it directly from here on.

	isRoot := leaf.ParentID() == types.InvalidPageID
	if !isRoot && leaf.Size() >= t.minLeafSize() {
		leafPg.Unlock()
		t.bpm.UnpinPage(leaf.PageID(), true)
		t.releaseAll(tx)
		return true
	}

	// root leaves never "underflow" in the ancestor sense, but an empty
	// root leaf must still empty the tree (spec §4.4.3 adjust_root).
	t.coalesceOrRedistribute(leafPg, tx)
	return true
}

// coalesceOrRedistribute implements spec §4.4.3: pg just underflowed (or
// is the root). pg must already be popped off tx's queue and held
// (write-latched, pinned) by the caller; its ancestor chain, if any,
// remains in tx. Consumes pg's latch/pin and whatever of the chain it
// needs.
func (t *BPlusTree[K, V]) coalesceOrRedistribute(pg *page.Page, tx *txn.Transaction) {
	if getParentID(pg) == types.InvalidPageID {
		t.adjustRoot(pg, tx)
		return
	}

	parentPg := tx.PopPage()
	if parentPg == nil {
		panic("bplustree: coalesceOrRedistribute found no retained parent for a non-root node")
	}
	parent := asInternal(parentPg, t.kc)

	idx := parent.indexOfChild(getPageID(pg))
	if idx < 0 {
		panic("bplustree: parent does not reference its underflowed child")
	}

	var siblingIdx int
	var fromLeft bool
	if idx > 0 {
		siblingIdx, fromLeft = idx-1, true
	} else {
		siblingIdx, fromLeft = idx+1, false
	}

	siblingPg, ok := t.bpm.FetchPage(parent.ChildAt(siblingIdx))
	if !ok {
		panic("bplustree: buffer pool exhausted fetching sibling")
	}
	siblingPg.Lock()

	isLeaf := pageTypeOf(pg) == page.TypeBPlusLeaf
	minSib := t.minInternalSize()
	if isLeaf {
		minSib = t.minLeafSize()
	}

	if getSize(siblingPg) > minSib {
		if isLeaf {
			t.redistributeLeaf(pg, siblingPg, parent, idx, fromLeft)
		} else {
			t.redistributeInternal(pg, siblingPg, parent, idx, siblingIdx, fromLeft)
		}
		siblingPg.Unlock()
		t.bpm.UnpinPage(getPageID(siblingPg), true)
		pg.Unlock()
		t.bpm.UnpinPage(getPageID(pg), true)
		parentPg.Unlock()
		t.bpm.UnpinPage(parent.PageID(), true)
		t.releaseAll(tx)
		return
	}

	// coalesce: merge into the left of {pg, sibling}, drop the right.
	var leftPg, rightPg *page.Page
	var rightIdx int
	if fromLeft {
		leftPg, rightPg, rightIdx = siblingPg, pg, idx
	} else {
		leftPg, rightPg, rightIdx = pg, siblingPg, siblingIdx
	}
	if isLeaf {
		t.coalesceLeaf(leftPg, rightPg, parent, rightIdx)
	} else {
		t.coalesceInternal(leftPg, rightPg, parent, rightIdx)
	}
	tx.AddDeletedPage(getPageID(rightPg))

	leftPg.Unlock()
	t.bpm.UnpinPage(getPageID(leftPg), true)
	rightPg.Unlock()
	t.bpm.UnpinPage(getPageID(rightPg), true)

	// A root parent always gets a chance to collapse via adjustRoot, even
	// when not underflowed by the ordinary min-size rule, so recurse
	// rather than short-circuiting on size alone.
	if parent.ParentID() != types.InvalidPageID && parent.Size() >= t.minInternalSize() {
		parentPg.Unlock()
		t.bpm.UnpinPage(parent.PageID(), true)
		t.releaseAll(tx)
		return
	}

	t.coalesceOrRedistribute(parentPg, tx)
}

// redistributeLeaf moves one entry across the leaf/sibling boundary and
// fixes up the parent separator: at parentIdx when borrowing from the
// left sibling, at parentIdx+1 when borrowing from the right one.
func (t *BPlusTree[K, V]) redistributeLeaf(pg, siblingPg *page.Page, parent *internalNode[K], parentIdx int, fromLeft bool) {
	node := asLeaf(pg, t.kc, t.vc)
	sibling := asLeaf(siblingPg, t.kc, t.vc)

	if fromLeft {
		key := sibling.KeyAt(sibling.Size() - 1)
		val := sibling.ValueAt(sibling.Size() - 1)
		sibling.removeAt(sibling.Size() - 1)
		node.insertAt(0, key, val)
		parent.setKeyAt(parentIdx, node.KeyAt(0))
		return
	}

	key := sibling.KeyAt(0)
	val := sibling.ValueAt(0)
	sibling.removeAt(0)
	node.insertAt(node.Size(), key, val)
	parent.setKeyAt(parentIdx+1, sibling.KeyAt(0))
}

// redistributeInternal moves one child across the node/sibling boundary.
// Because an internal node's key[0] is an ignored routing sentinel, the
// key that becomes real at the receiving end is the old parent
// separator, and the key that becomes the new parent separator is the
// one exposed by the donor's shift (spec §9).
func (t *BPlusTree[K, V]) redistributeInternal(pg, siblingPg *page.Page, parent *internalNode[K], nodeIdx, siblingIdx int, fromLeft bool) {
	node := asInternal(pg, t.kc)
	sibling := asInternal(siblingPg, t.kc)
	var zero K

	if fromLeft {
		sep := parent.KeyAt(nodeIdx)
		movedKey := sibling.KeyAt(sibling.Size() - 1)
		movedChild := sibling.ChildAt(sibling.Size() - 1)
		sibling.removeAt(sibling.Size() - 1)

		node.insertAt(0, zero, movedChild)
		node.setKeyAt(1, sep)
		t.reparent(movedChild, node.PageID())

		parent.setKeyAt(nodeIdx, movedKey)
		return
	}

	sep := parent.KeyAt(siblingIdx)
	movedKey := sibling.KeyAt(1)
	movedChild := sibling.ChildAt(0)
	sibling.removeAt(0)

	node.insertAt(node.Size(), sep, movedChild)
	t.reparent(movedChild, node.PageID())

	parent.setKeyAt(siblingIdx, movedKey)
}

// coalesceLeaf appends right's entries onto left and removes parent's
// slot for right.
func (t *BPlusTree[K, V]) coalesceLeaf(leftPg, rightPg *page.Page, parent *internalNode[K], rightIdx int) {
	left := asLeaf(leftPg, t.kc, t.vc)
	right := asLeaf(rightPg, t.kc, t.vc)

	for i := 0; i < right.Size(); i++ {
		left.insertAt(left.Size(), right.KeyAt(i), right.ValueAt(i))
	}
	left.SetNextPageID(right.NextPageID())
	parent.removeAt(rightIdx)
}

// coalesceInternal appends right's children onto left, pulling the
// parent's separator at rightIdx down to become the first real key of
// the appended block, then removes parent's slot for right.
func (t *BPlusTree[K, V]) coalesceInternal(leftPg, rightPg *page.Page, parent *internalNode[K], rightIdx int) {
	left := asInternal(leftPg, t.kc)
	right := asInternal(rightPg, t.kc)
	sep := parent.KeyAt(rightIdx)

	for i := 0; i < right.Size(); i++ {
		key := right.KeyAt(i)
		if i == 0 {
			key = sep
		}
		child := right.ChildAt(i)
		left.insertAt(left.Size(), key, child)
		t.reparent(child, left.PageID())
	}
	parent.removeAt(rightIdx)
}

// adjustRoot implements spec §4.4.3's root-collapse step: an empty leaf
// root empties the tree; a size-1 internal root is replaced by its only
// child.
func (t *BPlusTree[K, V]) adjustRoot(pg *page.Page, tx *txn.Transaction) {
	if pageTypeOf(pg) == page.TypeBPlusLeaf {
		if getSize(pg) == 0 {
			t.setRootID(types.InvalidPageID)
			tx.AddDeletedPage(getPageID(pg))
		}
		pg.Unlock()
		t.bpm.UnpinPage(getPageID(pg), true)
		t.releaseAll(tx)
		return
	}

	root := asInternal(pg, t.kc)
	if root.Size() == 1 {
		onlyChild := root.ChildAt(0)
		t.reparent(onlyChild, types.InvalidPageID)
		t.setRootID(onlyChild)
		tx.AddDeletedPage(getPageID(pg))
	}
	pg.Unlock()
	t.bpm.UnpinPage(getPageID(pg), true)
	t.releaseAll(tx)
}

// reparent fetches childID, write-latches it just long enough to update
// its parent pointer, and unpins it dirty.
func (t *BPlusTree[K, V]) reparent(childID, newParent types.PageID) {
	child, ok := t.bpm.FetchPage(childID)
	if !ok {
		panic("bplustree: buffer pool exhausted reparenting a redistributed child")
	}
	child.Lock()
	setParentID(child, newParent)
	child.Unlock()
	t.bpm.UnpinPage(childID, true)
}
