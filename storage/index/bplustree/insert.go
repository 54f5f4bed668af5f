package bplustree

import (
	"pagestore/storage/page"
	"pagestore/txn"
	"pagestore/types"
)

// Insert adds (key, value), failing (returning false) if key already
// exists — spec §4.4's override of the unique-keys contract (no
// overwrite on duplicate).
func (t *BPlusTree[K, V]) Insert(key K, value V) bool {
	tx := txn.New()

	leafPg := t.descendForWrite(key, opInsert, tx)
	if leafPg == nil {
		// descendForWrite took the root latch exclusive and, under it,
		// found no root; build the initial leaf root directly. Deciding
		// this from descendForWrite's own return value (rather than a
		// separate IsEmpty() taken before the latch) is what keeps two
		// concurrent inserts into an empty tree from both building a
		// root and one clobbering the other's setRootID.
		pg, ok := t.bpm.NewPage()
		if !ok {
			panic("bplustree: buffer pool exhausted allocating initial root")
		}
		leaf := initLeaf(pg, getPageID(pg), types.InvalidPageID, t.leafMaxSize, t.kc, t.vc)
		leaf.insertAt(0, key, value)
		t.setRootID(leaf.PageID())
		t.bpm.UnpinPage(leaf.PageID(), true)
		t.releaseAll(tx)
		return true
	}

	leaf := asLeaf(leafPg, t.kc, t.vc)

	preSize := leaf.Size()
	idx := leaf.lowerBound(key)
	if idx < preSize && leaf.KeyAt(idx) == key {
		t.releaseAll(tx)
		return false
	}
	leaf.insertAt(idx, key, value)

	if leaf.Size() < t.leafMaxSize {
		// fits without overflow; this page is already the sole
		// surviving queue entry (it was proven safe or is the leaf
		// itself with room to spare).
		tx.PopPage()
		leafPg.Unlock()
		t.bpm.UnpinPage(leaf.PageID(), true)
		t.releaseAll(tx)
		return true
	}

	// leaf just reached leafMaxSize; split and propagate.
	siblingPg, ok := t.bpm.NewPage()
	if !ok {
		panic("bplustree: buffer pool exhausted splitting leaf")
	}
	sibling := initLeaf(siblingPg, getPageID(siblingPg), leaf.ParentID(), t.leafMaxSize, t.kc, t.vc)
	leaf.moveHalfTo(sibling)
	sibling.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(sibling.PageID())
	sepKey := sibling.KeyAt(0)

	tx.PopPage() // leafPg's own queue slot; we already hold leafPg directly.
	t.insertIntoParent(leafPg, siblingPg, sepKey, tx)
	return true
}

// insertIntoParent implements spec §4.4.2's insert_into_parent: if
// leftPg was the root, allocate a new internal root over it and
// rightPg; otherwise insert (sepKey, rightPg) into the already-pinned
// parent, splitting it too if it is full, and recursing up. leftPg must
// already have been popped off tx's queue by the caller.
func (t *BPlusTree[K, V]) insertIntoParent(leftPg, rightPg *page.Page, sepKey K, tx *txn.Transaction) {
	if getParentID(leftPg) == types.InvalidPageID {
		rootPg, ok := t.bpm.NewPage()
		if !ok {
			panic("bplustree: buffer pool exhausted allocating new root")
		}
		var zero K
		root := initInternal(rootPg, getPageID(rootPg), types.InvalidPageID, t.internalMaxSize, t.kc)
		root.insertAt(0, zero, getPageID(leftPg))
		root.insertAt(1, sepKey, getPageID(rightPg))

		setParentID(leftPg, root.PageID())
		setParentID(rightPg, root.PageID())
		t.setRootID(root.PageID())

		leftPg.Unlock()
		t.bpm.UnpinPage(getPageID(leftPg), true)
		rightPg.Unlock()
		t.bpm.UnpinPage(getPageID(rightPg), true)
		t.bpm.UnpinPage(root.PageID(), true)
		t.releaseAll(tx)
		return
	}

	parentPg := tx.PopPage()
	if parentPg == nil {
		panic("bplustree: insertIntoParent found no retained parent for a non-root node")
	}
	parent := asInternal(parentPg, t.kc)

	idx := parent.indexOfChild(getPageID(leftPg))
	if idx < 0 {
		panic("bplustree: parent does not reference its child")
	}

	preSize := parent.Size()
	parent.insertAt(idx+1, sepKey, getPageID(rightPg))
	setParentID(rightPg, parent.PageID())

	leftPg.Unlock()
	t.bpm.UnpinPage(getPageID(leftPg), true)
	rightPg.Unlock()
	t.bpm.UnpinPage(getPageID(rightPg), true)

	if preSize < t.internalMaxSize {
		parentPg.Unlock()
		t.bpm.UnpinPage(parent.PageID(), true)
		t.releaseAll(tx)
		return
	}

	// parent just overflowed; split it and recurse up.
	siblingPg, ok := t.bpm.NewPage()
	if !ok {
		panic("bplustree: buffer pool exhausted splitting internal node")
	}
	sibling := initInternal(siblingPg, getPageID(siblingPg), parent.ParentID(), t.internalMaxSize, t.kc)
	parent.moveHalfTo(sibling)
	for i := 0; i < sibling.Size(); i++ {
		child, ok := t.bpm.FetchPage(sibling.ChildAt(i))
		if !ok {
			panic("bplustree: buffer pool exhausted reparenting during internal split")
		}
		child.Lock()
		setParentID(child, sibling.PageID())
		child.Unlock()
		t.bpm.UnpinPage(sibling.ChildAt(i), true)
	}
	newSepKey := sibling.KeyAt(0)

	// parentPg was already popped off tx above; insertIntoParent's
	// contract is that its leftPg arrives pre-popped.
	t.insertIntoParent(parentPg, siblingPg, newSepKey, tx)
}
