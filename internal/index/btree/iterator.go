package btree

import "github.com/relstore/relstore/internal/page"

// Iterator is the B+ tree's forward iterator (spec §4.3.3). It holds no
// persistent latch between steps: each operation re-fetches the current
// leaf under a read guard, caches the current (key, value), and drops the
// guard before returning. This is "adequate for teaching, not optimal"
// (spec §9) but keeps the iterator safe to hold across arbitrarily long
// pauses between calls.
type Iterator struct {
	tree    *Tree
	leafID  page.ID
	slot    int
	curKey  KeyType
	curRID  page.RID
	atEnd   bool
}

// Begin returns an iterator positioned at the leftmost leaf's slot 0.
func (t *Tree) Begin() (*Iterator, error) {
	hdr, err := t.bp.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}
	root := readRoot(hdr.Page())
	hdr.Drop()
	if root == page.Invalid {
		return &Iterator{tree: t, atEnd: true}, nil
	}

	curID := root
	for {
		g, err := t.bp.FetchPageRead(curID)
		if err != nil {
			return nil, err
		}
		n := view(g.Page())
		if n.isLeaf() {
			g.Drop()
			it := &Iterator{tree: t, leafID: curID, slot: 0}
			return it, it.load()
		}
		next := n.internalChildAt(0)
		g.Drop()
		curID = next
	}
}

// BeginAt returns an iterator positioned at key's location (the position it
// would occupy if absent).
func (t *Tree) BeginAt(key KeyType) (*Iterator, error) {
	hdr, err := t.bp.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}
	root := readRoot(hdr.Page())
	hdr.Drop()
	if root == page.Invalid {
		return &Iterator{tree: t, atEnd: true}, nil
	}

	curID := root
	for {
		g, err := t.bp.FetchPageRead(curID)
		if err != nil {
			return nil, err
		}
		n := view(g.Page())
		if n.isLeaf() {
			idx, _ := n.leafFind(key)
			g.Drop()
			it := &Iterator{tree: t, leafID: curID, slot: idx}
			return it, it.load()
		}
		next := n.internalChildAt(n.internalFindChild(key))
		g.Drop()
		curID = next
	}
}

// load re-fetches the current leaf and caches (key, value) at slot, or marks
// the iterator ended if slot is out of range on a leaf with no next page.
// A slot past the end of a leaf that has a next leaf moves to that leaf's
// slot 0.
func (it *Iterator) load() error {
	for {
		g, err := it.tree.bp.FetchPageRead(it.leafID)
		if err != nil {
			return err
		}
		n := view(g.Page())
		if it.slot < n.size() {
			it.curKey = n.leafKeyAt(it.slot)
			it.curRID = n.leafRIDAt(it.slot)
			g.Drop()
			return nil
		}
		next := n.nextLeaf()
		g.Drop()
		if next == page.Invalid {
			it.atEnd = true
			return nil
		}
		it.leafID, it.slot = next, 0
	}
}

// IsEnd reports whether the iterator has been exhausted.
func (it *Iterator) IsEnd() bool { return it.atEnd }

// Key returns the current key. Undefined if IsEnd.
func (it *Iterator) Key() KeyType { return it.curKey }

// Value returns the current RID. Undefined if IsEnd.
func (it *Iterator) Value() page.RID { return it.curRID }

// Current returns the current (key, value) pair.
func (it *Iterator) Current() (KeyType, page.RID) { return it.curKey, it.curRID }

// Equal reports whether two iterators are at the same position (both ended,
// or same leaf+slot).
func (it *Iterator) Equal(other *Iterator) bool {
	if it.atEnd || other.atEnd {
		return it.atEnd == other.atEnd
	}
	return it.leafID == other.leafID && it.slot == other.slot
}

// Next advances the iterator by one position, per spec §4.3.3: if the slot
// is the last in the leaf and there is no next leaf, become end; if last but
// a next leaf exists, move to its slot 0; otherwise increment the slot.
func (it *Iterator) Next() error {
	if it.atEnd {
		return nil
	}
	g, err := it.tree.bp.FetchPageRead(it.leafID)
	if err != nil {
		return err
	}
	n := view(g.Page())
	isLast := it.slot == n.size()-1
	next := n.nextLeaf()
	g.Drop()

	if isLast {
		if next == page.Invalid {
			it.atEnd = true
			return nil
		}
		it.leafID = next
		it.slot = 0
		return it.load()
	}
	it.slot++
	return it.load()
}
