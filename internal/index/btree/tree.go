package btree

import (
	"errors"
	"fmt"

	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/page"
)

var (
	// ErrDuplicateKey names the duplicate-key condition. Insert itself reports
	// a duplicate as (false, nil) and does not return this error.
	ErrDuplicateKey = errors.New("btree: duplicate key")
	// ErrKeyNotFound is returned by Delete when the key does not exist.
	ErrKeyNotFound = errors.New("btree: key not found")
	// ErrTreeCorrupt signals an internal invariant violation.
	ErrTreeCorrupt = errors.New("btree: corrupt tree state")
)

// Index is the minimal interface the executor kernel needs from an index
// (spec's IndexScan / Insert / Update / Delete operators).
type Index interface {
	GetValue(key KeyType) (page.RID, bool, error)
	Insert(key KeyType, rid page.RID) (bool, error)
	Delete(key KeyType) error
	Begin() (*Iterator, error)
	BeginAt(key KeyType) (*Iterator, error)
}

var _ Index = (*Tree)(nil)

// Tree is a latch-crabbing B+ tree over a buffer.Pool, per spec §4.3.
type Tree struct {
	bp            *buffer.Pool
	headerPageID  page.ID
	leafMaxSize   int
	internalMax   int
}

// NewTree allocates a fresh header page (root = Invalid) and returns a new,
// empty tree.
func NewTree(bp *buffer.Pool, leafMaxSize, internalMaxSize int) (*Tree, error) {
	if leafMaxSize < 3 {
		leafMaxSize = 3
	}
	if internalMaxSize < 3 {
		internalMaxSize = 3
	}
	hdr, err := bp.NewPageGuarded()
	if err != nil {
		return nil, fmt.Errorf("btree: allocate header page: %w", err)
	}
	writeRoot(hdr.Page(), page.Invalid)
	hdr.MarkDirty()
	hdr.Drop()

	return &Tree{
		bp:           bp,
		headerPageID: hdr.PageID(),
		leafMaxSize:  leafMaxSize,
		internalMax:  internalMaxSize,
	}, nil
}

// OpenTree reopens a tree given the page id of a previously-allocated header
// page (e.g. recorded in the catalog).
func OpenTree(bp *buffer.Pool, headerPageID page.ID, leafMaxSize, internalMaxSize int) *Tree {
	return &Tree{bp: bp, headerPageID: headerPageID, leafMaxSize: leafMaxSize, internalMax: internalMaxSize}
}

// HeaderPageID exposes the header page id for catalog persistence.
func (t *Tree) HeaderPageID() page.ID { return t.headerPageID }

func minSize(maxSize int) int { return (maxSize + 1) / 2 }

func insertSafeLeaf(n node) bool     { return n.size() < n.maxSize()-1 }
func insertSafeInternal(n node) bool { return n.size() < n.maxSize()-1 }
func deleteSafe(n node, isRoot bool) bool {
	if isRoot {
		// The root has no minimum size, but it is only safe when a delete
		// below it cannot collapse it (internal) or empty it (leaf), since
		// either case rewrites the header page.
		if n.isLeaf() {
			return n.size() > 1
		}
		return n.size() > 2
	}
	return n.size() > minSize(n.maxSize())
}

// --- GetValue: read-crab from root to leaf ---

func (t *Tree) GetValue(key KeyType) (page.RID, bool, error) {
	hdr, err := t.bp.FetchPageRead(t.headerPageID)
	if err != nil {
		return page.RID{}, false, fmt.Errorf("btree: fetch header: %w", err)
	}
	root := readRoot(hdr.Page())
	hdr.Drop()

	if root == page.Invalid {
		return page.RID{}, false, nil
	}

	cur, err := t.bp.FetchPageRead(root)
	if err != nil {
		return page.RID{}, false, err
	}
	for {
		n := view(cur.Page())
		if n.isLeaf() {
			idx, found := n.leafFind(key)
			defer func() { cur.Drop() }()
			if !found {
				return page.RID{}, false, nil
			}
			return n.leafRIDAt(idx), true, nil
		}
		childIdx := n.internalFindChild(key)
		childID := n.internalChildAt(childIdx)
		next, err := t.bp.FetchPageRead(childID)
		cur.Drop()
		if err != nil {
			return page.RID{}, false, err
		}
		cur = next
	}
}

// --- Insert: write-crab descent with safety-based ancestor release ---

type ancestor struct {
	guard buffer.WritePageGuard
	id    page.ID
}

// Insert inserts (key, rid). Returns (false, nil) on duplicate key (no
// mutation), per spec §4.3.1.
func (t *Tree) Insert(key KeyType, rid page.RID) (bool, error) {
	hdrGuard, err := t.bp.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, fmt.Errorf("btree: fetch header: %w", err)
	}
	root := readRoot(hdrGuard.Page())

	if root == page.Invalid {
		leafGuard, leafID, err := t.bp.NewPageWrite()
		if err != nil {
			hdrGuard.Drop()
			return false, err
		}
		initLeaf(leafGuard.Page(), t.leafMaxSize)
		n := view(leafGuard.Page())
		n.leafInsertAt(0, key, rid)
		leafGuard.MarkDirty()
		leafGuard.Drop()

		writeRoot(hdrGuard.Page(), leafID)
		hdrGuard.MarkDirty()
		hdrGuard.Drop()
		return true, nil
	}

	stack := []ancestor{{guard: WritePageGuardFromHeader(hdrGuard), id: t.headerPageID}}
	curID := root
	for {
		g, err := t.bp.FetchPageWrite(curID)
		if err != nil {
			t.releaseStack(stack)
			return false, err
		}
		stack = append(stack, ancestor{guard: g, id: curID})
		n := view(g.Page())

		safe := false
		if n.isLeaf() {
			safe = insertSafeLeaf(n)
		} else {
			safe = insertSafeInternal(n)
		}
		if safe {
			// Release every ancestor still held (including header).
			t.releaseStack(stack[:len(stack)-1])
			stack = stack[len(stack)-1:]
		}

		if n.isLeaf() {
			ok, splitPromote, err := t.insertIntoLeaf(g, key, rid)
			if err != nil {
				t.releaseStack(stack)
				return false, err
			}
			if !ok {
				t.releaseStack(stack)
				return false, nil
			}
			if splitPromote != nil {
				if err := t.propagateSplit(stack[:len(stack)-1], *splitPromote); err != nil {
					return false, err
				}
			}
			t.releaseStack(stack)
			return true, nil
		}

		childIdx := n.internalFindChild(key)
		curID = n.internalChildAt(childIdx)
	}
}

// splitPromotion carries the separator key and new right-sibling page id
// that must be inserted into the parent after a child split.
type splitPromotion struct {
	key      KeyType
	rightID  page.ID
}

// insertIntoLeaf inserts into an already write-latched leaf. If the leaf
// overflows, it is split and the caller must propagate the returned
// promotion into the parent.
func (t *Tree) insertIntoLeaf(g buffer.WritePageGuard, key KeyType, rid page.RID) (bool, *splitPromotion, error) {
	n := view(g.Page())
	idx, found := n.leafFind(key)
	if found {
		return false, nil, nil
	}
	n.leafInsertAt(idx, key, rid)
	g.MarkDirty()

	if n.size() < n.maxSize() {
		return true, nil, nil
	}

	// Split: move upper half into a new right leaf.
	rightGuard, rightID, err := t.bp.NewPageWrite()
	if err != nil {
		return false, nil, err
	}
	initLeaf(rightGuard.Page(), t.leafMaxSize)
	rn := view(rightGuard.Page())

	total := n.size()
	mid := total / 2
	for i := mid; i < total; i++ {
		rn.leafInsertAt(rn.size(), n.leafKeyAt(i), n.leafRIDAt(i))
	}
	for i := total - 1; i >= mid; i-- {
		n.leafRemoveAt(i)
	}

	rn.setNextLeaf(n.nextLeaf())
	n.setNextLeaf(rightID)

	rightGuard.MarkDirty()
	promoted := rn.leafKeyAt(0)
	rightGuard.Drop()

	return true, &splitPromotion{key: promoted, rightID: rightID}, nil
}

// propagateSplit walks the ancestor stack (innermost first) inserting a
// promoted (key, child) pair into each parent, splitting internal nodes in
// turn, until either an insertion does not overflow or the stack (and thus
// the root) is exhausted.
func (t *Tree) propagateSplit(stack []ancestor, promo splitPromotion) error {
	if len(stack) == 0 {
		// The header is always the outermost ancestor Insert pushes, so this
		// should be unreachable; treat it as corruption rather than guess.
		return fmt.Errorf("%w: propagateSplit called with empty ancestor stack", ErrTreeCorrupt)
	}

	parent := stack[len(stack)-1]
	rest := stack[:len(stack)-1]

	if parent.id == t.headerPageID {
		return t.newRoot(parent.guard, promo)
	}

	pn := view(parent.guard.Page())

	// Determine insertion position: the separator belongs right after the
	// slot pointing at the node that was just split. We locate that slot by
	// scanning for the first key greater than promo.key (internal slot 0's
	// key is never compared against, per the invalid-key convention).
	insertAt := pn.size()
	for i := 1; i < pn.size(); i++ {
		if pn.internalKeyAt(i) > promo.key {
			insertAt = i
			break
		}
	}
	pn.internalInsertAt(insertAt, promo.key, promo.rightID)
	parent.guard.MarkDirty()

	if pn.size() < pn.maxSize() {
		return nil
	}

	// Split the internal node: right half (including its own slot-0 child
	// pointer) goes to a new internal page; the key that becomes slot 0's
	// (now invalid) key on the right page is promoted to the grandparent.
	rightGuard, rightID, err := t.bp.NewPageWrite()
	if err != nil {
		return err
	}
	initInternal(rightGuard.Page(), t.internalMax)
	rn := view(rightGuard.Page())

	total := pn.size()
	mid := total / 2
	promotedKey := pn.internalKeyAt(mid)

	for i := mid; i < total; i++ {
		k := pn.internalKeyAt(i)
		if i == mid {
			k = 0 // slot 0 key is invalid/unused on the new right node
		}
		rn.internalInsertAt(rn.size(), k, pn.internalChildAt(i))
	}
	for i := total - 1; i >= mid; i-- {
		pn.internalRemoveAt(i)
	}
	rightGuard.MarkDirty()
	rightGuard.Drop()

	return t.propagateSplit(rest, splitPromotion{key: promotedKey, rightID: rightID})
}

// newRoot is called when a split reaches the top of the stack (propagation
// ran past the current root): allocate a new internal root with two
// children, the old root (looked up via header) and the freshly split
// right sibling. hdr is the header's write guard already held by the
// caller's ancestor stack (from Insert's initial FetchPageWrite) — it must
// not be re-fetched here, or the second WLatch on the same page from this
// goroutine would deadlock against the first. The caller's stack cleanup
// drops hdr once propagation finishes.
func (t *Tree) newRoot(hdr buffer.WritePageGuard, promo splitPromotion) error {
	oldRoot := readRoot(hdr.Page())

	rootGuard, rootID, err := t.bp.NewPageWrite()
	if err != nil {
		return err
	}
	initInternal(rootGuard.Page(), t.internalMax)
	rn := view(rootGuard.Page())
	rn.internalInsertAt(0, 0, oldRoot)
	rn.internalInsertAt(1, promo.key, promo.rightID)
	rootGuard.MarkDirty()
	rootGuard.Drop()

	writeRoot(hdr.Page(), rootID)
	hdr.MarkDirty()
	return nil
}

func (t *Tree) releaseStack(stack []ancestor) {
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].guard.Drop()
	}
}

// WritePageGuardFromHeader wraps the header page's write guard so it can
// share the ancestor stack's type; it carries no special behavior beyond
// Drop.
func WritePageGuardFromHeader(g buffer.WritePageGuard) buffer.WritePageGuard { return g }

// --- Delete: symmetric write-crab with merge/redistribute ---

func (t *Tree) Delete(key KeyType) error {
	hdrGuard, err := t.bp.FetchPageWrite(t.headerPageID)
	if err != nil {
		return fmt.Errorf("btree: fetch header: %w", err)
	}
	root := readRoot(hdrGuard.Page())
	if root == page.Invalid {
		hdrGuard.Drop()
		return ErrKeyNotFound
	}

	stack := []ancestor{{guard: hdrGuard, id: t.headerPageID}}
	curID := root
	for {
		g, err := t.bp.FetchPageWrite(curID)
		if err != nil {
			t.releaseStack(stack)
			return err
		}
		stack = append(stack, ancestor{guard: g, id: curID})
		n := view(g.Page())
		isRoot := curID == root

		if deleteSafe(n, isRoot) {
			t.releaseStack(stack[:len(stack)-1])
			stack = stack[len(stack)-1:]
		}

		if n.isLeaf() {
			idx, found := n.leafFind(key)
			if !found {
				t.releaseStack(stack)
				return ErrKeyNotFound
			}
			n.leafRemoveAt(idx)
			g.MarkDirty()

			if err := t.rebalance(stack, root); err != nil {
				return err
			}
			return nil
		}

		childIdx := n.internalFindChild(key)
		curID = n.internalChildAt(childIdx)
	}
}

// rebalance is called after a leaf deletion with the write-latch stack Delete
// retained still held: the deepest delete-safe node (or the header, when the
// root itself may collapse or empty) down to the leaf. It checks the deepest node for underflow and, if
// needed, merges or redistributes with a sibling, recursing up through
// internal-node underflow exactly as spec §4.3.1 describes. The stack is
// always fully released by the time this returns (success or error).
func (t *Tree) rebalance(stack []ancestor, root page.ID) error {
	defer t.releaseStack(stack)

	for len(stack) >= 2 {
		cur := stack[len(stack)-1]
		parent := stack[len(stack)-2]
		n := view(cur.guard.Page())
		isRoot := cur.id == root

		if isRoot {
			hdr := parent // parent of the root is the header guard
			if !n.isLeaf() && n.size() == 1 {
				// Root internal node collapsed to one child: promote it.
				onlyChild := n.internalChildAt(0)
				writeRoot(hdr.guard.Page(), onlyChild)
				hdr.guard.MarkDirty()
			} else if n.isLeaf() && n.size() == 0 {
				// Tree emptied out entirely.
				writeRoot(hdr.guard.Page(), page.Invalid)
				hdr.guard.MarkDirty()
			}
			return nil
		}

		if n.size() >= minSize(n.maxSize()) {
			return nil
		}

		pn := view(parent.guard.Page())
		myIdx := pn.internalIndexOfChild(cur.id)
		if myIdx < 0 {
			return fmt.Errorf("%w: child %d not found under parent", ErrTreeCorrupt, cur.id)
		}

		isLast := myIdx == pn.size()-1
		var siblingIdx int
		var useLeft bool
		if isLast {
			siblingIdx = myIdx - 1
			useLeft = true
		} else {
			siblingIdx = myIdx + 1
			useLeft = false
		}
		siblingID := pn.internalChildAt(siblingIdx)

		var sibGuard buffer.WritePageGuard
		if useLeft {
			// cur is the last child under its parent: drop its write guard
			// before acquiring the left sibling's, then reacquire cur. This
			// keeps latch acquisition in left-to-right page order so a
			// concurrent crabbing op walking these same two nodes cannot
			// deadlock against it. Safe to reacquire unchanged: parent's
			// write guard is held throughout, so no other op can reach cur
			// while it's briefly unlatched.
			cur.guard.Drop()
			// Write the now-dropped guard back into the stack immediately:
			// the deferred releaseStack at the top of this function walks
			// the original stack, and Drop is only safe to call again on a
			// copy that has also observed the drop (pg == nil). Leaving the
			// stale, still-latched copy in place would double-unlatch the
			// page if an error sends us to that deferred release next.
			stack[len(stack)-1] = cur
			var err error
			sibGuard, err = t.bp.FetchPageWrite(siblingID)
			if err != nil {
				return err
			}
			curGuard, err := t.bp.FetchPageWrite(cur.id)
			if err != nil {
				sibGuard.Drop()
				return err
			}
			cur.guard = curGuard
			stack[len(stack)-1] = cur
			n = view(cur.guard.Page())
		} else {
			var err error
			sibGuard, err = t.bp.FetchPageWrite(siblingID)
			if err != nil {
				return err
			}
		}
		sn := view(sibGuard.Page())

		combined := n.size() + sn.size()
		if combined <= n.maxSize() {
			t.mergeNodes(useLeft, n, sn, myIdx, siblingIdx, pn, parent.guard)
			sibGuard.MarkDirty()
			cur.guard.MarkDirty()
			// Remove the separator/child entry for the merged-away node:
			// when useLeft, cur's own data moved into the left sibling and
			// cur's slot is now stale; otherwise sib's slot is stale.
			removedIdx := siblingIdx
			if useLeft {
				removedIdx = myIdx
			}
			pn.internalRemoveAt(removedIdx)
			parent.guard.MarkDirty()
			sibGuard.Drop()
			// Recurse: parent may now itself be underflowing.
			stack = stack[:len(stack)-1]
			continue
		}

		t.redistribute(useLeft, n, sn, pn, myIdx, siblingIdx)
		sibGuard.MarkDirty()
		cur.guard.MarkDirty()
		parent.guard.MarkDirty()
		sibGuard.Drop()
		return nil
	}
	return nil
}

// mergeNodes merges the smaller neighbor into the other, always keeping
// keys in ascending order (left node absorbs right node's entries).
func (t *Tree) mergeNodes(useLeft bool, cur, sib node, myIdx, sibIdx int, parent node, parentGuard buffer.WritePageGuard) {
	left, right := cur, sib
	if useLeft {
		left, right = sib, cur
	}

	if left.isLeaf() {
		for i := 0; i < right.size(); i++ {
			left.leafInsertAt(left.size(), right.leafKeyAt(i), right.leafRIDAt(i))
		}
		left.setNextLeaf(right.nextLeaf())
		return
	}

	// Internal merge: the separator key in the parent between left and
	// right becomes the (previously invalid) key at right's slot 0.
	sepIdx := sibIdx
	if useLeft {
		sepIdx = myIdx
	}
	sepKey := parent.internalKeyAt(sepIdx)
	for i := 0; i < right.size(); i++ {
		k := right.internalKeyAt(i)
		if i == 0 {
			k = sepKey
		}
		left.internalInsertAt(left.size(), k, right.internalChildAt(i))
	}
}

// redistribute moves one entry from the larger sibling into cur and fixes
// up the parent separator key.
func (t *Tree) redistribute(useLeft bool, cur, sib node, parent node, myIdx, sibIdx int) {
	if cur.isLeaf() {
		if useLeft {
			// Borrow the last entry of the left sibling.
			li := sib.size() - 1
			k, r := sib.leafKeyAt(li), sib.leafRIDAt(li)
			sib.leafRemoveAt(li)
			cur.leafInsertAt(0, k, r)
			parent.setInternalSlot(myIdx, cur.leafKeyAt(0), parent.internalChildAt(myIdx))
		} else {
			// Borrow the first entry of the right sibling.
			k, r := sib.leafKeyAt(0), sib.leafRIDAt(0)
			sib.leafRemoveAt(0)
			cur.leafInsertAt(cur.size(), k, r)
			parent.setInternalSlot(sibIdx, sib.leafKeyAt(0), parent.internalChildAt(sibIdx))
		}
		return
	}

	if useLeft {
		li := sib.size() - 1
		borrowedKey := sib.internalKeyAt(li)
		borrowedChild := sib.internalChildAt(li)
		sib.internalRemoveAt(li)

		downKey := parent.internalKeyAt(myIdx)
		cur.internalInsertAt(0, downKey, borrowedChild)
		// insertAt(0,...) shifted the old slot0 child to slot1 along with its
		// invalid key; give slot1 the down-key, which now governs that child.
		cur.setInternalSlot(1, downKey, cur.internalChildAt(1))
		parent.setInternalSlot(myIdx, borrowedKey, parent.internalChildAt(myIdx))
	} else {
		borrowedKey := sib.internalKeyAt(1)
		borrowedChild := sib.internalChildAt(0)
		sib.internalRemoveAt(0)

		downKey := parent.internalKeyAt(sibIdx)
		cur.internalInsertAt(cur.size(), downKey, borrowedChild)
		parent.setInternalSlot(sibIdx, borrowedKey, parent.internalChildAt(sibIdx))
	}
}
