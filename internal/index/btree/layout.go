// Package btree implements the latch-crabbing, concurrent B+ tree index
// described in spec §4.3: internal/leaf page layouts over buffer-pool
// frames, point/range operations with write-crabbing insert/delete, and a
// forward iterator that re-fetches its leaf on every step.
//
// Keys are fixed at int64, mirroring the teacher's own B+ tree ("Only int64
// keys are supported" — internal/btree/tree.go in the teacher tree); see
// DESIGN.md for why this module does not generalize over key type.
package btree

import (
	"encoding/binary"

	"github.com/relstore/relstore/internal/page"
)

// KeyType is the tree's fixed key type.
type KeyType = int64

const (
	kindLeaf     = uint32(1)
	kindInternal = uint32(2)

	// header layout, common to both kinds:
	offKind     = 0
	offSize     = 4
	offMaxSize  = 8
	offNextLeaf = 12 // leaf-only; internal pages don't use this slot

	leafHeaderSize     = 16
	internalHeaderSize = 12

	keySize        = 8 // int64, big-endian so byte order matches key order
	ridSize        = 8 // page id (u32 LE) + slot (u32 LE), per spec §6
	childIDSize    = 4
	leafSlotSize   = keySize + ridSize
	internalSlot   = keySize + childIDSize
	headerPageRoot = 0 // offset of the root page id in the header page
)

// node is a thin view over a page's bytes; it never copies the underlying
// buffer (spec §9, "the variant is a thin view").
type node struct {
	buf []byte
}

func view(pg *page.Page) node { return node{buf: pg.Data[:]} }

func (n node) isLeaf() bool { return binary.BigEndian.Uint32(n.buf[offKind:]) == kindLeaf }

func (n node) size() int    { return int(binary.BigEndian.Uint32(n.buf[offSize:])) }
func (n node) maxSize() int { return int(binary.BigEndian.Uint32(n.buf[offMaxSize:])) }

func (n node) setSize(v int)    { binary.BigEndian.PutUint32(n.buf[offSize:], uint32(v)) }
func (n node) setMaxSize(v int) { binary.BigEndian.PutUint32(n.buf[offMaxSize:], uint32(v)) }

func initLeaf(pg *page.Page, maxSize int) {
	n := view(pg)
	binary.BigEndian.PutUint32(n.buf[offKind:], kindLeaf)
	n.setSize(0)
	n.setMaxSize(maxSize)
	binary.BigEndian.PutUint32(n.buf[offNextLeaf:], uint32(page.Invalid))
}

func initInternal(pg *page.Page, maxSize int) {
	n := view(pg)
	binary.BigEndian.PutUint32(n.buf[offKind:], kindInternal)
	n.setSize(0)
	n.setMaxSize(maxSize)
}

// --- leaf accessors ---

func (n node) nextLeaf() page.ID {
	return page.ID(int32(binary.BigEndian.Uint32(n.buf[offNextLeaf:])))
}

func (n node) setNextLeaf(id page.ID) {
	binary.BigEndian.PutUint32(n.buf[offNextLeaf:], uint32(int32(id)))
}

func (n node) leafSlotOff(i int) int { return leafHeaderSize + i*leafSlotSize }

func (n node) leafKeyAt(i int) KeyType {
	o := n.leafSlotOff(i)
	return int64(binary.BigEndian.Uint64(n.buf[o:]))
}

func (n node) leafRIDAt(i int) page.RID {
	o := n.leafSlotOff(i) + keySize
	pid := binary.LittleEndian.Uint32(n.buf[o:])
	slot := binary.LittleEndian.Uint32(n.buf[o+4:])
	return page.RID{PageID: page.ID(pid), Slot: slot}
}

func (n node) setLeafSlot(i int, key KeyType, rid page.RID) {
	o := n.leafSlotOff(i)
	binary.BigEndian.PutUint64(n.buf[o:], uint64(key))
	binary.LittleEndian.PutUint32(n.buf[o+keySize:], uint32(rid.PageID))
	binary.LittleEndian.PutUint32(n.buf[o+keySize+4:], rid.Slot)
}

// leafInsertAt shifts slots [i..size) right by one and writes key/rid at i.
func (n node) leafInsertAt(i int, key KeyType, rid page.RID) {
	sz := n.size()
	for j := sz; j > i; j-- {
		k := n.leafKeyAt(j - 1)
		r := n.leafRIDAt(j - 1)
		n.setLeafSlot(j, k, r)
	}
	n.setLeafSlot(i, key, rid)
	n.setSize(sz + 1)
}

// leafRemoveAt shifts slots [i+1..size) left by one, shrinking size.
func (n node) leafRemoveAt(i int) {
	sz := n.size()
	for j := i; j < sz-1; j++ {
		n.setLeafSlot(j, n.leafKeyAt(j+1), n.leafRIDAt(j+1))
	}
	n.setSize(sz - 1)
}

// leafFind returns the index of key if present, and the index where it
// would be inserted if not (binary search, per spec §4.3.1).
func (n node) leafFind(key KeyType) (idx int, found bool) {
	sz := n.size()
	lo, hi := 0, sz
	for lo < hi {
		mid := (lo + hi) / 2
		k := n.leafKeyAt(mid)
		switch {
		case k == key:
			return mid, true
		case k < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// --- internal accessors ---
//
// Slot 0's key is invalid (only the child pointer is used); for i>=1, key[i]
// is the separator such that everything under child[i] is >= key[i].

func (n node) internalSlotOff(i int) int { return internalHeaderSize + i*internalSlot }

func (n node) internalKeyAt(i int) KeyType {
	o := n.internalSlotOff(i)
	return int64(binary.BigEndian.Uint64(n.buf[o:]))
}

func (n node) internalChildAt(i int) page.ID {
	o := n.internalSlotOff(i) + keySize
	return page.ID(int32(binary.LittleEndian.Uint32(n.buf[o:])))
}

func (n node) setInternalSlot(i int, key KeyType, child page.ID) {
	o := n.internalSlotOff(i)
	binary.BigEndian.PutUint64(n.buf[o:], uint64(key))
	binary.LittleEndian.PutUint32(n.buf[o+keySize:], uint32(int32(child)))
}

func (n node) internalInsertAt(i int, key KeyType, child page.ID) {
	sz := n.size()
	for j := sz; j > i; j-- {
		n.setInternalSlot(j, n.internalKeyAt(j-1), n.internalChildAt(j-1))
	}
	n.setInternalSlot(i, key, child)
	n.setSize(sz + 1)
}

func (n node) internalRemoveAt(i int) {
	sz := n.size()
	for j := i; j < sz-1; j++ {
		n.setInternalSlot(j, n.internalKeyAt(j+1), n.internalChildAt(j+1))
	}
	n.setSize(sz - 1)
}

// internalFindChild returns the index of the child pointer to follow for
// key: the largest i such that key[i] <= key (or 0 if key < key[1]).
func (n node) internalFindChild(key KeyType) int {
	sz := n.size()
	idx := 0
	for i := 1; i < sz; i++ {
		if n.internalKeyAt(i) <= key {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// internalIndexOfChild returns the slot index holding childID, or -1.
func (n node) internalIndexOfChild(childID page.ID) int {
	sz := n.size()
	for i := 0; i < sz; i++ {
		if n.internalChildAt(i) == childID {
			return i
		}
	}
	return -1
}

// --- header page (tree metadata): single 4-byte root page id at offset 0 ---

func readRoot(pg *page.Page) page.ID {
	return page.ID(int32(binary.LittleEndian.Uint32(pg.Data[headerPageRoot:])))
}

func writeRoot(pg *page.Page, root page.ID) {
	binary.LittleEndian.PutUint32(pg.Data[headerPageRoot:], uint32(int32(root)))
}
