// Package heap implements a heap table over the buffer pool using a
// Postgres-style slotted page layout (header + line-pointer array growing
// down from the front, tuple bytes growing up from the back), adapted from
// the teacher's internal/storage/page.go and internal/heap/heap_page.go.
package heap

import (
	"github.com/relstore/relstore/internal/bx"
	"github.com/relstore/relstore/internal/page"
)

const (
	headerSize = 8 // lower (u16) + upper (u16) + nextPage (u32)
	slotSize   = 6 // offset (u16) + length (u16) + flags (u16)

	slotFlagNormal  = 0
	slotFlagDeleted = 1
)

// slottedPage is a thin view over a buffer-pool page's bytes, mirroring the
// B+ tree's node view (internal/index/btree/layout.go): it never copies
// Data, only interprets it.
type slottedPage struct {
	buf []byte
}

func view(pg *page.Page) slottedPage { return slottedPage{buf: pg.Data[:]} }

func initPage(pg *page.Page) {
	sp := view(pg)
	for i := range sp.buf {
		sp.buf[i] = 0
	}
	sp.setLower(headerSize)
	sp.setUpper(len(sp.buf))
	sp.setNextPage(page.Invalid)
}

func (sp slottedPage) lower() int { return int(bx.U16At(sp.buf, 0)) }
func (sp slottedPage) upper() int { return int(bx.U16At(sp.buf, 2)) }

func (sp slottedPage) setLower(v int) { bx.PutU16At(sp.buf, 0, uint16(v)) }
func (sp slottedPage) setUpper(v int) { bx.PutU16At(sp.buf, 2, uint16(v)) }

func (sp slottedPage) nextPage() page.ID {
	return page.ID(int32(bx.U32At(sp.buf, 4)))
}

func (sp slottedPage) setNextPage(id page.ID) {
	bx.PutU32At(sp.buf, 4, uint32(int32(id)))
}

func (sp slottedPage) numSlots() int { return (sp.lower() - headerSize) / slotSize }

func (sp slottedPage) slotOff(i int) int { return headerSize + i*slotSize }

// getSlot returns a slot's (offset, length, flags). A slot with flags ==
// slotFlagDeleted has no valid tuple bytes.
func (sp slottedPage) getSlot(i int) (offset, length, flags int) {
	o := sp.slotOff(i)
	return int(bx.U16At(sp.buf, o)), int(bx.U16At(sp.buf, o+2)), int(bx.U16At(sp.buf, o+4))
}

func (sp slottedPage) putSlot(i, offset, length, flags int) {
	o := sp.slotOff(i)
	bx.PutU16At(sp.buf, o, uint16(offset))
	bx.PutU16At(sp.buf, o+2, uint16(length))
	bx.PutU16At(sp.buf, o+4, uint16(flags))
}

func (sp slottedPage) appendSlot(offset, length, flags int) int {
	i := sp.numSlots()
	sp.putSlot(i, offset, length, flags)
	sp.setLower(sp.lower() + slotSize)
	return i
}

// freeSpace is the room left between the slot array and the tuple data.
func (sp slottedPage) freeSpace() int { return sp.upper() - sp.lower() }

// insertTuple appends tup's bytes at the tail of the free region and a new
// slot pointing at them. Returns ok=false if there isn't room for both.
func (sp slottedPage) insertTuple(tup []byte) (slot int, ok bool) {
	need := len(tup) + slotSize
	if sp.freeSpace() < need {
		return -1, false
	}
	u := sp.upper() - len(tup)
	copy(sp.buf[u:], tup)
	sp.setUpper(u)
	return sp.appendSlot(u, len(tup), slotFlagNormal), true
}

// readTuple returns slot's bytes, or ok=false if the slot is out of range or
// deleted.
func (sp slottedPage) readTuple(slot int) (tup []byte, ok bool) {
	if slot < 0 || slot >= sp.numSlots() {
		return nil, false
	}
	offset, length, flags := sp.getSlot(slot)
	if flags == slotFlagDeleted {
		return nil, false
	}
	return sp.buf[offset : offset+length], true
}

// updateTupleInPlace overwrites slot's bytes if newTup fits in the space
// already reserved for it (same or smaller length). Returns ok=false if it
// doesn't fit; the caller must then delete + reinsert.
func (sp slottedPage) updateTupleInPlace(slot int, newTup []byte) bool {
	offset, length, flags := sp.getSlot(slot)
	if flags == slotFlagDeleted {
		return false
	}
	if len(newTup) > length {
		return false
	}
	copy(sp.buf[offset:], newTup)
	sp.putSlot(slot, offset, len(newTup), slotFlagNormal)
	return true
}

func (sp slottedPage) deleteTuple(slot int) {
	sp.putSlot(slot, 0, 0, slotFlagDeleted)
}
