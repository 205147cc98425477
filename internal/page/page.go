// Package page defines the fixed-size page abstraction shared by every page
// consumer in the storage core: the buffer pool, the B+ tree, and the heap
// table. A Page is a raw 4 KiB byte block plus the bookkeeping (identity,
// dirty flag, pin count, latches) the buffer pool needs to manage it; it
// carries no knowledge of what is encoded inside its Data.
package page

import (
	"sync"

	"go.uber.org/atomic"
)

const (
	// Size is the fixed page size used throughout the storage core.
	Size = 4096

	// Invalid is the sentinel page id meaning "no page".
	Invalid ID = -1
)

// ID identifies a page. It is signed so Invalid can be represented as -1,
// matching the teaching convention that 0 is a legitimate page id.
type ID int64

// RID (row identifier) uniquely addresses a tuple inside a heap table.
type RID struct {
	PageID ID
	Slot   uint32
}

// Invalid reports whether the RID's page id is the Invalid sentinel. The zero
// value RID{} addresses page 0, slot 0, and is not Invalid.
func (r RID) Invalid() bool { return r.PageID == Invalid }

// Page is one frame's worth of resident bytes plus its metadata. The buffer
// pool owns the Data slice for the lifetime of the frame; guards never copy
// it, they only bound access to it with latches.
type Page struct {
	id    atomic.Int64
	pin   atomic.Int32
	dirty atomic.Bool

	// latch is the reader/writer latch on the page's contents; RLock for
	// ReadPageGuard, Lock for WritePageGuard.
	latch sync.RWMutex

	// Data is the page's raw byte contents, always exactly Size bytes.
	Data [Size]byte
}

// NewPage returns a fresh, zeroed page with the given id and pin count 1
// (the caller that just allocated it is assumed to hold the first pin).
func NewPage(id ID) *Page {
	p := &Page{}
	p.id.Store(int64(id))
	p.pin.Store(1)
	return p
}

// ID returns the page's current identity.
func (p *Page) ID() ID { return ID(p.id.Load()) }

func (p *Page) setID(id ID) { p.id.Store(int64(id)) }

// PinCount returns the number of live guards referencing this page.
func (p *Page) PinCount() int32 { return p.pin.Load() }

// IsDirty reports the page's sticky dirty bit.
func (p *Page) IsDirty() bool { return p.dirty.Load() }

// markDirty sets the dirty bit. The bit is monotonically sticky: it is never
// cleared here, only by an explicit flush (see buffer.Pool.FlushPage).
func (p *Page) markDirty() { p.dirty.Store(true) }

func (p *Page) clearDirty() { p.dirty.Store(false) }

// reset zeroes the page's contents and metadata in preparation for reuse by
// a different page id. Caller must hold exclusive access (pin count 0, not
// latched by anyone else); only the buffer pool calls this, under the pool
// latch, right before reassigning the frame.
func (p *Page) reset(id ID) {
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.id.Store(int64(id))
	p.pin.Store(0)
	p.dirty.Store(false)
}

func (p *Page) incPin() int32 { return p.pin.Add(1) }

// decPin decrements the pin count and returns the new value. It never goes
// below zero; callers that observe it already at zero should treat a further
// Unpin as a no-op (see buffer.Pool.UnpinPage).
func (p *Page) decPin() int32 {
	for {
		cur := p.pin.Load()
		if cur <= 0 {
			return 0
		}
		if p.pin.CAS(cur, cur-1) {
			return cur - 1
		}
	}
}

// RLatch/RUnlatch/Latch/Unlatch expose the page's reader/writer latch to the
// guard wrappers in package buffer. Application code should never call these
// directly; it should acquire a guard instead.
func (p *Page) RLatch()   { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
func (p *Page) WLatch()   { p.latch.Lock() }
func (p *Page) WUnlatch() { p.latch.Unlock() }

// The exported wrappers below are the buffer pool's only access to the
// frame-management internals above; application code has no reason to call
// them and should go through a buffer.Pool and its guards instead.

// IncPinExported increments the pin count (buffer.Pool.FetchPage bookkeeping).
func (p *Page) IncPinExported() int32 { return p.incPin() }

// DecPinExported decrements the pin count, floored at zero, and returns the
// new value (buffer.Pool.UnpinPage bookkeeping).
func (p *Page) DecPinExported() int32 { return p.decPin() }

// MarkDirtyExported sets the sticky dirty bit.
func (p *Page) MarkDirtyExported() { p.markDirty() }

// ClearDirtyExported clears the dirty bit (only the buffer pool's flush path
// should ever call this).
func (p *Page) ClearDirtyExported() { p.clearDirty() }

// CopyMeta installs id/pin/dirty on a page whose Data has just been filled
// in by the buffer pool's disk read path.
func (p *Page) CopyMeta(id ID, pin int32, dirty bool) {
	p.setID(id)
	p.pin.Store(pin)
	p.dirty.Store(dirty)
}
