package buffer

import "github.com/relstore/relstore/internal/page"

// BasicPageGuard is a scoped, move-only pin: it holds exactly one pin on a
// page and releases it exactly once, on Drop. It acquires no content latch,
// so callers must coordinate their own reads/writes (spec §4.1).
//
// Guards are structs, not pointers, and Drop nils out the pool reference so
// a guard dropped twice is inert rather than double-unpinning — the Go
// analogue of the spec's "moved-from guard is inert" rule, since Go has no
// move semantics to enforce this statically. Only the dropped value is
// cleared: a copy made before Drop still holds the page and unpins it again
// if it is dropped too.
type BasicPageGuard struct {
	pool  *Pool
	pg    *page.Page
	dirty bool
}

func newBasicGuard(pool *Pool, pg *page.Page) BasicPageGuard {
	return BasicPageGuard{pool: pool, pg: pg}
}

// Page returns the underlying page. Valid until Drop.
func (g *BasicPageGuard) Page() *page.Page { return g.pg }

// PageID returns the guarded page's id, or page.Invalid if the guard has
// already been dropped.
func (g *BasicPageGuard) PageID() page.ID {
	if g.pg == nil {
		return page.Invalid
	}
	return g.pg.ID()
}

// MarkDirty records that the guard's holder mutated the page; the dirty bit
// it passes to Unpin on Drop is the logical OR of every MarkDirty call.
func (g *BasicPageGuard) MarkDirty() { g.dirty = true }

// Drop unpins the page exactly once, passing the dirty bit observed so far.
// Safe to call multiple times; the second call onward is a no-op.
func (g *BasicPageGuard) Drop() {
	if g.pg == nil {
		return
	}
	_ = g.pool.UnpinPage(g.pg.ID(), g.dirty)
	g.pool = nil
	g.pg = nil
	g.dirty = false
}

// UpgradeRead consumes the basic guard and returns a ReadPageGuard over the
// same page, acquiring the reader latch. Mirrors BusTub's guard
// move-assignment upgrade path (see original_source/page_guard.cpp).
func (g *BasicPageGuard) UpgradeRead() ReadPageGuard {
	pg := g.pg
	pool := g.pool
	g.pool, g.pg = nil, nil
	pg.RLatch()
	return ReadPageGuard{BasicPageGuard{pool: pool, pg: pg}}
}

// UpgradeWrite is the write-latch analogue of UpgradeRead.
func (g *BasicPageGuard) UpgradeWrite() WritePageGuard {
	pg := g.pg
	pool := g.pool
	g.pool, g.pg = nil, nil
	pg.WLatch()
	return WritePageGuard{BasicPageGuard{pool: pool, pg: pg}}
}

// ReadPageGuard additionally holds the page's reader latch, released on Drop
// alongside the pin.
type ReadPageGuard struct {
	BasicPageGuard
}

func (g *ReadPageGuard) Drop() {
	if g.pg == nil {
		return
	}
	pg := g.pg
	g.BasicPageGuard.Drop()
	pg.RUnlatch()
}

// WritePageGuard additionally holds the page's writer latch, released on
// Drop alongside the pin. A WritePageGuard is always implicitly dirty-capable
// via MarkDirty; it does not auto-mark dirty on every access because not
// every write-latched traversal step actually mutates the page (e.g. crabbed
// ancestors on a safe insert).
type WritePageGuard struct {
	BasicPageGuard
}

func (g *WritePageGuard) Drop() {
	if g.pg == nil {
		return
	}
	pg := g.pg
	g.BasicPageGuard.Drop()
	pg.WUnlatch()
}
