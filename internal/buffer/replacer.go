package buffer

import (
	"container/list"
	"errors"
	"sync"

	"go.uber.org/atomic"
)

// ErrRemoveNotEvictable is returned when Remove is called on a frame that is
// currently pinned (not marked evictable) — an internal invariant violation
// per spec §7.
var ErrRemoveNotEvictable = errors.New("buffer: replacer remove of non-evictable frame")

// replacer implements LRU-K eviction over a fixed set of frame ids
// [0..capacity). It is the Go-idiomatic reshape of this pack's CLOCK
// replacer (pkg/clockx.Clock in the teacher's tree): same Touch/SetEvictable/
// Evict/Remove/Size shape, different victim-selection policy.
//
// Two ordered sequences are maintained, per spec §4.2:
//   - lessK: frames with fewer than K recorded accesses, FIFO by first access.
//   - moreK: frames with >= K accesses, ordered for largest-K-distance scan.
//
// All methods are serialized by mu; callers (the pool) never need their own
// lock around replacer calls.
type lruKReplacer struct {
	mu             sync.Mutex
	k              int
	clock          atomic.Uint64 // monotonic access timestamp source
	lessK          *list.List    // *node, FIFO order (front = oldest)
	moreK          *list.List    // *node, no fixed order; scanned for max K-distance
	byFrame        map[int]*list.Element
	evictableCount int
}

type node struct {
	frame     int
	history   []uint64 // last K access timestamps, oldest first
	evictable bool
	inMoreK   bool
}

func newLRUKReplacer(k int) *lruKReplacer {
	if k < 1 {
		k = 1
	}
	return &lruKReplacer{
		k:       k,
		lessK:   list.New(),
		moreK:   list.New(),
		byFrame: make(map[int]*list.Element),
	}
}

func (r *lruKReplacer) now() uint64 { return r.clock.Add(1) }

// RecordAccess appends the current timestamp to frame's history, creating
// the frame's tracking node if this is its first ever access, and moves it
// from lessK to moreK exactly at the |history| == k transition.
func (r *lruKReplacer) RecordAccess(frame int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now()

	elem, ok := r.byFrame[frame]
	if !ok {
		n := &node{frame: frame, history: []uint64{ts}}
		elem = r.lessK.PushBack(n)
		r.byFrame[frame] = elem
		return
	}

	n := elem.Value.(*node)
	n.history = append(n.history, ts)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}

	if !n.inMoreK && len(n.history) == r.k {
		r.lessK.Remove(elem)
		n.inMoreK = true
		elem = r.moreK.PushBack(n)
		r.byFrame[frame] = elem
	}
}

// SetEvictable marks frame as (non-)evictable. Idempotent.
func (r *lruKReplacer) SetEvictable(frame int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.byFrame[frame]
	if !ok {
		return
	}
	n := elem.Value.(*node)
	if n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.evictableCount++
	} else {
		r.evictableCount--
	}
}

// kDistance returns (current_ts - history[0]) if the frame has k accesses,
// or the maximum possible distance (+inf) otherwise. now is the timestamp at
// which the comparison is made, so every candidate is compared fairly within
// one Evict() call.
func kDistance(n *node, k int, now uint64) (uint64, bool) {
	if len(n.history) < k {
		return 0, false // +inf sentinel: "false" means infinite (handled by caller)
	}
	return now - n.history[0], true
}

// Evict selects and removes a victim frame per spec §4.2: first evictable
// frame in lessK (FIFO), else the evictable frame in moreK with the largest
// K-distance (earliest first-access breaks ties).
func (r *lruKReplacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for e := r.lessK.Front(); e != nil; e = e.Next() {
		n := e.Value.(*node)
		if n.evictable {
			r.removeElem(e, r.lessK)
			return n.frame, true
		}
	}

	now := r.now()
	var victimElem *list.Element
	var victim *node
	var bestDist uint64
	for e := r.moreK.Front(); e != nil; e = e.Next() {
		n := e.Value.(*node)
		if !n.evictable {
			continue
		}
		dist, ok := kDistance(n, r.k, now)
		if !ok {
			// Should not happen for moreK members, but be defensive:
			// treat as +inf so it always wins.
			dist = ^uint64(0)
		}
		if victim == nil || dist > bestDist ||
			(dist == bestDist && n.history[0] < victim.history[0]) {
			victim, victimElem, bestDist = n, e, dist
		}
	}
	if victim == nil {
		return 0, false
	}
	r.removeElem(victimElem, r.moreK)
	return victim.frame, true
}

// Remove drops frame from tracking entirely. The frame must currently be
// evictable; spec §4.2 treats removing a pinned frame as an internal
// invariant error.
func (r *lruKReplacer) Remove(frame int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.byFrame[frame]
	if !ok {
		return nil
	}
	n := elem.Value.(*node)
	if !n.evictable {
		return ErrRemoveNotEvictable
	}
	lst := r.lessK
	if n.inMoreK {
		lst = r.moreK
	}
	r.removeElem(elem, lst)
	return nil
}

// removeElem must be called with mu held; it also fixes up evictableCount.
func (r *lruKReplacer) removeElem(e *list.Element, lst *list.List) {
	n := e.Value.(*node)
	if n.evictable {
		r.evictableCount--
	}
	lst.Remove(e)
	delete(r.byFrame, n.frame)
}

// Size returns the number of currently evictable frames.
func (r *lruKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictableCount
}
