// Package lock implements the hierarchical table/row lock manager described
// in spec §4.4: per-resource request queues, a compatibility matrix, an
// upgrade lattice, isolation-level-specific abort rules, and a background
// deadlock detector. It is grounded on BusTub's lock_manager.cpp
// (original_source/src/concurrency/lock_manager.cpp), translated from
// exception-based aborts to Go's explicit *txn.AbortError returns.
package lock

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/relstore/relstore/internal/page"
	"github.com/relstore/relstore/internal/txn"
)

const logPrefix = "lock: "

// ErrTxnAborted is returned by a blocked LockTable/LockRow call when the txn
// is woken up already ABORTED — typically the deadlock detector's victim,
// but also any other external abort. Unlike txn.AbortError, it carries no
// isolation-violation reason because none applies here.
var ErrTxnAborted = errors.New("lock: transaction aborted while waiting for lock")

// Manager owns the table and row resource tables. Both maps are protected by
// their own latch, matching the source's table_lock_map_latch_ /
// row_lock_map_latch_ split (spec §4.4, "Both tables are protected by a map
// latch; each queue by its own mutex plus a condition variable").
type Manager struct {
	instanceID uuid.UUID // diagnostic identity, surfaced by cmd/reladmin

	tableMu sync.Mutex
	tables  map[txn.TableOID]*queue

	rowMu sync.Mutex
	rows  map[page.RID]*queue

	// waitMu guards waitingOn, the live "which queues is this txn blocked
	// on" index the deadlock detector uses to wake a chosen victim.
	waitMu    sync.Mutex
	waitingOn map[int64]map[*queue]struct{}
}

// NewManager returns an empty lock manager.
func NewManager() *Manager {
	return &Manager{
		instanceID: uuid.New(),
		tables:     make(map[txn.TableOID]*queue),
		rows:       make(map[page.RID]*queue),
		waitingOn:  make(map[int64]map[*queue]struct{}),
	}
}

// InstanceID identifies this manager for diagnostic surfaces (cmd/reladmin).
func (m *Manager) InstanceID() uuid.UUID { return m.instanceID }

func (m *Manager) tableQueue(oid txn.TableOID) *queue {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()
	q, ok := m.tables[oid]
	if !ok {
		q = newQueue()
		m.tables[oid] = q
	}
	return q
}

func (m *Manager) rowQueue(rid page.RID) *queue {
	m.rowMu.Lock()
	defer m.rowMu.Unlock()
	q, ok := m.rows[rid]
	if !ok {
		q = newQueue()
		m.rows[rid] = q
	}
	return q
}

func (m *Manager) markWaiting(txnID int64, q *queue) {
	m.waitMu.Lock()
	defer m.waitMu.Unlock()
	set := m.waitingOn[txnID]
	if set == nil {
		set = make(map[*queue]struct{})
		m.waitingOn[txnID] = set
	}
	set[q] = struct{}{}
}

func (m *Manager) clearWaiting(txnID int64, q *queue) {
	m.waitMu.Lock()
	defer m.waitMu.Unlock()
	if set := m.waitingOn[txnID]; set != nil {
		delete(set, q)
		if len(set) == 0 {
			delete(m.waitingOn, txnID)
		}
	}
}

// abort marks t ABORTED and returns the typed error the caller propagates;
// it never panics, unlike the BusTub source's ThrowAbort.
func abort(t *txn.Txn, reason txn.AbortReason) error {
	t.SetState(txn.Aborted)
	return &txn.AbortError{TxnID: t.ID(), Reason: reason}
}

// checkIsolation enforces spec §4.4 step 2's per-isolation-level rules
// before a lock is requested, for both table and row locks.
func checkIsolation(t *txn.Txn, mode txn.LockMode) error {
	switch t.Isolation() {
	case txn.RepeatableRead:
		if t.State() == txn.Shrinking {
			return abort(t, txn.LockOnShrinking)
		}
	case txn.ReadCommitted:
		if t.State() == txn.Shrinking && mode != txn.Shared && mode != txn.IntentionShared {
			return abort(t, txn.LockOnShrinking)
		}
	case txn.ReadUncommitted:
		if mode != txn.Exclusive && mode != txn.IntentionExclusive {
			return abort(t, txn.LockSharedOnReadUncommitted)
		}
		if t.State() != txn.Growing {
			return abort(t, txn.LockOnShrinking)
		}
	}
	return nil
}

// LockTable acquires mode on oid for t, blocking until compatible, granting
// it, upgrading an existing weaker lock, or aborting t per isolation rules.
func (m *Manager) LockTable(t *txn.Txn, mode txn.LockMode, oid txn.TableOID) error {
	if err := checkIsolation(t, mode); err != nil {
		return err
	}

	q := m.tableQueue(oid)
	q.mu.Lock()

	if existing, held := t.FindTableLock(oid); held {
		if existing == mode {
			q.mu.Unlock()
			return nil
		}
		return m.upgradeTable(t, q, existing, mode, oid)
	}

	req := &request{txnID: t.ID(), mode: mode}
	q.requests = append(q.requests, req)
	return m.waitForGrant(t, q, req, func() { t.InsertTableLock(mode, oid) })
}

// upgradeTable implements the single-atomic-replacement upgrade path, called
// with q.mu held and the old request still present in the queue.
func (m *Manager) upgradeTable(t *txn.Txn, q *queue, old, mode txn.LockMode, oid txn.TableOID) error {
	if q.upgrading != noUpgrade {
		q.mu.Unlock()
		return abort(t, txn.UpgradeConflict)
	}
	if !canUpgrade(old, mode) {
		q.mu.Unlock()
		return abort(t, txn.IncompatibleUpgrade)
	}

	q.removeByTxn(t.ID())
	t.DeleteTableLock(old, oid)
	q.upgrading = t.ID()

	req := &request{txnID: t.ID(), mode: mode}
	insertAt := q.firstUngrantedIndex()
	q.requests = append(q.requests, nil)
	copy(q.requests[insertAt+1:], q.requests[insertAt:])
	q.requests[insertAt] = req

	return m.waitForGrant(t, q, req, func() {
		q.upgrading = noUpgrade
		t.InsertTableLock(mode, oid)
	})
}

// waitForGrant blocks on q's condition variable until req can be granted or
// t is aborted (by the deadlock detector). Called with q.mu held; always
// returns with q.mu unlocked.
func (m *Manager) waitForGrant(t *txn.Txn, q *queue, req *request, onGrant func()) error {
	for {
		if grantAllowed(q, req.txnID, req.mode) {
			req.granted = true
			onGrant()
			m.clearWaiting(t.ID(), q)
			q.mu.Unlock()
			q.cond.Broadcast()
			return nil
		}
		m.markWaiting(t.ID(), q)
		q.cond.Wait()
		if t.State() == txn.Aborted {
			q.removeByTxn(t.ID())
			if q.upgrading == t.ID() {
				q.upgrading = noUpgrade
			}
			m.clearWaiting(t.ID(), q)
			q.mu.Unlock()
			q.cond.Broadcast()
			return ErrTxnAborted
		}
	}
}

// UnlockTable releases whatever table lock t holds on oid.
func (m *Manager) UnlockTable(t *txn.Txn, oid txn.TableOID) error {
	mode, held := t.FindTableLock(oid)
	if !held {
		return abort(t, txn.AttemptedUnlockButNoLockHeld)
	}
	if !t.RowLocksEmptyOnTable(oid) {
		return abort(t, txn.TableUnlockedBeforeUnlockingRows)
	}

	switch t.Isolation() {
	case txn.RepeatableRead:
		if mode == txn.Shared || mode == txn.Exclusive {
			t.SetState(txn.Shrinking)
		}
	case txn.ReadCommitted:
		if mode == txn.Exclusive {
			t.SetState(txn.Shrinking)
		}
	case txn.ReadUncommitted:
		if mode == txn.Exclusive {
			t.SetState(txn.Shrinking)
		}
	}
	t.DeleteTableLock(mode, oid)

	q := m.tableQueue(oid)
	q.mu.Lock()
	q.removeByTxn(t.ID())
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

// checkAppropriateLockOnTable enforces spec §4.4's row-lock precondition:
// row-X needs at least IX on the table; row-S needs at least IS.
func checkAppropriateLockOnTable(t *txn.Txn, oid txn.TableOID, rowMode txn.LockMode) bool {
	if rowMode == txn.Exclusive {
		return t.HasTableIXOrAbove(oid)
	}
	return t.HasAnyTableIntentOrAbove(oid)
}

// LockRow acquires an S or X row lock for t on (oid, rid).
func (m *Manager) LockRow(t *txn.Txn, mode txn.LockMode, oid txn.TableOID, rid page.RID) error {
	if mode != txn.Shared && mode != txn.Exclusive {
		return abort(t, txn.AttemptedIntentionLockOnRow)
	}
	if !checkAppropriateLockOnTable(t, oid, mode) {
		return abort(t, txn.TableLockNotPresent)
	}
	if err := checkIsolation(t, mode); err != nil {
		return err
	}

	q := m.rowQueue(rid)
	q.mu.Lock()

	if existing, held := t.FindRowLock(oid, rid); held {
		if existing == mode {
			q.mu.Unlock()
			return nil
		}
		return m.upgradeRow(t, q, existing, mode, oid, rid)
	}

	req := &request{txnID: t.ID(), mode: mode}
	q.requests = append(q.requests, req)
	return m.waitForGrant(t, q, req, func() { t.InsertRowLock(mode, oid, rid) })
}

func (m *Manager) upgradeRow(t *txn.Txn, q *queue, old, mode txn.LockMode, oid txn.TableOID, rid page.RID) error {
	if q.upgrading != noUpgrade {
		q.mu.Unlock()
		return abort(t, txn.UpgradeConflict)
	}
	if !canUpgrade(old, mode) {
		q.mu.Unlock()
		return abort(t, txn.IncompatibleUpgrade)
	}

	q.removeByTxn(t.ID())
	t.DeleteRowLock(old, oid, rid)
	q.upgrading = t.ID()

	req := &request{txnID: t.ID(), mode: mode}
	insertAt := q.firstUngrantedIndex()
	q.requests = append(q.requests, nil)
	copy(q.requests[insertAt+1:], q.requests[insertAt:])
	q.requests[insertAt] = req

	return m.waitForGrant(t, q, req, func() {
		q.upgrading = noUpgrade
		t.InsertRowLock(mode, oid, rid)
	})
}

// UnlockRow releases t's row lock on (oid, rid). With force set, unlocking a
// row lock t does not hold returns nil instead of aborting t with
// ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD; a held lock is released the same way
// either way.
func (m *Manager) UnlockRow(t *txn.Txn, oid txn.TableOID, rid page.RID, force bool) error {
	mode, held := t.FindRowLock(oid, rid)
	if !held {
		if force {
			return nil
		}
		return abort(t, txn.AttemptedUnlockButNoLockHeld)
	}

	switch t.Isolation() {
	case txn.RepeatableRead:
		if mode == txn.Shared || mode == txn.Exclusive {
			t.SetState(txn.Shrinking)
		}
	case txn.ReadCommitted:
		if mode == txn.Exclusive {
			t.SetState(txn.Shrinking)
		}
	case txn.ReadUncommitted:
		if mode == txn.Exclusive {
			t.SetState(txn.Shrinking)
		}
	}
	t.DeleteRowLock(mode, oid, rid)

	q := m.rowQueue(rid)
	q.mu.Lock()
	q.removeByTxn(t.ID())
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

// logUnexpected logs a lock-manager anomaly at Warn level under the lock
// prefix without returning an error.
func (m *Manager) logUnexpected(msg string, args ...any) {
	slog.Warn(logPrefix+msg, args...)
}
