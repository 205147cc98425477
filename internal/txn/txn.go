// Package txn exposes the narrow transaction view the lock manager needs
// (spec §4.4): state, isolation level, and the lock sets it reads and
// mutates. It deliberately knows nothing about WAL, commit protocol, or the
// rest of a real transaction manager — those are external collaborators per
// spec's Non-goals.
package txn

import (
	"fmt"
	"sync"

	"github.com/relstore/relstore/internal/page"
)

// State is a transaction's position in strict two-phase locking.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel selects which lock-acquisition/release rules apply.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// LockMode is the hierarchical lock mode granted on a resource.
type LockMode int

const (
	IntentionShared LockMode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m LockMode) String() string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	default:
		return "?"
	}
}

// AbortReason is one of the typed abort causes the lock manager surfaces,
// per spec §4.4/§8.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	LockSharedOnReadUncommitted
	UpgradeConflict
	IncompatibleUpgrade
	AttemptedUnlockButNoLockHeld
	TableUnlockedBeforeUnlockingRows
	AttemptedIntentionLockOnRow
	TableLockNotPresent
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case LockSharedOnReadUncommitted:
		return "LOCK_SHARED_ON_READ_UNCOMMITTED"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case IncompatibleUpgrade:
		return "INCOMPATIBLE_UPGRADE"
	case AttemptedUnlockButNoLockHeld:
		return "ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD"
	case TableUnlockedBeforeUnlockingRows:
		return "TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS"
	case AttemptedIntentionLockOnRow:
		return "ATTEMPTED_INTENTION_LOCK_ON_ROW"
	case TableLockNotPresent:
		return "TABLE_LOCK_NOT_PRESENT"
	default:
		return "UNKNOWN_ABORT_REASON"
	}
}

// AbortError is raised (as a Go error, not a panic/exception, per idiom) when
// the lock manager detects an isolation or protocol violation.
type AbortError struct {
	TxnID  int64
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("txn %d aborted: %s", e.TxnID, e.Reason)
}

// TableOID identifies a table as the lock manager's resource key. The
// catalog owns the real namespace; the lock manager only needs an opaque,
// comparable handle.
type TableOID int64

// Txn is the lock manager's view of one transaction: its own latch guards
// state and every lock set, so operators on different goroutines can query
// or mutate them concurrently with the lock manager's bookkeeping.
type Txn struct {
	mu sync.Mutex

	id        int64
	state     State
	isolation IsolationLevel

	tableIS  map[TableOID]struct{}
	tableIX  map[TableOID]struct{}
	tableS   map[TableOID]struct{}
	tableSIX map[TableOID]struct{}
	tableX   map[TableOID]struct{}

	rowS map[TableOID]map[page.RID]struct{}
	rowX map[TableOID]map[page.RID]struct{}
}

// New returns a fresh, GROWING transaction with the given id and isolation
// level.
func New(id int64, isolation IsolationLevel) *Txn {
	return &Txn{
		id:        id,
		state:     Growing,
		isolation: isolation,
		tableIS:   make(map[TableOID]struct{}),
		tableIX:   make(map[TableOID]struct{}),
		tableS:    make(map[TableOID]struct{}),
		tableSIX:  make(map[TableOID]struct{}),
		tableX:    make(map[TableOID]struct{}),
		rowS:      make(map[TableOID]map[page.RID]struct{}),
		rowX:      make(map[TableOID]map[page.RID]struct{}),
	}
}

func (t *Txn) ID() int64 { return t.id }

func (t *Txn) Isolation() IsolationLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isolation
}

func (t *Txn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Txn) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Txn) tableSet(mode LockMode) map[TableOID]struct{} {
	switch mode {
	case IntentionShared:
		return t.tableIS
	case IntentionExclusive:
		return t.tableIX
	case Shared:
		return t.tableS
	case SharedIntentionExclusive:
		return t.tableSIX
	default:
		return t.tableX
	}
}

// InsertTableLock records mode as held on oid.
func (t *Txn) InsertTableLock(mode LockMode, oid TableOID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tableSet(mode)[oid] = struct{}{}
}

// DeleteTableLock removes mode from oid's held set.
func (t *Txn) DeleteTableLock(mode LockMode, oid TableOID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tableSet(mode), oid)
}

// FindTableLock reports which mode (if any) the txn holds on oid.
func (t *Txn) FindTableLock(oid TableOID) (LockMode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range []LockMode{IntentionShared, Shared, IntentionExclusive, SharedIntentionExclusive, Exclusive} {
		if _, ok := t.tableSet(m)[oid]; ok {
			return m, true
		}
	}
	return 0, false
}

// HasAnyTableIntentOrAbove reports whether the txn holds IS, IX, S, SIX, or X
// on oid — used by CheckAppropriateLockOnTable for row-S requests.
func (t *Txn) HasAnyTableIntentOrAbove(oid TableOID) bool {
	_, ok := t.FindTableLock(oid)
	return ok
}

// HasTableIXOrAbove reports whether the txn holds IX, SIX, or X on oid —
// used by CheckAppropriateLockOnTable for row-X requests.
func (t *Txn) HasTableIXOrAbove(oid TableOID) bool {
	mode, ok := t.FindTableLock(oid)
	if !ok {
		return false
	}
	return mode == IntentionExclusive || mode == SharedIntentionExclusive || mode == Exclusive
}

func (t *Txn) rowSet(mode LockMode) map[TableOID]map[page.RID]struct{} {
	if mode == Shared {
		return t.rowS
	}
	return t.rowX
}

// InsertRowLock records mode (S or X) as held on (oid, rid).
func (t *Txn) InsertRowLock(mode LockMode, oid TableOID, rid page.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.rowSet(mode)
	if set[oid] == nil {
		set[oid] = make(map[page.RID]struct{})
	}
	set[oid][rid] = struct{}{}
}

// DeleteRowLock removes mode from (oid, rid)'s held set.
func (t *Txn) DeleteRowLock(mode LockMode, oid TableOID, rid page.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set := t.rowSet(mode)[oid]; set != nil {
		delete(set, rid)
	}
}

// FindRowLock reports which mode (if any) the txn holds on (oid, rid).
func (t *Txn) FindRowLock(oid TableOID, rid page.RID) (LockMode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set := t.rowS[oid]; set != nil {
		if _, ok := set[rid]; ok {
			return Shared, true
		}
	}
	if set := t.rowX[oid]; set != nil {
		if _, ok := set[rid]; ok {
			return Exclusive, true
		}
	}
	return 0, false
}

// RowLocksEmptyOnTable reports whether the txn holds no row locks on oid, a
// precondition for UnlockTable.
func (t *Txn) RowLocksEmptyOnTable(oid TableOID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.rowS[oid]; len(s) != 0 {
		return false
	}
	if s := t.rowX[oid]; len(s) != 0 {
		return false
	}
	return true
}
