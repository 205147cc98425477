package lock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/lock"
	"github.com/relstore/relstore/internal/page"
	"github.com/relstore/relstore/internal/txn"
)

const testTable txn.TableOID = 1

func TestManager_LockTableGrantsCompatibleSharedLocks(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)
	t2 := txn.New(2, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, txn.Shared, testTable))
	require.NoError(t, m.LockTable(t2, txn.Shared, testTable))

	mode, held := t1.FindTableLock(testTable)
	require.True(t, held)
	require.Equal(t, txn.Shared, mode)
}

func TestManager_LockTableSameModeTwiceIsNoop(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, txn.Shared, testTable))
	require.NoError(t, m.LockTable(t1, txn.Shared, testTable))
}

func TestManager_LockTableBlocksOnIncompatibleModeUntilReleased(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)
	t2 := txn.New(2, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, txn.Exclusive, testTable))

	granted := make(chan error, 1)
	go func() { granted <- m.LockTable(t2, txn.Shared, testTable) }()

	select {
	case <-granted:
		t.Fatal("second lock granted while exclusive holder still live")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.UnlockTable(t1, testTable))

	select {
	case err := <-granted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lock never granted after release")
	}
}

func TestManager_UpgradeSharedToExclusive(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, txn.Shared, testTable))
	require.NoError(t, m.LockTable(t1, txn.Exclusive, testTable))

	mode, held := t1.FindTableLock(testTable)
	require.True(t, held)
	require.Equal(t, txn.Exclusive, mode)
}

func TestManager_ConcurrentUpgradeConflictAborts(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)
	t2 := txn.New(2, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, txn.Shared, testTable))
	require.NoError(t, m.LockTable(t2, txn.Shared, testTable))

	upgrade1 := make(chan error, 1)
	go func() { upgrade1 <- m.LockTable(t1, txn.Exclusive, testTable) }()

	time.Sleep(30 * time.Millisecond)

	err := m.LockTable(t2, txn.Exclusive, testTable)
	var abortErr *txn.AbortError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, txn.UpgradeConflict, abortErr.Reason)

	// t1 gave up its S while upgrading; t2's S is what blocks the upgrade.
	require.NoError(t, m.UnlockTable(t2, testTable))
	select {
	case err := <-upgrade1:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("t1's upgrade never completed")
	}
}

func TestManager_LockRowRequiresTableIntentLock(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}

	err := m.LockRow(t1, txn.Shared, testTable, rid)
	var abortErr *txn.AbortError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, txn.TableLockNotPresent, abortErr.Reason)
}

func TestManager_LockRowSucceedsAfterTableIntentLock(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}

	require.NoError(t, m.LockTable(t1, txn.IntentionExclusive, testTable))
	require.NoError(t, m.LockRow(t1, txn.Exclusive, testTable, rid))

	mode, held := t1.FindRowLock(testTable, rid)
	require.True(t, held)
	require.Equal(t, txn.Exclusive, mode)
}

func TestManager_LockRowRejectsIntentionMode(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}
	require.NoError(t, m.LockTable(t1, txn.IntentionExclusive, testTable))

	err := m.LockRow(t1, txn.IntentionExclusive, testTable, rid)
	var abortErr *txn.AbortError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, txn.AttemptedIntentionLockOnRow, abortErr.Reason)
}

func TestManager_UnlockTableBeforeRowsUnlockedAborts(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}

	require.NoError(t, m.LockTable(t1, txn.IntentionExclusive, testTable))
	require.NoError(t, m.LockRow(t1, txn.Exclusive, testTable, rid))

	err := m.UnlockTable(t1, testTable)
	var abortErr *txn.AbortError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, txn.TableUnlockedBeforeUnlockingRows, abortErr.Reason)

	require.NoError(t, m.UnlockRow(t1, testTable, rid, false))
	require.NoError(t, m.UnlockTable(t1, testTable))
}

func TestManager_LockOnShrinkingAbortsUnderRepeatableRead(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, txn.Shared, testTable))
	require.NoError(t, m.UnlockTable(t1, testTable))
	require.Equal(t, txn.Shrinking, t1.State())

	err := m.LockTable(t1, txn.Shared, testTable)
	var abortErr *txn.AbortError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, txn.LockOnShrinking, abortErr.Reason)
}

func TestManager_ReadUncommittedRejectsSharedLocks(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.ReadUncommitted)

	err := m.LockTable(t1, txn.Shared, testTable)
	var abortErr *txn.AbortError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, txn.LockSharedOnReadUncommitted, abortErr.Reason)
}

func TestManager_WaitForGraphReportsBlockedWaiter(t *testing.T) {
	m := lock.NewManager()
	t1 := txn.New(1, txn.RepeatableRead)
	t2 := txn.New(2, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, txn.Exclusive, testTable))

	done := make(chan struct{})
	go func() {
		_ = m.LockTable(t2, txn.Shared, testTable)
		close(done)
	}()

	require.Eventually(t, func() bool {
		for _, e := range m.WaitForGraph() {
			if e.Waiter == 2 && e.Holder == 1 {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.UnlockTable(t1, testTable))
	<-done
}
