package lock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/txn"
)

func TestHasCycle_AcyclicGraphReturnsNil(t *testing.T) {
	edges := []WaitForEdge{{Waiter: 2, Holder: 1}, {Waiter: 3, Holder: 2}}
	require.Nil(t, hasCycle(edges))
}

func TestHasCycle_DetectsSimpleCycle(t *testing.T) {
	edges := []WaitForEdge{{Waiter: 1, Holder: 2}, {Waiter: 2, Holder: 1}}
	cycle := hasCycle(edges)
	require.NotNil(t, cycle)
	require.ElementsMatch(t, []int64{1, 2}, cycle)
}

func TestHasCycle_DetectsLongerCycle(t *testing.T) {
	edges := []WaitForEdge{
		{Waiter: 1, Holder: 2},
		{Waiter: 2, Holder: 3},
		{Waiter: 3, Holder: 1},
	}
	cycle := hasCycle(edges)
	require.NotNil(t, cycle)
	require.ElementsMatch(t, []int64{1, 2, 3}, cycle)
}

func TestYoungestVictim_PicksLargestID(t *testing.T) {
	require.Equal(t, int64(7), youngestVictim([]int64{3, 7, 5}))
}

func TestRemoveTxnEdges_DropsEveryEdgeTouchingVictim(t *testing.T) {
	edges := []WaitForEdge{
		{Waiter: 1, Holder: 2},
		{Waiter: 2, Holder: 3},
		{Waiter: 3, Holder: 4},
	}
	filtered := removeTxnEdges(edges, 2)
	require.Equal(t, []WaitForEdge{{Waiter: 3, Holder: 4}}, filtered)
}

func TestDetectOnce_AbortsYoungestInCycleAndClearsItsWaits(t *testing.T) {
	m := NewManager()

	// Two resources, each held by one txn and waited on by the other, forms
	// a two-node wait-for cycle: 1 waits on 2, 2 waits on 1.
	qA := newQueue()
	qA.requests = []*request{
		{txnID: 1, mode: txn.Exclusive, granted: true},
		{txnID: 2, mode: txn.Exclusive, granted: false},
	}
	qB := newQueue()
	qB.requests = []*request{
		{txnID: 2, mode: txn.Exclusive, granted: true},
		{txnID: 1, mode: txn.Exclusive, granted: false},
	}
	m.tables[1] = qA
	m.tables[2] = qB
	m.markWaiting(2, qA)
	m.markWaiting(1, qB)

	t2 := txn.New(2, txn.RepeatableRead)
	registry := func(id int64) *txn.Txn {
		if id == 2 {
			return t2
		}
		return nil
	}

	m.detectOnce(registry)

	require.Equal(t, txn.Aborted, t2.State())
}
