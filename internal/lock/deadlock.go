package lock

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/relstore/relstore/internal/txn"
)

// WaitForEdge is one edge of the wait-for graph: waiter is blocked behind
// holder on some resource.
type WaitForEdge struct {
	Waiter int64
	Holder int64
}

// WaitForGraph exposes the current wait-for graph for diagnostics (the
// cmd/reladmin websocket stream) and for tests that want to assert on
// specific edges without waiting for a detection tick.
func (m *Manager) WaitForGraph() []WaitForEdge { return m.buildWaitForGraph() }

// buildWaitForGraph scans every table and row queue and records, for each
// ungranted request, an edge to every request ahead of it in that queue
// (granted or not — fair FIFO means a later waiter is effectively blocked
// behind earlier waiters too, so this is still a sound over-approximation
// for cycle detection).
func (m *Manager) buildWaitForGraph() []WaitForEdge {
	var edges []WaitForEdge

	collect := func(q *queue) {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, r := range q.requests {
			if r.granted {
				continue
			}
			for j := 0; j < i; j++ {
				if q.requests[j].txnID != r.txnID {
					edges = append(edges, WaitForEdge{Waiter: r.txnID, Holder: q.requests[j].txnID})
				}
			}
		}
	}

	m.tableMu.Lock()
	tableQueues := make([]*queue, 0, len(m.tables))
	for _, q := range m.tables {
		tableQueues = append(tableQueues, q)
	}
	m.tableMu.Unlock()
	for _, q := range tableQueues {
		collect(q)
	}

	m.rowMu.Lock()
	rowQueues := make([]*queue, 0, len(m.rows))
	for _, q := range m.rows {
		rowQueues = append(rowQueues, q)
	}
	m.rowMu.Unlock()
	for _, q := range rowQueues {
		collect(q)
	}

	return edges
}

// hasCycle runs DFS over edges and returns the first cycle found as a set of
// participating txn ids, or nil if the graph is acyclic. Traversal order is
// deterministic (sorted adjacency) so repeated runs over the same graph
// agree, which matters for picking a stable victim.
func hasCycle(edges []WaitForEdge) []int64 {
	adj := make(map[int64][]int64)
	nodes := make(map[int64]struct{})
	for _, e := range edges {
		adj[e.Waiter] = append(adj[e.Waiter], e.Holder)
		nodes[e.Waiter] = struct{}{}
		nodes[e.Holder] = struct{}{}
	}
	for k := range adj {
		sort.Slice(adj[k], func(i, j int) bool { return adj[k][i] < adj[k][j] })
	}

	ordered := make([]int64, 0, len(nodes))
	for n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int)
	var path []int64
	var cycle []int64

	var visit func(n int64) bool
	visit = func(n int64) bool {
		color[n] = gray
		path = append(path, n)
		for _, next := range adj[n] {
			switch color[next] {
			case white:
				if visit(next) {
					return true
				}
			case gray:
				// Found a cycle: the portion of path from next's first
				// occurrence to the end.
				for i, p := range path {
					if p == next {
						cycle = append([]int64(nil), path[i:]...)
						break
					}
				}
				return true
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	for _, n := range ordered {
		if color[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// youngestVictim picks the victim txn in a cycle: the one with the largest
// id, matching the usual teaching convention that txn ids are assigned in
// increasing order of transaction start (spec §4.4, "selects a youngest-txn
// victim in each cycle").
func youngestVictim(cycle []int64) int64 {
	victim := cycle[0]
	for _, id := range cycle[1:] {
		if id > victim {
			victim = id
		}
	}
	return victim
}

// abortVictim marks the chosen txn ABORTED (via the registry) and broadcasts
// every queue it is currently waiting on, per spec §4.4's cancellation
// contract.
func (m *Manager) abortVictim(txnID int64, registry func(int64) *txn.Txn) {
	t := registry(txnID)
	if t != nil {
		t.SetState(txn.Aborted)
	}

	m.waitMu.Lock()
	queues := make([]*queue, 0, len(m.waitingOn[txnID]))
	for q := range m.waitingOn[txnID] {
		queues = append(queues, q)
	}
	m.waitMu.Unlock()

	for _, q := range queues {
		q.cond.Broadcast()
	}
}

// RunDeadlockDetection runs the periodic cycle-detection background task
// described in spec §4.4 until ctx is cancelled. registry resolves a txn id
// to its *txn.Txn so the detector can set the victim's state; callers that
// have no such registry (e.g. a unit test exercising only the wait-for
// graph) may pass a func returning nil, in which case only the queues are
// broadcast, not the txn's own state.
//
// It is launched as a conc WaitGroup-managed goroutine so panics inside
// detection are recovered and reported rather than silently killing the
// process (sourcegraph/conc's panic-catching goroutine).
func (m *Manager) RunDeadlockDetection(ctx context.Context, interval time.Duration, registry func(int64) *txn.Txn) *conc.WaitGroup {
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.detectOnce(registry)
			}
		}
	})
	return wg
}

// detectOnce runs one detection pass over a single snapshot of the graph. It
// aborts one victim per cycle found: after each victim, that txn's edges are
// removed from the snapshot and it is searched again, so disjoint cycles are
// all broken in the same pass. The graph is not rebuilt between victims.
func (m *Manager) detectOnce(registry func(int64) *txn.Txn) {
	edges := m.buildWaitForGraph()
	seen := make(map[int64]struct{})
	for {
		cycle := hasCycle(edges)
		if cycle == nil {
			return
		}
		victim := youngestVictim(cycle)
		if _, already := seen[victim]; already {
			return
		}
		seen[victim] = struct{}{}
		slog.Warn(logPrefix+"deadlock detected, aborting victim", "victim", victim, "cycleLen", len(cycle))
		m.abortVictim(victim, registry)
		edges = removeTxnEdges(edges, victim)
	}
}

// removeTxnEdges drops every edge touching txnID, used to let detectOnce
// find additional, disjoint cycles within the same graph snapshot after
// aborting one victim.
func removeTxnEdges(edges []WaitForEdge, txnID int64) []WaitForEdge {
	out := edges[:0]
	for _, e := range edges {
		if e.Waiter != txnID && e.Holder != txnID {
			out = append(out, e)
		}
	}
	return out
}
