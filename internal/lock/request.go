package lock

import (
	"sync"

	"github.com/relstore/relstore/internal/txn"
)

const noUpgrade int64 = -1

// request is one entry in a LockRequestQueue.
type request struct {
	txnID   int64
	mode    txn.LockMode
	granted bool
}

// queue is a per-resource (table oid or row id) wait queue: an ordered list
// of requests, a single pending-upgrade slot, and a condition variable
// broadcast on every state change (spec §4.4, "Lock request queue").
type queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*request
	upgrading int64
}

func newQueue() *queue {
	q := &queue{upgrading: noUpgrade}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// findByTxn returns the index of txnID's request, or -1.
func (q *queue) findByTxn(txnID int64) int {
	for i, r := range q.requests {
		if r.txnID == txnID {
			return i
		}
	}
	return -1
}

// removeByTxn deletes txnID's request, if present.
func (q *queue) removeByTxn(txnID int64) {
	i := q.findByTxn(txnID)
	if i < 0 {
		return
	}
	q.requests = append(q.requests[:i], q.requests[i+1:]...)
}

// firstUngrantedIndex returns the index of the first ungranted request, or
// len(requests) if every request has been granted.
func (q *queue) firstUngrantedIndex() int {
	for i, r := range q.requests {
		if !r.granted {
			return i
		}
	}
	return len(q.requests)
}
