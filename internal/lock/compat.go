package lock

import "github.com/relstore/relstore/internal/txn"

// compatible reports whether held (already granted) and requested may be
// granted simultaneously on the same resource, per spec §4.4's matrix.
func compatible(held, requested txn.LockMode) bool {
	switch held {
	case txn.IntentionShared:
		return requested != txn.Exclusive
	case txn.IntentionExclusive:
		return requested == txn.IntentionShared || requested == txn.IntentionExclusive
	case txn.Shared:
		return requested == txn.Shared || requested == txn.IntentionShared
	case txn.SharedIntentionExclusive:
		return requested == txn.IntentionShared
	case txn.Exclusive:
		return false
	default:
		return false
	}
}

// canUpgrade reports whether a txn holding curr may replace it with
// requested in a single atomic upgrade (spec §4.4's upgrade lattice:
// IS -> {S, X, IX, SIX}, S|IX -> {X, SIX}, SIX -> {X}).
func canUpgrade(curr, requested txn.LockMode) bool {
	switch curr {
	case txn.IntentionShared:
		return requested == txn.Shared || requested == txn.Exclusive ||
			requested == txn.IntentionExclusive || requested == txn.SharedIntentionExclusive
	case txn.Shared, txn.IntentionExclusive:
		return requested == txn.Exclusive || requested == txn.SharedIntentionExclusive
	case txn.SharedIntentionExclusive:
		return requested == txn.Exclusive
	default:
		return false
	}
}

// grantAllowed reports whether newTxnID's requested mode may be granted now:
// it must be compatible with every granted request and with every ungranted
// request queued ahead of it (fair queueing — no jumping past waiters, spec
// §4.4 step 5). newTxnID's own request is skipped by identity, and waiters
// queued behind it are not consulted.
func grantAllowed(q *queue, newTxnID int64, mode txn.LockMode) bool {
	behind := false
	for _, r := range q.requests {
		if r.txnID == newTxnID {
			behind = true
			continue
		}
		if behind && !r.granted {
			continue
		}
		if !compatible(r.mode, mode) {
			return false
		}
	}
	return true
}
