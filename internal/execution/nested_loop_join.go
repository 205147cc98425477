package execution

import "github.com/relstore/relstore/internal/record"

// JoinPredicate reports whether a left/right row pair satisfies a join
// condition (a stand-in for a bound expression tree; see TargetExpr).
type JoinPredicate func(left, right record.Tuple) bool

// NestedLoopJoin joins its left child against a full rewind of its right
// child for every left row. Left outer join emits a null-padded right side
// when no right row matched the current left row; inner join drops the left
// row entirely. Grounded on nested_loop_join_executor.cpp.
type NestedLoopJoin struct {
	left, right Executor
	pred        JoinPredicate
	leftOuter   bool
	schema      record.Schema

	curLeft      record.Tuple
	haveLeft     bool
	curLeftMatch bool
	exhausted    bool
}

func NewNestedLoopJoin(left, right Executor, pred JoinPredicate, leftOuter bool) *NestedLoopJoin {
	cols := append(append([]record.Column{}, left.OutputSchema().Cols...), right.OutputSchema().Cols...)
	return &NestedLoopJoin{left: left, right: right, pred: pred, leftOuter: leftOuter, schema: record.Schema{Cols: cols}}
}

func (j *NestedLoopJoin) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}
	j.haveLeft = false
	j.curLeftMatch = false
	j.exhausted = false
	return nil
}

// pullLeft advances to the next left row and rewinds the right child for it.
// Returns false when the left child is exhausted.
func (j *NestedLoopJoin) pullLeft() (bool, error) {
	tup, ok, err := j.left.Next()
	if err != nil || !ok {
		return false, err
	}
	j.curLeft = tup
	j.curLeftMatch = false
	if err := j.right.Init(); err != nil {
		return false, err
	}
	return true, nil
}

func (j *NestedLoopJoin) Next() (record.Tuple, bool, error) {
	if j.exhausted {
		return record.Tuple{}, false, nil
	}
	if !j.haveLeft {
		ok, err := j.pullLeft()
		if err != nil {
			return record.Tuple{}, false, err
		}
		if !ok {
			j.exhausted = true
			return record.Tuple{}, false, nil
		}
		j.haveLeft = true
	}

	for {
		rtup, ok, err := j.right.Next()
		if err != nil {
			return record.Tuple{}, false, err
		}
		if ok {
			if j.pred(j.curLeft, rtup) {
				j.curLeftMatch = true
				return j.curLeft.Join(rtup), true, nil
			}
			continue
		}

		// Right side exhausted for the current left row.
		emitUnmatched := j.leftOuter && !j.curLeftMatch
		unmatchedLeft := j.curLeft

		nextOk, err := j.pullLeft()
		if err != nil {
			return record.Tuple{}, false, err
		}
		if !nextOk {
			j.exhausted = true
		}

		if emitUnmatched {
			rightWidth := len(j.right.OutputSchema().Cols)
			return unmatchedLeft.Join(record.Tuple{}.NullPadded(rightWidth)), true, nil
		}
		if !nextOk {
			return record.Tuple{}, false, nil
		}
		// Otherwise loop around with the freshly pulled left row.
	}
}

func (j *NestedLoopJoin) OutputSchema() record.Schema { return j.schema }
