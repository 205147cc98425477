package execution

import "github.com/relstore/relstore/internal/record"

// Limit passes through at most N rows from its child, then stops pulling
// entirely.
type Limit struct {
	child Executor
	n     int
	seen  int
}

func NewLimit(child Executor, n int) *Limit {
	return &Limit{child: child, n: n}
}

func (l *Limit) Init() error {
	l.seen = 0
	return l.child.Init()
}

func (l *Limit) Next() (record.Tuple, bool, error) {
	if l.seen >= l.n {
		return record.Tuple{}, false, nil
	}
	tup, ok, err := l.child.Next()
	if err != nil || !ok {
		return record.Tuple{}, false, err
	}
	l.seen++
	return tup, true, nil
}

func (l *Limit) OutputSchema() record.Schema { return l.child.OutputSchema() }
