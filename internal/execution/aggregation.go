package execution

import "github.com/relstore/relstore/internal/record"

// AggKind is one of the supported aggregate functions.
type AggKind int

const (
	AggCountStar AggKind = iota
	AggCount
	AggSum
	AggMin
	AggMax
)

// AggExpr is one aggregate computed per group: Kind applied to the value
// GetArg extracts from each input row (ignored for AggCountStar).
type AggExpr struct {
	Kind   AggKind
	GetArg func(record.Tuple) record.Value
}

type aggState struct {
	count int64
	sum   float64
	sumIsInt bool
	sumInt int64
	min, max record.Value
	seenAny bool
}

// Aggregation groups its child's rows by GetGroupBy and computes AggExprs
// per group, emitting one row per group (group-by columns followed by
// aggregate results). With no GROUP BY columns and zero input rows, it still
// emits a single row of aggregate identities (0 for COUNT, null for
// SUM/MIN/MAX) rather than no rows at all, matching aggregation_executor.cpp's
// handling of the empty-ungrouped case; a grouped query with zero input rows
// emits nothing, since there are no groups to report on.
type Aggregation struct {
	child      Executor
	getGroupBy func(record.Tuple) []record.Value
	groupByLen int
	aggs       []AggExpr
	schema     record.Schema

	order  []groupKeyRef
	groups map[uint64][]groupBucket
	pos    int
	started bool
}

// groupKeyRef locates one group's bucket entry after grouping completes.
type groupKeyRef struct {
	hash uint64
	idx  int
}

type groupBucket struct {
	values []record.Value
	states []*aggState
}

// groupEqual is GROUP BY equality, unlike valuesEqual/join equality: two
// NULLs belong to the same group.
func groupEqual(a, b []record.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == nil && b[i] == nil {
			continue
		}
		if a[i] == nil || b[i] == nil {
			return false
		}
		if compareValues(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

func groupHash(values []record.Value) uint64 {
	var h uint64 = 14695981039346656037
	for _, v := range values {
		if v != nil {
			h ^= elementHash(v)
		}
		h *= 1099511628211
	}
	return h
}

func NewAggregation(child Executor, getGroupBy func(record.Tuple) []record.Value, groupByLen int, aggs []AggExpr, schema record.Schema) *Aggregation {
	return &Aggregation{child: child, getGroupBy: getGroupBy, groupByLen: groupByLen, aggs: aggs, schema: schema}
}

func (a *Aggregation) Init() error {
	if err := a.child.Init(); err != nil {
		return err
	}
	a.groups = make(map[uint64][]groupBucket)
	a.order = nil
	a.pos = 0
	a.started = false

	for {
		tup, ok, err := a.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		a.started = true

		var gb []record.Value
		if a.getGroupBy != nil {
			gb = a.getGroupBy(tup)
		}
		ref := a.findOrCreateGroup(gb)
		bucket := &a.groups[ref.hash][ref.idx]
		for i, ag := range a.aggs {
			applyAgg(bucket.states[i], ag, tup)
		}
	}

	if !a.started && a.groupByLen == 0 {
		a.findOrCreateGroup(nil)
	}

	return nil
}

func (a *Aggregation) findOrCreateGroup(gb []record.Value) groupKeyRef {
	h := groupHash(gb)
	for i, b := range a.groups[h] {
		if groupEqual(b.values, gb) {
			return groupKeyRef{hash: h, idx: i}
		}
	}
	states := make([]*aggState, len(a.aggs))
	for i := range states {
		states[i] = &aggState{}
	}
	a.groups[h] = append(a.groups[h], groupBucket{values: gb, states: states})
	ref := groupKeyRef{hash: h, idx: len(a.groups[h]) - 1}
	a.order = append(a.order, ref)
	return ref
}

func applyAgg(st *aggState, ag AggExpr, tup record.Tuple) {
	if ag.Kind == AggCountStar {
		st.count++
		return
	}
	v := ag.GetArg(tup)
	if v == nil {
		return
	}
	st.count++
	st.seenAny = true
	switch ag.Kind {
	case AggSum:
		addNumeric(st, v)
	case AggMin:
		if st.min == nil || compareValues(v, st.min) < 0 {
			st.min = v
		}
	case AggMax:
		if st.max == nil || compareValues(v, st.max) > 0 {
			st.max = v
		}
	}
}

func addNumeric(st *aggState, v record.Value) {
	switch x := v.(type) {
	case int32:
		st.sumInt += int64(x)
		st.sumIsInt = true
	case int64:
		st.sumInt += x
		st.sumIsInt = true
	case float64:
		st.sum += x
	}
}

func (a *Aggregation) Next() (record.Tuple, bool, error) {
	if a.pos >= len(a.order) {
		return record.Tuple{}, false, nil
	}
	ref := a.order[a.pos]
	a.pos++
	bucket := a.groups[ref.hash][ref.idx]

	out := append([]record.Value{}, bucket.values...)
	for i, ag := range a.aggs {
		st := bucket.states[i]
		switch ag.Kind {
		case AggCountStar, AggCount:
			out = append(out, st.count)
		case AggSum:
			if !st.seenAny {
				out = append(out, nil)
			} else if st.sumIsInt {
				out = append(out, st.sumInt)
			} else {
				out = append(out, st.sum+float64(st.sumInt))
			}
		case AggMin:
			out = append(out, st.min)
		case AggMax:
			out = append(out, st.max)
		}
	}
	return record.Tuple{Values: out}, true, nil
}

func (a *Aggregation) OutputSchema() record.Schema { return a.schema }
