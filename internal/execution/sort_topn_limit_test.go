package execution_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/record"
)

func intRows(vals ...int64) []record.Tuple {
	rows := make([]record.Tuple, len(vals))
	for i, v := range vals {
		rows[i] = record.Tuple{Values: []record.Value{v}}
	}
	return rows
}

func colZeroKey(order execution.SortOrder) execution.SortKey {
	return execution.SortKey{
		GetArg: func(t record.Tuple) record.Value { return t.GetValue(0) },
		Order:  order,
	}
}

func TestSort_OrdersAscending(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("n", record.ColInt64)}}
	child := newRowsExecutor(schema, intRows(5, 1, 4, 2, 3))
	s := execution.NewSort(child, []execution.SortKey{colZeroKey(execution.SortAsc)})

	out := drain(t, s)
	var got []int64
	for _, tup := range out {
		got = append(got, tup.Values[0].(int64))
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}

func TestSort_OrdersDescending(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("n", record.ColInt64)}}
	child := newRowsExecutor(schema, intRows(5, 1, 4, 2, 3))
	s := execution.NewSort(child, []execution.SortKey{colZeroKey(execution.SortDesc)})

	out := drain(t, s)
	var got []int64
	for _, tup := range out {
		got = append(got, tup.Values[0].(int64))
	}
	require.Equal(t, []int64{5, 4, 3, 2, 1}, got)
}

func TestTopN_KeepsSmallestNInAscendingOrder(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("n", record.ColInt64)}}
	child := newRowsExecutor(schema, intRows(9, 3, 7, 1, 8, 2, 6, 4, 5))
	topn := execution.NewTopN(child, []execution.SortKey{colZeroKey(execution.SortAsc)}, 3)

	out := drain(t, topn)
	var got []int64
	for _, tup := range out {
		got = append(got, tup.Values[0].(int64))
	}
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestTopN_NLargerThanInputReturnsEverythingSorted(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("n", record.ColInt64)}}
	child := newRowsExecutor(schema, intRows(3, 1, 2))
	topn := execution.NewTopN(child, []execution.SortKey{colZeroKey(execution.SortAsc)}, 100)

	out := drain(t, topn)
	require.Len(t, out, 3)
	require.Equal(t, int64(1), out[0].Values[0])
}

func TestTopN_ZeroNReturnsNoRows(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("n", record.ColInt64)}}
	child := newRowsExecutor(schema, intRows(3, 1, 2))
	topn := execution.NewTopN(child, []execution.SortKey{colZeroKey(execution.SortAsc)}, 0)

	out := drain(t, topn)
	require.Empty(t, out)
}

func TestLimit_PassesThroughAtMostN(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("n", record.ColInt64)}}
	child := newRowsExecutor(schema, intRows(1, 2, 3, 4, 5))
	lim := execution.NewLimit(child, 2)

	out := drain(t, lim)
	require.Len(t, out, 2)
	require.Equal(t, int64(1), out[0].Values[0])
	require.Equal(t, int64(2), out[1].Values[0])
}

func TestLimit_NGreaterThanInputReturnsEverything(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("n", record.ColInt64)}}
	child := newRowsExecutor(schema, intRows(1, 2))
	lim := execution.NewLimit(child, 10)

	out := drain(t, lim)
	require.Len(t, out, 2)
}
