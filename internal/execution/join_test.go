package execution_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/record"
)

func leftSchema() record.Schema {
	return record.Schema{Cols: []record.Column{col("id", record.ColInt64), col("name", record.ColText)}}
}

func rightSchema() record.Schema {
	return record.Schema{Cols: []record.Column{col("lid", record.ColInt64), col("amount", record.ColInt64)}}
}

func leftRows() []record.Tuple {
	return []record.Tuple{
		{Values: []record.Value{int64(1), "alice"}},
		{Values: []record.Value{int64(2), "bob"}},
		{Values: []record.Value{int64(3), "carol"}},
	}
}

func rightRows() []record.Tuple {
	return []record.Tuple{
		{Values: []record.Value{int64(1), int64(100)}},
		{Values: []record.Value{int64(1), int64(200)}},
		{Values: []record.Value{int64(2), int64(300)}},
	}
}

func eqPred(left, right record.Tuple) bool {
	return left.GetValue(0).(int64) == right.GetValue(0).(int64)
}

func leftKeyFn(t record.Tuple) []record.Value  { return []record.Value{t.GetValue(0)} }
func rightKeyFn(t record.Tuple) []record.Value { return []record.Value{t.GetValue(0)} }

func TestNestedLoopJoin_InnerDropsUnmatchedLeftRows(t *testing.T) {
	left := newRowsExecutor(leftSchema(), leftRows())
	right := newRowsExecutor(rightSchema(), rightRows())
	join := execution.NewNestedLoopJoin(left, right, eqPred, false)

	out := drain(t, join)
	require.Len(t, out, 3) // alice x2, bob x1; carol dropped
	for _, tup := range out {
		require.NotEqual(t, "carol", tup.Values[1])
	}
}

func TestNestedLoopJoin_LeftOuterNullPadsUnmatched(t *testing.T) {
	left := newRowsExecutor(leftSchema(), leftRows())
	right := newRowsExecutor(rightSchema(), rightRows())
	join := execution.NewNestedLoopJoin(left, right, eqPred, true)

	out := drain(t, join)
	require.Len(t, out, 4) // alice x2, bob x1, carol x1 (null-padded)

	var carolRow record.Tuple
	found := false
	for _, tup := range out {
		if tup.Values[1] == "carol" {
			carolRow = tup
			found = true
		}
	}
	require.True(t, found)
	require.Nil(t, carolRow.Values[2])
	require.Nil(t, carolRow.Values[3])
}

func TestNestedLoopJoin_OutputSchemaConcatenatesBothSides(t *testing.T) {
	left := newRowsExecutor(leftSchema(), nil)
	right := newRowsExecutor(rightSchema(), nil)
	join := execution.NewNestedLoopJoin(left, right, eqPred, false)
	require.Len(t, join.OutputSchema().Cols, 4)
}

func TestHashJoin_InnerDropsUnmatchedLeftRows(t *testing.T) {
	left := newRowsExecutor(leftSchema(), leftRows())
	right := newRowsExecutor(rightSchema(), rightRows())
	join := execution.NewHashJoin(left, right, leftKeyFn, rightKeyFn, false)

	out := drain(t, join)
	require.Len(t, out, 3)
}

func TestHashJoin_LeftOuterNullPadsUnmatched(t *testing.T) {
	left := newRowsExecutor(leftSchema(), leftRows())
	right := newRowsExecutor(rightSchema(), rightRows())
	join := execution.NewHashJoin(left, right, leftKeyFn, rightKeyFn, true)

	out := drain(t, join)
	require.Len(t, out, 4)

	found := false
	for _, tup := range out {
		if tup.Values[1] == "carol" {
			found = true
			require.Nil(t, tup.Values[2])
			require.Nil(t, tup.Values[3])
		}
	}
	require.True(t, found)
}

func TestHashJoin_NullKeyNeverMatches(t *testing.T) {
	left := newRowsExecutor(leftSchema(), []record.Tuple{
		{Values: []record.Value{nil, "nullkey"}},
	})
	right := newRowsExecutor(rightSchema(), []record.Tuple{
		{Values: []record.Value{nil, int64(999)}},
	})
	join := execution.NewHashJoin(left, right, leftKeyFn, rightKeyFn, true)

	out := drain(t, join)
	require.Len(t, out, 1)
	require.Equal(t, "nullkey", out[0].Values[1])
	require.Nil(t, out[0].Values[2])
	require.Nil(t, out[0].Values[3])
}
