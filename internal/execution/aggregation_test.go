package execution_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/record"
)

func salesSchema() record.Schema {
	return record.Schema{Cols: []record.Column{col("region", record.ColText), col("amount", record.ColInt64)}}
}

func salesRows() []record.Tuple {
	return []record.Tuple{
		{Values: []record.Value{"east", int64(10)}},
		{Values: []record.Value{"east", int64(20)}},
		{Values: []record.Value{"west", int64(5)}},
		{Values: []record.Value{nil, int64(100)}},
		{Values: []record.Value{nil, int64(200)}},
	}
}

func amountArg(t record.Tuple) record.Value { return t.GetValue(1) }
func regionGroupBy(t record.Tuple) []record.Value {
	return []record.Value{t.GetValue(0)}
}

func TestAggregation_GroupBySumsPerGroup(t *testing.T) {
	child := newRowsExecutor(salesSchema(), salesRows())
	outSchema := record.Schema{Cols: []record.Column{
		col("region", record.ColText), col("total", record.ColInt64),
	}}
	agg := execution.NewAggregation(child, regionGroupBy, 1,
		[]execution.AggExpr{{Kind: execution.AggSum, GetArg: amountArg}}, outSchema)

	out := drain(t, agg)
	require.Len(t, out, 3) // east, west, and the null group

	totals := map[any]int64{}
	for _, tup := range out {
		totals[tup.Values[0]] = tup.Values[1].(int64)
	}
	require.Equal(t, int64(30), totals["east"])
	require.Equal(t, int64(5), totals["west"])
	require.Equal(t, int64(300), totals[nil])
}

func TestAggregation_NullGroupsCollapseIntoOneGroup(t *testing.T) {
	child := newRowsExecutor(salesSchema(), salesRows())
	outSchema := record.Schema{Cols: []record.Column{
		col("region", record.ColText), col("cnt", record.ColInt64),
	}}
	agg := execution.NewAggregation(child, regionGroupBy, 1,
		[]execution.AggExpr{{Kind: execution.AggCountStar}}, outSchema)

	out := drain(t, agg)
	for _, tup := range out {
		if tup.Values[0] == nil {
			require.Equal(t, int64(2), tup.Values[1])
		}
	}
}

func TestAggregation_UngroupedEmptyInputEmitsOneIdentityRow(t *testing.T) {
	child := newRowsExecutor(salesSchema(), nil)
	outSchema := record.Schema{Cols: []record.Column{col("total", record.ColInt64)}}
	agg := execution.NewAggregation(child, nil, 0,
		[]execution.AggExpr{{Kind: execution.AggCountStar}}, outSchema)

	out := drain(t, agg)
	require.Len(t, out, 1)
	require.Equal(t, int64(0), out[0].Values[0])
}

func TestAggregation_GroupedEmptyInputEmitsNoRows(t *testing.T) {
	child := newRowsExecutor(salesSchema(), nil)
	outSchema := record.Schema{Cols: []record.Column{
		col("region", record.ColText), col("cnt", record.ColInt64),
	}}
	agg := execution.NewAggregation(child, regionGroupBy, 1,
		[]execution.AggExpr{{Kind: execution.AggCountStar}}, outSchema)

	out := drain(t, agg)
	require.Empty(t, out)
}

func TestAggregation_CountIgnoresNullArgValuesButCountStarDoesNot(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("v", record.ColInt64)}}
	rows := []record.Tuple{
		{Values: []record.Value{int64(1)}},
		{Values: []record.Value{nil}},
		{Values: []record.Value{int64(3)}},
	}
	child := newRowsExecutor(schema, rows)
	outSchema := record.Schema{Cols: []record.Column{
		col("countstar", record.ColInt64), col("count", record.ColInt64),
	}}
	agg := execution.NewAggregation(child, nil, 0, []execution.AggExpr{
		{Kind: execution.AggCountStar},
		{Kind: execution.AggCount, GetArg: func(t record.Tuple) record.Value { return t.GetValue(0) }},
	}, outSchema)

	out := drain(t, agg)
	require.Len(t, out, 1)
	require.Equal(t, int64(3), out[0].Values[0])
	require.Equal(t, int64(2), out[0].Values[1])
}

func TestAggregation_MinMax(t *testing.T) {
	schema := record.Schema{Cols: []record.Column{col("v", record.ColInt64)}}
	rows := []record.Tuple{
		{Values: []record.Value{int64(5)}},
		{Values: []record.Value{int64(1)}},
		{Values: []record.Value{int64(9)}},
	}
	child := newRowsExecutor(schema, rows)
	outSchema := record.Schema{Cols: []record.Column{col("min", record.ColInt64), col("max", record.ColInt64)}}
	agg := execution.NewAggregation(child, nil, 0, []execution.AggExpr{
		{Kind: execution.AggMin, GetArg: func(t record.Tuple) record.Value { return t.GetValue(0) }},
		{Kind: execution.AggMax, GetArg: func(t record.Tuple) record.Value { return t.GetValue(0) }},
	}, outSchema)

	out := drain(t, agg)
	require.Len(t, out, 1)
	require.Equal(t, int64(1), out[0].Values[0])
	require.Equal(t, int64(9), out[0].Values[1])
}
