package riftcql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(n int) []RawResultSet {
	var out []RawResultSet
	for i := 0; i < n; i++ {
		out = append(out, RawResultSet{
			Rows:         []map[string]interface{}{{"id": int64(i), "name": "row"}},
			FullyFetched: true,
		})
	}
	return out
}

func TestCompositeResultSetOneAdvancesAcrossBackingSets(t *testing.T) {
	rs := &CompositeResultSet{backing: rows(3)}
	var seen []int64
	for {
		row, ok := rs.One()
		if !ok {
			break
		}
		seen = append(seen, row["id"].(int64))
	}
	assert.Equal(t, []int64{0, 1, 2}, seen)
	assert.True(t, rs.IsExhausted())
}

func TestCompositeResultSetAvailableWithoutFetchingStopsAtUnfetchedSet(t *testing.T) {
	backing := rows(2)
	backing = append(backing, RawResultSet{Rows: []map[string]interface{}{{"id": int64(99)}}, FullyFetched: false})
	rs := &CompositeResultSet{backing: backing}
	assert.Equal(t, 2, rs.AvailableWithoutFetching())
	assert.False(t, rs.IsFullyFetched())
}

func TestCompositeResultSetWasAppliedIsVacuouslyTrueWithoutIfCondition(t *testing.T) {
	rs := &CompositeResultSet{backing: []RawResultSet{{HasApplied: false}}}
	assert.True(t, rs.WasApplied())

	rs2 := &CompositeResultSet{backing: []RawResultSet{{HasApplied: true, Applied: false}}}
	assert.False(t, rs2.WasApplied())
}

type decodedRow struct {
	ID   int64  `cql:"id"`
	Name string `cql:"name"`
}

func TestDecodeAllDecodesEveryRemainingRow(t *testing.T) {
	rs := &CompositeResultSet{backing: rows(2)}
	var out []decodedRow
	require.NoError(t, rs.DecodeAll(&out))
	require.Len(t, out, 2)
	assert.Equal(t, int64(0), out[0].ID)
	assert.Equal(t, "row", out[1].Name)
}

func TestDecodeOneFailsOnNoMatch(t *testing.T) {
	rs := &CompositeResultSet{}
	var out decodedRow
	err := rs.DecodeOne(&out)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindObjectMissing))
}

func TestDecodeOneFailsOnTooManyMatches(t *testing.T) {
	rs := &CompositeResultSet{backing: rows(2)}
	var out decodedRow
	err := rs.DecodeOne(&out)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTooManyMatches))
}

func TestDecodeOneDecodesExactlyOneRow(t *testing.T) {
	rs := &CompositeResultSet{backing: rows(1)}
	var out decodedRow
	require.NoError(t, rs.DecodeOne(&out))
	assert.Equal(t, int64(0), out.ID)
}

func TestCompositeResultSetFutureGetStitchesInOrder(t *testing.T) {
	tr := &fakeTransport{}
	stmts := []*PhysicalStatement{{CQL: "A"}, {CQL: "B"}}
	f, err := NewCompositeResultSetFuture(context.Background(), tr, stmts)
	require.NoError(t, err)
	rs, err := f.Get(context.Background())
	require.NoError(t, err)
	row, ok := rs.One()
	require.True(t, ok)
	assert.Equal(t, "A", row["cql"])
}

func TestLastResultParallelSetFutureReturnsLastWave(t *testing.T) {
	tr := &fakeTransport{}
	stmts := []*PhysicalStatement{{CQL: "A"}, {CQL: "B"}, {CQL: "C"}}
	f := NewLastResultParallelSetFuture(stmts, 2)
	var notified RawResultSet
	f.OnComplete(func(rs RawResultSet, err error) { notified = rs })
	last, err := f.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "C", last.Rows[0]["cql"])
	assert.Equal(t, "C", notified.Rows[0]["cql"])
}

func TestLastResultParallelSetFutureStopsAtFirstError(t *testing.T) {
	tr := &fakeTransport{failCQL: "B"}
	stmts := []*PhysicalStatement{{CQL: "A"}, {CQL: "B"}, {CQL: "C"}}
	f := NewLastResultParallelSetFuture(stmts, 1)
	_, err := f.Run(context.Background(), tr)
	require.Error(t, err)
	assert.NotContains(t, tr.executed, "C")
}
