package riftcql

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftcql/riftcql/cqltype"
)

func newTestLowerer(meta MetadataService) *Lowerer {
	return NewLowerer(meta)
}

func TestLowerUpdatePKReassignmentRewritesToDeleteInsertAcrossTables(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(userDescriptor())
	require.NoError(t, err)

	record := User{ID: 1, Email: "a@x.com", Name: "acme"}
	stmt := Update(ci, record).Set(Set("id", int64(999)))

	lo := newTestLowerer(nil)
	node, warnings, err := lo.Lower(context.Background(), stmt)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, CodePKInAssignmentWithoutPrevious, warnings[0].Code)

	require.Equal(t, NodeGroup, node.Kind)
	require.Len(t, node.Children, 2)
	for _, child := range node.Children {
		require.Equal(t, NodeSequence, child.Kind)
		require.Len(t, child.Children, 2)
		assert.Contains(t, child.Children[0].Leaf.CQL, "DELETE FROM")
		assert.Contains(t, child.Children[1].Leaf.CQL, "INSERT INTO")
	}
}

func TestLowerUpdatePKReassignmentWithPreviousSuppressesWarning(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(userDescriptor())
	require.NoError(t, err)

	record := User{ID: 999, Email: "a@x.com", Name: "acme"}
	stmt := Update(ci, record).Set(Set("id", int64(999)), SetPrevious("id", int64(1)))

	lo := newTestLowerer(nil)
	_, warnings, err := lo.Lower(context.Background(), stmt)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestLowerSelectSplitsOnKeyspaceKeyInClause(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(userDescriptor())
	require.NoError(t, err)

	stmt := Select(ci).Where(In("t", "acme", "other", "acme"))
	lo := newTestLowerer(nil)
	node, _, err := lo.Lower(context.Background(), stmt)
	require.NoError(t, err)

	require.Equal(t, NodeSequence, node.Kind)
	require.Len(t, node.Children, 2) // deduplicated, preserving first occurrence
	assert.Contains(t, node.Children[0].Leaf.CQL, "tenant_acme")
	assert.Contains(t, node.Children[1].Leaf.CQL, "tenant_other")
}

func TestLowerSelectEmptyInListIsAnError(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(userDescriptor())
	require.NoError(t, err)

	stmt := Select(ci).Where(In("t"))
	lo := newTestLowerer(nil)
	_, _, err = lo.Lower(context.Background(), stmt)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeEmptyInList, e.Code)
}

func TestLowerUpdateCounterOpOnNonCounterColumnRejected(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(userDescriptor())
	require.NoError(t, err)

	stmt := Update(ci, User{ID: 1, Name: "acme"}).
		Where(Eq("id", int64(1))).
		Set(Incr("name", 1))
	lo := newTestLowerer(nil)
	_, _, err = lo.Lower(context.Background(), stmt)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeCounterOpOnNonCounter, e.Code)
}

// denormalizedPair is a two-table class where only the first table carries
// column "b", exercising lowerDelete's per-table column-list construction
// when an earlier-requested column is absent from a later table.
type denormalizedPair struct {
	A int64
	B string
	C string
}

func denormalizedDescriptor() Descriptor {
	typ := reflect.TypeOf(denormalizedPair{})
	return Descriptor{
		GoType:   typ,
		Keyspace: KeyspaceSpec{BaseName: "ks"},
		Tables: []TableDescriptor{
			{
				Name: "t1",
				Columns: []ColumnDescriptor{
					{Column: "a", Field: "A", Type: cqltype.Prim(cqltype.BigInt), Role: RolePartitionKey},
					{Column: "b", Field: "B", Type: cqltype.Prim(cqltype.Text)},
					{Column: "c", Field: "C", Type: cqltype.Prim(cqltype.Text)},
				},
			},
			{
				Name: "t2",
				Columns: []ColumnDescriptor{
					{Column: "a", Field: "A", Type: cqltype.Prim(cqltype.BigInt), Role: RolePartitionKey},
					{Column: "c", Field: "C", Type: cqltype.Prim(cqltype.Text)},
				},
			},
		},
	}
}

func TestLowerDeleteColumnListHasNoLeadingComma(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(denormalizedDescriptor())
	require.NoError(t, err)

	stmt := Delete(ci, denormalizedPair{A: 1}, "b", "c").Where(Eq("a", int64(1)))
	lo := newTestLowerer(nil)
	node, _, err := lo.Lower(context.Background(), stmt)
	require.NoError(t, err)

	require.Equal(t, NodeGroup, node.Kind)
	require.Len(t, node.Children, 2)
	var sawT2 bool
	for _, child := range node.Children {
		cql := child.Leaf.CQL
		if contains(cql, "t2") {
			sawT2 = true
			assert.NotContains(t, cql, "DELETE , ")
			assert.Contains(t, cql, "DELETE c FROM")
		}
	}
	assert.True(t, sawT2)
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

type fakeMetadata struct {
	schema ObservedSchema
	err    error
}

func (m *fakeMetadata) ObserveSchema(ctx context.Context, keyspace string) (ObservedSchema, error) {
	return m.schema, m.err
}

func TestLowerSchemaCreateEmitsKeyspaceAndTableLeaves(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(denormalizedDescriptor())
	require.NoError(t, err)

	lo := newTestLowerer(&fakeMetadata{})
	node, _, err := lo.Lower(context.Background(), CreateSchema(ci))
	require.NoError(t, err)
	require.Equal(t, NodeSequence, node.Kind)

	var leaves []string
	require.NoError(t, node.Record(func(leaf *PhysicalStatement) error {
		leaves = append(leaves, leaf.CQL)
		assert.True(t, leaf.Idempotent)
		return nil
	}))
	assert.Contains(t, leaves[0], "CREATE KEYSPACE IF NOT EXISTS")
	found := 0
	for _, l := range leaves {
		if contains(l, "CREATE TABLE IF NOT EXISTS") {
			found++
		}
	}
	assert.Equal(t, 2, found)
}

func TestLowerSchemaAlterDegradesToCreateForMissingTable(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(denormalizedDescriptor())
	require.NoError(t, err)

	lo := newTestLowerer(&fakeMetadata{schema: ObservedSchema{Tables: map[string]ObservedTable{}}})
	node, _, err := lo.Lower(context.Background(), AlterSchema(ci))
	require.NoError(t, err)

	var leaves []string
	require.NoError(t, node.Record(func(leaf *PhysicalStatement) error {
		leaves = append(leaves, leaf.CQL)
		return nil
	}))
	found := 0
	for _, l := range leaves {
		if contains(l, "CREATE TABLE IF NOT EXISTS") {
			found++
		}
	}
	assert.Equal(t, 2, found)
}

func TestLowerSchemaAlterAddsMissingColumn(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(denormalizedDescriptor())
	require.NoError(t, err)

	observed := ObservedSchema{Tables: map[string]ObservedTable{
		"t1": {Name: "t1", PartitionKeys: []string{"a"}, Columns: map[string]string{"a": "bigint", "c": "text"}},
		"t2": {Name: "t2", PartitionKeys: []string{"a"}, Columns: map[string]string{"a": "bigint", "c": "text"}},
	}}
	lo := newTestLowerer(&fakeMetadata{schema: observed})
	node, _, err := lo.Lower(context.Background(), AlterSchema(ci))
	require.NoError(t, err)

	var leaves []string
	require.NoError(t, node.Record(func(leaf *PhysicalStatement) error {
		leaves = append(leaves, leaf.CQL)
		return nil
	}))
	found := false
	for _, l := range leaves {
		if contains(l, `ALTER TABLE t1 ADD b`) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLowerSchemaAlterRejectsPartitionKeyChange(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(denormalizedDescriptor())
	require.NoError(t, err)

	observed := ObservedSchema{Tables: map[string]ObservedTable{
		"t1": {Name: "t1", PartitionKeys: []string{"c"}, Columns: map[string]string{"a": "bigint", "b": "text", "c": "text"}},
		"t2": {Name: "t2", PartitionKeys: []string{"a"}, Columns: map[string]string{"a": "bigint", "c": "text"}},
	}}
	lo := newTestLowerer(&fakeMetadata{schema: observed})
	_, _, err = lo.Lower(context.Background(), AlterSchema(ci))
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeAlterIncompatible, e.Code)
}

func TestLowerSchemasExactSuffixMatchSkipsNonMatchingClasses(t *testing.T) {
	c := newTestCompiler()
	suffixed, err := c.Compile(userDescriptor()) // KeyspaceKeys: ["t"]
	require.NoError(t, err)
	fixed, err := c.Compile(denormalizedDescriptor()) // KeyspaceKeys: none
	require.NoError(t, err)

	stmt := CreateSchemas([]*ClassInfo{suffixed, fixed}, map[string]interface{}{"t": "acme"}, true)
	lo := newTestLowerer(&fakeMetadata{})
	node, _, err := lo.Lower(context.Background(), stmt)
	require.NoError(t, err)

	var leaves []string
	require.NoError(t, node.Record(func(leaf *PhysicalStatement) error {
		leaves = append(leaves, leaf.CQL)
		return nil
	}))
	for _, l := range leaves {
		assert.NotContains(t, l, "CREATE KEYSPACE IF NOT EXISTS ks") // "fixed" class excluded by exact-match
	}
}

func TestLowerSchemasUnionIncludesEveryClassWhenNotMatching(t *testing.T) {
	c := newTestCompiler()
	suffixed, err := c.Compile(userDescriptor())
	require.NoError(t, err)
	fixed, err := c.Compile(denormalizedDescriptor())
	require.NoError(t, err)

	stmt := CreateSchemas([]*ClassInfo{suffixed, fixed}, map[string]interface{}{"t": "acme"}, false)
	lo := newTestLowerer(&fakeMetadata{})
	node, _, err := lo.Lower(context.Background(), stmt)
	require.NoError(t, err)

	var sawFixedKeyspace bool
	require.NoError(t, node.Record(func(leaf *PhysicalStatement) error {
		if contains(leaf.CQL, "CREATE KEYSPACE IF NOT EXISTS ks") {
			sawFixedKeyspace = true
		}
		return nil
	}))
	assert.True(t, sawFixedKeyspace)
}

// counterRow is a minimal counter-table record: a partition key plus one
// counter column, nothing else (counter tables may carry no non-counter
// non-key column, per classinfo.go's compile-time validation).
type counterRow struct {
	ID   int64
	Hits int64
}

func counterDescriptor() Descriptor {
	return Descriptor{
		GoType:   reflect.TypeOf(counterRow{}),
		Keyspace: KeyspaceSpec{BaseName: "ks"},
		Tables: []TableDescriptor{
			{
				Name:    "hit_counts",
				Counter: true,
				Columns: []ColumnDescriptor{
					{Column: "id", Field: "ID", Type: cqltype.Prim(cqltype.BigInt), Role: RolePartitionKey},
					{Column: "hits", Field: "Hits", Type: cqltype.Prim(cqltype.Counter)},
				},
			},
		},
	}
}

func TestLowerUpdateIncrSetsCounterStatementOnLeaf(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(counterDescriptor())
	require.NoError(t, err)

	lo := newTestLowerer(nil)
	stmt := Update(ci, counterRow{ID: 1}).Where(Eq("id", int64(1))).Set(Incr("hits", 1))
	node, warnings, err := lo.Lower(context.Background(), stmt)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Equal(t, NodeLeaf, node.Kind)
	assert.True(t, node.Leaf.counterStatement)
	assert.Contains(t, node.Leaf.CQL, "hits = hits + ?")
}

func TestLowerSchemasUnionExcludesClassWhoseKeyspaceKeyIsUnbound(t *testing.T) {
	c := newTestCompiler()
	suffixed, err := c.Compile(userDescriptor()) // KeyspaceKeys: ["t"]
	require.NoError(t, err)

	regional := Descriptor{
		GoType:   reflect.TypeOf(denormalizedPair{}),
		Keyspace: KeyspaceSpec{BaseName: "region_{region}", KeyspaceKeys: []string{"region"}},
		Tables: []TableDescriptor{
			{Name: "t1", Columns: []ColumnDescriptor{
				{Column: "a", Field: "A", Type: cqltype.Prim(cqltype.BigInt), Role: RolePartitionKey},
				{Column: "region", Field: "C", Type: cqltype.Prim(cqltype.Text)},
			}},
		},
	}
	unbound, err := c.Compile(regional)
	require.NoError(t, err)

	// stmt only supplies "t"; "region" is never bound, so the union-mode
	// selection must skip `unbound` rather than let it hard-fail in
	// Substitute with KeyspaceKeyUnbound.
	stmt := CreateSchemas([]*ClassInfo{suffixed, unbound}, map[string]interface{}{"t": "acme"}, false)
	lo := newTestLowerer(&fakeMetadata{})
	node, _, err := lo.Lower(context.Background(), stmt)
	require.NoError(t, err)

	var leaves []string
	require.NoError(t, node.Record(func(leaf *PhysicalStatement) error {
		leaves = append(leaves, leaf.CQL)
		return nil
	}))
	for _, l := range leaves {
		assert.NotContains(t, l, "region_")
	}
	assert.NotEmpty(t, leaves)
}

func TestLowerTruncateIssuesOnePerTable(t *testing.T) {
	c := newTestCompiler()
	ci, err := c.Compile(denormalizedDescriptor())
	require.NoError(t, err)

	lo := newTestLowerer(nil)
	node, _, err := lo.Lower(context.Background(), TruncateSchema(ci))
	require.NoError(t, err)
	require.Equal(t, NodeGroup, node.Kind)
	require.Len(t, node.Children, 2)
	for _, child := range node.Children {
		assert.Contains(t, child.Leaf.CQL, "TRUNCATE TABLE")
	}
}
