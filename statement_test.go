package riftcql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatementBuilderFluency(t *testing.T) {
	class := &ClassInfo{}
	stmt := Select(class, "id", "name").
		Where(Eq("id", 1)).
		OrderBy(OrderBy("id", DESC)).
		WithLimit(10)

	assert.Equal(t, OpSelect, stmt.Kind)
	assert.Equal(t, []string{"id", "name"}, stmt.Columns)
	assert.Len(t, stmt.WhereClauses, 1)
	assert.Equal(t, 10, stmt.Limit)
	assert.Same(t, stmt, stmt.WithLimit(20)) // fluent methods return the same *Statement
}

func TestStatementWhereAppends(t *testing.T) {
	stmt := Select(&ClassInfo{})
	stmt.Where(Eq("a", 1)).Where(Eq("b", 2))
	assert.Len(t, stmt.WhereClauses, 2)
}

func TestStatementUpdateDefaultsAreAbsentUntilLowered(t *testing.T) {
	// Update() itself leaves WhereClauses/Assignments empty; the lowering
	// engine supplies IsObject(record)/SetAllFromObject(record) defaults.
	stmt := Update(&ClassInfo{}, struct{}{})
	assert.Empty(t, stmt.WhereClauses)
	assert.Empty(t, stmt.Assignments)
}

func TestStatementWithUsingMerges(t *testing.T) {
	stmt := Select(&ClassInfo{}).WithUsing(Timestamp(100)).WithUsing(TTL(30))
	assert.NotNil(t, stmt.Using.TimestampMicros)
	assert.Equal(t, int64(100), *stmt.Using.TimestampMicros)
	assert.NotNil(t, stmt.Using.TTLSeconds)
	assert.Equal(t, 30, *stmt.Using.TTLSeconds)
}

func TestStatementIfNotExistsAndIf(t *testing.T) {
	ins := Insert(&ClassInfo{}, struct{}{}).WithIfNotExists()
	assert.True(t, ins.IfNotExists)

	upd := Update(&ClassInfo{}, struct{}{}).If(Eq("version", 1))
	assert.Len(t, upd.IfClauses, 1)
}

func TestCreateSchemasCarriesMatchingMode(t *testing.T) {
	classes := []*ClassInfo{{}, {}}
	suffixes := map[string]interface{}{"tenant": "acme"}
	stmt := CreateSchemas(classes, suffixes, true)
	assert.Equal(t, OpCreateSchemas, stmt.Kind)
	assert.True(t, stmt.MatchingMode)
	assert.Equal(t, suffixes, stmt.Suffixes)
	assert.Len(t, stmt.Classes, 2)
}
