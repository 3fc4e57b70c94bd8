package riftcql

// ClauseOp identifies the shape of a Clause.
type ClauseOp int

const (
	OpEq ClauseOp = iota
	OpIn
	OpLt
	OpLte
	OpGt
	OpGte
	OpIsObject         // equality on every PK column of a record, suffixed
	OpIsPartitionedLike // equality on partition-key columns only
	OpIsSuffixedLike    // equality on keyspace-key columns only
)

// Clause is one predicate in a WHERE clause (spec.md §3). Record-derived
// composites (IsObject/IsPartitionedLike/IsSuffixedLike) are expanded by the
// lowering engine against a ClassInfo rather than carrying column names of
// their own.
type Clause struct {
	Op     ClauseOp
	Column string
	Value  interface{}   // for Eq/Lt/Lte/Gt/Gte
	Values []interface{} // for In
	Object interface{}   // for IsObject/IsPartitionedLike/IsSuffixedLike
}

// Eq builds a column = value clause.
func Eq(column string, value interface{}) Clause { return Clause{Op: OpEq, Column: column, Value: value} }

// In builds a column IN (values...) clause.
func In(column string, values ...interface{}) Clause {
	return Clause{Op: OpIn, Column: column, Values: values}
}

// Lt, Lte, Gt, Gte build relational clauses over a single column.
func Lt(column string, value interface{}) Clause  { return Clause{Op: OpLt, Column: column, Value: value} }
func Lte(column string, value interface{}) Clause { return Clause{Op: OpLte, Column: column, Value: value} }
func Gt(column string, value interface{}) Clause  { return Clause{Op: OpGt, Column: column, Value: value} }
func Gte(column string, value interface{}) Clause { return Clause{Op: OpGte, Column: column, Value: value} }

// IsObject builds the record-derived clause equivalent to equality on every
// primary-key column of obj. Keyspace-key (suffix) columns are not added to
// the WHERE clause unless they are themselves primary-key columns.
func IsObject(obj interface{}) Clause { return Clause{Op: OpIsObject, Object: obj} }

// IsPartitionedLike restricts to equality on obj's partition-key columns only.
func IsPartitionedLike(obj interface{}) Clause { return Clause{Op: OpIsPartitionedLike, Object: obj} }

// IsSuffixedLike restricts to equality on obj's keyspace-key columns only.
func IsSuffixedLike(obj interface{}) Clause { return Clause{Op: OpIsSuffixedLike, Object: obj} }
