package riftcql

// OpKind identifies the shape of a Statement (spec.md component C4).
type OpKind int

const (
	OpSelect OpKind = iota
	OpInsert
	OpUpdate
	OpDelete
	OpCreateSchema
	OpAlterSchema
	OpTruncateSchema
	OpCreateSchemas
	OpAlterSchemas
)

// Statement is the sum-typed value the fluent builder produces (spec.md §9
// design note: "Collapse into a sum-typed Statement value with accessor
// methods; builder fluency is preserved by returning a builder value").
// It is unresolved until lowered against a ClassInfo by the lowering engine
// (C5); Statement itself never talks to a transport.
type Statement struct {
	Kind      OpKind
	Class     *ClassInfo
	Object    interface{} // bound record, for INSERT/UPDATE/DELETE(record)

	WhereClauses []Clause
	Assignments  []Assignment
	Orderings   []Ordering
	Using       Using
	Limit       int
	Columns     []string // SELECT projection / DELETE column targeting

	IfNotExists bool
	IfClauses   []Clause // conditional UPDATE/DELETE ... IF col = val

	// CREATE/ALTER-SCHEMAS(pkg, suffixes, matching) fan out over many classes.
	Classes      []*ClassInfo
	Suffixes     map[string]interface{}
	MatchingMode bool
}

// Select begins a SELECT statement against class.
func Select(class *ClassInfo, columns ...string) *Statement {
	return &Statement{Kind: OpSelect, Class: class, Columns: columns}
}

// Insert begins an INSERT statement for record, bound to class.
func Insert(class *ClassInfo, record interface{}) *Statement {
	return &Statement{Kind: OpInsert, Class: class, Object: record}
}

// Update begins an UPDATE statement for record, bound to class. With no
// further Where/Assign calls, the lowering engine defaults Where to
// IsObject(record) and Assignments to SetAllFromObject(record) minus PK
// columns (spec.md §4.2).
func Update(class *ClassInfo, record interface{}) *Statement {
	return &Statement{Kind: OpUpdate, Class: class, Object: record}
}

// Delete begins a DELETE statement against class, optionally scoped to record.
func Delete(class *ClassInfo, record interface{}, columns ...string) *Statement {
	return &Statement{Kind: OpDelete, Class: class, Object: record, Columns: columns}
}

// CreateSchema begins a CREATE-SCHEMA statement for class.
func CreateSchema(class *ClassInfo) *Statement { return &Statement{Kind: OpCreateSchema, Class: class} }

// AlterSchema begins an ALTER-SCHEMA statement for class.
func AlterSchema(class *ClassInfo) *Statement { return &Statement{Kind: OpAlterSchema, Class: class} }

// TruncateSchema begins a TRUNCATE statement for class.
func TruncateSchema(class *ClassInfo) *Statement {
	return &Statement{Kind: OpTruncateSchema, Class: class}
}

// CreateSchemas begins a CREATE-SCHEMAS(pkg, suffixes, matching) statement
// over a set of classes (spec.md §4.2).
func CreateSchemas(classes []*ClassInfo, suffixes map[string]interface{}, matching bool) *Statement {
	return &Statement{Kind: OpCreateSchemas, Classes: classes, Suffixes: suffixes, MatchingMode: matching}
}

// AlterSchemas begins an ALTER-SCHEMAS(pkg, suffixes, matching) statement.
func AlterSchemas(classes []*ClassInfo, suffixes map[string]interface{}, matching bool) *Statement {
	return &Statement{Kind: OpAlterSchemas, Classes: classes, Suffixes: suffixes, MatchingMode: matching}
}

// Where appends WHERE clauses and returns the same Statement for chaining.
func (s *Statement) Where(clauses ...Clause) *Statement {
	s.WhereClauses = append(s.WhereClauses, clauses...)
	return s
}

// Set appends UPDATE assignments.
func (s *Statement) Set(assignments ...Assignment) *Statement {
	s.Assignments = append(s.Assignments, assignments...)
	return s
}

// OrderBy appends an ORDER BY clause.
func (s *Statement) OrderBy(orderings ...Ordering) *Statement {
	s.Orderings = append(s.Orderings, orderings...)
	return s
}

// WithUsing merges u into the statement's USING options.
func (s *Statement) WithUsing(u Using) *Statement {
	s.Using = s.Using.Merge(u)
	return s
}

// WithLimit sets a LIMIT.
func (s *Statement) WithLimit(n int) *Statement {
	s.Limit = n
	return s
}

// WithIfNotExists marks an INSERT as conditional.
func (s *Statement) WithIfNotExists() *Statement {
	s.IfNotExists = true
	return s
}

// If appends conditional equality clauses to an UPDATE/DELETE's IF clause.
func (s *Statement) If(clauses ...Clause) *Statement {
	s.IfClauses = append(s.IfClauses, clauses...)
	return s
}
