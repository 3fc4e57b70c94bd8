package riftcql

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// Lowerer resolves a high-level Statement against its bound ClassInfo into
// physical CQL statements arranged as a composite tree (spec.md component
// C5, "lower(stmt, class_info, runtime_values) -> Vec<PhysicalStmt> |
// LowerError"). Lowering is deterministic: the same Statement lowers to the
// same physical statements every time (spec.md §8).
type Lowerer struct {
	Logger                Logger
	DefaultParallelFactor int
	Metadata              MetadataService
}

// NewLowerer constructs a Lowerer with the documented parallel_factor floor
// (SPEC_FULL.md §11: 32 when the transport never reports cluster_metadata).
func NewLowerer(metadata MetadataService) *Lowerer {
	return &Lowerer{Logger: NoopLogger, DefaultParallelFactor: 32, Metadata: metadata}
}

// Lower dispatches on stmt.Kind. It returns the composite tree to execute,
// any non-fatal warnings (spec.md CodePKInAssignmentWithoutPrevious), and a
// fatal *Error on failure.
func (lo *Lowerer) Lower(ctx context.Context, stmt *Statement) (*Node, []*Error, error) {
	switch stmt.Kind {
	case OpInsert:
		n, err := lo.lowerInsert(stmt)
		return n, nil, err
	case OpUpdate:
		return lo.lowerUpdate(stmt)
	case OpDelete:
		n, err := lo.lowerDelete(stmt)
		return n, nil, err
	case OpSelect:
		n, err := lo.lowerSelect(stmt)
		return n, nil, err
	case OpCreateSchema:
		n, err := lo.lowerSchema(ctx, stmt.Class, false, nil)
		return n, nil, err
	case OpAlterSchema:
		n, err := lo.lowerSchema(ctx, stmt.Class, true, nil)
		return n, nil, err
	case OpTruncateSchema:
		n, err := lo.lowerTruncate(stmt.Class)
		return n, nil, err
	case OpCreateSchemas:
		n, err := lo.lowerSchemas(ctx, stmt, false)
		return n, nil, err
	case OpAlterSchemas:
		n, err := lo.lowerSchemas(ctx, stmt, true)
		return n, nil, err
	default:
		return nil, nil, LowerError("UnknownOp", fmt.Sprintf("unrecognized statement kind %v", stmt.Kind))
	}
}

// resolveKeyspaceValues extracts keyspace-key column values either from
// record (via the class's KeyBindings) or from explicit Eq clauses in
// where, for every keyspace key that isn't itself the subject of an IN
// clause (those are handled by the IN-splitting caller).
func resolveKeyspaceValues(class *ClassInfo, record interface{}, where []Clause, skip map[string]bool) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	for key, binding := range class.KeyBindings {
		if skip[key] {
			continue
		}
		if record != nil {
			if v, ok := class.FieldValue(record, binding.Field); ok {
				values[key] = v
				continue
			}
		}
		found := false
		for _, cl := range where {
			if cl.Op == OpEq && cl.Column == key {
				values[key] = cl.Value
				found = true
				break
			}
		}
		if !found {
			return nil, LowerError(CodeKeyspaceKeyUnbound, fmt.Sprintf("keyspace key %q has no bound value", key))
		}
	}
	return values, nil
}

// projectValue applies a ColumnBinding's persister / mandatory-collection
// rewrite to a raw field value; plain fields pass through untouched so that
// primitive wire encoding stays the external transport's job (spec.md §1:
// "the codec registry's low-level byte layouts for primitive types" is out
// of scope for the core).
func projectValue(binding *ColumnBinding, raw interface{}) (interface{}, error) {
	if binding.Persister != nil {
		data, err := binding.Codec.Marshal(raw)
		if err != nil {
			return nil, LowerError(CodeUnknownColumn, fmt.Sprintf("failed to encode persisted column %q: %v", binding.Field, err))
		}
		return data, nil
	}
	if binding.MandatoryCollection && isNilOrEmpty(raw) {
		switch binding.FieldType.Kind() {
		case reflect.Slice:
			return reflect.MakeSlice(binding.FieldType, 0, 0).Interface(), nil
		case reflect.Map:
			return reflect.MakeMap(binding.FieldType).Interface(), nil
		}
	}
	return raw, nil
}

func isNilOrEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.IsNil() || rv.Len() == 0
	case reflect.Ptr:
		return rv.IsNil()
	default:
		return false
	}
}

// --- INSERT --------------------------------------------------------------

func (lo *Lowerer) lowerInsert(stmt *Statement) (*Node, error) {
	class := stmt.Class
	record := stmt.Object
	kvalues, err := resolveKeyspaceValues(class, record, stmt.WhereClauses, nil)
	if err != nil {
		return nil, err
	}
	keyspace, err := class.Keyspace.Substitute(kvalues)
	if err != nil {
		return nil, err
	}

	var children []*Node
	for _, table := range class.Tables {
		cols := sortedColumns(table.Bindings)
		params := make([]interface{}, 0, len(cols))
		for _, col := range cols {
			b := table.Bindings[col]
			raw, _ := class.FieldValue(record, b.Field)
			v, err := projectValue(b, raw)
			if err != nil {
				return nil, err
			}
			params = append(params, v)
		}
		cql := buildInsertCQL(keyspace, table, cols, stmt.IfNotExists, stmt.Using)
		leaf := &PhysicalStatement{
			Keyspace:    keyspace,
			CQL:         cql,
			Params:      params,
			Idempotent:  !stmt.IfNotExists,
			IfCondition: stmt.IfNotExists,
		}
		if stmt.Using.TimestampMicros != nil {
			leaf.Timestamp = stmt.Using.TimestampMicros
		}
		if stmt.Using.TTLSeconds != nil {
			leaf.TTL = stmt.Using.TTLSeconds
		}
		children = append(children, Leaf(leaf))
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Group(lo.DefaultParallelFactor, children...), nil
}

func buildInsertCQL(keyspace string, table *TableInfo, cols []string, ifNotExists bool, using Using) string {
	cql := fmt.Sprintf("INSERT INTO %s.%s (", keyspace, QuoteIdentifier(table.Name))
	for i, c := range cols {
		if i > 0 {
			cql += ", "
		}
		cql += QuoteIdentifier(c)
	}
	cql += ") VALUES ("
	for i := range cols {
		if i > 0 {
			cql += ", "
		}
		cql += "?"
	}
	cql += ")"
	if ifNotExists {
		cql += " IF NOT EXISTS"
	}
	cql += usingClause(using)
	return cql
}

func usingClause(u Using) string {
	if u.TimestampMicros == nil && u.TTLSeconds == nil {
		return ""
	}
	cql := " USING "
	parts := 0
	if u.TTLSeconds != nil {
		cql += fmt.Sprintf("TTL %d", *u.TTLSeconds)
		parts++
	}
	if u.TimestampMicros != nil {
		if parts > 0 {
			cql += " AND "
		}
		cql += fmt.Sprintf("TIMESTAMP %d", *u.TimestampMicros)
	}
	return cql
}

func sortedColumns(bindings map[string]*ColumnBinding) []string {
	cols := make([]string, 0, len(bindings))
	for c := range bindings {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// --- UPDATE ---------------------------------------------------------------

func (lo *Lowerer) lowerUpdate(stmt *Statement) (*Node, []*Error, error) {
	class := stmt.Class
	record := stmt.Object

	where := stmt.WhereClauses
	if len(where) == 0 {
		where = []Clause{IsObject(record)}
	}
	assignments := stmt.Assignments
	if len(assignments) == 0 {
		assignments = []Assignment{SetAllFromObject(record)}
	}

	reassigned, warnings, err := detectPKReassignment(class, record, assignments)
	if err != nil {
		return nil, nil, err
	}
	if len(reassigned) > 0 {
		n, err := lo.rewriteAsDeleteInsert(stmt, reassigned)
		return n, warnings, err
	}

	kvalues, err := resolveKeyspaceValues(class, record, where, nil)
	if err != nil {
		return nil, warnings, err
	}
	keyspace, err := class.Keyspace.Substitute(kvalues)
	if err != nil {
		return nil, warnings, err
	}

	var children []*Node
	for _, table := range class.Tables {
		setCQL, params, counter, err := buildAssignments(table, assignments, class, record)
		if err != nil {
			return nil, warnings, err
		}
		if setCQL == "" {
			continue // this table has no column targeted by any assignment
		}
		whereCQL, whereParams, err := buildWhere(table, class, where, record, true)
		if err != nil {
			return nil, warnings, err
		}
		ifCQL, ifParams := buildIf(stmt.IfClauses)
		cql := fmt.Sprintf("UPDATE %s.%s%s SET %s WHERE %s%s",
			keyspace, QuoteIdentifier(table.Name), usingClause(stmt.Using), setCQL, whereCQL, ifCQL)
		allParams := append(params, whereParams...)
		allParams = append(allParams, ifParams...)
		children = append(children, Leaf(&PhysicalStatement{
			Keyspace:         keyspace,
			CQL:              cql,
			Params:           allParams,
			Idempotent:       assignmentsIdempotent(assignments),
			IfCondition:      len(stmt.IfClauses) > 0,
			counterStatement: counter,
		}))
	}
	if len(children) == 1 {
		return children[0], warnings, nil
	}
	return Group(lo.DefaultParallelFactor, children...), warnings, nil
}

func assignmentsIdempotent(assignments []Assignment) bool {
	for _, a := range assignments {
		if !a.InferredIdempotent() {
			return false
		}
	}
	return true
}

// detectPKReassignment scans assignments for a Set targeting a primary-key
// column whose new value differs from the record's current (or
// SetPrevious-supplied) value (spec.md §4.2 "PK reassignment detection").
func detectPKReassignment(class *ClassInfo, record interface{}, assignments []Assignment) (map[string]interface{}, []*Error, error) {
	previous := map[string]interface{}{}
	sets := map[string]interface{}{}
	for _, a := range assignments {
		switch a.Op {
		case AssignSetPrevious:
			previous[a.Column] = a.Value
		case AssignSet:
			sets[a.Column] = a.Value
		}
	}

	pkColumns := map[string]bool{}
	for _, t := range class.Tables {
		for _, pk := range t.PrimaryKey() {
			pkColumns[pk] = true
		}
	}

	reassigned := map[string]interface{}{}
	var warnings []*Error
	for col, newVal := range sets {
		if !pkColumns[col] {
			continue
		}
		var oldVal interface{}
		hadPrevious := false
		if v, ok := previous[col]; ok {
			oldVal = v
			hadPrevious = true
		} else {
			for _, t := range class.Tables {
				if b, ok := t.Bindings[col]; ok {
					if v, ok := class.FieldValue(record, b.Field); ok {
						oldVal = v
					}
					break
				}
			}
		}
		if fmt.Sprint(oldVal) != fmt.Sprint(newVal) {
			reassigned[col] = newVal
			if !hadPrevious {
				warnings = append(warnings, NewError(KindLower, CodePKInAssignmentWithoutPrevious,
					fmt.Sprintf("reassigning primary-key column %q without previous(); old value inferred from the record", col), nil))
			}
		}
	}
	return reassigned, warnings, nil
}

// rewriteAsDeleteInsert implements the PK-reassignment rewrite: for every
// table, DELETE the row at its old primary key and INSERT the fully
// updated row, sequenced per table and grouped across tables (spec.md §4.2,
// scenario 1).
func (lo *Lowerer) rewriteAsDeleteInsert(stmt *Statement, reassigned map[string]interface{}) (*Node, error) {
	class := stmt.Class
	record := stmt.Object

	newValues := map[string]interface{}{}
	for _, a := range stmt.Assignments {
		if a.Op == AssignSet {
			newValues[a.Column] = a.Value
		}
	}
	previous := map[string]interface{}{}
	for _, a := range stmt.Assignments {
		if a.Op == AssignSetPrevious {
			previous[a.Column] = a.Value
		}
	}

	kvalues, err := resolveKeyspaceValues(class, record, stmt.WhereClauses, nil)
	if err != nil {
		return nil, err
	}
	keyspace, err := class.Keyspace.Substitute(kvalues)
	if err != nil {
		return nil, err
	}

	var perTable []*Node
	for _, table := range class.Tables {
		oldWhere, oldParams := buildOldPKWhere(table, class, record, previous)
		delCQL := fmt.Sprintf("DELETE FROM %s.%s WHERE %s", keyspace, QuoteIdentifier(table.Name), oldWhere)
		delLeaf := Leaf(&PhysicalStatement{Keyspace: keyspace, CQL: delCQL, Params: oldParams, Idempotent: true})

		cols := sortedColumns(table.Bindings)
		insParams := make([]interface{}, 0, len(cols))
		for _, col := range cols {
			b := table.Bindings[col]
			var raw interface{}
			if v, ok := newValues[col]; ok {
				raw = v
			} else if v, ok := class.FieldValue(record, b.Field); ok {
				raw = v
			}
			v, err := projectValue(b, raw)
			if err != nil {
				return nil, err
			}
			insParams = append(insParams, v)
		}
		insCQL := buildInsertCQL(keyspace, table, cols, false, stmt.Using)
		insLeaf := Leaf(&PhysicalStatement{Keyspace: keyspace, CQL: insCQL, Params: insParams, Idempotent: true})

		perTable = append(perTable, Sequence(delLeaf, insLeaf))
	}
	return Group(lo.DefaultParallelFactor, perTable...), nil
}

func buildOldPKWhere(table *TableInfo, class *ClassInfo, record interface{}, previous map[string]interface{}) (string, []interface{}) {
	pk := table.PrimaryKey()
	cql := ""
	var params []interface{}
	for i, col := range pk {
		if i > 0 {
			cql += " AND "
		}
		cql += QuoteIdentifier(col) + " = ?"
		if v, ok := previous[col]; ok {
			params = append(params, v)
		} else if b, ok := table.Bindings[col]; ok {
			v, _ := class.FieldValue(record, b.Field)
			params = append(params, v)
		} else {
			params = append(params, nil)
		}
	}
	return cql, params
}

// --- DELETE ----------------------------------------------------------------

func (lo *Lowerer) lowerDelete(stmt *Statement) (*Node, error) {
	class := stmt.Class
	record := stmt.Object
	where := stmt.WhereClauses
	if len(where) == 0 {
		where = []Clause{IsObject(record)}
	}
	kvalues, err := resolveKeyspaceValues(class, record, where, nil)
	if err != nil {
		return nil, err
	}
	keyspace, err := class.Keyspace.Substitute(kvalues)
	if err != nil {
		return nil, err
	}

	var children []*Node
	for _, table := range class.Tables {
		whereCQL, whereParams, err := buildWhere(table, class, where, record, true)
		if err != nil {
			return nil, err
		}
		ifCQL, ifParams := buildIf(stmt.IfClauses)
		colList := ""
		for _, c := range stmt.Columns {
			if _, ok := table.Bindings[c]; !ok {
				continue
			}
			if colList != "" {
				colList += ", "
			}
			colList += QuoteIdentifier(c)
		}
		cql := "DELETE "
		if colList != "" {
			cql += colList + " "
		}
		cql += fmt.Sprintf("FROM %s.%s WHERE %s%s", keyspace, QuoteIdentifier(table.Name), whereCQL, ifCQL)
		allParams := append(whereParams, ifParams...)
		children = append(children, Leaf(&PhysicalStatement{
			Keyspace:    keyspace,
			CQL:         cql,
			Params:      allParams,
			Idempotent:  true,
			IfCondition: len(stmt.IfClauses) > 0,
		}))
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Group(lo.DefaultParallelFactor, children...), nil
}

// --- SELECT ------------------------------------------------------------

func (lo *Lowerer) lowerSelect(stmt *Statement) (*Node, error) {
	class := stmt.Class
	table := class.Tables[0] // single-table per spec.md §4.2 ("Single-table: produce one physical SELECT")

	// Detect an IN clause over a keyspace-key column: split into one
	// physical SELECT per substituted keyspace (spec.md §4.2 scenario 2).
	var inKeyClause *Clause
	var staticWhere []Clause
	for i, cl := range stmt.WhereClauses {
		if cl.Op == OpIn {
			if _, isKeyspaceKey := class.KeyBindings[cl.Column]; isKeyspaceKey {
				c := stmt.WhereClauses[i]
				inKeyClause = &c
				continue
			}
		}
		staticWhere = append(staticWhere, cl)
	}

	if inKeyClause == nil {
		kvalues, err := resolveKeyspaceValues(class, nil, stmt.WhereClauses, nil)
		if err != nil {
			return nil, err
		}
		keyspace, err := class.Keyspace.Substitute(kvalues)
		if err != nil {
			return nil, err
		}
		leaf, err := buildSelectLeaf(keyspace, table, class, stmt, staticWhere)
		if err != nil {
			return nil, err
		}
		return Leaf(leaf), nil
	}

	if len(inKeyClause.Values) == 0 {
		return nil, LowerError(CodeEmptyInList, fmt.Sprintf("IN clause on keyspace key %q is empty", inKeyClause.Column))
	}

	seen := map[string]bool{}
	var children []*Node
	for _, val := range inKeyClause.Values {
		kvalues, err := resolveKeyspaceValues(class, nil, append(staticWhere, Eq(inKeyClause.Column, val)), nil)
		if err != nil {
			return nil, err
		}
		keyspace, err := class.Keyspace.Substitute(kvalues)
		if err != nil {
			return nil, err
		}
		if seen[keyspace] {
			continue // de-duplicate preserving first occurrence (spec.md §4.2)
		}
		seen[keyspace] = true
		leaf, err := buildSelectLeaf(keyspace, table, class, stmt, staticWhere)
		if err != nil {
			return nil, err
		}
		children = append(children, Leaf(leaf))
	}
	// Across-keyspace ordering is undefined (documented); statements execute
	// and stitch in input order via CompositeResultSet, so a Sequence keeps
	// results appended deterministically for the common single-page case
	// without forcing atomicity.
	return Sequence(children...), nil
}

func buildSelectLeaf(keyspace string, table *TableInfo, class *ClassInfo, stmt *Statement, where []Clause) (*PhysicalStatement, error) {
	cols := stmt.Columns
	if len(cols) == 0 {
		cols = sortedColumns(table.Bindings)
	}
	cql := "SELECT "
	for i, c := range cols {
		if i > 0 {
			cql += ", "
		}
		cql += QuoteIdentifier(c)
	}
	cql += fmt.Sprintf(" FROM %s.%s", keyspace, QuoteIdentifier(table.Name))
	whereCQL, whereParams, err := buildWhere(table, class, where, stmt.Object, true)
	if err != nil {
		return nil, err
	}
	if whereCQL != "" {
		cql += " WHERE " + whereCQL
	}
	if len(stmt.Orderings) > 0 {
		cql += " ORDER BY "
		for i, o := range stmt.Orderings {
			if i > 0 {
				cql += ", "
			}
			cql += QuoteIdentifier(o.Column) + " " + o.Direction.String()
		}
	}
	if stmt.Limit > 0 {
		cql += fmt.Sprintf(" LIMIT %d", stmt.Limit)
	}
	return &PhysicalStatement{Keyspace: keyspace, CQL: cql, Params: whereParams, Idempotent: true}, nil
}

// --- WHERE / IF construction -----------------------------------------------

// buildWhere lowers a Clause list against one table, expanding record-
// derived composites (IsObject/IsPartitionedLike/IsSuffixedLike). When
// requireColumn is true, a clause whose column is unknown to every table in
// the class is a fatal CodeUnknownColumn; a column merely absent from THIS
// table (but present in another, per the denormalized-view pattern) is
// silently skipped for this physical statement.
func buildWhere(table *TableInfo, class *ClassInfo, clauses []Clause, record interface{}, requireColumn bool) (string, []interface{}, error) {
	expanded, err := expandClauses(table, class, clauses, record)
	if err != nil {
		return "", nil, err
	}
	var cql string
	var params []interface{}
	first := true
	for _, cl := range expanded {
		if _, ok := table.Bindings[cl.Column]; !ok {
			if requireColumn && !existsInAnyTable(class, cl.Column) {
				return "", nil, LowerError(CodeUnknownColumn, fmt.Sprintf("unknown column %q", cl.Column))
			}
			continue
		}
		if cl.Op == OpIn && len(cl.Values) == 0 {
			return "", nil, LowerError(CodeEmptyInList, fmt.Sprintf("IN clause on %q is empty", cl.Column))
		}
		if !first {
			cql += " AND "
		}
		first = false
		switch cl.Op {
		case OpEq:
			cql += QuoteIdentifier(cl.Column) + " = ?"
			params = append(params, cl.Value)
		case OpLt:
			cql += QuoteIdentifier(cl.Column) + " < ?"
			params = append(params, cl.Value)
		case OpLte:
			cql += QuoteIdentifier(cl.Column) + " <= ?"
			params = append(params, cl.Value)
		case OpGt:
			cql += QuoteIdentifier(cl.Column) + " > ?"
			params = append(params, cl.Value)
		case OpGte:
			cql += QuoteIdentifier(cl.Column) + " >= ?"
			params = append(params, cl.Value)
		case OpIn:
			cql += QuoteIdentifier(cl.Column) + " IN ("
			for i, v := range cl.Values {
				if i > 0 {
					cql += ", "
				}
				cql += "?"
				params = append(params, v)
			}
			cql += ")"
		}
	}
	return cql, params, nil
}

func existsInAnyTable(class *ClassInfo, column string) bool {
	for _, t := range class.Tables {
		if _, ok := t.Bindings[column]; ok {
			return true
		}
	}
	return false
}

func expandClauses(table *TableInfo, class *ClassInfo, clauses []Clause, record interface{}) ([]Clause, error) {
	var out []Clause
	for _, cl := range clauses {
		switch cl.Op {
		case OpIsObject:
			obj := cl.Object
			if obj == nil {
				obj = record
			}
			for _, col := range table.PrimaryKey() {
				b := table.Bindings[col]
				v, _ := class.FieldValue(obj, b.Field)
				out = append(out, Eq(col, v))
			}
		case OpIsPartitionedLike:
			obj := cl.Object
			if obj == nil {
				obj = record
			}
			for _, col := range table.PartitionKeys {
				b := table.Bindings[col]
				v, _ := class.FieldValue(obj, b.Field)
				out = append(out, Eq(col, v))
			}
		case OpIsSuffixedLike:
			obj := cl.Object
			if obj == nil {
				obj = record
			}
			for key, b := range class.KeyBindings {
				v, _ := class.FieldValue(obj, b.Field)
				out = append(out, Eq(key, v))
			}
		default:
			out = append(out, cl)
		}
	}
	return out, nil
}

func buildIf(clauses []Clause) (string, []interface{}) {
	if len(clauses) == 0 {
		return "", nil
	}
	cql := " IF "
	var params []interface{}
	for i, cl := range clauses {
		if i > 0 {
			cql += " AND "
		}
		cql += QuoteIdentifier(cl.Column) + " = ?"
		params = append(params, cl.Value)
	}
	return cql, params
}

func buildAssignments(table *TableInfo, assignments []Assignment, class *ClassInfo, record interface{}) (string, []interface{}, bool, error) {
	cql := ""
	var params []interface{}
	first := true
	counter := false
	for _, a := range assignments {
		if a.Op == AssignSetPrevious {
			continue
		}
		if a.Op == AssignSetAllFromObject {
			obj := a.Object
			if obj == nil {
				obj = record
			}
			pk := map[string]bool{}
			for _, c := range table.PrimaryKey() {
				pk[c] = true
			}
			for _, col := range append(append([]string{}, table.RegularColumns...), table.StaticColumns...) {
				if pk[col] {
					continue
				}
				b := table.Bindings[col]
				v, _ := class.FieldValue(obj, b.Field)
				proj, err := projectValue(b, v)
				if err != nil {
					return "", nil, false, err
				}
				if !first {
					cql += ", "
				}
				first = false
				cql += QuoteIdentifier(col) + " = ?"
				params = append(params, proj)
			}
			continue
		}

		b, ok := table.Bindings[a.Column]
		if !ok {
			continue // column not projected onto this table (denormalized view)
		}
		if a.IsCounterOp() && !b.CQLType.IsCounter() {
			return "", nil, false, LowerError(CodeCounterOpOnNonCounter, fmt.Sprintf("counter operation on non-counter column %q", a.Column))
		}
		if a.IsCounterOp() {
			counter = true
		}
		if !first {
			cql += ", "
		}
		first = false
		switch a.Op {
		case AssignSet:
			cql += QuoteIdentifier(a.Column) + " = ?"
			params = append(params, a.Value)
		case AssignIncr:
			cql += fmt.Sprintf("%s = %s + ?", QuoteIdentifier(a.Column), QuoteIdentifier(a.Column))
			params = append(params, a.Value)
		case AssignDecr:
			cql += fmt.Sprintf("%s = %s - ?", QuoteIdentifier(a.Column), QuoteIdentifier(a.Column))
			params = append(params, a.Value)
		case AssignListPrepend:
			cql += fmt.Sprintf("%s = ? + %s", QuoteIdentifier(a.Column), QuoteIdentifier(a.Column))
			params = append(params, []interface{}{a.Value})
		case AssignListAppend:
			cql += fmt.Sprintf("%s = %s + ?", QuoteIdentifier(a.Column), QuoteIdentifier(a.Column))
			params = append(params, []interface{}{a.Value})
		case AssignListDiscard:
			cql += fmt.Sprintf("%s = %s - ?", QuoteIdentifier(a.Column), QuoteIdentifier(a.Column))
			params = append(params, []interface{}{a.Value})
		case AssignListSetIdx:
			cql += fmt.Sprintf("%s[%d] = ?", QuoteIdentifier(a.Column), a.Index)
			params = append(params, a.Value)
		case AssignSetAdd:
			cql += fmt.Sprintf("%s = %s + ?", QuoteIdentifier(a.Column), QuoteIdentifier(a.Column))
			params = append(params, a.Value)
		case AssignSetRemove:
			cql += fmt.Sprintf("%s = %s - ?", QuoteIdentifier(a.Column), QuoteIdentifier(a.Column))
			params = append(params, a.Value)
		case AssignMapPut:
			pair := a.Value.([2]interface{})
			cql += fmt.Sprintf("%s[?] = ?", QuoteIdentifier(a.Column))
			params = append(params, pair[0], pair[1])
		}
	}
	return cql, params, counter, nil
}
