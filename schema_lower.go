package riftcql

import (
	"context"
	"fmt"
	"sort"

	"github.com/riftcql/riftcql/cqltype"
	"github.com/riftcql/riftcql/internal/toposort"
)

// lowerSchema builds CREATE-SCHEMA/ALTER-SCHEMA for one class: keyspace,
// then tables, then secondary indexes, then initial-row inserts (spec.md
// §4.2 "Schema statements"). alter diffs every table against the observed
// schema instead of emitting CREATE TABLE. kvalues supplies the keyspace-key
// values for classes whose KeyspaceSpec is suffixed (e.g. one schema per
// tenant via CREATE-SCHEMAS); it is nil for a fixed, key-free keyspace.
func (lo *Lowerer) lowerSchema(ctx context.Context, class *ClassInfo, alter bool, kvalues map[string]interface{}) (*Node, error) {
	var steps []*Node

	keyspace, err := class.Keyspace.Substitute(kvalues)
	if err != nil {
		return nil, err
	}

	steps = append(steps, Leaf(&PhysicalStatement{
		Keyspace:   keyspace,
		CQL:        createKeyspaceCQL(keyspace, class.Keyspace),
		Idempotent: true,
	}))

	var observed ObservedSchema
	if alter {
		var err error
		observed, err = lo.Metadata.ObserveSchema(ctx, keyspace)
		if err != nil {
			return nil, LowerError(CodeAlterIncompatible, fmt.Sprintf("failed to observe schema for keyspace %q: %v", keyspace, err))
		}
	}

	for _, table := range class.Tables {
		if alter {
			n, err := lowerAlterTable(keyspace, table, observed)
			if err != nil {
				return nil, err
			}
			if n != nil {
				steps = append(steps, n)
			}
		} else {
			steps = append(steps, Leaf(&PhysicalStatement{
				Keyspace:   keyspace,
				CQL:        createTableCQL(table),
				Idempotent: true,
			}))
		}
	}

	if !alter {
		for _, table := range class.Tables {
			for _, idx := range table.Indexes {
				steps = append(steps, Leaf(&PhysicalStatement{
					Keyspace:   keyspace,
					CQL:        fmt.Sprintf("CREATE INDEX IF NOT EXISTS ON %s (%s)", QuoteIdentifier(table.Name), QuoteIdentifier(idx)),
					Idempotent: true,
				}))
			}
		}
		rowNodes, err := lo.lowerInitialRows(class)
		if err != nil {
			return nil, err
		}
		steps = append(steps, rowNodes...)
	}

	return Sequence(steps...), nil
}

func createKeyspaceCQL(keyspace string, spec KeyspaceSpec) string {
	cql := fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': '%s'", QuoteIdentifier(keyspace), spec.Replication.Strategy)
	keys := make([]string, 0, len(spec.Replication.Options))
	for k := range spec.Replication.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cql += fmt.Sprintf(", '%s': '%v'", k, spec.Replication.Options[k])
	}
	cql += "}"
	if !spec.DurableWrites {
		cql += " AND durable_writes = false"
	}
	return cql
}

func createTableCQL(table *TableInfo) string {
	cols := sortedColumns(table.Bindings)
	cql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (", QuoteIdentifier(table.Name))
	for _, c := range cols {
		b := table.Bindings[c]
		cql += fmt.Sprintf("%s %s", QuoteIdentifier(c), b.CQLType.CQL())
		if table.ColumnRole(c) == RoleStatic {
			cql += " STATIC"
		}
		cql += ", "
	}
	cql += "PRIMARY KEY ("
	if len(table.PartitionKeys) > 1 {
		cql += "("
		for i, c := range table.PartitionKeys {
			if i > 0 {
				cql += ", "
			}
			cql += QuoteIdentifier(c)
		}
		cql += ")"
	} else if len(table.PartitionKeys) == 1 {
		cql += QuoteIdentifier(table.PartitionKeys[0])
	}
	for _, c := range table.ClusteringKeys {
		cql += ", " + QuoteIdentifier(c)
	}
	cql += ")"
	cql += ")"
	if len(table.ClusteringOrder) > 0 {
		cql += " WITH CLUSTERING ORDER BY ("
		first := true
		for _, c := range table.ClusteringKeys {
			if dir, ok := table.ClusteringOrder[c]; ok {
				if !first {
					cql += ", "
				}
				first = false
				cql += QuoteIdentifier(c) + " " + dir.String()
			}
		}
		cql += ")"
	}
	return cql
}

// lowerAlterTable diffs table against the live schema, emitting ADD COLUMN
// statements for new columns and failing with CodeAlterIncompatible for
// changes CQL can't express as an ALTER (partition-key changes, or a column
// type change that isn't alterable per cqltype.IsAlterableTo).
func lowerAlterTable(keyspace string, table *TableInfo, observed ObservedSchema) (*Node, error) {
	live, ok := observed.Tables[table.Name]
	if !ok {
		// Table doesn't exist yet: ALTER degrades to CREATE for it.
		return Leaf(&PhysicalStatement{Keyspace: keyspace, CQL: createTableCQL(table), Idempotent: true}), nil
	}

	if !stringSliceEqual(live.PartitionKeys, table.PartitionKeys) {
		return nil, LowerError(CodeAlterIncompatible, fmt.Sprintf("table %q: partition key changed from %v to %v", table.Name, live.PartitionKeys, table.PartitionKeys))
	}
	if !stringSliceEqual(live.ClusteringKeys, table.ClusteringKeys) {
		return nil, LowerError(CodeAlterIncompatible, fmt.Sprintf("table %q: clustering key changed from %v to %v", table.Name, live.ClusteringKeys, table.ClusteringKeys))
	}

	var adds []*Node
	cols := sortedColumns(table.Bindings)
	for _, c := range cols {
		b := table.Bindings[c]
		if liveType, exists := live.Columns[c]; exists {
			if liveType != b.CQLType.CQL() {
				desired := b.CQLType
				if !cqltype.IsAlterableTo(typeFromCQLString(liveType), desired) {
					return nil, LowerError(CodeAlterIncompatible, fmt.Sprintf("table %q: column %q type change %q -> %q is not alterable", table.Name, c, liveType, desired.CQL()))
				}
				adds = append(adds, Leaf(&PhysicalStatement{
					Keyspace:   keyspace,
					CQL:        fmt.Sprintf("ALTER TABLE %s ALTER %s TYPE %s", QuoteIdentifier(table.Name), QuoteIdentifier(c), b.CQLType.CQL()),
					Idempotent: true,
				}))
			}
			continue
		}
		adds = append(adds, Leaf(&PhysicalStatement{
			Keyspace:   keyspace,
			CQL:        fmt.Sprintf("ALTER TABLE %s ADD %s %s", QuoteIdentifier(table.Name), QuoteIdentifier(c), b.CQLType.CQL()),
			Idempotent: true,
		}))
	}
	if len(adds) == 0 {
		return nil, nil
	}
	return Sequence(adds...), nil
}

// typeFromCQLString recovers enough of a cqltype.Type from its rendered CQL
// string to evaluate IsAlterableTo against live schema metadata, which only
// ever reports the already-rendered type string (spec.md §6 ObservedTable).
func typeFromCQLString(s string) cqltype.Type {
	return cqltype.Prim(cqltype.Primitive(s))
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lowerInitialRows runs this class's InitialRowsFactory list through
// toposort, then lowers each produced row to an INSERT leaf (spec.md §4.1
// step 6). DependsOn names other types, never a factory of this class, so
// the factories keep their declared order; rows are not ordered across
// classes.
func (lo *Lowerer) lowerInitialRows(class *ClassInfo) ([]*Node, error) {
	if len(class.InitialRows) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(class.InitialRows))
	byName := map[string]InitialRowsFactory{}
	edges := map[string][]string{}
	for _, f := range class.InitialRows {
		names = append(names, f.Name)
		byName[f.Name] = f
	}
	for _, f := range class.InitialRows {
		for _, dep := range f.DependsOn {
			edges[f.Name] = append(edges[f.Name], typeKey(dep))
		}
	}
	order, err := toposort.Sort(names, edges)
	if err != nil {
		return nil, LowerError("InitialRowsCycle", err.Error())
	}

	var nodes []*Node
	kvalues := map[string]interface{}{}
	for key := range class.KeyBindings {
		kvalues[key] = nil
	}
	for _, name := range order {
		f, ok := byName[name]
		if !ok {
			continue // dependency on a different type's factory; that type lowers its own rows
		}
		for _, record := range f.Fn(kvalues) {
			n, err := lo.lowerInsert(&Statement{Kind: OpInsert, Class: class, Object: record})
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// lowerTruncate issues an independent TRUNCATE TABLE per table in class;
// truncation has no cross-table ordering requirement so they group.
func (lo *Lowerer) lowerTruncate(class *ClassInfo) (*Node, error) {
	keyspace, err := class.Keyspace.Substitute(nil)
	if err != nil {
		return nil, err
	}
	var children []*Node
	for _, table := range class.Tables {
		children = append(children, Leaf(&PhysicalStatement{
			Keyspace:   keyspace,
			CQL:        fmt.Sprintf("TRUNCATE TABLE %s.%s", QuoteIdentifier(keyspace), QuoteIdentifier(table.Name)),
			Idempotent: true,
		}))
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Group(lo.DefaultParallelFactor, children...), nil
}

// lowerSchemas implements CREATE-SCHEMAS/ALTER-SCHEMAS(pkg, suffixes,
// matching): union semantics when matching is false (every class whose
// declared keyspace keys are all present in the provided suffixes lowers
// independently; the rest are skipped), exact-match-suffix-set semantics when
// true (a class is skipped unless its declared keyspace keys are exactly
// the provided suffixes set, per spec.md §4.2).
func (lo *Lowerer) lowerSchemas(ctx context.Context, stmt *Statement, alter bool) (*Node, error) {
	var selected []*ClassInfo
	for _, class := range stmt.Classes {
		if stmt.MatchingMode {
			if !suffixSetExactMatch(class.Keyspace.KeyspaceKeys, stmt.Suffixes) {
				continue
			}
		} else if !suffixSetSubset(class.Keyspace.KeyspaceKeys, stmt.Suffixes) {
			continue
		}
		selected = append(selected, class)
	}
	if len(selected) == 0 {
		return Sequence(), nil
	}
	var children []*Node
	for _, class := range selected {
		n, err := lo.lowerSchema(ctx, class, alter, stmt.Suffixes)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	return Group(lo.DefaultParallelFactor, children...), nil
}

func suffixSetExactMatch(keyspaceKeys []string, suffixes map[string]interface{}) bool {
	if len(keyspaceKeys) != len(suffixes) {
		return false
	}
	return suffixSetSubset(keyspaceKeys, suffixes)
}

// suffixSetSubset reports whether every keyspace key the class declares is
// bound in suffixes (spec.md §4.2: non-matching mode "include any class
// whose keyspace keys are a subset" of the provided suffixes) — a class
// needing a key the caller never supplied would otherwise hard-fail in
// Substitute with KeyspaceKeyUnbound instead of simply being skipped.
func suffixSetSubset(keyspaceKeys []string, suffixes map[string]interface{}) bool {
	for _, k := range keyspaceKeys {
		if _, ok := suffixes[k]; !ok {
			return false
		}
	}
	return true
}
