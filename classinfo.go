package riftcql

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/riftcql/riftcql/codec"
	"github.com/riftcql/riftcql/cqltype"
)

// FieldRole is the role a column plays within one TableInfo (spec.md §3
// TableInfo / ColumnBinding).
type FieldRole int

const (
	RoleRegular FieldRole = iota
	RolePartitionKey
	RoleClusteringKey
	RoleStatic
	RoleCounter
)

// ReplicationSpec describes a keyspace's replication strategy, the shape
// CREATE KEYSPACE needs (spec.md §3 KeyspaceSpec).
type ReplicationSpec struct {
	Strategy string // e.g. "SimpleStrategy", "NetworkTopologyStrategy"
	Options  map[string]interface{}
}

// Equal reports whether two ReplicationSpec values describe the same
// strategy, used by the KeyspaceSpec conflict invariant.
func (r ReplicationSpec) Equal(other ReplicationSpec) bool {
	if r.Strategy != other.Strategy || len(r.Options) != len(other.Options) {
		return false
	}
	for k, v := range r.Options {
		if ov, ok := other.Options[k]; !ok || fmt.Sprint(v) != fmt.Sprint(ov) {
			return false
		}
	}
	return true
}

// KeyspaceSpec is the logical keyspace template for a record type (spec.md §3).
type KeyspaceSpec struct {
	BaseName      string
	KeyspaceKeys  []string // column names substituted into the physical name
	Replication   ReplicationSpec
	DurableWrites bool
}

// Substitute computes the physical keyspace name by substituting values (in
// KeyspaceKeys order) into BaseName's "{key}" placeholders.
func (k KeyspaceSpec) Substitute(values map[string]interface{}) (string, error) {
	name := k.BaseName
	for _, key := range k.KeyspaceKeys {
		v, ok := values[key]
		if !ok {
			return "", NewError(KindCompile, CodeKeyspaceKeyUnbound, fmt.Sprintf("keyspace key %q has no value", key), nil)
		}
		placeholder := "{" + key + "}"
		name = replaceAll(name, placeholder, fmt.Sprint(v))
	}
	return name, nil
}

func replaceAll(s, old, new string) string {
	for {
		idx := indexOf(s, old)
		if idx < 0 {
			return s
		}
		s = s[:idx] + new + s[idx+len(old):]
	}
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// ColumnDescriptor is one column projection within a TableDescriptor: the
// struct field it binds to, the CQL type, and its role in that table.
type ColumnDescriptor struct {
	Column              string
	Field               string // struct field name on the descriptor's GoType
	Type                cqltype.Type
	Role                FieldRole
	ClusteringOrder     Direction // meaningful only when Role == RoleClusteringKey
	Index               bool      // secondary index on this column
	Persister           codec.Persister
	MandatoryCollection bool
	Nullable            bool
}

// TableOptions carries table-level storage options (spec.md §3 TableInfo).
type TableOptions struct {
	Compaction map[string]interface{}
	Caching    string
	DefaultTTL int
}

// TableDescriptor describes one physical denormalized table for a record
// type, the input C3's compiler consumes for each TableInfo it produces.
type TableDescriptor struct {
	Name    string
	Columns []ColumnDescriptor
	Options TableOptions
	Counter bool
}

// InitialRowsFactory is a zero/one-arg factory producing rows to insert at
// schema-creation time (spec.md §4.1 step 6).
type InitialRowsFactory struct {
	Name      string
	Fn        func(keyspaceKeyValues map[string]interface{}) []interface{}
	DependsOn []reflect.Type
}

// Descriptor is the input to Compile: a reflection- or codegen-produced
// description of a record type (spec.md §9 design note: "a descriptor value
// built either by macros/code-generation at compile time... or from a small
// runtime schema description language").
type Descriptor struct {
	GoType        reflect.Type
	Keyspace      KeyspaceSpec
	Tables        []TableDescriptor
	Discriminator string // column name; "" means this is not a type entity
	InitialRows   []InitialRowsFactory
	Validate      func(interface{}) error
}

// ColumnBinding projects a record field onto a column (spec.md §3).
type ColumnBinding struct {
	Field               string
	FieldType           reflect.Type
	CQLType             cqltype.Type
	Codec               codec.Codec
	Persister           codec.Persister
	Nullable            bool
	MandatoryCollection bool
}

// TableInfo is one physical table compiled for a record type (spec.md §3).
type TableInfo struct {
	Name              string
	PartitionKeys     []string
	ClusteringKeys    []string
	ClusteringOrder   map[string]Direction
	StaticColumns     []string
	RegularColumns    []string
	Indexes           []string
	Options           TableOptions
	Counter           bool
	Bindings          map[string]*ColumnBinding // column name -> binding, this table
}

// ColumnRole reports the role column plays in this table.
func (t *TableInfo) ColumnRole(column string) FieldRole {
	for _, c := range t.PartitionKeys {
		if c == column {
			return RolePartitionKey
		}
	}
	for _, c := range t.ClusteringKeys {
		if c == column {
			return RoleClusteringKey
		}
	}
	for _, c := range t.StaticColumns {
		if c == column {
			return RoleStatic
		}
	}
	if t.Counter {
		if b, ok := t.Bindings[column]; ok && b.CQLType.IsCounter() {
			return RoleCounter
		}
	}
	return RoleRegular
}

// PrimaryKey returns partition keys followed by clustering keys, in order.
func (t *TableInfo) PrimaryKey() []string {
	pk := make([]string, 0, len(t.PartitionKeys)+len(t.ClusteringKeys))
	pk = append(pk, t.PartitionKeys...)
	pk = append(pk, t.ClusteringKeys...)
	return pk
}

// ClassInfo is the immutable compiled view of a record type (spec.md §3).
type ClassInfo struct {
	GoType        reflect.Type
	Keyspace      KeyspaceSpec
	Tables        []*TableInfo
	KeyBindings   map[string]*ColumnBinding // keyspace-key column name -> binding
	Discriminator string
	InitialRows   []InitialRowsFactory
	Validate      func(interface{}) error
}

// TableByName returns the named TableInfo, or nil.
func (ci *ClassInfo) TableByName(name string) *TableInfo {
	for _, t := range ci.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// FieldValue reads field's value off record v via reflection, dereferencing
// every pointer indirection (*T, **T, ...) first.
func (ci *ClassInfo) FieldValue(v interface{}, field string) (interface{}, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	fv := rv.FieldByName(field)
	if !fv.IsValid() {
		return nil, false
	}
	return fv.Interface(), true
}

// Compiler compiles Descriptors into cached ClassInfo values (spec.md §4.1
// public contract: "compile(record_descriptor) -> ClassInfo<T> | CompileError.
// Called once per record type at registration. Idempotent per type.").
//
// The ClassInfo cache is a concurrent insert-only google/btree.BTree keyed
// by type name. The cache is only looked up by key; CreateSchemas /
// AlterSchemas take an explicit class slice and lower it in slice order.
type Compiler struct {
	mu          sync.Mutex
	cache       *btree.BTree
	keyspaceReg map[string]KeyspaceSpec // BaseName -> first-seen spec, for the conflict invariant
	Registry    *codec.Registry
}

type classInfoItem struct {
	key string
	ci  *ClassInfo
}

func (c classInfoItem) Less(than btree.Item) bool {
	return c.key < than.(classInfoItem).key
}

// NewCompiler constructs a Compiler backed by the given codec registry.
func NewCompiler(reg *codec.Registry) *Compiler {
	return &Compiler{
		cache:       btree.New(8),
		keyspaceReg: map[string]KeyspaceSpec{},
		Registry:    reg,
	}
}

func typeKey(t reflect.Type) string { return t.PkgPath() + "." + t.Name() }

// Compile implements C3's public contract.
func (c *Compiler) Compile(d Descriptor) (*ClassInfo, error) {
	key := typeKey(d.GoType)

	c.mu.Lock()
	if item := c.cache.Get(classInfoItem{key: key}); item != nil {
		c.mu.Unlock()
		return item.(classInfoItem).ci, nil
	}
	c.mu.Unlock()

	ci, err := c.compile(d)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under lock in case of a concurrent compile of the same type.
	if item := c.cache.Get(classInfoItem{key: key}); item != nil {
		return item.(classInfoItem).ci, nil
	}
	c.cache.ReplaceOrInsert(classInfoItem{key: key, ci: ci})
	return ci, nil
}

func (c *Compiler) compile(d Descriptor) (*ClassInfo, error) {
	// Step 1: exactly one keyspace declaration.
	if d.Keyspace.BaseName == "" {
		return nil, CompileError(CodeMissingKeyspace, "descriptor has no keyspace declared")
	}
	if existing, ok := c.keyspaceReg[d.Keyspace.BaseName]; ok {
		if !existing.Replication.Equal(d.Keyspace.Replication) || existing.DurableWrites != d.Keyspace.DurableWrites {
			return nil, CompileError(CodeKeyspaceConflict,
				fmt.Sprintf("keyspace %q already registered with a different replication/durable-writes setting", d.Keyspace.BaseName))
		}
	} else {
		c.keyspaceReg[d.Keyspace.BaseName] = d.Keyspace
	}

	if len(d.Tables) == 0 {
		return nil, CompileError(CodeMissingKeyspace, "descriptor declares no tables")
	}

	tables := make([]*TableInfo, 0, len(d.Tables))
	allBindings := map[string]*ColumnBinding{}

	for _, td := range d.Tables {
		ti, err := c.compileTable(d, td)
		if err != nil {
			return nil, err
		}
		tables = append(tables, ti)
		for col, b := range ti.Bindings {
			allBindings[col] = b
		}
	}

	// Step 5: resolve keyspace keys.
	keyBindings := map[string]*ColumnBinding{}
	for _, kk := range d.Keyspace.KeyspaceKeys {
		b, ok := allBindings[kk]
		if !ok {
			return nil, CompileError(CodeKeyspaceKeyUnbound, fmt.Sprintf("keyspace key %q does not bind to any column", kk))
		}
		keyBindings[kk] = b
	}

	// Step 6: initial-rows factories, DependsOn included, are stored as
	// given. Neither this compiler nor CreateSchemas orders initial-row
	// inserts across types.

	if d.Validate == nil {
		d.Validate = func(interface{}) error { return nil }
	}

	return &ClassInfo{
		GoType:        d.GoType,
		Keyspace:      d.Keyspace,
		Tables:        tables,
		KeyBindings:   keyBindings,
		Discriminator: d.Discriminator,
		InitialRows:   d.InitialRows,
		Validate:      d.Validate,
	}, nil
}

func (c *Compiler) compileTable(d Descriptor, td TableDescriptor) (*TableInfo, error) {
	ti := &TableInfo{
		Name:            td.Name,
		ClusteringOrder: map[string]Direction{},
		Options:         td.Options,
		Counter:         td.Counter,
		Bindings:        map[string]*ColumnBinding{},
	}

	seen := map[string]bool{}
	for _, cd := range td.Columns {
		if seen[cd.Column] {
			return nil, CompileError(CodeDuplicateColumn, fmt.Sprintf("table %q: duplicate column %q", td.Name, cd.Column))
		}
		seen[cd.Column] = true

		sf, ok := d.GoType.FieldByName(cd.Field)
		if !ok {
			return nil, CompileError(CodePrimaryKeyMissingBind, fmt.Sprintf("table %q: column %q binds to unknown field %q", td.Name, cd.Column, cd.Field))
		}

		cqlCodec, err := c.Registry.CodecFor(cd.Type)
		if err != nil {
			return nil, CompileError(CodeCodecUnavailable, fmt.Sprintf("table %q: column %q: %v", td.Name, cd.Column, err))
		}
		if cd.Persister != nil {
			cqlCodec = &codec.PersistedCodec{Inner: cqlCodec, Persister: cd.Persister}
		}
		if cd.MandatoryCollection && cd.Type.IsCollection() {
			cqlCodec = &codec.MandatoryCollection{Inner: cqlCodec}
		}

		binding := &ColumnBinding{
			Field:               cd.Field,
			FieldType:           sf.Type,
			CQLType:             cd.Type,
			Codec:               cqlCodec,
			Persister:           cd.Persister,
			Nullable:            cd.Nullable,
			MandatoryCollection: cd.MandatoryCollection,
		}
		ti.Bindings[cd.Column] = binding

		switch cd.Role {
		case RolePartitionKey:
			ti.PartitionKeys = append(ti.PartitionKeys, cd.Column)
		case RoleClusteringKey:
			ti.ClusteringKeys = append(ti.ClusteringKeys, cd.Column)
			ti.ClusteringOrder[cd.Column] = cd.ClusteringOrder
		case RoleStatic:
			ti.StaticColumns = append(ti.StaticColumns, cd.Column)
		default:
			ti.RegularColumns = append(ti.RegularColumns, cd.Column)
		}
		if cd.Index {
			ti.Indexes = append(ti.Indexes, cd.Column)
		}
	}

	// Step 4: validate.
	if len(ti.PartitionKeys) == 0 {
		return nil, CompileError(CodePrimaryKeyMissingBind, fmt.Sprintf("table %q has no partition key", td.Name))
	}
	for _, pk := range ti.PartitionKeys {
		if _, ok := ti.Bindings[pk]; !ok {
			return nil, CompileError(CodePrimaryKeyMissingBind, fmt.Sprintf("table %q: partition key %q has no binding", td.Name, pk))
		}
	}
	for _, ck := range ti.ClusteringKeys {
		if _, ok := ti.Bindings[ck]; !ok {
			return nil, CompileError(CodePrimaryKeyMissingBind, fmt.Sprintf("table %q: clustering key %q has no binding", td.Name, ck))
		}
	}
	staticSet := map[string]bool{}
	for _, s := range ti.StaticColumns {
		staticSet[s] = true
	}
	for _, k := range append(append([]string{}, ti.PartitionKeys...), ti.ClusteringKeys...) {
		if staticSet[k] {
			return nil, CompileError(CodeDuplicateColumn, fmt.Sprintf("table %q: column %q cannot be both a key and static", td.Name, k))
		}
	}

	if td.Counter {
		for col, b := range ti.Bindings {
			role := ti.ColumnRole(col)
			if role == RoleRegular && !b.CQLType.IsCounter() {
				return nil, CompileError(CodeCounterMixedNonCounter, fmt.Sprintf("table %q: counter table has non-counter non-key column %q", td.Name, col))
			}
		}
	} else {
		for col, b := range ti.Bindings {
			if b.CQLType.IsCounter() {
				return nil, CompileError(CodeCounterMixedNonCounter, fmt.Sprintf("table %q: counter column %q in a non-counter table", td.Name, col))
			}
		}
	}

	sort.Strings(ti.RegularColumns)
	return ti, nil
}
