package riftcql

import "context"

// Op is the fluent, run-it-when-ready handle over a lowered Statement: the
// generalization of the teacher's gocassa.Op, now backed by the lowering
// engine (C5) and composite execution (C6) instead of per-recipe CQL
// builders. A Statement produces an Op only once bound to a Registry.
type Op struct {
	stmt *Statement
	reg  *Registry

	atomic bool
	node   *Node // cached after the first Lower, so Add/Preflight/Run share one lowering
}

// NewOp binds stmt to reg, producing a runnable Op.
func NewOp(stmt *Statement, reg *Registry) *Op {
	return &Op{stmt: stmt, reg: reg}
}

// Preflight lowers the statement without executing it, surfacing a
// KindLower error early (spec.md §4.2); it caches the composite tree so Run
// doesn't lower twice.
func (o *Op) Preflight() error {
	if o.node != nil {
		return nil
	}
	node, _, err := o.reg.Lowerer().Lower(context.Background(), o.stmt)
	if err != nil {
		return err
	}
	o.node = node
	return nil
}

// Run executes the operation with context.Background().
func (o *Op) Run() error {
	return o.RunWithContext(context.Background())
}

// RunAtomically executes the operation as a single logged batch: every leaf
// beneath the lowered tree collapses into one BEGIN BATCH / APPLY BATCH
// round trip (spec.md §4.3 "BatchLogged"). Expensive; the teacher's own doc
// comment on Op.RunAtomically warns against reaching for it by default.
func (o *Op) RunAtomically() error {
	o.atomic = true
	return o.RunWithContext(context.Background())
}

// RunAtomicallyWithContext is RunAtomically with an explicit context.
func (o *Op) RunAtomicallyWithContext(ctx context.Context) error {
	o.atomic = true
	return o.RunWithContext(ctx)
}

// RunWithContext lowers (if not already cached) and executes the operation.
func (o *Op) RunWithContext(ctx context.Context) error {
	if err := o.Preflight(); err != nil {
		return err
	}
	node := o.node
	if o.reg.FullTrace() {
		tagTracing(node)
	}
	if o.atomic {
		leaves := collectLeaves(node)
		batch, err := BatchLogged(leaves...)
		if err != nil {
			return err
		}
		node = batch
	}
	_, err := node.Execute(ctx, o.reg.Transport(), o.reg.cfg.Logger)
	return err
}

func collectLeaves(n *Node) []*Node {
	if n.Kind == NodeLeaf {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		out = append(out, collectLeaves(c)...)
	}
	return out
}

// Add composes other into this Op's composite tree as a Sequence, the way
// the teacher's Op.Add builds up a multi-statement operation (spec.md §4.3
// Node.Add). Both operands must already have lowered (or lower cleanly) for
// the combined tree to be meaningful.
func (o *Op) Add(others ...*Op) *Op {
	if err := o.Preflight(); err != nil {
		return o
	}
	children := []*Node{o.node}
	for _, other := range others {
		if err := other.Preflight(); err != nil {
			continue
		}
		children = append(children, other.node)
	}
	o.node = Sequence(children...)
	return o
}

// GenerateStatement returns the CQL and params of the first physical leaf
// this Op lowers to, for debugging/printing (spec.md's teacher-equivalent
// "GenerateStatement" convenience); a multi-table composite only shows its
// first leaf, matching the teacher's single-statement-oriented signature.
func (o *Op) GenerateStatement() (string, []interface{}) {
	if err := o.Preflight(); err != nil {
		return "", nil
	}
	leaves := collectLeaves(o.node)
	if len(leaves) == 0 {
		return "", nil
	}
	return leaves[0].Leaf.CQL, leaves[0].Leaf.Params
}

// TableHandle is the generalization of the teacher's TableChanger: schema
// lifecycle operations for one compiled ClassInfo (spec.md §4.2 schema
// statements), bound to a Registry.
type TableHandle struct {
	Class *ClassInfo
	Reg   *Registry
}

// NewTableHandle binds class to reg for schema-lifecycle operations.
func NewTableHandle(class *ClassInfo, reg *Registry) *TableHandle {
	return &TableHandle{Class: class, Reg: reg}
}

// Create issues CREATE-SCHEMA for this class's keyspace and tables.
func (h *TableHandle) Create(ctx context.Context) error {
	_, _, err := h.Reg.Execute(ctx, CreateSchema(h.Class))
	return err
}

// CreateIfNotExist is Create; every DDL statement riftcql lowers already
// carries IF NOT EXISTS (spec.md §4.2), so there is no separate code path.
func (h *TableHandle) CreateIfNotExist(ctx context.Context) error {
	return h.Create(ctx)
}

// Recreate truncates every table for this class, then re-applies CREATE-
// SCHEMA; it does not drop the keyspace (spec.md scopes DROP KEYSPACE out).
func (h *TableHandle) Recreate(ctx context.Context) error {
	if _, _, err := h.Reg.Execute(ctx, TruncateSchema(h.Class)); err != nil {
		return err
	}
	return h.Create(ctx)
}

// Alter issues ALTER-SCHEMA, diffing every table against the observed live
// schema (spec.md §4.2 "ALTER-SCHEMA").
func (h *TableHandle) Alter(ctx context.Context) error {
	_, _, err := h.Reg.Execute(ctx, AlterSchema(h.Class))
	return err
}

// Name returns the first table's physical name, matching the teacher's
// single-table TableChanger.Name; multi-table classes name their primary
// table (Tables[0]) since TableChanger has no notion of denormalized views.
func (h *TableHandle) Name() string {
	if len(h.Class.Tables) == 0 {
		return ""
	}
	return h.Class.Tables[0].Name
}

// KeySpaceHandle is the generalization of the teacher's KeySpace: a bound
// view over one Registry plus its MetadataService, for keyspace-level
// introspection (spec.md §6 MetadataService).
type KeySpaceHandle struct {
	Name     string
	Reg      *Registry
	Metadata MetadataService
}

// NewKeySpaceHandle binds name to reg for introspection.
func NewKeySpaceHandle(name string, reg *Registry) *KeySpaceHandle {
	return &KeySpaceHandle{Name: name, Reg: reg, Metadata: reg.cfg.Metadata}
}

// Tables lists the physical table names observed live in this keyspace.
func (k *KeySpaceHandle) Tables(ctx context.Context) ([]string, error) {
	schema, err := k.Metadata.ObserveSchema(ctx, k.Name)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(schema.Tables))
	for name := range schema.Tables {
		names = append(names, name)
	}
	return names, nil
}

// Exists reports whether table is present in this keyspace, live.
func (k *KeySpaceHandle) Exists(ctx context.Context, table string) (bool, error) {
	schema, err := k.Metadata.ObserveSchema(ctx, k.Name)
	if err != nil {
		return false, err
	}
	_, ok := schema.Tables[table]
	return ok, nil
}

// DebugMode toggles full statement tracing for every Op run through Reg,
// generalizing the teacher's KeySpace.DebugMode stdout-print into the
// structured Logger/Tracing path (spec.md §9 design note on logging). The
// single batch statement that RunAtomically sends does not carry the flag.
func (k *KeySpaceHandle) DebugMode(on bool) {
	k.Reg.SetFullTrace(on)
}
