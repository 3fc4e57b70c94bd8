package riftcql

import (
	"context"
	"fmt"
)

// CompositeKind identifies the shape of a composite-statement tree node
// (spec.md §3 "Composite Statement" / §4.3).
type CompositeKind int

const (
	NodeLeaf CompositeKind = iota
	NodeBatchLogged
	NodeBatchUnlogged
	NodeBatchCounter
	NodeSequence
	NodeGroup
)

// Recorder is invoked by Node.Record on every leaf of a tree (recursively);
// a rejection surfaces as a KindObjectValidation error. Adding a leaf with
// Node.Add or a composite constructor does not invoke a Recorder.
type Recorder func(leaf *PhysicalStatement) error

// Node is a composite-statement tree: leaves are physical CQL statements,
// interior nodes are Batch (logged/unlogged/counter), Sequence, or Group
// (spec.md §3/§4.3). It implements the "Op" surface: composability via
// Add, an enable flag, error handlers, and cached idempotence.
type Node struct {
	Kind     CompositeKind
	Leaf     *PhysicalStatement
	Children []*Node

	enabled       bool
	errorHandlers []func(error)
	parallelFactor int // Group only

	idempotentCache *bool
}

// Leaf wraps a single physical statement as a composite leaf.
func Leaf(stmt *PhysicalStatement) *Node {
	return &Node{Kind: NodeLeaf, Leaf: stmt, enabled: true}
}

func newInterior(kind CompositeKind, children []*Node) *Node {
	return &Node{Kind: kind, Children: children, enabled: true}
}

// BatchLogged composes children into an atomic logged batch. All leaves
// applied or none.
func BatchLogged(children ...*Node) (*Node, error) {
	if err := validateCounterMix(children, false); err != nil {
		return nil, err
	}
	return newInterior(NodeBatchLogged, children), nil
}

// BatchUnlogged composes children into a best-effort unlogged batch.
func BatchUnlogged(children ...*Node) (*Node, error) {
	if err := validateCounterMix(children, false); err != nil {
		return nil, err
	}
	return newInterior(NodeBatchUnlogged, children), nil
}

// BatchCounter composes children into a counter batch; every leaf must be a
// counter statement.
func BatchCounter(children ...*Node) (*Node, error) {
	if err := validateCounterMix(children, true); err != nil {
		return nil, err
	}
	return newInterior(NodeBatchCounter, children), nil
}

// Sequence composes children so that leaf N+1 starts only after leaf N
// reports success; parallelism 1, no atomicity (spec.md §4.3 table).
func Sequence(children ...*Node) *Node { return newInterior(NodeSequence, children) }

// Group composes children into waves bounded by parallelFactor, where a
// Sequence child acts as a barrier (spec.md §4.3 "Group execution"). A
// parallelFactor <= 0 defaults to 32 per SPEC_FULL.md's documented floor.
func Group(parallelFactor int, children ...*Node) *Node {
	if parallelFactor <= 0 {
		parallelFactor = 32
	}
	n := newInterior(NodeGroup, children)
	n.parallelFactor = parallelFactor
	return n
}

func validateCounterMix(children []*Node, requireAllCounter bool) error {
	sawCounter, sawNonCounter := false, false
	var walk func(*Node)
	walk = func(n *Node) {
		if n.Kind == NodeLeaf {
			if n.Leaf.counterStatement {
				sawCounter = true
			} else {
				sawNonCounter = true
			}
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range children {
		walk(c)
	}
	if requireAllCounter && sawNonCounter {
		return LowerError(CodeCounterOpOnNonCounter, "counter batch contains a non-counter leaf")
	}
	if !requireAllCounter && sawCounter && sawNonCounter {
		return LowerError(CodeCounterOpOnNonCounter, "batch mixes counter and non-counter statements")
	}
	return nil
}

// Disable marks the node (and its execution) a no-op; Enable reverses it.
// A disabled leaf yields an empty result when executed; a disabled
// composite yields an empty result without walking its children.
func (n *Node) Disable() *Node { n.enabled = false; return n }
func (n *Node) Enable() *Node  { n.enabled = true; return n }
func (n *Node) IsEnabled() bool { return n.enabled }

// OnError registers an error handler, invoked exactly once per composite
// execution, in registration order, on the first failure.
func (n *Node) OnError(fn func(error)) *Node {
	n.errorHandlers = append(n.errorHandlers, fn)
	return n
}

// Record walks the tree (recursively) invoking r on every leaf, rejecting
// construction if r returns an error (spec.md §4.3 Recorder hook).
func (n *Node) Record(r Recorder) error {
	if n.Kind == NodeLeaf {
		if err := r(n.Leaf); err != nil {
			return NewError(KindObjectValidation, "", "recorder rejected leaf", err)
		}
		return nil
	}
	for _, c := range n.Children {
		if err := c.Record(r); err != nil {
			return err
		}
	}
	return nil
}

// Add appends more children to an interior node, or turns a leaf into a
// Sequence of itself followed by children (matching the teacher's Op.Add
// semantics: "Add another Op to this one").
func (n *Node) Add(children ...*Node) *Node {
	if n.Kind == NodeLeaf {
		self := &Node{Kind: NodeLeaf, Leaf: n.Leaf, enabled: n.enabled}
		combined := append([]*Node{self}, children...)
		*n = *newInterior(NodeSequence, combined)
		return n
	}
	n.Children = append(n.Children, children...)
	n.idempotentCache = nil
	return n
}

// IsIdempotent reports whether every leaf beneath n, enabled or not, is
// idempotent (spec.md §4.3 "Idempotence inference"); the result is cached.
func (n *Node) IsIdempotent() bool {
	if n.idempotentCache != nil {
		return *n.idempotentCache
	}
	result := n.computeIdempotent()
	n.idempotentCache = &result
	return result
}

func (n *Node) computeIdempotent() bool {
	if n.Kind == NodeLeaf {
		return n.Leaf.Idempotent
	}
	for _, c := range n.Children {
		if !c.IsIdempotent() {
			return false
		}
	}
	return true
}

// Execute runs the composite tree against transport, honoring each
// operator's atomicity/order/parallelism contract (spec.md §4.3, §5). It
// returns a CompositeResultSet in tree order (left to right, depth first):
// one result set per executed leaf, except that a batch contributes one set
// for the whole batch and each direct child of a Group contributes only the
// last set it produced. A disabled subtree contributes no set, except a
// disabled leaf directly under a Group, which contributes an empty set.
func (n *Node) Execute(ctx context.Context, tr Transport, logger Logger) (*CompositeResultSet, error) {
	if logger == nil {
		logger = NoopLogger
	}
	if !n.enabled {
		return &CompositeResultSet{}, nil
	}

	var sets []RawResultSet
	err := n.execute(ctx, tr, logger, &sets)
	if err != nil {
		for _, h := range n.errorHandlers {
			h(err)
		}
		return nil, err
	}
	return &CompositeResultSet{backing: sets}, nil
}

func (n *Node) execute(ctx context.Context, tr Transport, logger Logger, out *[]RawResultSet) error {
	if !n.enabled {
		return nil
	}
	switch n.Kind {
	case NodeLeaf:
		rs, err := executeLeaf(ctx, tr, logger, n.Leaf)
		if err != nil {
			return err
		}
		*out = append(*out, rs)
		return nil
	case NodeBatchLogged, NodeBatchUnlogged, NodeBatchCounter:
		return n.executeBatch(ctx, tr, logger, out)
	case NodeSequence:
		for _, c := range n.Children {
			if err := c.execute(ctx, tr, logger, out); err != nil {
				return err
			}
		}
		return nil
	case NodeGroup:
		return n.executeGroup(ctx, tr, logger, out)
	default:
		return fmt.Errorf("composite: unknown node kind %v", n.Kind)
	}
}

func executeLeaf(ctx context.Context, tr Transport, logger Logger, stmt *PhysicalStatement) (RawResultSet, error) {
	logger.Printf("riftcql: executing %s against keyspace %s", stmt.CQL, stmt.Keyspace)
	ch, err := tr.ExecuteAsync(ctx, stmt)
	if err != nil {
		return RawResultSet{}, err
	}
	select {
	case res := <-ch:
		if res.Err != nil {
			return RawResultSet{}, res.Err
		}
		return res.ResultSet, nil
	case <-ctx.Done():
		return RawResultSet{}, ctx.Err()
	}
}

// executeBatch collapses every leaf beneath n into one physical batch
// round-trip. A logged batch is atomic, an unlogged batch is best-effort,
// and a counter batch is the counter-safe variant; all three submit in a
// single round trip per spec.md §4.3's table.
func (n *Node) executeBatch(ctx context.Context, tr Transport, logger Logger, out *[]RawResultSet) error {
	var leaves []*PhysicalStatement
	var collect func(*Node)
	collect = func(c *Node) {
		if !c.enabled {
			return
		}
		if c.Kind == NodeLeaf {
			leaves = append(leaves, c.Leaf)
			return
		}
		for _, gc := range c.Children {
			collect(gc)
		}
	}
	for _, c := range n.Children {
		collect(c)
	}
	if len(leaves) == 0 {
		return nil
	}
	batchStmt := &PhysicalStatement{
		Keyspace: leaves[0].Keyspace,
		CQL:      batchCQL(n.Kind, leaves),
		Params:   flattenParams(leaves),
	}
	rs, err := executeLeaf(ctx, tr, logger, batchStmt)
	if err != nil {
		return err
	}
	*out = append(*out, rs)
	return nil
}

func batchCQL(kind CompositeKind, leaves []*PhysicalStatement) string {
	prefix := "BEGIN BATCH"
	switch kind {
	case NodeBatchUnlogged:
		prefix = "BEGIN UNLOGGED BATCH"
	case NodeBatchCounter:
		prefix = "BEGIN COUNTER BATCH"
	}
	cql := prefix + "\n"
	for _, l := range leaves {
		cql += l.CQL + ";\n"
	}
	return cql + "APPLY BATCH"
}

func flattenParams(leaves []*PhysicalStatement) []interface{} {
	var params []interface{}
	for _, l := range leaves {
		params = append(params, l.Params...)
	}
	return params
}

// executeGroup implements the wave-walk algorithm verbatim from spec.md
// §4.3 "Group execution": accumulate leaves into a wave until the wave is
// full or the next child is a Sequence, which becomes its own singleton
// wave (a barrier). Waves execute one at a time; a wave's leaves submit
// concurrently and the group waits for all of them before starting the
// next wave. The first failure abandons remaining waves.
func (n *Node) executeGroup(ctx context.Context, tr Transport, logger Logger, out *[]RawResultSet) error {
	waves := n.buildWaves()
	for _, wave := range waves {
		results := make([]RawResultSet, len(wave))
		errs := make([]error, len(wave))
		done := make(chan int, len(wave))
		for i, node := range wave {
			i, node := i, node
			go func() {
				var localOut []RawResultSet
				err := node.execute(ctx, tr, logger, &localOut)
				errs[i] = err
				if len(localOut) > 0 {
					results[i] = localOut[len(localOut)-1]
				}
				done <- i
			}()
		}
		for range wave {
			<-done
		}
		for i := range wave {
			if errs[i] != nil {
				return errs[i]
			}
			if wave[i].Kind == NodeLeaf || wave[i].enabled {
				*out = append(*out, results[i])
			}
		}
	}
	return nil
}

// buildWaves walks n.Children in order, closing the current wave when it
// reaches parallelFactor leaves or when the next child is itself a
// Sequence (spec.md §4.3).
func (n *Node) buildWaves() [][]*Node {
	var waves [][]*Node
	var current []*Node
	flushCurrent := func() {
		if len(current) > 0 {
			waves = append(waves, current)
			current = nil
		}
	}
	for _, c := range n.Children {
		if c.Kind == NodeSequence {
			flushCurrent()
			waves = append(waves, []*Node{c})
			continue
		}
		current = append(current, c)
		if len(current) >= n.parallelFactor {
			flushCurrent()
		}
	}
	flushCurrent()
	return waves
}
