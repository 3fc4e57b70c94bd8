package riftcql

import (
	"context"
	"sync"

	"github.com/riftcql/riftcql/codec"
)

// Config seeds the process-wide Registry at Init time (spec.md §4.5
// "Registry & Lifecycle"): the session/cluster handle, default replication
// factor and data centers, and the full-trace flag.
type Config struct {
	Transport             Transport
	Metadata              MetadataService
	Logger                Logger
	DefaultReplication     ReplicationSpec
	DefaultDataCenters     []string
	FullTrace              bool
	DefaultParallelFactor  int
}

// Registry is the process-wide statement manager: single-init discipline,
// ownership of the session/cluster handle, the codec registry, and the
// ClassInfo compiler cache (spec.md §4.5). Exactly one Registry is expected
// per process; Init rejects a second call the way the teacher's connection
// pool rejects a second Dial.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	compiler *Compiler
	lowerer  *Lowerer
	initDone bool
	closed   bool
}

var (
	globalMu       sync.Mutex
	globalRegistry *Registry
)

// Init initializes the process-wide Registry exactly once; a second call
// rejects with KindCompile/"AlreadyInitialized" and returns the existing
// registry, matching the teacher's connection-pool "already dialed"
// discipline (spec.md §4.5 "rejecting a second init").
func Init(cfg Config) (*Registry, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRegistry != nil {
		return globalRegistry, NewError(KindCompile, "AlreadyInitialized", "riftcql.Init called more than once", nil)
	}

	r := &Registry{cfg: cfg}
	if r.cfg.Logger == nil {
		r.cfg.Logger = NoopLogger
	}
	if r.cfg.DefaultParallelFactor <= 0 {
		r.cfg.DefaultParallelFactor = defaultParallelFactor(cfg.Transport)
	}
	r.compiler = NewCompiler(codec.NewRegistry())
	r.lowerer = &Lowerer{
		Logger:                r.cfg.Logger,
		DefaultParallelFactor: r.cfg.DefaultParallelFactor,
		Metadata:              r.cfg.Metadata,
	}
	r.initDone = true
	globalRegistry = r
	return r, nil
}

// resetForTest clears the global singleton; only the test suite calls this.
func resetForTest() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = nil
}

// defaultParallelFactor derives Group's default from cluster_metadata()
// (spec.md §4.3 design note), falling back to the documented floor of 32
// when the transport reports zero nodes (typical of a test double that
// never implements ClusterMetadata meaningfully).
func defaultParallelFactor(tr Transport) int {
	if tr == nil {
		return 32
	}
	meta, err := tr.ClusterMetadata(context.Background())
	if err != nil || meta.Nodes <= 0 {
		return 32
	}
	return meta.Nodes * 32
}

// Compiler exposes the registry's ClassInfo compiler (C3).
func (r *Registry) Compiler() *Compiler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.compiler
}

// Lowerer exposes the registry's statement lowering engine (C5).
func (r *Registry) Lowerer() *Lowerer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lowerer
}

// Transport exposes the configured transport (C6/C7 execution).
func (r *Registry) Transport() Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Transport
}

// SetFullTrace toggles tracing for every statement executed after this
// call; it takes the registry's write lock, so it is safe to flip
// concurrently with reads.
func (r *Registry) SetFullTrace(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.FullTrace = on
}

// FullTrace reports the current full-trace flag.
func (r *Registry) FullTrace() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.FullTrace
}

// Compile compiles d against this registry's cache (delegates to Compiler).
func (r *Registry) Compile(d Descriptor) (*ClassInfo, error) {
	return r.Compiler().Compile(d)
}

// Execute lowers stmt and runs the resulting composite tree against the
// registry's transport, returning any non-fatal lowering warnings alongside
// the result set.
func (r *Registry) Execute(ctx context.Context, stmt *Statement) (*CompositeResultSet, []*Error, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, nil, NewError(KindQueryExecution, "RegistryClosed", "registry has been shut down", nil)
	}

	node, warnings, err := r.Lowerer().Lower(ctx, stmt)
	if err != nil {
		return nil, warnings, err
	}
	if r.FullTrace() {
		tagTracing(node)
	}
	rs, err := node.Execute(ctx, r.Transport(), r.cfg.Logger)
	return rs, warnings, err
}

func tagTracing(n *Node) {
	if n == nil {
		return
	}
	if n.Kind == NodeLeaf && n.Leaf != nil {
		n.Leaf.Tracing = true
		return
	}
	for _, c := range n.Children {
		tagTracing(c)
	}
}

// Shutdown marks the registry closed; subsequent Execute calls fail fast
// rather than racing in-flight statements against a torn-down transport.
// It does not reset the global singleton, matching the teacher's
// connection-pool Close semantics (a closed pool stays closed).
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// IsShutdown reports whether Shutdown has been called.
func (r *Registry) IsShutdown() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
