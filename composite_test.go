package riftcql

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport double: every ExecuteAsync call
// records the CQL it was given and replies with a canned row, tracking the
// peak number of calls in flight concurrently so Group's wave barrier can be
// asserted on directly.
type fakeTransport struct {
	mu        sync.Mutex
	executed  []string
	inFlight  int32
	peak      int32
	failCQL   string
	failAfter int
}

func (f *fakeTransport) ExecuteAsync(ctx context.Context, stmt *PhysicalStatement) (<-chan TransportResult, error) {
	ch := make(chan TransportResult, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if cur <= p || atomic.CompareAndSwapInt32(&f.peak, p, cur) {
			break
		}
	}
	f.mu.Lock()
	f.executed = append(f.executed, stmt.CQL)
	f.mu.Unlock()
	go func() {
		defer atomic.AddInt32(&f.inFlight, -1)
		if f.failCQL != "" && stmt.CQL == f.failCQL {
			ch <- TransportResult{Err: NewError(KindQueryExecution, "", "forced failure", nil)}
			close(ch)
			return
		}
		ch <- TransportResult{ResultSet: RawResultSet{
			Rows:         []map[string]interface{}{{"cql": stmt.CQL}},
			FullyFetched: true,
		}}
		close(ch)
	}()
	return ch, nil
}

func (f *fakeTransport) ClusterMetadata(ctx context.Context) (ClusterMetadata, error) {
	return ClusterMetadata{Nodes: 1}, nil
}

func (f *fakeTransport) Configuration() TransportConfiguration { return TransportConfiguration{} }

func leafCQL(cql string, idempotent bool) *Node {
	return Leaf(&PhysicalStatement{CQL: cql, Idempotent: idempotent})
}

func TestSequenceExecutesInOrder(t *testing.T) {
	tr := &fakeTransport{}
	n := Sequence(leafCQL("A", true), leafCQL("B", true), leafCQL("C", true))
	rs, err := n.Execute(context.Background(), tr, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, tr.executed)
	assert.False(t, rs.IsExhausted())
}

func TestGroupCapsConcurrencyAtParallelFactor(t *testing.T) {
	tr := &fakeTransport{}
	children := make([]*Node, 0, 6)
	for i := 0; i < 6; i++ {
		children = append(children, leafCQL("L", true))
	}
	n := Group(2, children...)
	_, err := n.Execute(context.Background(), tr, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, int(tr.peak), 2)
	assert.Len(t, tr.executed, 6)
}

func TestGroupTreatsSequenceChildAsBarrier(t *testing.T) {
	tr := &fakeTransport{}
	barrier := Sequence(leafCQL("S1", true), leafCQL("S2", true))
	n := Group(4, leafCQL("A", true), leafCQL("B", true), barrier, leafCQL("C", true))
	waves := n.buildWaves()
	require.Len(t, waves, 3)
	assert.Len(t, waves[0], 2) // A, B
	assert.Same(t, barrier, waves[1][0])
	assert.Len(t, waves[2], 1) // C

	_, err := n.Execute(context.Background(), tr, nil)
	require.NoError(t, err)
	require.Len(t, tr.executed, 5)
	assert.ElementsMatch(t, []string{"A", "B"}, tr.executed[:2]) // same wave: no order between A and B
	assert.Equal(t, []string{"S1", "S2", "C"}, tr.executed[2:])
}

func TestGroupAbandonsRemainingWavesOnFirstFailure(t *testing.T) {
	tr := &fakeTransport{failCQL: "bad"}
	barrier := Sequence(leafCQL("bad", true))
	n := Group(4, leafCQL("A", true), barrier, leafCQL("never", true))
	_, err := n.Execute(context.Background(), tr, nil)
	require.Error(t, err)
	assert.NotContains(t, tr.executed, "never")
}

func TestBatchLoggedCollapsesToOneRoundTrip(t *testing.T) {
	tr := &fakeTransport{}
	n, err := BatchLogged(leafCQL("INSERT A", true), leafCQL("INSERT B", true))
	require.NoError(t, err)
	_, err = n.Execute(context.Background(), tr, nil)
	require.NoError(t, err)
	require.Len(t, tr.executed, 1)
	assert.Contains(t, tr.executed[0], "BEGIN BATCH")
	assert.Contains(t, tr.executed[0], "INSERT A")
	assert.Contains(t, tr.executed[0], "INSERT B")
	assert.Contains(t, tr.executed[0], "APPLY BATCH")
}

func TestBatchRejectsMixedCounterAndNonCounter(t *testing.T) {
	counter := &PhysicalStatement{CQL: "UPDATE counters SET c = c + 1", counterStatement: true}
	_, err := BatchLogged(Leaf(counter), leafCQL("INSERT A", true))
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeCounterOpOnNonCounter, e.Code)
}

func TestBatchCounterRejectsNonCounterLeaf(t *testing.T) {
	_, err := BatchCounter(leafCQL("INSERT A", true))
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeCounterOpOnNonCounter, e.Code)
}

func TestDisabledNodeIsNoOp(t *testing.T) {
	tr := &fakeTransport{}
	n := Sequence(leafCQL("A", true)).Disable()
	rs, err := n.Execute(context.Background(), tr, nil)
	require.NoError(t, err)
	assert.True(t, rs.IsExhausted())
	assert.Empty(t, tr.executed)
}

func TestOnErrorInvokedOnce(t *testing.T) {
	tr := &fakeTransport{failCQL: "bad"}
	var calls int
	n := Sequence(leafCQL("bad", true)).OnError(func(error) { calls++ })
	_, err := n.Execute(context.Background(), tr, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAddTurnsLeafIntoSequence(t *testing.T) {
	n := leafCQL("A", true)
	n.Add(leafCQL("B", true))
	assert.Equal(t, NodeSequence, n.Kind)
	assert.Len(t, n.Children, 2)
}

func TestIsIdempotentRequiresEveryLeaf(t *testing.T) {
	allIdempotent := Sequence(leafCQL("A", true), leafCQL("B", true))
	assert.True(t, allIdempotent.IsIdempotent())

	mixed := Sequence(leafCQL("A", true), leafCQL("B", false))
	assert.False(t, mixed.IsIdempotent())
}

func TestRecordWalksEveryLeaf(t *testing.T) {
	n := Group(4, leafCQL("A", true), Sequence(leafCQL("B", true), leafCQL("C", true)))
	var seen []string
	err := n.Record(func(leaf *PhysicalStatement) error {
		seen = append(seen, leaf.CQL)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, seen)
}

func TestRecordRejectionAbortsConstruction(t *testing.T) {
	n := Sequence(leafCQL("A", true))
	err := n.Record(func(leaf *PhysicalStatement) error {
		return assert.AnError
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindObjectValidation))
}
