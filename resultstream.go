package riftcql

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"
)

// CompositeResultSet is a single logical ordered view over multiple
// physical result sets (spec.md §4.4). one()/One() drains the current
// backing set; when exhausted it advances to the next.
type CompositeResultSet struct {
	backing []RawResultSet
	set     int
	row     int
}

// One returns the next row across all backing sets, in input order, or
// (nil, false) once every backing set is exhausted.
func (c *CompositeResultSet) One() (map[string]interface{}, bool) {
	for c.set < len(c.backing) {
		rows := c.backing[c.set].Rows
		if c.row < len(rows) {
			row := rows[c.row]
			c.row++
			return row, true
		}
		c.set++
		c.row = 0
	}
	return nil, false
}

// IsExhausted returns true only when every backing set is exhausted
// (spec.md §3 "Result Row / Object Set").
func (c *CompositeResultSet) IsExhausted() bool {
	if c.set < len(c.backing) && c.row < len(c.backing[c.set].Rows) {
		return false
	}
	for i := c.set + 1; i < len(c.backing); i++ {
		if len(c.backing[i].Rows) > 0 {
			return false
		}
	}
	return true
}

// AvailableWithoutFetching sums rows across the current-and-onward prefix
// of backing sets that are fully fetched (spec.md §3 ResultCursor contract).
func (c *CompositeResultSet) AvailableWithoutFetching() int {
	total := 0
	for i := c.set; i < len(c.backing); i++ {
		rs := c.backing[i]
		if !rs.FullyFetched {
			break
		}
		if i == c.set {
			total += len(rs.Rows) - c.row
		} else {
			total += len(rs.Rows)
		}
	}
	return total
}

// IsFullyFetched reports whether every backing set has been fully fetched
// from the transport (no more pages pending).
func (c *CompositeResultSet) IsFullyFetched() bool {
	for _, rs := range c.backing {
		if !rs.FullyFetched {
			return false
		}
	}
	return true
}

// WasApplied is the AND over every backing set's conditional-apply flag
// (spec.md §4.4); sets that carried no IF condition are vacuously true.
func (c *CompositeResultSet) WasApplied() bool {
	for _, rs := range c.backing {
		if rs.HasApplied && !rs.Applied {
			return false
		}
	}
	return true
}

// DecodeAll decodes every remaining row into sliceHolder (a pointer to a
// slice of structs), using mapstructure the way the teacher's MapTable.List
// decodes rows into caller structs.
func (c *CompositeResultSet) DecodeAll(sliceHolder interface{}) error {
	var rows []map[string]interface{}
	for {
		row, ok := c.One()
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           sliceHolder,
		WeaklyTypedInput: true,
		TagName:          "cql",
	})
	if err != nil {
		return err
	}
	return dec.Decode(rows)
}

// DecodeOne decodes exactly one row into pointer, returning
// KindTooManyMatches if more than one row is available (spec.md §7
// TooManyMatchesFound) and KindObjectMissing if none is.
func (c *CompositeResultSet) DecodeOne(pointer interface{}) error {
	row, ok := c.One()
	if !ok {
		return NewError(KindObjectMissing, "", "no matching row", nil)
	}
	if _, ok := c.One(); ok {
		return NewError(KindTooManyMatches, "", "more than one row matched", nil)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           pointer,
		WeaklyTypedInput: true,
		TagName:          "cql",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(row); err != nil {
		return NewError(KindObjectConversion, "", "failed to decode row", err)
	}
	return nil
}

// CompositeResultSetFuture wraps a list of per-statement futures dispatched
// to the transport; Get blocks until every one completes, then returns a
// CompositeResultSet built in the input order (spec.md §4.4).
type CompositeResultSetFuture struct {
	mu        sync.Mutex
	cancelled bool
	cancels   []context.CancelFunc
	channels  []<-chan TransportResult
	doneCount int32
}

// NewCompositeResultSetFuture dispatches every statement to tr and returns
// a future over all of them.
func NewCompositeResultSetFuture(ctx context.Context, tr Transport, stmts []*PhysicalStatement) (*CompositeResultSetFuture, error) {
	f := &CompositeResultSetFuture{}
	for _, s := range stmts {
		cctx, cancel := context.WithCancel(ctx)
		ch, err := tr.ExecuteAsync(cctx, s)
		if err != nil {
			cancel()
			f.Cancel()
			return nil, err
		}
		f.cancels = append(f.cancels, cancel)
		f.channels = append(f.channels, ch)
	}
	return f, nil
}

// Get blocks until every child future completes, returning their results
// (in input order) as one CompositeResultSet, or the first error observed.
func (f *CompositeResultSetFuture) Get(ctx context.Context) (*CompositeResultSet, error) {
	sets := make([]RawResultSet, len(f.channels))
	for i, ch := range f.channels {
		select {
		case res := <-ch:
			atomic.AddInt32(&f.doneCount, 1)
			if res.Err != nil {
				f.Cancel()
				return nil, res.Err
			}
			sets[i] = res.ResultSet
		case <-ctx.Done():
			f.Cancel()
			return nil, ctx.Err()
		}
	}
	return &CompositeResultSet{backing: sets}, nil
}

// Cancel propagates cancellation to every child future; the cancelled
// state is sticky (spec.md §5 Cancellation).
func (f *CompositeResultSetFuture) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	for _, c := range f.cancels {
		c()
	}
}

// IsCancelled reports the sticky cancelled state.
func (f *CompositeResultSetFuture) IsCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// IsDone reports whether every child future has completed.
func (f *CompositeResultSetFuture) IsDone() bool {
	return int(atomic.LoadInt32(&f.doneCount)) == len(f.channels)
}

// LastResultParallelSetFuture splits stmts into waves of size parallelFactor
// (the same wave-building rule Group uses) and exposes a future that
// completes with the last successfully completed statement's result, or the
// first error (spec.md §4.4).
type LastResultParallelSetFuture struct {
	waves          [][]*PhysicalStatement
	listeners      []func(RawResultSet, error)
	listenersMu    sync.Mutex
	completedOnce  sync.Once
}

// NewLastResultParallelSetFuture groups stmts into waves of parallelFactor.
func NewLastResultParallelSetFuture(stmts []*PhysicalStatement, parallelFactor int) *LastResultParallelSetFuture {
	if parallelFactor <= 0 {
		parallelFactor = 32
	}
	var waves [][]*PhysicalStatement
	for i := 0; i < len(stmts); i += parallelFactor {
		end := i + parallelFactor
		if end > len(stmts) {
			end = len(stmts)
		}
		waves = append(waves, stmts[i:end])
	}
	return &LastResultParallelSetFuture{waves: waves}
}

// OnComplete registers a listener invoked exactly once, at final completion.
func (f *LastResultParallelSetFuture) OnComplete(fn func(RawResultSet, error)) {
	f.listenersMu.Lock()
	defer f.listenersMu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *LastResultParallelSetFuture) notify(rs RawResultSet, err error) {
	f.completedOnce.Do(func() {
		f.listenersMu.Lock()
		listeners := append([]func(RawResultSet, error){}, f.listeners...)
		f.listenersMu.Unlock()
		for _, l := range listeners {
			l(rs, err)
		}
	})
}

// Run executes every wave in order, waiting for each wave to finish before
// starting the next, and returns the last successfully completed
// statement's result, or the first error encountered.
func (f *LastResultParallelSetFuture) Run(ctx context.Context, tr Transport) (RawResultSet, error) {
	var last RawResultSet
	for _, wave := range f.waves {
		results := make([]RawResultSet, len(wave))
		errs := make([]error, len(wave))
		var wg sync.WaitGroup
		for i, s := range wave {
			i, s := i, s
			wg.Add(1)
			go func() {
				defer wg.Done()
				ch, err := tr.ExecuteAsync(ctx, s)
				if err != nil {
					errs[i] = err
					return
				}
				select {
				case res := <-ch:
					if res.Err != nil {
						errs[i] = res.Err
						return
					}
					results[i] = res.ResultSet
				case <-ctx.Done():
					errs[i] = ctx.Err()
				}
			}()
		}
		wg.Wait()
		for i := range wave {
			if errs[i] != nil {
				f.notify(RawResultSet{}, errs[i])
				return RawResultSet{}, errs[i]
			}
			last = results[i]
		}
	}
	f.notify(last, nil)
	return last, nil
}
