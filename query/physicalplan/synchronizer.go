package physicalplan

import (
	"context"
	"sync"
)

// PhysicalPlan is the minimal consumer interface a pipeline stage exposes
// to whatever feeds it batches: a per-batch Callback and a terminal
// Finish. A stage that mutates its own state on every Callback is not safe
// for concurrent Callback calls, so a concurrent producer — several
// goroutines each scanning a disjoint block range — must funnel through a
// Synchronizer first.
type PhysicalPlan interface {
	Callback(ctx context.Context, b Batch) error
	Finish(ctx context.Context) error
}

// Synchronizer serializes Callback calls from any number of concurrent
// producers into a single downstream PhysicalPlan, and ensures Finish is
// forwarded exactly once — after every producer has reported its own
// completion. Each producer must call wg.Add(1) before it starts and
// Finish exactly once when it is done; the N-th Finish call is what
// actually unblocks and invokes the wrapped stage's Finish.
type Synchronizer struct {
	mtx  sync.Mutex
	wg   sync.WaitGroup
	next PhysicalPlan

	finishOnce sync.Once
	finishErr  error
}

// Synchronize returns a new, empty Synchronizer. Call SetNext before use.
func Synchronize() *Synchronizer {
	return &Synchronizer{}
}

// SetNext wires the downstream stage that receives serialized callbacks.
func (s *Synchronizer) SetNext(next PhysicalPlan) {
	s.next = next
}

// Callback forwards b to the wrapped stage, holding a mutex so concurrent
// producers never call it at the same time.
func (s *Synchronizer) Callback(ctx context.Context, b Batch) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.next.Callback(ctx, b)
}

// Finish must be called once per producer that previously called
// wg.Add(1). It blocks until every producer has called Finish, then
// forwards to the wrapped stage's Finish exactly once.
func (s *Synchronizer) Finish(ctx context.Context) error {
	s.wg.Done()
	s.wg.Wait()
	s.finishOnce.Do(func() {
		s.finishErr = s.next.Finish(ctx)
	})
	return s.finishErr
}
