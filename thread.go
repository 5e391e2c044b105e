package profilez

import (
	"sync"

	"github.com/zoobzio/clockz"
)

// Thread is a per-goroutine capture handle. It owns the goroutine's span queue
// and call stack, so Guard creation and release never contend with other
// goroutines. Obtain one with Profiler.Thread, once per worker goroutine.
//
// A Thread must only be used from the goroutine it was registered for. The
// only cross-goroutine access is the drain swap performed by ProcessEvents.
type Thread struct {
	profiler *Profiler
	clock    clockz.Clock
	label    string
	id       uint64
	stack    callStack
	queue    captureQueue
}

// Label returns the label the handle was registered with.
func (t *Thread) Label() string { return t.label }

// ID returns the registry-assigned thread identifier.
func (t *Thread) ID() uint64 { return t.id }

// callStack tracks the names of in-flight blocks on one goroutine.
// LIFO ordering is guaranteed by Guard's scoped-release semantics; pop
// mismatches are recovered heuristically (see popTo).
//
// Only the owning goroutine touches the stack, so no locking is needed.
type callStack struct {
	names []string
}

func (s *callStack) push(name string) {
	s.names = append(s.names, name)
}

// popTo removes name from the stack and returns a copy of the entries below
// it, oldest first. That copy is the completed span's call path.
//
// clean is false when the stack was unbalanced: either entries above name had
// to be dropped (a guard leaked without release), or name was not on the stack
// at all (a guard released twice, or on the wrong goroutine). In the second
// case the stack is left untouched and the current contents are returned so
// the span still lands somewhere sensible in the tree.
func (s *callStack) popTo(name string) (path []string, clean bool) {
	for i := len(s.names) - 1; i >= 0; i-- {
		if s.names[i] != name {
			continue
		}
		clean = i == len(s.names)-1
		if i > 0 {
			path = append(path, s.names[:i]...)
		}
		s.names = s.names[:i]
		return path, clean
	}
	return append(path, s.names...), false
}

func (s *callStack) depth() int { return len(s.names) }

// captureQueue buffers completed spans between drains. Appends come from the
// owning goroutine; drains come from the coordinator. The mutex is held only
// for the slice append or the drain swap, never across timestamping or
// blocking work.
type captureQueue struct {
	mu    sync.Mutex
	spans []CompletedSpan
}

const queueSpareCapacity = 128

func (q *captureQueue) append(span CompletedSpan) {
	q.mu.Lock()
	q.spans = append(q.spans, span)
	q.mu.Unlock()
}

// drain swaps out all buffered spans and leaves an empty queue behind.
// Every appended span is observed by exactly one drain, in completion order.
func (q *captureQueue) drain() []CompletedSpan {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.spans) == 0 {
		return nil
	}

	out := q.spans

	// Replace rather than reslice so the drained spans are never shared
	// with later appends. Cap the spare buffer to avoid carrying a huge
	// allocation forward after a burst.
	spare := cap(out)
	if spare > 1024 {
		spare = 1024
	}
	if spare < queueSpareCapacity {
		spare = queueSpareCapacity
	}
	q.spans = make([]CompletedSpan, 0, spare)

	return out
}

func (q *captureQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.spans)
}
