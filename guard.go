//go:build !profileoff

package profilez

import (
	"runtime"
	"time"
)

const instrumentationEnabled = true

// Guard times one execution of a marked block. Release it with End on every
// exit path of the block, typically via defer so early returns and panics
// release it too. End must be called exactly once per Guard; a second call is
// detected as an unbalanced span and recovered (see callStack.popTo).
//
// Guards are values and never allocate on creation.
type Guard struct {
	thread *Thread
	start  time.Time
	name   string
}

// Begin marks entry into a block named name. It pushes the name onto the
// goroutine's call stack and snapshots the start time. Touches only
// goroutine-local state and never blocks.
func (t *Thread) Begin(name string) Guard {
	if t == nil || t.profiler == nil {
		return Guard{}
	}

	g := Guard{
		thread: t,
		start:  t.clock.Now(),
		name:   name,
	}
	t.stack.push(name)
	return g
}

// BeginHere marks entry into a block with a default name derived from the
// call site's source coordinates, e.g. "profilez.renderFrame:42". Names are
// memoized per call site, so the derivation cost is paid once.
func (t *Thread) BeginHere() Guard {
	if t == nil || t.profiler == nil {
		return Guard{}
	}

	pc, _, line, ok := runtime.Caller(1)
	if !ok {
		return t.Begin("unknown")
	}
	return t.Begin(t.profiler.siteName(pc, line))
}

// End releases the guard: it pops the block off the call stack, computes the
// elapsed duration, and appends one CompletedSpan to the goroutine's queue.
// Never blocks and never fails; stack mismatches are recovered in place and
// recorded as anomalies.
func (g Guard) End() {
	t := g.thread
	if t == nil {
		return
	}

	elapsed := t.clock.Since(g.start)

	path, clean := t.stack.popTo(g.name)
	if !clean {
		t.profiler.noteUnbalanced(t, g.name)
	}

	t.queue.append(CompletedSpan{
		Name:     g.name,
		ThreadID: t.id,
		Start:    g.start,
		Duration: elapsed,
		CallPath: path,
	})
}
