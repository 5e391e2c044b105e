// Package profilez provides a minimal, primitive in-process instrumentation profiler.
//
// profilez focuses on explicit block timing and hierarchical aggregation without
// the complexity of sampling profilers or distributed tracing. It's designed for
// systems that need per-block call-cost breakdowns with predictable hot-path
// overhead.
//
// Core Components:.
//   - Profiler: Owns the lifecycle and the registry of capture handles.
//   - Thread: Per-goroutine capture handle holding the span queue and call stack.
//   - Guard: Scoped timer for one marked block, released on every exit path.
//   - ProfilerData: Aggregated call trees, owned by the coordinator.
//
// Basic Usage:.
//
//	p := profilez.New()
//	data, err := p.Initialize()
//	if err != nil {
//		return err
//	}
//
//	// Each worker goroutine registers its own handle once.
//	th := p.Thread("render")
//
//	// Mark a block; End fires on every exit path.
//	g := th.Begin("draw-frame")
//	defer g.End()
//
//	// Coordinator drains periodically (e.g. once per frame).
//	p.ProcessEvents(data)
//
//	// Final drain plus HTML report.
//	p.Shutdown("profile.html", data)
//
// Thread Safety:.
//
// Profiler is safe for concurrent use by multiple goroutines. A Thread and the
// Guards it produces must only be used from the goroutine that registered it.
// ProfilerData is owned by the coordinator and must not be shared while a
// ProcessEvents or Shutdown call is in flight.
//
// Build-Time Disabling:.
//
// Building with the "profileoff" tag replaces Guard creation and release with
// empty implementations so instrumented code compiles to no observable work and
// retains no state.
package profilez

import "errors"

// Lifecycle misuse is reported with sentinel errors so callers can detect
// programming-order mistakes with errors.Is.
var (
	// ErrAlreadyInitialized is returned by Initialize when the profiler is
	// already active.
	ErrAlreadyInitialized = errors.New("profilez: already initialized")

	// ErrNotInitialized is returned by ProcessEvents and Shutdown before
	// Initialize has been called.
	ErrNotInitialized = errors.New("profilez: not initialized")

	// ErrShutDown is returned by lifecycle calls after Shutdown. The profiler
	// is terminal and never reused.
	ErrShutDown = errors.New("profilez: shut down")
)

// Lifecycle stages. Transitions only move forward.
const (
	stageUninitialized int32 = iota
	stageActive
	stageShutDown
)
