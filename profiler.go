package profilez

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Profiler owns the instrumentation lifecycle and the registry that lets each
// worker goroutine obtain its capture handle. Aggregated results live in the
// ProfilerData returned by Initialize, which the coordinator threads through
// ProcessEvents and Shutdown explicitly; the Profiler itself holds no timing
// data.
//
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Profiler struct {
	clock        clockz.Clock
	logger       *zap.Logger
	threads      []*Thread
	registryMu   sync.Mutex
	siteCache    siteNameCache
	stage        atomic.Int32
	nextThreadID atomic.Uint64
	unbalanced   atomic.Uint64
}

// New creates a new profiler in the Uninitialized stage.
// Uses the real clock and a no-op logger for production behavior.
func New() *Profiler {
	return &Profiler{
		clock:  clockz.RealClock,
		logger: zap.NewNop(),
	}
}

// WithClock sets the clock used for all timestamps.
// Enables clock injection for deterministic testing.
// Must be called before Initialize.
func (p *Profiler) WithClock(clock clockz.Clock) *Profiler {
	p.clock = clock
	return p
}

// WithLogger sets the logger used for anomaly and lifecycle reporting.
// Must be called before Initialize.
func (p *Profiler) WithLogger(logger *zap.Logger) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	p.logger = logger
	return p
}

// Initialize transitions Uninitialized -> Active and allocates the empty
// aggregation owned by the caller. Calling it twice reports
// ErrAlreadyInitialized; calling it after Shutdown reports ErrShutDown.
func (p *Profiler) Initialize() (*ProfilerData, error) {
	if !p.stage.CompareAndSwap(stageUninitialized, stageActive) {
		if p.stage.Load() == stageShutDown {
			return nil, ErrShutDown
		}
		return nil, ErrAlreadyInitialized
	}

	p.logger.Info("profiler initialized",
		zap.Bool("instrumentation", instrumentationEnabled))

	return &ProfilerData{
		start: p.clock.Now(),
		roots: make(map[uint64]*AggregatedNode),
	}, nil
}

// Thread registers a capture handle for the calling goroutine. Registration
// mutates the shared registry under a lock and is expected once per worker
// goroutine's lifetime; everything the handle does afterwards is lock-free
// with respect to other workers.
//
// If label is empty a stable "thread-N" label is assigned. When the profiler
// is not Active (or the build disables instrumentation) an inert handle is
// returned whose guards are no-ops.
func (p *Profiler) Thread(label string) *Thread {
	if !instrumentationEnabled || p.stage.Load() != stageActive {
		// Inert handle: guards are no-ops and nothing registers, but the
		// caller-visible label is kept.
		return &Thread{label: label}
	}

	id := p.nextThreadID.Add(1)
	if label == "" {
		label = fmt.Sprintf("thread-%d", id)
	}

	t := &Thread{
		profiler: p,
		clock:    p.clock,
		label:    label,
		id:       id,
	}

	p.registryMu.Lock()
	p.threads = append(p.threads, t)
	p.registryMu.Unlock()

	p.logger.Debug("thread registered",
		zap.Uint64("id", id),
		zap.String("label", label))

	return t
}

// ProcessEvents drains every registered thread's queue and folds the spans
// into data. Requires the Active stage. Each span is merged exactly once;
// within one thread the chronological completion order is preserved. Calling
// with no pending spans is a no-op.
//
// Expected to be invoked from a single coordinating goroutine. Safe to call
// concurrently with instrumentation on worker goroutines.
func (p *Profiler) ProcessEvents(data *ProfilerData) error {
	switch p.stage.Load() {
	case stageUninitialized:
		return ErrNotInitialized
	case stageShutDown:
		return ErrShutDown
	}
	if data == nil {
		return fmt.Errorf("profilez: nil profiler data")
	}

	p.registryMu.Lock()
	threads := make([]*Thread, len(p.threads))
	copy(threads, p.threads)
	p.registryMu.Unlock()

	merged := 0
	for _, t := range threads {
		spans := t.queue.drain()
		for i := range spans {
			data.merge(&spans[i], t.label)
		}
		merged += len(spans)
	}

	if merged > 0 {
		p.logger.Debug("drained spans", zap.Int("count", merged))
	}
	return nil
}

// Shutdown performs a final drain, transitions Active -> ShutDown, and writes
// the HTML report to path. The transition is terminal: further lifecycle calls
// report ErrShutDown and further instrumentation is a no-op.
//
// A report write failure is returned to the caller but the aggregation in
// data is retained, so the report can be retried with
// data.WriteReport(otherPath).
func (p *Profiler) Shutdown(path string, data *ProfilerData) error {
	switch p.stage.Load() {
	case stageUninitialized:
		return ErrNotInitialized
	case stageShutDown:
		return ErrShutDown
	}

	if err := p.ProcessEvents(data); err != nil {
		return err
	}
	data.sessionDuration = p.clock.Since(data.start)

	p.stage.Store(stageShutDown)
	p.siteCache.close()

	if dropped := p.unbalanced.Load(); dropped > 0 {
		p.logger.Warn("session had unbalanced spans", zap.Uint64("count", dropped))
	}

	if err := data.WriteReport(path); err != nil {
		return fmt.Errorf("profilez: write report: %w", err)
	}

	p.logger.Info("profile report written",
		zap.String("path", path),
		zap.Duration("session", data.sessionDuration))
	return nil
}

// UnbalancedSpans returns the number of guard releases that did not match the
// top of their call stack. A non-zero count signals a reentrancy or
// guard-lifetime defect in the instrumented code.
func (p *Profiler) UnbalancedSpans() uint64 {
	return p.unbalanced.Load()
}

// noteUnbalanced records a stack mismatch recovered during a guard release.
// Never escalated to an error: a profiler embedded in production code must
// not turn instrumentation defects into crashes.
func (p *Profiler) noteUnbalanced(t *Thread, name string) {
	p.unbalanced.Add(1)
	p.logger.Warn("unbalanced span release",
		zap.String("block", name),
		zap.String("thread", t.label),
		zap.Int("stack_depth", t.stack.depth()))
}
