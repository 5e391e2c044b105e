//go:build !profileoff

package profilez

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestLifecycleOrdering(t *testing.T) {
	p := New().WithClock(clockz.NewFakeClock())

	if err := p.ProcessEvents(&ProfilerData{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ProcessEvents before Initialize: expected ErrNotInitialized, got %v", err)
	}
	if err := p.Shutdown("unused.html", &ProfilerData{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Shutdown before Initialize: expected ErrNotInitialized, got %v", err)
	}

	data, err := p.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := p.Initialize(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("Second Initialize: expected ErrAlreadyInitialized, got %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.html")
	if err := p.Shutdown(out, data); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if err := p.ProcessEvents(data); !errors.Is(err, ErrShutDown) {
		t.Errorf("ProcessEvents after Shutdown: expected ErrShutDown, got %v", err)
	}
	if err := p.Shutdown(out, data); !errors.Is(err, ErrShutDown) {
		t.Errorf("Second Shutdown: expected ErrShutDown, got %v", err)
	}
	if _, err := p.Initialize(); !errors.Is(err, ErrShutDown) {
		t.Errorf("Initialize after Shutdown: expected ErrShutDown, got %v", err)
	}
}

func TestLifecycleMisuseHasNoSideEffects(t *testing.T) {
	p := New().WithClock(clockz.NewFakeClock())

	out := filepath.Join(t.TempDir(), "never.html")
	_ = p.Shutdown(out, &ProfilerData{})

	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("Shutdown before Initialize must not write a report")
	}
}

func TestEndToEndWorkReport(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := New().WithClock(clock)
	data, err := p.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	th := p.Thread("main")
	for _, d := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		g := th.Begin("work")
		clock.Advance(d)
		g.End()
	}

	if err := p.ProcessEvents(data); err != nil {
		t.Fatalf("ProcessEvents failed: %v", err)
	}

	threads := data.Threads()
	if len(threads) != 1 {
		t.Fatalf("Expected 1 thread tree, got %d", len(threads))
	}
	work := threads[0].Child("work")
	if work == nil {
		t.Fatal("Expected 'work' node under the thread root")
	}
	if work.CallCount != 3 {
		t.Errorf("Expected call count 3, got %d", work.CallCount)
	}
	if work.TotalDuration != 60*time.Millisecond {
		t.Errorf("Expected total 60ms, got %v", work.TotalDuration)
	}
	if work.MinDuration != 10*time.Millisecond {
		t.Errorf("Expected min 10ms, got %v", work.MinDuration)
	}
	if work.MaxDuration != 30*time.Millisecond {
		t.Errorf("Expected max 30ms, got %v", work.MaxDuration)
	}
	if work.AvgDuration() != 20*time.Millisecond {
		t.Errorf("Expected avg 20ms, got %v", work.AvgDuration())
	}

	out := filepath.Join(t.TempDir(), "out.html")
	if err := p.Shutdown(out, data); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Reading report failed: %v", err)
	}
	doc := string(raw)

	if !strings.HasPrefix(doc, "<html>") || !strings.HasSuffix(doc, "</html>\n") {
		t.Error("Expected a complete HTML document")
	}
	for _, want := range []string{"work", "<td>3</td>", "60.0000 ms", "10.0000 ms", "30.0000 ms", "20.0000 ms"} {
		if !strings.Contains(doc, want) {
			t.Errorf("Expected report to contain %q", want)
		}
	}
}

func TestIdempotentDrain(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := New().WithClock(clock)
	data, err := p.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	th := p.Thread("main")
	g := th.Begin("op")
	clock.Advance(time.Millisecond)
	g.End()

	if err := p.ProcessEvents(data); err != nil {
		t.Fatalf("ProcessEvents failed: %v", err)
	}
	node := data.Threads()[0].Child("op")
	countBefore, totalBefore := node.CallCount, node.TotalDuration

	// Nothing new completed; a second drain must change nothing.
	if err := p.ProcessEvents(data); err != nil {
		t.Fatalf("Second ProcessEvents failed: %v", err)
	}
	if node.CallCount != countBefore || node.TotalDuration != totalBefore {
		t.Errorf("Expected unchanged aggregation, got count %d total %v", node.CallCount, node.TotalDuration)
	}
	if len(data.Threads()) != 1 {
		t.Errorf("Expected 1 thread tree, got %d", len(data.Threads()))
	}
}

func TestThreadIsolation(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := New().WithClock(clock)
	data, err := p.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Two worker goroutines, same block name. The clock is shared, so the
	// workers run one at a time.
	run := func(label string, repeats int) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			th := p.Thread(label)
			for i := 0; i < repeats; i++ {
				g := th.Begin("shared")
				g.End()
			}
		}()
		<-done
	}

	run("alpha", 2)
	run("beta", 3)

	if err := p.ProcessEvents(data); err != nil {
		t.Fatalf("ProcessEvents failed: %v", err)
	}

	threads := data.Threads()
	if len(threads) != 2 {
		t.Fatalf("Expected 2 thread trees, got %d", len(threads))
	}

	counts := map[string]uint64{}
	for _, root := range threads {
		node := root.Child("shared")
		if node == nil {
			t.Fatalf("Expected 'shared' under %s", root.Name)
		}
		counts[root.Name] = node.CallCount
	}
	if counts["alpha"] != 2 || counts["beta"] != 3 {
		t.Errorf("Expected per-thread counts alpha=2 beta=3, got %v", counts)
	}
}

func TestRecursionDeepensPath(t *testing.T) {
	for _, depth := range []int{1, 2, 5} {
		clock := clockz.NewFakeClock()
		p := New().WithClock(clock)
		data, err := p.Initialize()
		if err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		th := p.Thread("main")

		var recurse func(n int)
		recurse = func(n int) {
			if n == 0 {
				return
			}
			g := th.Begin("recurse")
			defer g.End()
			clock.Advance(time.Millisecond)
			recurse(n - 1)
		}
		recurse(depth)

		if err := p.ProcessEvents(data); err != nil {
			t.Fatalf("ProcessEvents failed: %v", err)
		}

		// Each recursion level is a distinct node one deeper in the tree.
		node := data.Threads()[0]
		for level := 1; level <= depth; level++ {
			node = node.Child("recurse")
			if node == nil {
				t.Fatalf("depth %d: missing node at level %d", depth, level)
			}
			if node.CallCount != 1 {
				t.Errorf("depth %d: level %d call count = %d, want 1", depth, level, node.CallCount)
			}
		}
		if node.Child("recurse") != nil {
			t.Errorf("depth %d: unexpected node below the deepest recursion level", depth)
		}
	}
}

func TestExactlyOnceAccounting(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := New().WithClock(clock)
	data, err := p.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	th := p.Thread("main")

	const n = 100
	for i := 0; i < n; i++ {
		g := th.Begin("op")
		clock.Advance(time.Millisecond)
		g.End()
	}

	if err := p.ProcessEvents(data); err != nil {
		t.Fatalf("ProcessEvents failed: %v", err)
	}

	node := data.Threads()[0].Child("op")
	if node.CallCount != n {
		t.Errorf("Expected %d calls, got %d", n, node.CallCount)
	}
	if node.TotalDuration != n*time.Millisecond {
		t.Errorf("Expected total %v, got %v", n*time.Millisecond, node.TotalDuration)
	}
}

func TestShutdownDrainsResidualSpans(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := New().WithClock(clock)
	data, err := p.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	th := p.Thread("main")

	g := th.Begin("tail")
	clock.Advance(7 * time.Millisecond)
	g.End()

	// No ProcessEvents before shutdown; the final drain must pick it up.
	out := filepath.Join(t.TempDir(), "out.html")
	if err := p.Shutdown(out, data); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	node := data.Threads()[0].Child("tail")
	if node == nil || node.CallCount != 1 {
		t.Fatal("Expected residual span to be merged by Shutdown")
	}
	if data.SessionDuration() != 7*time.Millisecond {
		t.Errorf("Expected 7ms session, got %v", data.SessionDuration())
	}
}

func TestShutdownClosesSiteNameCache(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := New().WithClock(clock)
	data, err := p.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	th := p.Thread("main")

	// First BeginHere builds the call-site cache.
	th.BeginHere().End()

	out := filepath.Join(t.TempDir(), "out.html")
	if err := p.Shutdown(out, data); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// Surviving handles stay usable after the cache is closed; derivation
	// degrades to direct lookups.
	g := th.BeginHere()
	clock.Advance(time.Millisecond)
	g.End()

	if th.queue.count() != 1 {
		t.Errorf("Expected the post-shutdown span buffered, got %d", th.queue.count())
	}
}

func TestThreadDefaultLabel(t *testing.T) {
	p := New().WithClock(clockz.NewFakeClock())
	if _, err := p.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	th := p.Thread("")
	if th.Label() != "thread-1" {
		t.Errorf("Expected default label 'thread-1', got %q", th.Label())
	}
	if th.ID() != 1 {
		t.Errorf("Expected ID 1, got %d", th.ID())
	}
}

func TestShutdownReportFailureKeepsAggregation(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := New().WithClock(clock)
	data, err := p.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	th := p.Thread("main")

	g := th.Begin("work")
	clock.Advance(time.Millisecond)
	g.End()

	bad := filepath.Join(t.TempDir(), "missing", "out.html")
	if err := p.Shutdown(bad, data); err == nil {
		t.Fatal("Expected Shutdown to report the write failure")
	}

	// The aggregation survives; a retry with a valid path succeeds.
	node := data.Threads()[0].Child("work")
	if node == nil || node.CallCount != 1 {
		t.Fatal("Expected aggregation retained after write failure")
	}

	good := filepath.Join(t.TempDir(), "out.html")
	if err := data.WriteReport(good); err != nil {
		t.Fatalf("Retry WriteReport failed: %v", err)
	}
}
