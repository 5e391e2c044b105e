// Command profilez-demo runs a scripted synthetic workload under the profilez
// instrumentation profiler and writes the resulting HTML report.
//
// The workload is described in a YAML file, e.g.:
//
//	workers:
//	  - label: render
//	    repeat: 100
//	    blocks:
//	      - name: frame
//	        spin: 200us
//	        children:
//	          - name: shadow-pass
//	            spin: 50us
//	          - name: main-pass
//	            spin: 120us
//	            repeat: 2
package main

import (
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/profile"
	"go.uber.org/zap"

	"github.com/zoobzio/profilez"
)

type cli struct {
	Config     string        `default:"workload.yaml" help:"Workload configuration file." type:"path"`
	Out        string        `default:"report.html"   help:"Report output path."          type:"path"`
	Drain      time.Duration `default:"10ms"          help:"Interval between coordinator drains."`
	CPUProfile bool          `help:"Also capture a pprof CPU profile of the run."`
}

func main() {
	var flags cli
	kctx := kong.Parse(&flags,
		kong.Name("profilez-demo"),
		kong.Description("Runs a scripted workload under the profilez instrumentation profiler."),
	)
	kctx.FatalIfErrorf(run(flags))
}

func run(flags cli) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	wl, err := loadWorkload(flags.Config)
	if err != nil {
		return err
	}

	if flags.CPUProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	p := profilez.New().WithLogger(logger)
	data, err := p.Initialize()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, w := range wl.Workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			th := p.Thread(w.Label)
			for i := 0; i < w.Repeat; i++ {
				for j := range w.Blocks {
					runBlock(th, &w.Blocks[j])
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Coordinator loop: periodic drains while the workers run.
	ticker := time.NewTicker(flags.Drain)
	defer ticker.Stop()
	for running := true; running; {
		select {
		case <-ticker.C:
			if err := p.ProcessEvents(data); err != nil {
				return err
			}
		case <-done:
			running = false
		}
	}

	return p.Shutdown(flags.Out, data)
}

func runBlock(th *profilez.Thread, b *Block) {
	for i := 0; i < b.Repeat; i++ {
		g := th.Begin(b.Name)
		busySpin(b.spin)
		for j := range b.Children {
			runBlock(th, &b.Children[j])
		}
		g.End()
	}
}

// busySpin burns CPU for roughly d so block timings show up in the report.
func busySpin(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
