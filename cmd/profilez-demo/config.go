package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Workload scripts the synthetic run: a set of workers, each executing a tree
// of named blocks a number of times.
type Workload struct {
	Workers []Worker `yaml:"workers"`
}

// Worker is one goroutine's script.
type Worker struct {
	Label  string  `yaml:"label"`
	Repeat int     `yaml:"repeat"`
	Blocks []Block `yaml:"blocks"`
}

// Block is one marked block: busy-spin for Spin, then run the children.
type Block struct {
	Name     string  `yaml:"name"`
	Spin     string  `yaml:"spin"`
	Repeat   int     `yaml:"repeat"`
	Children []Block `yaml:"children"`

	spin time.Duration
}

func loadWorkload(path string) (*Workload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}

	var wl Workload
	if err := yaml.Unmarshal(raw, &wl); err != nil {
		return nil, fmt.Errorf("parse workload: %w", err)
	}
	if len(wl.Workers) == 0 {
		return nil, fmt.Errorf("workload %s declares no workers", path)
	}

	for i := range wl.Workers {
		w := &wl.Workers[i]
		if w.Repeat <= 0 {
			w.Repeat = 1
		}
		if err := normalizeBlocks(w.Blocks); err != nil {
			return nil, fmt.Errorf("worker %q: %w", w.Label, err)
		}
	}
	return &wl, nil
}

func normalizeBlocks(blocks []Block) error {
	for i := range blocks {
		b := &blocks[i]
		if b.Name == "" {
			return fmt.Errorf("block %d has no name", i)
		}
		if b.Repeat <= 0 {
			b.Repeat = 1
		}
		if b.Spin != "" {
			d, err := time.ParseDuration(b.Spin)
			if err != nil {
				return fmt.Errorf("block %q: bad spin: %w", b.Name, err)
			}
			b.spin = d
		}
		if err := normalizeBlocks(b.Children); err != nil {
			return err
		}
	}
	return nil
}
