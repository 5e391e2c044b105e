package profilez

import (
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// siteNameCache memoizes the default block name derived for each BeginHere
// call site, keyed by program counter. Instrumented sites are unbounded in
// principle (generics, inlined helpers), so a cost-bounded cache keeps memory
// flat while serving concurrent lookups from many worker goroutines.
type siteNameCache struct {
	once      sync.Once
	closeOnce sync.Once
	cache     *ristretto.Cache
}

// close stops the cache's background workers; called once on Shutdown.
// Firing the creation Once first guarantees no cache is built afterwards, so
// late BeginHere calls on surviving handles just derive names directly.
// Lookups against an already-closed ristretto cache are safe no-ops.
func (c *siteNameCache) close() {
	c.closeOnce.Do(func() {
		c.once.Do(func() {})
		if c.cache != nil {
			c.cache.Close()
		}
	})
}

// siteName returns the memoized default name for a call site, deriving it on
// first sight from the enclosing function's qualified name and the line.
func (p *Profiler) siteName(pc uintptr, line int) string {
	p.siteCache.once.Do(func() {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 4096,
			MaxCost:     1 << 16,
			BufferItems: 64,
		})
		if err != nil {
			// Cache stays nil; names are derived on every call.
			p.logger.Warn("site name cache unavailable")
			return
		}
		p.siteCache.cache = cache
	})

	key := uint64(pc)
	if c := p.siteCache.cache; c != nil {
		if v, ok := c.Get(key); ok {
			if name, ok := v.(string); ok {
				return name
			}
		}
	}

	name := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = simplifySiteName(fn.Name())
	}
	name = name + ":" + strconv.Itoa(line)

	if c := p.siteCache.cache; c != nil {
		c.Set(key, name, int64(len(name)))
	}
	return name
}

// simplifySiteName shortens a runtime-qualified function name for report
// labels: the import path directory is dropped and stuttered segments are
// collapsed, so "github.com/acme/render.(*Render).renderFrame" becomes
// "(*Render).renderFrame".
func simplifySiteName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '/'); i >= 0 {
		qualified = qualified[i+1:]
	}

	parts := strings.Split(qualified, ".")
	out := parts[:0]
	for i := 0; i < len(parts); i++ {
		if i+1 < len(parts) && foldSegment(parts[i]) == foldSegment(parts[i+1]) {
			continue
		}
		out = append(out, parts[i])
	}
	return strings.Join(out, ".")
}

// foldSegment normalizes one name segment for stutter comparison: receiver
// decoration, underscores, and case are ignored.
func foldSegment(segment string) string {
	segment = strings.TrimPrefix(segment, "(*")
	segment = strings.TrimSuffix(segment, ")")
	segment = strings.ReplaceAll(segment, "_", "")
	return strings.ToLower(segment)
}
