package profilez

import "time"

// AggregatedNode is one position in an aggregated call tree, identified by its
// root-to-node call path. Durations are self time only: a node's
// TotalDuration never double-counts a child's.
//
// Nodes are created on first merge of a previously-unseen call path, mutated
// by later merges, and never deleted during a session.
type AggregatedNode struct {
	children      map[string]*AggregatedNode
	order         []string
	Name          string
	CallCount     uint64
	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
}

// Children returns the child nodes in insertion order, which is the order
// their call paths were first observed. Deterministic across identical runs.
func (n *AggregatedNode) Children() []*AggregatedNode {
	if len(n.order) == 0 {
		return nil
	}
	out := make([]*AggregatedNode, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.children[name])
	}
	return out
}

// Child returns the child with the given name, or nil.
func (n *AggregatedNode) Child(name string) *AggregatedNode {
	return n.children[name]
}

// AvgDuration returns the mean self time per call, or zero before any merge.
func (n *AggregatedNode) AvgDuration() time.Duration {
	if n.CallCount == 0 {
		return 0
	}
	return n.TotalDuration / time.Duration(n.CallCount)
}

func (n *AggregatedNode) ensureChild(name string) *AggregatedNode {
	if child, ok := n.children[name]; ok {
		return child
	}
	if n.children == nil {
		n.children = make(map[string]*AggregatedNode)
	}
	child := &AggregatedNode{Name: name}
	n.children[name] = child
	n.order = append(n.order, name)
	return child
}

// record folds one completed span's duration into the node. Min and max are
// seeded from the first observation.
func (n *AggregatedNode) record(d time.Duration) {
	if n.CallCount == 0 || d < n.MinDuration {
		n.MinDuration = d
	}
	if n.CallCount == 0 || d > n.MaxDuration {
		n.MaxDuration = d
	}
	n.CallCount++
	n.TotalDuration += d
}

// ProfilerData holds the aggregated call trees for a session, one root per
// registered thread. It is returned by Initialize and owned exclusively by
// the coordinator; the profiler only touches it inside ProcessEvents and
// Shutdown calls made by that owner.
type ProfilerData struct {
	roots           map[uint64]*AggregatedNode
	order           []uint64
	start           time.Time
	sessionDuration time.Duration
}

// Threads returns the per-thread tree roots in first-span order. A root node
// carries the thread label as its Name and no durations of its own; timing
// starts at its children.
func (d *ProfilerData) Threads() []*AggregatedNode {
	if len(d.order) == 0 {
		return nil
	}
	out := make([]*AggregatedNode, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.roots[id])
	}
	return out
}

// SessionDuration returns the wall time between Initialize and Shutdown.
// Zero until Shutdown has run.
func (d *ProfilerData) SessionDuration() time.Duration {
	return d.sessionDuration
}

// merge folds one drained span into the tree for its thread. The node is
// located by walking the recorded call path from the thread root, creating
// missing nodes along the way; the leaf named span.Name is then updated.
//
// Spans from different threads never share nodes, even for identical block
// names. Recursive self-calls deepen the path: each recursion level recorded
// in the call path yields a distinct node.
func (d *ProfilerData) merge(span *CompletedSpan, label string) {
	root, ok := d.roots[span.ThreadID]
	if !ok {
		root = &AggregatedNode{Name: label}
		d.roots[span.ThreadID] = root
		d.order = append(d.order, span.ThreadID)
	}

	node := root
	for _, segment := range span.CallPath {
		node = node.ensureChild(segment)
	}
	node.ensureChild(span.Name).record(span.Duration)
}
