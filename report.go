package profilez

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const reportHeader = `<html><body>
<title>Profile report</title>

<style>
    body {
        color: #111;
        font-family: Noto Mono, monospace;
    }
    tr:nth-child(even) {
        background: #efeeef;
    }
    tr:nth-child(odd) {
        background: #fff;
    }
    td:nth-child(1) {
        font-weight: bold;
        text-align: left;
    }
    td:nth-child(n+2) {
        text-align: right;
        padding-left: 14px;
    }
</style>

<h1>Block statistics</h1>
`

const reportFooter = "</body></html>\n"

const reportTableHead = "<thead>" +
	"<th>Block name</th>" +
	"<th>Calls</th>" +
	"<th>Total</th>" +
	"<th>Min</th>" +
	"<th>Max</th>" +
	"<th>Average</th>" +
	"<th>Global</th>" +
	"<th>Of parent</th>" +
	"</thead>\n"

// WriteReport renders the aggregated call trees as a self-contained HTML
// document and writes it to path. The write is atomic from the caller's
// perspective: the document is written to a temporary file in the target
// directory and renamed into place, so path never holds a torn report.
//
// The aggregation is untouched on failure; callers may retry with another
// path.
func (d *ProfilerData) WriteReport(path string) error {
	doc := d.buildReport()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".profilez-*.html")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// buildReport serializes the trees to HTML: a session row carrying the total
// measured time, then one section per thread with one table row per node,
// indented by call depth. Siblings are ordered by total time, largest first,
// with insertion order breaking ties, so identical sessions render
// identically.
func (d *ProfilerData) buildReport() string {
	var b strings.Builder
	b.Grow(8192)
	b.WriteString(reportHeader)

	session := d.sessionDuration
	if session <= 0 {
		// Report requested before shutdown stamped the session; fall
		// back to the recorded block time.
		for _, root := range d.Threads() {
			session += sumTotals(root)
		}
	}

	// The session is the document's first row: one measurement covering the
	// whole run, the denominator for every global percentage below it.
	b.WriteString("<table>\n")
	b.WriteString(reportTableHead)
	writeRow(&b, 0, "session", 1, session, session, session, session,
		percent(session, session), percent(session, session))
	b.WriteString("</table>\n")

	for _, root := range d.Threads() {
		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(root.Name))
		b.WriteString("<table>\n")
		b.WriteString(reportTableHead)
		writeNodeRows(&b, root, 0, session, sumTotals(root))
		b.WriteString("</table>\n")
	}

	b.WriteString(reportFooter)
	return b.String()
}

// writeNodeRows emits the rows for parent's children, recursively. parentTotal
// is the denominator for the of-parent percentage.
func writeNodeRows(b *strings.Builder, parent *AggregatedNode, depth int, session, parentTotal time.Duration) {
	children := parent.Children()
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].TotalDuration > children[j].TotalDuration
	})

	for _, node := range children {
		writeRow(b, depth, node.Name, node.CallCount,
			node.TotalDuration, node.MinDuration, node.MaxDuration, node.AvgDuration(),
			percent(node.TotalDuration, session),
			percent(node.TotalDuration, parentTotal))

		writeNodeRows(b, node, depth+1, session, node.TotalDuration)
	}
}

// writeRow emits one table row. All duration columns are milliseconds.
func writeRow(b *strings.Builder, depth int, name string, calls uint64, total, min, max, avg time.Duration, global, parent float64) {
	fmt.Fprintf(b,
		"<tr>"+
			"<td style=\"padding-left: %dpx\">%s</td>"+
			"<td>%d</td>"+
			"<td>%9.4f ms</td>"+
			"<td>%9.4f ms</td>"+
			"<td>%9.4f ms</td>"+
			"<td>%9.4f ms</td>"+
			"<td>%6.2f %%</td>"+
			"<td>%6.2f %%</td>"+
			"</tr>\n",
		depth*25,
		html.EscapeString(name),
		calls,
		millis(total),
		millis(min),
		millis(max),
		millis(avg),
		global,
		parent,
	)
}

// sumTotals returns the summed self time of a root's direct children, used as
// the percentage denominator for top-level blocks.
func sumTotals(root *AggregatedNode) time.Duration {
	var sum time.Duration
	for _, child := range root.Children() {
		sum += child.TotalDuration
	}
	return sum
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func percent(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
