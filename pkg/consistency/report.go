package consistency

import (
	"fmt"
	"strings"

	"github.com/surrealdb/migrator/pkg/logger"
)

const (
	maxRenderedValue = 120
	maxSummaryPaths  = 10
)

// Report is the log form of a failed comparison.
type Report struct {
	// Summary is one line naming the differing paths.
	Summary string
	// Full is the complete divergence with both payloads.
	Full string
}

func (r Result) Report() Report {
	if r.Passed {
		return Report{}
	}
	if r.SerializationErr != nil {
		msg := fmt.Sprintf("%s: source and destination results are not equal (no structural diff: %v)", r.Operation, r.SerializationErr)
		return Report{Summary: msg, Full: msg}
	}

	var full strings.Builder
	full.WriteString(r.Divergence)
	full.WriteString("\nsource: ")
	full.Write(r.SourcePayload)
	full.WriteString("\ndestination: ")
	full.Write(r.DestinationPayload)

	return Report{
		Summary: summarize(r.Operation, r.Differences),
		Full:    full.String(),
	}
}

// Log writes the report without flooding the warn stream: a full message
// under limit bytes goes to warn as is; otherwise the summary goes to warn
// and the full message to debug.
func (r Report) Log(l logger.Logger, limit int, args ...any) {
	if r.Full == "" {
		return
	}
	if limit <= 0 || len(r.Full) < limit {
		l.Warn(r.Full, args...)
		return
	}
	summary := r.Summary
	if len(summary) >= limit {
		summary = truncate(summary, limit-1)
	}
	l.Warn(summary, args...)
	l.Debug(r.Full, args...)
}

func describe(operation string, diffs []Difference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d %s between source and destination", operation, len(diffs), plural(len(diffs), "difference", "differences"))
	for _, d := range diffs {
		b.WriteString("\n  ")
		b.WriteString(displayPath(d.Path))
		b.WriteString(": ")
		switch {
		case d.Detail != "":
			b.WriteString(d.Detail)
		case d.Missing:
			fmt.Fprintf(&b, "source=%s destination=<missing>", render(d.Source))
		default:
			fmt.Fprintf(&b, "source=%s destination=%s", render(d.Source), render(d.Destination))
		}
	}
	return b.String()
}

func summarize(operation string, diffs []Difference) string {
	paths := make([]string, 0, maxSummaryPaths)
	for i, d := range diffs {
		if i == maxSummaryPaths {
			break
		}
		paths = append(paths, displayPath(d.Path))
	}
	s := fmt.Sprintf("%s: %d %s between source and destination at %s",
		operation, len(diffs), plural(len(diffs), "difference", "differences"), strings.Join(paths, ", "))
	if len(diffs) > maxSummaryPaths {
		s += fmt.Sprintf(" and %d more", len(diffs)-maxSummaryPaths)
	}
	return s
}

func render(v any) string {
	if v == nil {
		return "null"
	}
	b, err := canonical(v)
	if err != nil {
		return truncate(fmt.Sprintf("%v", v), maxRenderedValue)
	}
	return truncate(string(b), maxRenderedValue)
}

func displayPath(p string) string {
	if p == "" {
		return "(root)"
	}
	return p
}

func truncate(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
