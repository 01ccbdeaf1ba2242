package display

import (
	"fmt"
	"strings"

	"github.com/evanschultz/waymark/internal/app"
)

// SequenceReport renders a sequence summary as markdown.
func SequenceReport(sum app.SequenceSummary, f Formatter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sequence %d (%s)\n\n", sum.Sequence.ID, sum.Sequence.Status)

	if len(sum.Intervals) == 0 {
		b.WriteString("_No intervals recorded._\n")
		return b.String()
	}

	end := f.Clock(sum.EndTime)
	if sum.Open {
		end = "now"
	}
	fmt.Fprintf(&b, "%s, %s to %s, **%s** across %d intervals.\n\n",
		f.Day(sum.StartTime), f.Clock(sum.StartTime), end, FormatDuration(sum.Total), len(sum.Intervals))

	b.WriteString("## Intervals\n\n")
	b.WriteString("| # | From | To | Start | End | Duration |\n")
	b.WriteString("|---|------|----|-------|-----|----------|\n")
	for idx, interval := range sum.Intervals {
		to, endAt := "_open_", "_open_"
		if endNode, ok := interval.EndNodeID(); ok {
			to = escapeCell(sum.NodeName(endNode))
		}
		if t, ok := interval.EndTime(); ok {
			endAt = f.Clock(t)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n",
			idx+1,
			escapeCell(sum.NodeName(interval.StartNodeID)),
			to,
			f.Clock(interval.StartTime),
			endAt,
			FormatDuration(interval.Duration(sum.EndTime)),
		)
	}

	b.WriteString("\n## Time per node\n\n")
	b.WriteString("| Node | Visits | Time |\n")
	b.WriteString("|------|--------|------|\n")
	for _, dwell := range sum.Dwell {
		fmt.Fprintf(&b, "| %s | %d | %s |\n", escapeCell(dwell.Node.Name), dwell.Visits, FormatDuration(dwell.Duration))
	}
	return b.String()
}

// escapeCell keeps node names from breaking table rows.
func escapeCell(v string) string {
	if v == "" {
		return "?"
	}
	return strings.ReplaceAll(v, "|", `\|`)
}
