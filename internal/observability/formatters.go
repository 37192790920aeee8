// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/data-export/internal/errorlog"
	"github.com/jonathan/data-export/internal/rules"
	"github.com/jonathan/data-export/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// statusIcon returns a marker for a shard or job status
func statusIcon(status types.ShardStatus) string {
	switch status {
	case types.StatusCompleted:
		return "✓"
	case types.StatusCompletedWithErrors:
		return "!"
	case types.StatusFailed:
		return "✗"
	default:
		return "·"
	}
}

// PrintJobSummary outputs the final status and counts of a job execution and its shards.
func (p *Printer) PrintJobSummary(exec types.JobExecution, shards []types.ExportShard) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Job:        %s\n", exec.ID))
	sb.WriteString(fmt.Sprintf("Type:       %s\n", exec.Request.IDType))
	sb.WriteString(fmt.Sprintf("Tenant:     %s\n", exec.Tenant))
	sb.WriteString(fmt.Sprintf("Status:     %s %s\n", statusIcon(exec.Status), exec.Status))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Exported:   %d\n", exec.Progress.Exported))
	sb.WriteString(fmt.Sprintf("Failed:     %d\n", exec.Progress.Failed))
	sb.WriteString(fmt.Sprintf("Duplicated: %d\n", exec.Progress.Duplicated))
	sb.WriteString(fmt.Sprintf("Total:      %d\n", exec.Progress.Total))

	if len(shards) > 0 {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Shards (%d):\n", len(shards)))
		for _, shard := range shards {
			sb.WriteString(fmt.Sprintf("  %s %s  %d/%d/%d\n",
				statusIcon(shard.Status), shortID(shard.ID.String()),
				shard.Exported, shard.Failed, shard.Duplicated))
		}
	}

	p.printBox("EXPORT JOB", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintShard outputs one line for a finished shard.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintShard(shard types.ExportShard, done, scheduled int) {
	fmt.Fprintf(p.out, "[%d/%d] %s shard %s: exported=%d failed=%d duplicated=%d",
		done, scheduled, statusIcon(shard.Status), shard.ID,
		shard.Exported, shard.Failed, shard.Duplicated)
	if shard.OutputPath != "" {
		fmt.Fprintf(p.out, " -> %s (%d bytes)", shard.OutputPath, shard.OutputBytes)
	}
	fmt.Fprintln(p.out)
}

// PrintRules outputs a summary of resolved rules, showing up to maxItemsToShow fields per tag group.
func (p *Printer) PrintRules(rs []rules.Rule) {
	if len(rs) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total Rules: %d\n\n", len(rs)))

	count := min(len(rs), maxItemsToShow)
	for i := 0; i < count; i++ {
		r := rs[i]
		sb.WriteString(fmt.Sprintf("%s  %s", r.Field, r.ID))
		if len(r.DataSources) > 0 && r.DataSources[0].From != "" {
			sb.WriteString(fmt.Sprintf("  <- %s", r.DataSources[0].From))
		}
		sb.WriteString("\n")
	}
	if len(rs) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(rs)-maxItemsToShow))
	}

	p.printBox("RESOLVED RULES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintErrorLogs outputs error-log entries grouped by code.
func (p *Printer) PrintErrorLogs(entries []errorlog.Entry) {
	if len(entries) == 0 {
		return
	}

	byCode := make(map[errorlog.Code][]errorlog.Entry)
	var order []errorlog.Code
	for _, e := range entries {
		if _, ok := byCode[e.Code]; !ok {
			order = append(order, e.Code)
		}
		byCode[e.Code] = append(byCode[e.Code], e)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total Entries: %d\n", len(entries)))
	for _, code := range order {
		group := byCode[code]
		sb.WriteString(fmt.Sprintf("\n%s (%d):\n", code, len(group)))
		count := min(len(group), maxItemsToShow)
		for i := 0; i < count; i++ {
			line := group[i].Message
			if group[i].AffectedRecordHRID != "" {
				line = group[i].AffectedRecordHRID + ": " + line
			}
			sb.WriteString(fmt.Sprintf("  • %s\n", line))
		}
		if len(group) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(group)-maxItemsToShow))
		}
	}

	p.printBox("ERROR LOG", strings.TrimSuffix(sb.String(), "\n"))
}

// shortID returns the first segment of a uuid string
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
