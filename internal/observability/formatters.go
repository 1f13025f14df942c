// Package observability formats board state for the terminal.
package observability

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/jonathan/hiring-board/internal/views"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow caps the applications listed per candidate
	maxItemsToShow = 5
)

// Printer handles formatted output for the watch command
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

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "..."
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// PrintBoard prints the dashboard counters followed by the candidate list.
func (p *Printer) PrintBoard(at time.Time, view views.CandidatesView, jobs views.JobCounts) {
	p.PrintSummary(at, view.Stats, jobs)
	p.PrintCandidates(view)
}

// PrintSummary prints the job and application counters in a box.
func (p *Printer) PrintSummary(at time.Time, st views.Stats, jobs views.JobCounts) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Jobs:          %d (active %d, draft %d, closed %d)\n", jobs.Total, jobs.Active, jobs.Draft, jobs.Closed)
	fmt.Fprintf(&sb, "Applications:  %d from %d candidates\n", st.Total, st.UniqueCandidates)
	fmt.Fprintf(&sb, "Pending:       %d\n", st.Pending)
	fmt.Fprintf(&sb, "In progress:   %d\n", st.InProgress)
	fmt.Fprintf(&sb, "Accepted:      %d\n", st.Accepted)
	fmt.Fprintf(&sb, "Rejected:      %d\n", st.Rejected)
	p.printBox("HIRING BOARD  "+at.Format(time.TimeOnly), sb.String())
}

// PrintCandidates prints one row per application, grouped under each
// candidate, in the view's order.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintCandidates(view views.CandidatesView) {
	if len(view.Groups) == 0 {
		if view.Filter.Query != "" || (view.Filter.Status != "" && view.Filter.Status != views.StatusAll) {
			fmt.Fprintln(p.out, "No candidates match the filter")
		} else {
			fmt.Fprintln(p.out, "No candidates yet")
		}
		return
	}

	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CANDIDATE\tEMAIL\tJOB\tSTATUS\tLAST ACTIVITY")
	for _, g := range view.Groups {
		count := min(len(g.Applications), maxItemsToShow)
		for i, app := range g.Applications[:count] {
			name, email := g.FullName, g.Email
			if i > 0 {
				name, email = "", ""
			}
			job := "-"
			if app.Job != nil {
				job = app.Job.Title
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				name, email, job, strings.ReplaceAll(app.Status, "_", " "),
				app.LastActivity().Format(time.DateTime))
		}
		if len(g.Applications) > maxItemsToShow {
			fmt.Fprintf(tw, "\t\t... and %d more\t\t\n", len(g.Applications)-maxItemsToShow)
		}
	}
	tw.Flush()
	fmt.Fprintf(p.out, "%d of %d applications shown\n", view.Stats.Visible, view.Stats.Total)
}
