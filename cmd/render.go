package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	sentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	hintStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
	bannerStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("212")).
			Padding(0, 2)
)

const cake = `
      , , ,
     _|_|_|_
    {~*~*~*~}
  __{*~*~*~*}__
`

func banner() string {
	body := titleStyle.Render("salvator "+Version) + "\n" +
		"birthday greetings, sent on time, every time"
	return cake + bannerStyle.Render(body) + "\n\n"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// pad right-pads s to width terminal cells.
func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func nameWidth(entries []schemas.EntryOutcome) int {
	w := 0
	for _, e := range entries {
		if n := lipgloss.Width(e.Entry.DisplayName); n > w {
			w = n
		}
	}
	return w
}

func renderReport(w io.Writer, r schemas.RunReport) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run %s", r.RunID)))
	if r.Total == 0 {
		fmt.Fprintln(w, skippedStyle.Render("No birthdays today."))
		return
	}

	width := nameWidth(r.Entries)
	for _, e := range r.Entries {
		fmt.Fprintf(w, "  %s  %s\n", pad(e.Entry.DisplayName, width), renderOutcome(e.Outcome))
	}
	fmt.Fprintf(w, "\n%s  %s  %s  (%s)\n",
		sentStyle.Render(fmt.Sprintf("Sent %d", r.Sent)),
		skippedStyle.Render(fmt.Sprintf("Skipped %d", r.Skipped)),
		failedCount(r.Failed),
		r.Duration().Round(100*time.Millisecond))
}

func failedCount(n int) string {
	s := fmt.Sprintf("Failed %d", n)
	if n == 0 {
		return skippedStyle.Render(s)
	}
	return errorStyle.Render(s)
}

func renderOutcome(o schemas.DispatchOutcome) string {
	switch o.Status {
	case schemas.StatusSent:
		return sentStyle.Render("sent")
	case schemas.StatusSkipped:
		return skippedStyle.Render("skipped: " + o.Reason)
	default:
		s := "failed: " + string(o.Kind)
		if o.Detail != "" {
			s += " (" + o.Detail + ")"
		}
		return errorStyle.Render(s)
	}
}

func renderBirthdays(w io.Writer, entries []schemas.BirthdayEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, skippedStyle.Render("No birthdays today."))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d birthdays today", len(entries))))
	for i, e := range entries {
		fmt.Fprintf(w, "%3d. %s\n", i+1, e.DisplayName)
	}
}

func renderHistory(w io.Writer, runs []store.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, skippedStyle.Render("No runs recorded yet."))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%-19s  %5s  %4s  %7s  %6s  %s", "STARTED", "TOTAL", "SENT", "SKIPPED", "FAILED", "RESULT")))
	for _, r := range runs {
		result := sentStyle.Render("ok")
		switch {
		case r.FailedStage != "":
			result = errorStyle.Render("failed at " + r.FailedStage)
		case r.Sent < r.Total:
			result = skippedStyle.Render("partial")
		}
		fmt.Fprintf(w, "%-19s  %5d  %4d  %7d  %6d  %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Total, r.Sent, r.Skipped, r.Failed, result)
	}
}
