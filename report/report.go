// Package report renders run summaries for terminals and notifications.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ytget/checkin/types"
)

const maxMessageWidth = 60

// Headline is a one-line count of the summary.
func Headline(s types.Summary) string {
	return fmt.Sprintf("%d accounts: %d ok, %d failed", len(s.Results), s.Succeeded(), s.Failed())
}

// Table writes the summary as a rounded table to w.
func Table(w io.Writer, s types.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Run " + s.RunID)
	t.AppendHeader(table.Row{"#", "Site", "Account", "Status", "Message", "Duration"})
	for i, r := range s.Results {
		t.AppendRow(table.Row{i + 1, r.Site, r.Account, status(r), truncate(detail(r), maxMessageWidth), r.Duration.Round(time.Millisecond)})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d/%d", s.Succeeded(), len(s.Results)), Headline(s), s.Finished.Sub(s.Started).Round(time.Millisecond)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// Text is the plain notification body: a headline followed by one line per
// account, failures first.
func Text(s types.Summary) string {
	var b strings.Builder
	b.WriteString(Headline(s))
	for _, r := range s.Failures() {
		fmt.Fprintf(&b, "\n[FAIL] %s/%s: %s", r.Site, r.Account, detail(r))
	}
	for _, r := range s.Results {
		if r.Success {
			fmt.Fprintf(&b, "\n[OK] %s/%s: %s", r.Site, r.Account, detail(r))
		}
	}
	return b.String()
}

func status(r types.Result) string {
	if r.Success {
		return "OK"
	}
	return "FAIL"
}

func detail(r types.Result) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Message
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
