package cli

// This file contains the tables printed for run results.

import (
	"fmt"
	"io"
	"time"

	"github.com/devrun/devrun/model"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func formatOffset(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

// renderResults writes one row per case of run to w.
func renderResults(w io.Writer, title string, run *model.TestRun) {
	results := run.ResultsSnapshot()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"#", "CASE", "STATUS", "START", "DURATION", "REASON"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "START", Align: text.AlignRight},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "REASON", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, res := range results {
		status := "pass"
		if !res.Success {
			status = "FAIL"
		}
		t.AppendRow(table.Row{
			res.Index,
			res.Title(),
			status,
			formatOffset(res.RelStartMillis),
			formatOffset(res.RelEndMillis - res.RelStartMillis),
			res.Stack,
		})
	}

	failed := run.Failures()
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d cases", run.Total()), fmt.Sprintf("%d failed", failed), "", "", ""})

	switch {
	case failed > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case len(results) > 0:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleDefault)
	}
	t.Render()
}

// renderTimeTags writes the time tags of run to w.
func renderTimeTags(w io.Writer, run *model.TestRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Time tags")
	t.AppendHeader(table.Row{"OFFSET", "TAG"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "OFFSET", Align: text.AlignRight},
	})
	for _, tag := range run.TimeTagsSnapshot() {
		t.AppendRow(table.Row{formatOffset(tag.OffsetMillis), tag.Label})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
