package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/example/vision-pipeline/internal/events"
	"github.com/example/vision-pipeline/internal/pipeline"
)

const missing = "-"

// renderState prints the upload URL and every normalized feature of state.
func renderState(state pipeline.State) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft, WidthMax: 80},
	})

	tw.AppendRow(table.Row{"Phase", state.Phase.String()})
	url := missing
	if state.Upload != nil {
		url = state.Upload.URL
	}
	tw.AppendRow(table.Row{"URL", url})

	if res := state.Result; res != nil {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"Labels", joinOrMissing(res.Labels)})
		tw.AppendRow(table.Row{"Landmarks", joinOrMissing(res.Landmarks)})
		tw.AppendRow(table.Row{"Web guess", valueOrMissing(res.WebGuess)})
		tw.AppendRow(table.Row{"Text", valueOrMissing(res.FullText)})
	}

	return tw.Render()
}

func formatTransition(msg events.Message) string {
	state := msg.State
	line := fmt.Sprintf("%s %s run=%s phase=%s",
		state.UpdatedAt.Format(time.RFC3339), msg.Session, orMissing(state.RunID), state.Phase)
	switch {
	case state.Failure != nil:
		line += fmt.Sprintf(" stage=%s reason=%q", state.Failure.Stage, state.Failure.Reason)
	case state.Result != nil:
		line += fmt.Sprintf(" labels=%d", len(state.Result.Labels))
	case state.Upload != nil:
		line += " url=" + state.Upload.URL
	}
	return line
}

func joinOrMissing(values []string) string {
	if len(values) == 0 {
		return missing
	}
	return strings.Join(values, ", ")
}

func valueOrMissing(v *string) string {
	if v == nil {
		return missing
	}
	return *v
}

func orMissing(s string) string {
	if s == "" {
		return missing
	}
	return s
}
