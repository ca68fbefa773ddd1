package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/warp/envelope-engine/generic"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#7AA2F7")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// WarningColor indicates failed checks and mismatches.
	WarningColor = lipgloss.Color("#FFE66D")
	// ErrorColor indicates errors.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// SubtleColor is for labels.
	SubtleColor = lipgloss.Color("#666666")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(SubtleColor)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	LabelStyle  = lipgloss.NewStyle().Width(22).Foreground(SubtleColor)
	AmountStyle = lipgloss.NewStyle().Width(12).Align(lipgloss.Right)
)

// FormatSuccess formats a success message.
func FormatSuccess(msg string) string { return SuccessStyle.Render(msg) }

// FormatWarning formats a warning message.
func FormatWarning(msg string) string { return WarningStyle.Render(msg) }

// FormatError formats an error message.
func FormatError(msg string) string { return ErrorStyle.Render(msg) }

func row(label string, amounts ...generic.Money) string {
	cells := []string{LabelStyle.Render(label)}
	for _, m := range amounts {
		cells = append(cells, AmountStyle.Render(m.String()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

func header(label string, columns ...string) string {
	cells := []string{LabelStyle.Render(label)}
	for _, c := range columns {
		cells = append(cells, AmountStyle.Foreground(SubtleColor).Render(c))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

// renderSummary draws a boxed overview of a simulation result.
func renderSummary(result *generic.SimulationResult) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s  %s", result.Policy, result.Period)))
	b.WriteString("\n")

	switch {
	case result.Timelines != nil:
		ids := make([]generic.CategoryID, 0, len(result.Timelines))
		for id := range result.Timelines {
			ids = append(ids, id)
		}
		generic.SortCategoryIDs(ids)

		b.WriteString(header("category", "final", "overflow"))
		for _, id := range ids {
			tl := result.Timelines[id]
			b.WriteString("\n")
			b.WriteString(row(string(id), tl.Final(), generic.Sum(tl.Overflow...)))
		}

	case result.Slush != nil:
		b.WriteString(header("month", "final", "unallocated"))
		for _, m := range result.Slush.Months {
			snap := result.Slush.Snapshots[m]
			b.WriteString("\n")
			b.WriteString(row(m.String(), snap.Total.Final, snap.Unallocated))
		}
	}

	failed := result.FailedChecks()
	b.WriteString("\n\n")
	if len(failed) == 0 {
		b.WriteString(FormatSuccess("All checks passed"))
	} else {
		b.WriteString(FormatWarning(fmt.Sprintf("%d check groups failed", len(failed))))
		b.WriteString(renderFailed(failed))
	}
	return BoxStyle.Render(b.String())
}

func renderFailed(failed map[string][]generic.ErrorCheck) string {
	where := make([]string, 0, len(failed))
	for w := range failed {
		where = append(where, w)
	}
	sort.Strings(where)

	var b strings.Builder
	for _, w := range where {
		for _, c := range failed[w] {
			fmt.Fprintf(&b, "\n  %s %s %s", SubtleStyle.Render(w), c.Name, WarningStyle.Render(c.Result))
		}
	}
	return b.String()
}

// renderDiff draws the reconciliation outcome.
func renderDiff(diff *generic.Diff) string {
	if diff == nil {
		return BoxStyle.Render(FormatSuccess("Datasets match"))
	}
	return BoxStyle.Render(FormatWarning("First divergence") + "\n\n" + diff.String())
}
