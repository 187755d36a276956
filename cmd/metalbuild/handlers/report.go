package handlers

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/metalbuild/metalbuild/internal/provisioning"
)

var (
	reportColorGreen  = lipgloss.Color("#22c55e")
	reportColorRed    = lipgloss.Color("#ef4444")
	reportColorYellow = lipgloss.Color("#eab308")
	reportColorDim    = lipgloss.Color("#6b7280")
	reportColorWhite  = lipgloss.Color("#f9fafb")
)

var (
	reportTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(reportColorWhite)

	reportPassStyle = lipgloss.NewStyle().
			Foreground(reportColorGreen)

	reportFailStyle = lipgloss.NewStyle().
			Foreground(reportColorRed)

	reportWarnStyle = lipgloss.NewStyle().
			Foreground(reportColorYellow)

	reportDimStyle = lipgloss.NewStyle().
			Foreground(reportColorDim)
)

const (
	reportCheckMark = "[OK]"
	reportCrossMark = "[!!]"
	reportWarnMark  = "[??]"
	reportSkipMark  = "[--]"
)

func isInteractiveTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// renderProbeReport produces the validation report. Styled on a TTY,
// plain otherwise, so piped output stays grep-friendly.
func renderProbeReport(imageName string, results []provisioning.ProbeResult) string {
	if len(results) == 0 {
		return ""
	}
	return renderProbeReportStyled(imageName, results, isInteractiveTTY())
}

func renderProbeReportStyled(imageName string, results []provisioning.ProbeResult, styled bool) string {
	render := func(s lipgloss.Style, text string) string {
		if styled {
			return s.Render(text)
		}
		return text
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(render(reportTitleStyle, fmt.Sprintf("  metalbuild validation: %s", imageName)))
	b.WriteString("\n")
	b.WriteString(render(reportDimStyle, "  "+strings.Repeat("─", 40)))
	b.WriteString("\n")

	for _, r := range results {
		mark, style := reportCheckMark, reportPassStyle
		switch r.Outcome {
		case provisioning.OutcomeFail:
			mark, style = reportCrossMark, reportFailStyle
		case provisioning.OutcomeWarn:
			mark, style = reportWarnMark, reportWarnStyle
		case provisioning.OutcomeSkip:
			mark, style = reportSkipMark, reportDimStyle
		case provisioning.OutcomePass:
		}

		line := fmt.Sprintf("  %s %-20s", mark, r.Name)
		b.WriteString(render(style, line))
		if r.Detail != "" {
			b.WriteString(render(reportDimStyle, " "+r.Detail))
		}
		b.WriteString("\n")
	}

	summary := provisioning.Summarize(results)
	b.WriteString(render(reportDimStyle, "  "+strings.Repeat("─", 40)))
	b.WriteString("\n")
	summaryStyle := reportPassStyle
	if !summary.Ok() {
		summaryStyle = reportFailStyle
	} else if summary.Warnings > 0 {
		summaryStyle = reportWarnStyle
	}
	b.WriteString(render(summaryStyle, "  "+summary.String()))
	b.WriteString("\n")

	return b.String()
}
