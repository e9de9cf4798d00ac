package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/everydev1618/infty"
)

// runSummary holds the fields rendered in the final summary box.
type runSummary struct {
	RunID           string
	RunPath         string
	Objective       string
	DeliverablePath string
	Summary         string
	Duration        time.Duration
}

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(0, 1)
	titleStyle       = lipgloss.NewStyle().Bold(true)
	labelStyle       = lipgloss.NewStyle().Faint(true).Width(12)
	deliverableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// printRunSummaryBox renders the end-of-run summary box.
func printRunSummaryBox(w io.Writer, s runSummary) {
	rows := []string{titleStyle.Render("Run Summary"), ""}

	add := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(label), value))
	}

	add("Run ID", s.RunID)
	add("Directory", s.RunPath)
	add("Objective", strings.TrimSpace(s.Objective))
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("Deliverable"), deliverableStyle.Render(s.DeliverablePath)))
	add("Total Time", formatDuration(s.Duration))
	add("Summary", strings.TrimSpace(s.Summary))

	fmt.Fprintln(w)
	fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	fmt.Fprintln(w)
}

// formatDuration renders a duration as a compact human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

// logProgress reports milestones through the CLI logger.
type logProgress struct {
	infty.NoopProgress
	log *slog.Logger
}

func newLogProgress(log *slog.Logger) infty.ProgressReporter {
	return &logProgress{log: log}
}

func (p *logProgress) ObjectivePosted(objective string) {
	p.log.Info("objective posted", "objective", objective)
}

func (p *logProgress) WaitingForSolver() {
	p.log.Info("waiting for solver")
}

func (p *logProgress) DirectionRequest(prompt string) {
	p.log.Info("direction request", "prompt", prompt)
}

func (p *logProgress) DirectorResponse(directive infty.DirectiveResponse) {
	p.log.Info("director response", "directive", directive.Directive)
}

func (p *logProgress) VerificationRequest(claimPath, notes string) {
	p.log.Info("verification request", "claim_path", claimPath, "notes", notes)
}

func (p *logProgress) VerifierVerdict(role string, verdict infty.VerifierVerdict) {
	p.log.Info("verifier verdict", "role", role, "verdict", string(verdict.Verdict))
}

func (p *logProgress) VerificationSummary(summary infty.AggregatedVerifierVerdict) {
	p.log.Info("verification summary", "overall", string(summary.Overall), "verdicts", len(summary.Verdicts))
}

func (p *logProgress) FinalDelivery(path, summary string) {
	p.log.Info("final delivery", "deliverable", path)
}

func (p *logProgress) RunInterrupted() {
	p.log.Info("run interrupted")
}
