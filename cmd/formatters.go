package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"elisedb/provision"
)

// renderReport displays the summary of a successful run
func renderReport(w io.Writer, report *provision.Report) {
	fmt.Fprintln(w)
	printSection(w, "Bootstrap Summary")
	printField(w, "Run ID", report.RunID)
	printField(w, "Database", report.Database)
	printField(w, "User", report.User)
	printField(w, "Started At", formatTime(report.StartedAt))
	printField(w, "Duration", formatDuration(report.Took))
	fmt.Fprintln(w)

	printSection(w, "Steps")
	for _, s := range report.Steps {
		if s.Name == provision.StepComplete {
			continue
		}
		successColor.Fprint(w, "  ✓ ")
		fmt.Fprintf(w, "%-18s %-30s %s\n", s.Name, s.Target, formatDuration(s.Took))
	}
}

// renderVerification displays the findings of a verify run
func renderVerification(w io.Writer, v *provision.Verification) {
	if v.OK() {
		successColor.Fprintf(w, "✓ %s matches the plan\n", v.Database)
		return
	}

	errorColor.Fprintf(w, "✗ %s differs from the plan\n", v.Database)
	headerColor.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%-12s %-30s %s\n", "Kind", "Target", "Finding")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, f := range v.Findings {
		fmt.Fprintf(w, "%-12s %-30s %s\n", f.Kind, f.Target, f.Message)
	}
	headerColor.Fprintln(w, strings.Repeat("=", 80))
	warningColor.Fprintf(w, "%d finding(s)\n", len(v.Findings))
}

// renderSteps lists the planned steps as YAML comments so the plan output
// stays a valid document
func renderSteps(w io.Writer, steps []provision.PlannedStep) {
	infoColor.Fprintln(w, "# steps:")
	for i, s := range steps {
		if s.Target == "" {
			infoColor.Fprintf(w, "#  %d. %s\n", i+1, s.Name)
			continue
		}
		infoColor.Fprintf(w, "#  %d. %s %s\n", i+1, s.Name, s.Target)
	}
}

// printSection prints a section header
func printSection(w io.Writer, title string) {
	headerColor.Fprintf(w, "  %s\n", title)
	headerColor.Fprintln(w, "  "+strings.Repeat("─", len(title)))
}

// printField prints a key-value field
func printField(w io.Writer, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-25s %s\n", key+":", value)
}

// formatTime formats a timestamp
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}
