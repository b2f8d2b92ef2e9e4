// Package output renders packages, operations and update progress for the
// terminal.
//
// Tables use plain ASCII layout with ANSI colors when stdout is a TTY and
// NO_COLOR is unset. Progress indicators are safe for concurrent use.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/operations"
	"github.com/blackwell-systems/voidstore/internal/status"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// IsColorEnabled reports whether ANSI colors should be emitted: stdout is
// a terminal and NO_COLOR is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderPackageTable renders packages in the order given. Installed
// packages are marked with an asterisk.
func RenderPackageTable(records []xbps.PackageRecord) string {
	if len(records) == 0 {
		return "No packages found.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %-28s %-18s %s\n", "Package", "Version", "Description")
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")
	for _, rec := range records {
		marker := " "
		if rec.Installed {
			marker = colorize(colorGreen, "*")
		}
		fmt.Fprintf(&sb, "%s %-28s %-18s %s\n",
			marker,
			truncate(rec.Name, 28),
			truncate(rec.Version, 18),
			truncate(rec.Description, 40))
	}
	return sb.String()
}

// RenderUpdatesTable renders pending updates with their version change and
// download size.
func RenderUpdatesTable(updates []xbps.PackageRecord) string {
	if len(updates) == 0 {
		return "System is up to date.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-28s %-16s %-16s %s\n", "Package", "Installed", "Available", "Download")
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")
	var total uint64
	for _, rec := range updates {
		from := rec.PreviousVersion
		if from == "" {
			from = "-"
		}
		size := rec.DownloadSize
		if rec.DownloadBytes > 0 {
			size = xbps.FormatDownloadSize(rec.DownloadBytes)
			total += rec.DownloadBytes
		}
		if size == "" {
			size = "-"
		}
		fmt.Fprintf(&sb, "%-28s %-16s %-16s %s\n",
			truncate(rec.Name, 28),
			truncate(from, 16),
			colorize(colorCyan, truncate(rec.Version, 16)),
			size)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%d %s available", len(updates), plural(len(updates), "update", "updates"))
	if total > 0 {
		fmt.Fprintf(&sb, ", %s to download", xbps.FormatDownloadSize(total))
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderOperationsTable renders operation history, newest first as given.
func RenderOperationsTable(ops []operations.PackageOperation) string {
	if len(ops) == 0 {
		return "No operations recorded.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-5s %-24s %-24s %-12s %-16s %s\n", "ID", "Package", "Operation", "Status", "Started", "Took")
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")
	for _, op := range ops {
		took := "-"
		if op.Finalized() {
			took = op.Duration().Round(time.Millisecond).String()
		}
		// Pad before coloring so escape codes don't skew the columns.
		st := colorize(operationColor(op.Status), fmt.Sprintf("%-12s", op.Status))
		fmt.Fprintf(&sb, "%-5d %-24s %-24s %s %-16s %s\n",
			op.ID,
			truncate(op.Package, 24),
			truncate(op.Type.String(), 24),
			st,
			formatRelativeTime(op.StartedAt),
			took)
		if op.Status == operations.StatusFailed && op.Error != "" {
			fmt.Fprintf(&sb, "      %s\n", colorize(colorGray, xbps.SummarizeOutputLine(op.Error)))
		}
	}
	return sb.String()
}

func operationColor(s operations.Status) string {
	switch s {
	case operations.StatusSuccess:
		return colorGreen
	case operations.StatusWarning:
		return colorYellow
	case operations.StatusFailed:
		return colorRed
	default:
		return colorGray
	}
}

// RenderUpdateStatus renders the per-package stage of an update batch,
// sorted by name.
func RenderUpdateStatus(statuses map[string]status.UpdateStatus) string {
	if len(statuses) == 0 {
		return ""
	}
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		st := statuses[name]
		fmt.Fprintf(&sb, "  %-28s %s\n", truncate(name, 28), colorize(updateColor(st), st.Label()))
	}
	return sb.String()
}

func updateColor(s status.UpdateStatus) string {
	switch s {
	case status.Completed:
		return colorGreen
	case status.Failed:
		return colorRed
	case status.Queued:
		return colorGray
	default:
		return colorCyan
	}
}

// RenderInstalledDetail renders the detail view of an installed package.
func RenderInstalledDetail(d xbps.InstalledDetail) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", d.Name)
	if d.LongDescription != "" {
		fmt.Fprintf(&sb, "\n%s\n\n", d.LongDescription)
	}
	size := d.Size
	if d.SizeError != "" {
		size = "unknown (" + d.SizeError + ")"
	}
	writeField(&sb, "Installed size", size)
	writeField(&sb, "Homepage", d.Homepage)
	writeField(&sb, "Maintainer", d.Maintainer)
	writeField(&sb, "License", d.License)
	switch {
	case d.RequiredByError != "":
		writeField(&sb, "Required by", "unknown ("+d.RequiredByError+")")
	case len(d.RequiredBy) == 0:
		writeField(&sb, "Required by", "nothing")
	default:
		writeField(&sb, "Required by", strings.Join(d.RequiredBy, ", "))
	}
	return sb.String()
}

// RenderDiscoverDetail renders the detail view of a repository package.
func RenderDiscoverDetail(d xbps.DiscoverDetail) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", d.Name, d.Version)
	if d.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n\n", d.Description)
	}
	writeField(&sb, "Download size", d.Download)
	writeField(&sb, "Repository", d.Repository)
	writeField(&sb, "Homepage", d.Homepage)
	writeField(&sb, "Maintainer", d.Maintainer)
	writeField(&sb, "License", d.License)
	writeField(&sb, "Changelog", d.Changelog)
	if len(d.Dependencies) > 0 {
		names := make([]string, len(d.Dependencies))
		for i, dep := range d.Dependencies {
			names[i] = dep.Name
		}
		writeField(&sb, "Depends on", strings.Join(names, ", "))
	}
	return sb.String()
}

func writeField(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "%-15s %s\n", label+":", value)
}

// RenderSpotlight renders recently built packages with their build age.
func RenderSpotlight(records []xbps.PackageRecord) string {
	if len(records) == 0 {
		return "No recently updated packages.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %-28s %-18s %-16s %s\n", "Package", "Version", "Built", "Description")
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")
	for _, rec := range records {
		marker := " "
		if rec.Installed {
			marker = colorize(colorGreen, "*")
		}
		version := rec.Version
		if rec.PreviousVersion != "" {
			version = rec.PreviousVersion + " → " + rec.Version
		}
		fmt.Fprintf(&sb, "%s %-28s %-18s %-16s %s\n",
			marker,
			truncate(rec.Name, 28),
			truncate(version, 18),
			formatRelativeTime(rec.BuildDate),
			truncate(rec.Description, 30))
	}
	return sb.String()
}

// RenderMaintenance renders the outcome of a maintenance task.
func RenderMaintenance(task agent.MaintenanceTask, res agent.MaintenanceResult) string {
	var sb strings.Builder
	if res.Error != "" {
		fmt.Fprintf(&sb, "%s %s failed: %s\n", colorize(colorRed, "✗"), task, res.Error)
	} else {
		fmt.Fprintf(&sb, "%s %s finished\n", colorize(colorGreen, "✓"), task)
	}
	if out := strings.TrimSpace(res.Result.Stdout); out != "" {
		sb.WriteString("\n")
		sb.WriteString(out)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderMirrors lists the known mirrors. Selected mirrors are marked with
// an asterisk and mirrors found in the system configuration with "active".
func RenderMirrors(mirrors []xbps.Mirror, selected, detected []string) string {
	isSelected := make(map[string]bool, len(selected))
	for _, id := range selected {
		isSelected[id] = true
	}
	isDetected := make(map[string]bool, len(detected))
	for _, id := range detected {
		isDetected[id] = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %-14s %-12s %s\n", "Mirror", "Region", "Host")
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")
	for _, m := range mirrors {
		marker := " "
		if isSelected[m.ID] {
			marker = colorize(colorGreen, "*")
		}
		region := m.Region
		if m.Tor {
			region += " (Tor)"
		}
		fmt.Fprintf(&sb, "%s %-14s %-12s %s", marker, m.ID, truncate(region, 12), truncate(m.Host(), 40))
		if isDetected[m.ID] {
			sb.WriteString(" " + colorize(colorCyan, "active"))
		}
		sb.WriteString("\n")
	}
	if len(selected) == 0 {
		sb.WriteString("\nNo mirror selected, updates use the system repository configuration.\n")
	}
	return sb.String()
}

// formatRelativeTime renders t relative to now, e.g. "3 days ago".
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// truncate shortens s to n runes, ending with "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
