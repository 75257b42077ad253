package processing

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/DeafMist/log-census/internal/models"
)

// artifact matches the ":..." noise left behind by the log exporter.
var artifact = regexp.MustCompile(`:\.+`)

// Marker names the substrings counted by Count.
const (
	MarkerInfo    = "INFO"
	MarkerTrace   = "TRACE"
	MarkerEvent   = "EVENT"
	MarkerProtErr = "PROTERR"
)

// Lines splits text on newlines, dropping a trailing carriage return from
// every line. Empty text has no lines.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// Clean strips the artifact pattern from every line and drops lines that are
// blank or purely numeric. The result is newline-joined without a trailing
// newline, and Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	lines := Lines(raw)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = RemoveArtifacts(line)
		if isNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// RemoveArtifacts removes every colon followed by one or more periods.
func RemoveArtifacts(line string) string {
	return artifact.ReplaceAllString(line, "")
}

func isNoise(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	return IsNumeric(trimmed)
}

// IsNumeric reports whether s is non-empty and made only of digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Count tallies, per marker, how many lines of the cleaned text contain it.
// A line containing several markers counts towards each of them.
func Count(cleaned string) models.CountSummary {
	var summary models.CountSummary
	for _, line := range Lines(cleaned) {
		if strings.Contains(line, MarkerInfo) {
			summary.InfoCount++
		}
		if strings.Contains(line, MarkerTrace) {
			summary.TraceCount++
		}
		if strings.Contains(line, MarkerEvent) {
			summary.EventCount++
		}
		if strings.Contains(line, MarkerProtErr) {
			summary.ProtErrCount++
		}
	}
	return summary
}
