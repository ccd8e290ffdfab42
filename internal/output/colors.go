// Package output prints coloured status lines and live load-run progress
// to the console.
package output

import (
	"github.com/fatih/color"
)

// Verdict lines printed after a report.
const (
	PassedLine = "✅ Performance test PASSED"
	FailedLine = "❌ Performance test FAILED"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Success   *color.Color
	Error     *color.Color
	Warning   *color.Color
	Value     *color.Color
	Dim       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Success:   color.New(color.FgGreen, color.Bold),
		Error:     color.New(color.FgRed, color.Bold),
		Warning:   color.New(color.FgYellow),
		Value:     color.New(color.FgCyan),
		Dim:       color.New(color.Faint),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// ForceColorScheme returns the default scheme with colors enabled even
// when stdout is not a terminal.
func ForceColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// SchemeFor picks a scheme for the console: colors only when enabled and
// stdout is a terminal.
func SchemeFor(enabled bool) *ColorScheme {
	if !enabled || !StdoutIsTerminal() || !supportsColors() {
		return NoColorScheme()
	}
	return DefaultColorScheme()
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Success, s.Error, s.Warning, s.Value, s.Dim, s.Highlight}
}

// Verdict returns the final PASSED or FAILED line.
func (s *ColorScheme) Verdict(passed bool) string {
	if passed {
		return s.Success.Sprint(PassedLine)
	}
	return s.Error.Sprint(FailedLine)
}

// Rate colours a percentage green, yellow above warnAt and red above failAt.
func (s *ColorScheme) Rate(text string, pct, warnAt, failAt float64) string {
	switch {
	case pct > failAt:
		return s.Error.Sprint(text)
	case pct > warnAt:
		return s.Warning.Sprint(text)
	default:
		return s.Success.Sprint(text)
	}
}
