package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	rule = "━"

	progressFilled = "█"
	progressEmpty  = "░"
	progressWidth  = 40
)

var numbers = message.NewPrinter(language.English)

// LiveStats is one progress sample of a running load test.
type LiveStats struct {
	Progress  float64 // 0.0 to 1.0
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveUsers int
	TargetUsers int

	RequestsPerSec float64
	TotalRequests  int64
	Failures       int64
	ErrorRate      float64 // percent

	AvgResponseTime float64 // ms
	Percentile95    float64 // ms

	Stage       int // 1-indexed, 0 when the run has no stages
	TotalStages int
}

// Console prints progress of a load run. On a terminal it redraws a
// block in place; elsewhere it appends one line per update.
type Console struct {
	title  string
	writer io.Writer
	isTTY  bool
	colors *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

// ConsoleConfig configures a Console.
type ConsoleConfig struct {
	Title    string
	Writer   io.Writer
	NoColor  bool
	ForceTTY bool
}

// NewConsole creates a Console.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	colors := NoColorScheme()
	if isTTY && !cfg.NoColor && supportsColors() {
		colors = DefaultColorScheme()
	}

	return &Console{
		title:  cfg.Title,
		writer: cfg.Writer,
		isTTY:  isTTY,
		colors: colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run title.
func (c *Console) PrintHeader() {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.colors.Value.Sprint(strings.Repeat(rule, 56))
	c.writeln(line)
	c.writeln(c.colors.Highlight.Sprint(c.title + " - Running"))
	c.writeln(line)
	c.writeln("")
}

// Update shows a new sample.
func (c *Console) Update(s LiveStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(c.renderLine(s))
		return
	}

	c.clear()
	lines := c.renderBlock(s)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// Finish removes the live block so a report can follow.
func (c *Console) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clear()
	}
}

func (c *Console) clear() {
	if c.linesOutput == 0 {
		return
	}
	fmt.Fprintf(c.writer, cursorUp, c.linesOutput)
	for i := 0; i < c.linesOutput; i++ {
		fmt.Fprint(c.writer, clearLine+"\n")
	}
	fmt.Fprintf(c.writer, cursorUp, c.linesOutput)
	c.linesOutput = 0
}

func (c *Console) renderBlock(s LiveStats) []string {
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(s.Elapsed), formatDuration(s.Elapsed+s.Remaining))
	lines := []string{
		fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Success.Sprint(progressBar(s.Progress, progressWidth)),
			fmt.Sprintf("%.0f%%", s.Progress*100),
			c.colors.Dim.Sprint(timeInfo)),
	}
	if s.TotalStages > 0 {
		lines = append(lines, fmt.Sprintf("Stage:    %d/%d", s.Stage, s.TotalStages))
	}

	errText := fmt.Sprintf("%s (%.1f%%)", formatNumber(s.Failures), s.ErrorRate)
	lines = append(lines,
		fmt.Sprintf("Users:    %s / %d", c.colors.Value.Sprint(s.ActiveUsers), s.TargetUsers),
		fmt.Sprintf("Requests: %s  RPS: %s",
			c.colors.Value.Sprint(formatNumber(s.TotalRequests)),
			c.colors.Value.Sprintf("%.1f", s.RequestsPerSec)),
		fmt.Sprintf("Failures: %s", c.colors.Rate(errText, s.ErrorRate, 1, 5)),
		fmt.Sprintf("Avg:      %.0fms  P95: %.0fms", s.AvgResponseTime, s.Percentile95),
	)
	return lines
}

func (c *Console) renderLine(s LiveStats) string {
	return fmt.Sprintf("[%s] Progress: %.0f%% | Users: %d/%d | Reqs: %s | RPS: %.1f | Failures: %s (%.1f%%) | P95: %.0fms",
		formatDuration(s.Elapsed),
		s.Progress*100,
		s.ActiveUsers,
		s.TargetUsers,
		formatNumber(s.TotalRequests),
		s.RequestsPerSec,
		formatNumber(s.Failures),
		s.ErrorRate,
		s.Percentile95)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	return numbers.Sprintf("%d", n)
}
