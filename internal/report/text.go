// Package report renders a validated load run as a text report and a
// JSON document, and persists both.
package report

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wesleyorama2/perfgate/internal/stats"
	"github.com/wesleyorama2/perfgate/internal/threshold"
)

const (
	reportWidth = 80

	// labelWidth aligns values in the summary and response time blocks.
	labelWidth = 25

	generatedLayout = "2006-01-02 15:04:05"
)

var counts = message.NewPrinter(language.English)

// RenderText returns the plain-text report. It never contains colour codes
// and does not end with a newline.
func RenderText(rec stats.Record, set threshold.Set, result threshold.Result, generatedAt time.Time) string {
	heavy := strings.Repeat("=", reportWidth)
	light := strings.Repeat("-", reportWidth)

	lines := []string{
		heavy,
		"PERFORMANCE TEST ANALYSIS REPORT",
		heavy,
		"Generated: " + generatedAt.Format(generatedLayout),
		"",
		"📊 SUMMARY STATISTICS",
		light,
		field("Total Requests:", counts.Sprintf("%d", rec.TotalRequests)),
		field("Failed Requests:", counts.Sprintf("%d", rec.FailureCount)),
		field("Error Rate:", fmt.Sprintf("%.2f%%", rec.ErrorRate)),
		field("Throughput:", fmt.Sprintf("%.2f RPS", rec.RequestsPerSec)),
		"",
		"⏱️  RESPONSE TIME METRICS (ms)",
		light,
		field("Average:", fmt.Sprintf("%.2f", rec.AvgResponseTime)),
		field("Minimum:", fmt.Sprintf("%.2f", rec.MinResponseTime)),
		field("Maximum:", fmt.Sprintf("%.2f", rec.MaxResponseTime)),
		field("Median:", fmt.Sprintf("%.2f", rec.MedianResponseTime)),
		field("95th Percentile:", fmt.Sprintf("%.2f", rec.Percentile95)),
		field("99th Percentile:", fmt.Sprintf("%.2f", rec.Percentile99)),
		"",
		"✅ THRESHOLD VALIDATION",
		light,
	}

	if result.Passed() {
		lines = append(lines,
			"✅ All performance thresholds met!",
			"",
			"  ✓ Average response time within limits",
			"  ✓ 95th percentile within limits",
			"  ✓ Error rate within limits",
			"  ✓ Throughput within limits",
		)
	} else {
		lines = append(lines, "❌ Performance threshold violations detected:", "")
		for _, v := range result.Violations {
			lines = append(lines, "  "+v)
		}
	}

	lines = append(lines, "", heavy)

	return strings.Join(lines, "\n")
}

func field(label, value string) string {
	return fmt.Sprintf("%-*s%s", labelWidth, label, value)
}
