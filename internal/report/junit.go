package report

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/wesleyorama2/perfgate/internal/stats"
	"github.com/wesleyorama2/perfgate/internal/threshold"
)

// JUnitFileName is the optional CI artifact.
const JUnitFileName = "performance_report.xml"

const junitSuiteName = "perfgate.thresholds"

// JUnitTestSuites is the root element of a JUnit document.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite holds one testcase per threshold check.
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemOut string          `xml:"system-out,omitempty"`
}

// JUnitTestCase is one threshold check.
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

// JUnitFailure describes a breached limit.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// RenderJUnit renders the threshold checks as a JUnit document so CI
// systems can show the gate as a test suite.
func RenderJUnit(rec stats.Record, result threshold.Result, generatedAt time.Time) ([]byte, error) {
	suite := JUnitTestSuite{
		Name:      junitSuiteName,
		Tests:     len(result.Checks),
		Timestamp: generatedAt.Format(time.RFC3339),
		TestCases: make([]JUnitTestCase, 0, len(result.Checks)),
		SystemOut: fmt.Sprintf("total_requests=%d failure_count=%d avg_response_time=%.2f percentile_95=%.2f error_rate=%.2f requests_per_sec=%.2f",
			rec.TotalRequests, rec.FailureCount, rec.AvgResponseTime, rec.Percentile95, rec.ErrorRate, rec.RequestsPerSec),
	}

	for _, c := range result.Checks {
		tc := JUnitTestCase{Name: c.Metric, Classname: junitSuiteName}
		if !c.Passed {
			suite.Failures++
			tc.Failure = &JUnitFailure{
				Message: c.Message,
				Type:    "ThresholdBreach",
				Content: fmt.Sprintf("%s: actual %.2f %s bound %s", c.Metric, c.Actual, c.Op, threshold.FormatBound(c.Bound)),
			}
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	doc := JUnitTestSuites{TestSuites: []JUnitTestSuite{suite}}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JUnit report: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
