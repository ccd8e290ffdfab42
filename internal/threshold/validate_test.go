package threshold

import (
	"reflect"
	"testing"

	"github.com/wesleyorama2/perfgate/internal/stats"
)

func healthyRecord() stats.Record {
	return stats.Record{
		TotalRequests:   1000,
		FailureCount:    10,
		AvgResponseTime: 500,
		Percentile95:    1200,
		RequestsPerSec:  40,
		ErrorRate:       1.0,
	}
}

func TestValidate_AllPass(t *testing.T) {
	result := Validate(healthyRecord(), Default())
	if !result.Passed() {
		t.Fatalf("Passed() = false, violations %v", result.Violations)
	}
	if len(result.Checks) != 4 {
		t.Errorf("len(Checks) = %d, want 4", len(result.Checks))
	}
}

func TestValidate_BoundariesPass(t *testing.T) {
	rec := stats.Record{
		AvgResponseTime: 2000,
		Percentile95:    3000,
		ErrorRate:       5.0,
		RequestsPerSec:  10,
	}

	result := Validate(rec, Default())
	if !result.Passed() {
		t.Errorf("values equal to the limits produced violations: %v", result.Violations)
	}
}

func TestValidate_SingleViolation(t *testing.T) {
	rec := stats.Record{
		AvgResponseTime: 2500,
		Percentile95:    2000,
		ErrorRate:       1.0,
		RequestsPerSec:  50,
	}

	result := Validate(rec, Default())
	want := []string{"❌ Average response time (2500.00ms) exceeds threshold (2000ms)"}
	if !reflect.DeepEqual(result.Violations, want) {
		t.Errorf("Violations = %q, want %q", result.Violations, want)
	}
	if result.Passed() {
		t.Error("Passed() = true, want false")
	}
}

func TestValidate_AllViolationsInOrder(t *testing.T) {
	rec := stats.Record{
		AvgResponseTime: 2000.004,
		Percentile95:    3500.5,
		ErrorRate:       12.346,
		RequestsPerSec:  9.999,
	}

	result := Validate(rec, Default())
	want := []string{
		"❌ Average response time (2000.00ms) exceeds threshold (2000ms)",
		"❌ 95th percentile (3500.50ms) exceeds threshold (3000ms)",
		"❌ Error rate (12.35%) exceeds threshold (5.0%)",
		"❌ Throughput (10.00 RPS) below threshold (10 RPS)",
	}
	if !reflect.DeepEqual(result.Violations, want) {
		t.Errorf("Violations =\n%q\nwant\n%q", result.Violations, want)
	}
}

func TestValidate_ZeroThroughputFails(t *testing.T) {
	rec := healthyRecord()
	rec.RequestsPerSec = 0

	result := Validate(rec, Default())
	if len(result.Violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(result.Violations), result.Violations)
	}
	if got, want := result.Violations[0], "❌ Throughput (0.00 RPS) below threshold (10 RPS)"; got != want {
		t.Errorf("violation = %q, want %q", got, want)
	}
}

func TestValidate_CustomBoundsFormatting(t *testing.T) {
	set := Set{MaxAvgResponseTime: 150.5, Max95Percentile: 3000, MaxErrorRate: 7.5, MinRPS: 0.25}
	rec := stats.Record{AvgResponseTime: 151, ErrorRate: 8, RequestsPerSec: 0.1}

	result := NewValidator(set).Validate(rec)
	want := []string{
		"❌ Average response time (151.00ms) exceeds threshold (150.5ms)",
		"❌ Error rate (8.00%) exceeds threshold (7.5%)",
		"❌ Throughput (0.10 RPS) below threshold (0.25 RPS)",
	}
	if !reflect.DeepEqual(result.Violations, want) {
		t.Errorf("Violations = %q, want %q", result.Violations, want)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	rec := stats.Record{AvgResponseTime: 4000, Percentile95: 9000, ErrorRate: 50, RequestsPerSec: 1}
	v := NewValidator(Default())

	first := v.Validate(rec)
	for i := 0; i < 10; i++ {
		if got := v.Validate(rec); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestValidate_ChecksCarryActuals(t *testing.T) {
	result := Validate(healthyRecord(), Default())

	wantMetrics := []string{"avg_response_time", "percentile_95", "error_rate", "requests_per_sec"}
	for i, c := range result.Checks {
		if c.Metric != wantMetrics[i] {
			t.Errorf("Checks[%d].Metric = %q, want %q", i, c.Metric, wantMetrics[i])
		}
		if !c.Passed || c.Message != "" {
			t.Errorf("Checks[%d] = %+v, want passed with no message", i, c)
		}
	}
	if result.Checks[3].Op != "<" {
		t.Errorf("throughput op = %q, want <", result.Checks[3].Op)
	}
}
