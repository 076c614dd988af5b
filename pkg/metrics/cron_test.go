package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveDuration("auto-release", 250*time.Millisecond)
	m.IncSuccess("auto-release")
	m.IncFailure("auto-release")
	m.IncFailure("auto-release")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	runs := findMetricFamily(mfs, "vendorlution_cron_job_runs_total")
	if runs == nil {
		t.Fatalf("runs counter not exported")
	}
	results := map[string]float64{}
	for _, metric := range runs.GetMetric() {
		if !matchesLabel(metric.GetLabel(), "job", "auto_release") {
			t.Fatalf("job label not normalised: %v", metric.GetLabel())
		}
		for _, l := range metric.GetLabel() {
			if l.GetName() == "result" {
				results[l.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if results["success"] != 1 || results["failure"] != 2 {
		t.Fatalf("unexpected run counts %v", results)
	}

	if got, err := fetchHistogramSum(mfs, "vendorlution_cron_job_duration_seconds", "job", "auto_release"); err != nil || got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f err=%v", got, err)
	}
	if got, err := fetchGaugeValue(mfs, "vendorlution_cron_job_last_success_timestamp_seconds", "job", "auto_release"); err != nil || got <= 0 {
		t.Fatalf("expected last success timestamp, got %f err=%v", got, err)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.ObserveDuration("x", time.Second)
	NewCronJobMetrics(nil).IncSuccess("x")
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"":                  "unknown",
		"Stale-Intents":     "stale_intents",
		" outbox.retention": "outbox_retention",
	}
	for in, want := range cases {
		if got := normalizeLabel(in); got != want {
			t.Errorf("normalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetGauge().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findSeries(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
