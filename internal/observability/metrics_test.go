package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStage("extraction", "completed", time.Second)
	m.ObserveLLMRequest("gpt", "/v1/responses", 200, time.Second, 10, 5)
	m.SetQueueDepth(3)
	if got := m.StageCount("extraction", "completed"); got != 0 {
		t.Fatalf("nil count: want=0 got=%v", got)
	}
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil || buf.Len() != 0 {
		t.Fatalf("nil write: err=%v len=%d", err, buf.Len())
	}
}

func TestStageMetricsRenderPrometheusText(t *testing.T) {
	m := &Metrics{
		stageRuns:    NewCounterVec("ep_pipeline_stage_total", "runs", []string{"stage", "outcome"}),
		stageLatency: NewHistogramVec("ep_pipeline_stage_duration_seconds", "latency", []string{"stage", "outcome"}, []float64{1, 10}),
	}
	m.ObserveStage("indexing", "completed", 2*time.Second)
	m.ObserveStage("indexing", "completed", 500*time.Millisecond)
	m.ObserveStage("generation", "timeout", 20*time.Second)

	if got := m.StageCount("indexing", "completed"); got != 2 {
		t.Fatalf("count: want=2 got=%v", got)
	}
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`ep_pipeline_stage_total{stage="generation",outcome="timeout"} 1.000000`,
		`ep_pipeline_stage_duration_seconds_bucket{stage="indexing",outcome="completed",le="1"} 1`,
		`ep_pipeline_stage_duration_seconds_bucket{stage="indexing",outcome="completed",le="+Inf"} 2`,
		`ep_pipeline_stage_duration_seconds_count{stage="indexing",outcome="completed"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing line %q in:\n%s", want, out)
		}
	}
}

func TestLabelStringEscapesAndDefaults(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`x"y`})
	if got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labels: got=%s", got)
	}
}
