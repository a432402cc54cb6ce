package observability

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics is the process-wide registry served at /metrics when enabled.
// Every method is safe on a nil receiver so callers never check Enabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	stageRuns    *CounterVec
	stageLatency *HistogramVec
	stageRetries *CounterVec
	queueDepth   *Gauge
	queueDropped *Counter

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	vectorOps     *CounterVec
	vectorLatency *HistogramVec
}

var (
	initMu   sync.Mutex
	instance *Metrics
)

func Current() *Metrics {
	initMu.Lock()
	defer initMu.Unlock()
	return instance
}

// Init installs the registry. When enabled is false the registry stays nil
// and every observation is a no-op.
func Init(enabled bool) *Metrics {
	initMu.Lock()
	defer initMu.Unlock()
	if !enabled {
		return instance
	}
	if instance != nil {
		return instance
	}
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	stage := []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}
	instance = &Metrics{
		apiRequests: NewCounterVec("ep_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("ep_api_request_duration_seconds", "API latency by method/route/status.", []string{"method", "route", "status"}, latency),
		apiInflight: NewGauge("ep_api_inflight_requests", "In-flight API requests."),

		stageRuns:    NewCounterVec("ep_pipeline_stage_total", "Pipeline stage runs by stage/outcome.", []string{"stage", "outcome"}),
		stageLatency: NewHistogramVec("ep_pipeline_stage_duration_seconds", "Pipeline stage duration by stage/outcome.", []string{"stage", "outcome"}, stage),
		stageRetries: NewCounterVec("ep_pipeline_stage_retries_total", "Pipeline stage retries by stage.", []string{"stage"}),
		queueDepth:   NewGauge("ep_pipeline_queue_depth", "Tasks waiting in the in-process queue."),
		queueDropped: NewCounter("ep_pipeline_queue_dropped_total", "Tasks dropped because the queue was full."),

		llmRequests: NewCounterVec("ep_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency:  NewHistogramVec("ep_llm_request_duration_seconds", "LLM latency by model/endpoint/status.", []string{"model", "endpoint", "status"}, latency),
		llmTokens:   NewCounterVec("ep_llm_tokens_total", "LLM tokens by model/kind.", []string{"model", "kind"}),

		vectorOps:     NewCounterVec("ep_vector_store_operations_total", "Vector store calls by provider/operation/status.", []string{"provider", "operation", "status"}),
		vectorLatency: NewHistogramVec("ep_vector_store_operation_duration_seconds", "Vector store latency by provider/operation/status.", []string{"provider", "operation", "status"}, latency),
	}
	return instance
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.stageRuns, m.stageLatency, m.stageRetries, m.queueDepth, m.queueDropped,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.vectorOps, m.vectorLatency,
	}
	for _, c := range writers {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// ObserveStage records one finished stage run. outcome is completed, failed
// or timeout.
func (m *Metrics) ObserveStage(stage, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.Inc(stage, outcome)
	m.stageLatency.Observe(dur.Seconds(), stage, outcome)
}

func (m *Metrics) IncStageRetry(stage string) {
	if m != nil {
		m.stageRetries.Inc(stage)
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) IncQueueDropped() {
	if m != nil {
		m.queueDropped.Inc()
	}
}

func (m *Metrics) StageCount(stage, outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.stageRuns.Value(stage, outcome)
}

func (m *Metrics) ObserveLLMRequest(model, endpoint string, status int, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.llmRequests.Inc(model, endpoint, code)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, code)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) ObserveVectorStoreOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Inc(provider, operation, status)
	if dur > 0 {
		m.vectorLatency.Observe(dur.Seconds(), provider, operation, status)
	}
}

func (m *Metrics) VectorStoreOperationCount(provider, operation, status string) float64 {
	if m == nil {
		return 0
	}
	return m.vectorOps.Value(provider, operation, status)
}
