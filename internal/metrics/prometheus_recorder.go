package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "distbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	stageResults    *prom.CounterVec
	cacheLookups    *prom.CounterVec
	sharedFlights   *prom.CounterVec
	requestDuration *prom.HistogramVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by stage and hit/miss",
		}, []string{"stage", "result"}),
		sharedFlights: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "shared_flights_total",
			Help:      "Callers that joined an in-flight fetch or build instead of starting one",
		}, []string{"stage"}),
		requestDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Artifact request duration by status code",
			Buckets:   prom.DefBuckets,
		}, []string{"code"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.cacheLookups, pr.sharedFlights, pr.requestDuration)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncCacheLookup(stage string, hit bool) {
	if p == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheLookups.WithLabelValues(stage, res).Inc()
}

func (p *PrometheusRecorder) IncSharedFlight(stage string) {
	if p == nil {
		return
	}
	p.sharedFlights.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) ObserveRequest(status int, d time.Duration) {
	if p == nil {
		return
	}
	p.requestDuration.WithLabelValues(strconv.Itoa(status)).Observe(d.Seconds())
}
