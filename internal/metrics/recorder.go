package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultNotFound ResultLabel = "not_found"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Stage names shared by the pipeline components.
const (
	StageProbe    = "probe"
	StageFetch    = "fetch"
	StageTree     = "source_tree"
	StageBuild    = "build"
	StageCompile  = "compile"
	StageDownload = "download"
)

// Recorder defines observability hooks for the pipeline. Implementations may
// forward to Prometheus or similar backends.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncCacheLookup(stage string, hit bool)
	IncSharedFlight(stage string)
	ObserveRequest(status int, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are disabled).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncCacheLookup(string, bool)                {}
func (NoopRecorder) IncSharedFlight(string)                     {}
func (NoopRecorder) ObserveRequest(int, time.Duration)          {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
