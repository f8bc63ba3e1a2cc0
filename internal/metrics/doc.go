// Package metrics provides the observability hooks of the resolution pipeline.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be switched on without touching call sites:
//
//	orch := build.NewOrchestrator(c, builder)                    // no metrics
//	orch = orch.WithRecorder(metrics.NewPrometheusRecorder(reg)) // Prometheus
//
// PrometheusRecorder registers its collectors on the registry it is given and
// HTTPHandler exposes that registry on the admin listener.
package metrics
