// Package build turns cached module sources into built artifacts.
//
// The Orchestrator owns the cache discipline around the external builder:
// a missing module master is NotFound without running anything, an existing
// output is a cache hit, and a miss runs the Builder inside a private staging
// directory whose result is renamed into the output directory only when the
// builder succeeded. Concurrent builds of the same output share one run.
//
// Builder is the opaque collaborator. CommandBuilder runs a configured
// executable and hands it the Job as JSON on stdin.
package build
