// Package pipeline is the canonical request-to-artifact resolution path.
//
// A request runs through explicit sequential stages:
//
//	resolve path -> probe build system -> static fetch
//	                                   -> source tree -> build [-> compile]
//
// Each stage after the probe checks the cache first and only does network or
// build work on a miss. Failures are ClassifiedErrors; the HTTP boundary maps
// them to a status.
package pipeline
