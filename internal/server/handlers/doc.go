// Package handlers implements the HTTP handlers of the distbuilder service.
//
// ArtifactHandlers serve the public surface: artifacts resolved through the
// pipeline, custom builds, the index page, the favicon and the health check.
// AdminHandlers serve the operator surface: event history, branch activity and
// cache purges. Every failure goes through the shared HTTPErrorAdapter.
package handlers
