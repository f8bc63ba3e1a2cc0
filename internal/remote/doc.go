// Package remote talks to the remote source repository: the build-system probe,
// single file downloads and the directory mirror used to populate the cache.
//
// Raw files are addressed as <raw_root>/<branch>/<subpath>. Directory listings use
// the GitHub contents API shape (<api_root>/<subpath>?ref=<branch>).
package remote
