// Package git mirrors a subtree of a branch or tag from a Git remote into a
// local directory. It is the git-backed alternative to the HTTP contents
// listing in package remote and needs a single shallow clone per branch
// instead of one request per file.
package git
