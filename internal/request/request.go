// Package request resolves an incoming asset path into the identity of the
// artifact the caller wants.
//
// Path grammar:
//
//	/<branch>/[js|styled/]<file>
//
// The first segment names the branch. A "js" or "styled" marker selects the
// styled build of a JavaScript file. Files that are not JavaScript resolve to
// ArtifactOther and are always served as static files. A file without an
// extension gets ".js" appended. A single segment path uses the default branch.
package request

import (
	"path"
	"strings"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

// ArtifactType determines which output subtree and naming convention apply.
type ArtifactType string

const (
	ArtifactClassic ArtifactType = "classic"
	ArtifactStyled  ArtifactType = "css"
	ArtifactOther   ArtifactType = "other"
)

const (
	canonicalExt = ".js"
	styledDir    = "js"
)

// styledMarkers select ArtifactStyled when they follow the branch segment.
var styledMarkers = map[string]bool{"js": true, "styled": true}

// FileRequest is the fully resolved identity of a requested artifact.
type FileRequest struct {
	Branch string
	Type   ArtifactType
	// File is relative to the artifact type root, e.g. "modules/exporting.js".
	File string
}

// IsScript reports whether the artifact can be produced by the builder.
func (r FileRequest) IsScript() bool {
	return r.Type != ArtifactOther
}

// OutputSubpath is the location of the artifact below a branch output directory.
func (r FileRequest) OutputSubpath() string {
	if r.Type == ArtifactStyled {
		return path.Join(styledDir, r.File)
	}
	return r.File
}

// Path renders the canonical request path that resolves back to r.
func (r FileRequest) Path() string {
	if r.Type == ArtifactStyled {
		return "/" + path.Join(r.Branch, styledDir, r.File)
	}
	return "/" + path.Join(r.Branch, r.File)
}

// Key is a stable identifier used for logging and per-key coordination.
func (r FileRequest) Key() string {
	return string(r.Type) + ":" + r.Branch + "/" + r.File
}

// Resolver parses request paths. It is pure: same input, same output.
type Resolver struct {
	defaultBranch string
}

// NewResolver returns a Resolver that uses defaultBranch for single segment paths.
// An empty defaultBranch makes such paths invalid.
func NewResolver(defaultBranch string) *Resolver {
	return &Resolver{defaultBranch: defaultBranch}
}

// Resolve parses p (a URL path, query already stripped) into a FileRequest.
func (r *Resolver) Resolve(p string) (FileRequest, error) {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		return FileRequest{}, invalid(p, "empty path")
	}
	for _, s := range segments {
		if err := checkSegment(p, s); err != nil {
			return FileRequest{}, err
		}
	}

	var req FileRequest
	if len(segments) == 1 {
		if r.defaultBranch == "" {
			return FileRequest{}, invalid(p, "missing branch")
		}
		req.Branch = r.defaultBranch
	} else {
		req.Branch = segments[0]
		segments = segments[1:]
	}

	req.Type = ArtifactClassic
	if len(segments) > 1 && styledMarkers[segments[0]] {
		req.Type = ArtifactStyled
		segments = segments[1:]
	}

	name := segments[len(segments)-1]
	ext := path.Ext(name)
	switch {
	case ext == "":
		segments[len(segments)-1] = name + canonicalExt
	case ext != canonicalExt:
		if req.Type == ArtifactStyled {
			return FileRequest{}, invalid(p, "styled artifacts must be JavaScript")
		}
		req.Type = ArtifactOther
	}
	req.File = strings.Join(segments, "/")
	return req, nil
}

func checkSegment(p, s string) error {
	if s == "" || strings.HasPrefix(s, ".") {
		return invalid(p, "empty, relative or hidden path segment")
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_':
		default:
			return invalid(p, "disallowed character in path")
		}
	}
	return nil
}

func invalid(p, reason string) error {
	return derrors.InvalidRequest("Invalid file path "+p+": "+reason).
		WithContext("path", p).
		Build()
}
