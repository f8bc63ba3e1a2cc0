package pipeline

import (
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/request"
)

// Origin tells how an artifact was obtained.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginBuilt    Origin = "built"
	OriginShared   Origin = "shared"
	OriginFetched  Origin = "fetched"
	OriginDownload Origin = "download"
)

// Artifact is a resolved file ready to be served.
type Artifact struct {
	Path string
	// Delete marks Path (and ScratchDir, when set) for removal after serving.
	Delete     bool
	ScratchDir string
	Request    request.FileRequest
	Origin     Origin
}

// Outcome is reported to observers after every resolution.
type Outcome struct {
	ID       string
	Time     time.Time
	Path     string
	Request  request.FileRequest
	Origin   Origin
	Artifact string
	Duration time.Duration
	Err      error
}

// Failed reports whether the resolution failed.
func (o Outcome) Failed() bool { return o.Err != nil }
