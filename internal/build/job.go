package build

import "context"

// Job describes one invocation of the external builder.
type Job struct {
	// BaseDir holds the module master files named in Files.
	BaseDir string `json:"base"`
	// JSBase is the module source root imports are resolved against, when it
	// differs from the parent of BaseDir.
	JSBase    string         `json:"jsBase,omitempty"`
	OutputDir string         `json:"output"`
	Files     []string       `json:"files"`
	Type      string         `json:"type"`
	Version   string         `json:"version"`
	Pretty    bool           `json:"pretty"`
	Options   map[string]any `json:"options,omitempty"`

	// Target is the artifact the caller needs, relative to OutputDir. It is the
	// only file published from a build.
	Target string `json:"-"`
}

// Builder produces Files under OutputDir given module sources under BaseDir.
type Builder interface {
	Build(ctx context.Context, job Job) error
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context, job Job) error

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, job Job) error { return f(ctx, job) }
