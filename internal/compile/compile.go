// Package compile runs the external minifying compiler over a built artifact.
//
// The compiled file is a sibling of its input: "custom.src.js" becomes
// "custom.js" and any other "name.js" becomes "name.min.js". The compiler
// writes to a temporary name first, so a file carrying the compiled name only
// exists once compilation succeeded and produced content.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/distbuilder/internal/build"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
)

// Placeholders substituted in configured compiler arguments.
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// Compiler produces a minified sibling of src and returns its path.
type Compiler interface {
	Compile(ctx context.Context, src string) (string, error)
}

// CompiledName returns the conventional compiled sibling of src.
func CompiledName(src string) string {
	dir, base := filepath.Split(src)
	if name, ok := strings.CutSuffix(base, ".src.js"); ok {
		return filepath.Join(dir, name+".js")
	}
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".min"+ext)
}

// CommandCompiler runs an external compiler executable.
type CommandCompiler struct {
	command  string
	args     []string
	timeout  time.Duration
	recorder metrics.Recorder
}

// NewCommandCompiler creates a compiler running command. args may reference
// {input} and {output}; when they do not, both paths are appended in that order.
func NewCommandCompiler(command string, args []string, timeout time.Duration) *CommandCompiler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CommandCompiler{command: command, args: args, timeout: timeout, recorder: metrics.NoopRecorder{}}
}

// WithRecorder attaches a metrics recorder.
func (c *CommandCompiler) WithRecorder(r metrics.Recorder) *CommandCompiler {
	c.recorder = metrics.OrNoop(r)
	return c
}

// Compile minifies src into its compiled sibling.
func (c *CommandCompiler) Compile(ctx context.Context, src string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", derrors.NotFound("Could not find file to compile").WithCause(err).WithContext("path", src).Build()
	}
	dst := CompiledName(src)
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-"+uuid.NewString()[:8])
	defer func() { _ = os.Remove(tmp) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := build.Run(ctx, c.command, c.expandArgs(src, tmp), nil)
	c.recorder.ObserveStageDuration(metrics.StageCompile, time.Since(start))
	if err != nil {
		c.recorder.IncStageResult(metrics.StageCompile, metrics.ResultFailed)
		return "", derrors.CompileFailed("compiler failed").
			WithCause(err).
			WithContext("path", src).
			WithContext("output", out).
			Build()
	}
	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		c.recorder.IncStageResult(metrics.StageCompile, metrics.ResultFailed)
		return "", derrors.CompileFailed(fmt.Sprintf("compiler produced no %s", filepath.Base(dst))).
			WithContext("path", src).
			WithContext("output", out).
			Build()
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", derrors.InternalIO("publish compiled file").WithCause(err).WithContext("path", dst).Build()
	}
	c.recorder.IncStageResult(metrics.StageCompile, metrics.ResultSuccess)
	slog.Info("Compiled artifact", logfields.Path(dst), logfields.Duration(time.Since(start)))
	return dst, nil
}

func (c *CommandCompiler) expandArgs(input, output string) []string {
	args := make([]string, 0, len(c.args)+2)
	substituted := false
	for _, a := range c.args {
		if strings.Contains(a, InputPlaceholder) || strings.Contains(a, OutputPlaceholder) {
			substituted = true
			a = strings.ReplaceAll(a, InputPlaceholder, input)
			a = strings.ReplaceAll(a, OutputPlaceholder, output)
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, input, output)
	}
	return args
}
