package build

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

const (
	maxOutputInError = 4096
	// waitDelay bounds how long a killed tool's children may hold its pipes open.
	waitDelay = 2 * time.Second
)

// CommandBuilder invokes an external builder executable. The Job is written to
// its stdin as JSON; a non-zero exit is a failed build.
type CommandBuilder struct {
	command string
	args    []string
	timeout time.Duration
}

// NewCommandBuilder creates a builder running command with args.
func NewCommandBuilder(command string, args []string, timeout time.Duration) *CommandBuilder {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CommandBuilder{command: command, args: args, timeout: timeout}
}

// Build runs the builder for job.
func (b *CommandBuilder) Build(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return derrors.InternalError("failed to encode build job").WithCause(err).Build()
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := Run(ctx, b.command, b.args, payload)
	if err != nil {
		return derrors.BuildFailed("builder failed").
			WithCause(err).
			WithContext("command", b.command).
			WithContext("files", strings.Join(job.Files, ",")).
			WithContext("output", out).
			Build()
	}
	return nil
}

// Run executes command with stdin and returns its combined, truncated output.
// A context deadline is reported as such rather than as a kill signal.
func Run(ctx context.Context, command string, args []string, stdin []byte) (string, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	slog.Debug("Running external tool", slog.String("command", command), slog.Any("args", args))
	err := cmd.Run()

	if s := stdout.String(); s != "" {
		slog.Debug("external tool stdout", slog.String("command", command), slog.String("output", s))
	}
	if s := stderr.String(); s != "" {
		slog.Debug("external tool stderr", slog.String("command", command), slog.String("output", s))
	}
	if err == nil {
		slog.Debug("External tool finished", slog.String("command", command), logfields.Duration(time.Since(start)))
		return "", nil
	}

	output := strings.TrimSpace(stderr.String())
	if output == "" {
		output = strings.TrimSpace(stdout.String())
	}
	if len(output) > maxOutputInError {
		output = output[:maxOutputInError] + "..."
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return output, errors.Join(ctxErr, err)
	}
	return output, err
}
