package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/distbuilder/internal/cache"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/pipeline"
)

// ResolveCmd implements the 'resolve' command: one pipeline run without a server.
type ResolveCmd struct {
	Path    string `arg:"" help:"Request path, e.g. /stable/modules/exporting.js or / with --parts"`
	Parts   string `help:"JSON list of {baseUrl, name} parts for a custom build"`
	Compile bool   `help:"Minify a custom build"`
	Output  string `short:"o" help:"Copy the artifact to this file (required for custom builds, which are not kept)"`
}

func (r *ResolveCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	applyLogging(g, cfg, root.Verbose)

	ctx := context.Background()
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	art, err := app.Pipeline.Resolve(ctx, r.Path, pipeline.Query{Parts: r.Parts, Compile: r.Compile})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pipeline.Cleanup(art); cerr != nil {
			slog.Warn("Failed to remove temporary artifact", logfields.Path(art.Path), logfields.Error(cerr))
		}
	}()

	dst := r.Output
	if dst == "" && art.Delete {
		dst = filepath.Base(art.Path)
	}
	if dst == "" {
		_, err = fmt.Fprintln(g.Stdout, art.Path)
		return err
	}
	if err := copyArtifact(art.Path, dst); err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.Stdout, dst)
	return err
}

func copyArtifact(src, dst string) error {
	f, err := os.Open(src) // #nosec G304 - path resolved inside the cache root
	if err != nil {
		return derrors.InternalIO("open artifact").WithCause(err).WithContext("path", src).Build()
	}
	defer func() { _ = f.Close() }()
	if _, err := cache.WriteFileAtomic(dst, f); err != nil {
		return derrors.InternalIO("copy artifact").WithCause(err).WithContext("path", dst).Build()
	}
	return nil
}
