package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

// Global holds state shared by every subcommand.
type Global struct {
	// Level is adjusted at runtime when the config file changes.
	Level  slog.LevelVar
	Stdout io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml" env:"DISTBUILDER_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve     ServeCmd   `cmd:"" default:"1" help:"Serve distribution files over HTTP"`
	Resolve   ResolveCmd `cmd:"" help:"Resolve one request path and print the artifact location"`
	Purge     PurgeCmd   `cmd:"" help:"Remove cached branches"`
	Init      InitCmd    `cmd:"" help:"Write an example configuration file"`
	BuildInfo VersionCmd `cmd:"" name:"version" help:"Show build information"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	if c.Verbose {
		g.Level.Set(slog.LevelDebug)
	}
	if g.Stdout == nil {
		g.Stdout = os.Stdout
	}
	slog.SetDefault(newLogger(os.Stderr, config.LogFormatText, &g.Level))
	return nil
}

func newLogger(w io.Writer, format config.LogFormat, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// applyLogging switches the default logger to the configured format and level.
// -v always wins over the configured level.
func applyLogging(g *Global, cfg *config.Config, verbose bool) {
	if !verbose {
		g.Level.Set(cfg.Logging.Level.SlogLevel())
	}
	slog.SetDefault(newLogger(os.Stderr, cfg.Logging.Format, &g.Level))
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, derrors.ConfigError("load configuration").WithCause(err).WithContext("path", path).Build()
	}
	return cfg, nil
}
