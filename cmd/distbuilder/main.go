package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/distbuilder/cmd/distbuilder/commands"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Stdout: os.Stdout}
	ctx := kong.Parse(cli,
		kong.Name("distbuilder"),
		kong.Description("Builds and serves Highcharts distribution files on demand."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
		kong.Bind(global),
	)

	if err := ctx.Run(cli); err != nil {
		adapter := derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
		adapter.Log(err)
		fmt.Fprintln(os.Stderr, adapter.FormatError(err))
		os.Exit(adapter.ExitCodeFor(err))
	}
}
