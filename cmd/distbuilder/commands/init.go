package commands

import (
	"fmt"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	if err := config.Init(root.Config, i.Force); err != nil {
		return derrors.ConfigError("write configuration").WithCause(err).WithContext("path", root.Config).Build()
	}
	_, err := fmt.Fprintf(g.Stdout, "Wrote example configuration to %s\n", root.Config)
	return err
}
