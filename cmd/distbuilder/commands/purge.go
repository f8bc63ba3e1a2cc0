package commands

import (
	"fmt"

	"git.home.luguber.info/inful/distbuilder/internal/cache"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

// PurgeCmd implements the 'purge' command.
type PurgeCmd struct {
	Branches []string `arg:"" optional:"" help:"Branches to remove"`
	All      bool     `help:"Remove every cached branch"`
}

func (p *PurgeCmd) Run(g *Global, root *CLI) error {
	if len(p.Branches) == 0 && !p.All {
		return derrors.InvalidRequest("name at least one branch or pass --all").Build()
	}
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	applyLogging(g, cfg, root.Verbose)

	c, err := cache.New(cfg.Cache.Root)
	if err != nil {
		return err
	}
	if p.All {
		n, err := c.PurgeAll()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(g.Stdout, "purged %d branches\n", n)
		return err
	}
	for _, b := range p.Branches {
		if err := c.Purge(b); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(g.Stdout, "purged %s\n", b); err != nil {
			return err
		}
	}
	return nil
}
