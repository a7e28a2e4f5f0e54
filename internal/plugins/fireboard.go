package plugins

import (
	"github.com/joshp123/gohome-fireboard/internal/config"
	"github.com/joshp123/gohome-fireboard/internal/core"
	"github.com/joshp123/gohome-fireboard/plugins/fireboard"
)

func init() {
	Register(func(cfg *config.Config, env Env) (core.Plugin, bool) {
		return fireboard.NewPlugin(cfg.Fireboard, env.HTTPClient, env.Logger)
	})
}
