package commands

import (
	"github.com/codescope/codedb/pkg/config"
)

// loadConfigQuiet loads the configuration without initializing logging,
// for commands that only need a few settings.
func loadConfigQuiet() (*config.Config, error) {
	return config.Load(cfgFile)
}
