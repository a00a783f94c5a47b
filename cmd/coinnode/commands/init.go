package commands

import (
	"github.com/spf13/cobra"

	"github.com/coinnode/coinnode/config"
	cnos "github.com/coinnode/coinnode/libs/os"
)

// MakeInitCommand returns the command that creates the home directory with a
// default config file.
func MakeInitCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the coinnode home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(conf)
			if err != nil {
				return err
			}

			configFile := config.ConfigFile(conf.RootDir)
			if cnos.FileExists(configFile) {
				logger.Info("found config file", "path", configFile)
			} else {
				logger.Info("generated config file", "path", configFile)
			}
			if err := config.EnsureRoot(conf.RootDir); err != nil {
				return err
			}
			return cnos.EnsureDir(conf.AddrBook.PeerStoreDir(), 0700)
		},
	}
}
