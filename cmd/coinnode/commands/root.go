package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coinnode/coinnode/config"
	"github.com/coinnode/coinnode/libs/cli"
	"github.com/coinnode/coinnode/libs/log"
)

// EnvPrefix is the prefix of environment variables overriding config
// options, e.g. COINNODE_LOG_LEVEL.
const EnvPrefix = "COINNODE"

// ParseConfig retrieves the configuration from v, sets up the coinnode root
// and validates the result.
func ParseConfig(v *viper.Viper, conf *config.Config) (*config.Config, error) {
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCommand constructs the root command-line entry point for coinnode.
// Subcommands see the parsed configuration through conf.
func RootCommand(v *viper.Viper, conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coinnode",
		Short: "Peer-to-peer cryptocurrency node",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == versionCmdName {
				return nil
			}

			pconf, err := ParseConfig(v, conf)
			if err != nil {
				return err
			}
			*conf = *pconf
			return nil
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("log_level", conf.LogLevel, "log level (debug | info | warn | error)")
	cmd.PersistentFlags().String("log_format", conf.LogFormat, "log format (plain | json)")

	defaultHome := os.ExpandEnv(filepath.Join("$HOME", config.DefaultCoinnodeDir))
	return cli.PrepareBaseCmd(cmd, v, EnvPrefix, defaultHome)
}

// newLogger returns the logger described by conf.
func newLogger(conf *config.Config) (log.Logger, error) {
	return log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
}
