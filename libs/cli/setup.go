package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	HomeFlag = "home"
)

// PrepareBaseCmd adds the persistent home flag to cmd and makes every
// command load the environment, its flags and the config file into v before
// it runs.
func PrepareBaseCmd(cmd *cobra.Command, v *viper.Viper, envPrefix, defaultHome string) *cobra.Command {
	cmd.PersistentFlags().StringP(HomeFlag, "", defaultHome, "directory for config and data")
	cmd.PersistentPreRunE = concatCobraCmdFuncs(
		func(cmd *cobra.Command, args []string) error {
			InitEnv(v, envPrefix)
			return BindFlagsLoadViper(v, cmd)
		},
		cmd.PersistentPreRunE,
	)
	return cmd
}

// InitEnv makes v read variables like PREFIX_LOG_LEVEL from the environment.
func InitEnv(v *viper.Viper, prefix string) {
	// This copies all variables like COINNODEHOME to COINNODE_HOME,
	// so we can support both formats for the user
	prefix = strings.ToUpper(prefix)
	ps := prefix + "_"
	for _, e := range os.Environ() {
		kv := strings.SplitN(e, "=", 2)
		if len(kv) == 2 {
			k, val := kv[0], kv[1]
			if strings.HasPrefix(k, prefix) && !strings.HasPrefix(k, ps) {
				k2 := strings.Replace(k, prefix, ps, 1)
				os.Setenv(k2, val)
			}
		}
	}

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

type cobraCmdFunc func(cmd *cobra.Command, args []string) error

// Returns a single function that calls each argument function in sequence
// RunE, PreRunE, PersistentPreRunE, etc. all have this same signature
func concatCobraCmdFuncs(fs ...cobraCmdFunc) cobraCmdFunc {
	return func(cmd *cobra.Command, args []string) error {
		for _, f := range fs {
			if f != nil {
				if err := f(cmd, args); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// BindFlagsLoadViper binds the flags of cmd to v and reads the config file
// from the home directory, if there is one.
func BindFlagsLoadViper(v *viper.Viper, cmd *cobra.Command) error {
	// cmd.Flags() includes flags from this command and all persistent flags from the parent
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	homeDir := v.GetString(HomeFlag)
	v.Set(HomeFlag, homeDir)
	v.SetConfigName("config")                         // name of config file (without extension)
	v.SetConfigType("toml")                           // config.toml
	v.AddConfigPath(homeDir)                          // search root directory
	v.AddConfigPath(filepath.Join(homeDir, "config")) // search root directory /config

	// ignore not found error, return other errors
	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return err
	}
	return nil
}
