package main

import (
	"os"

	"github.com/spf13/viper"

	"github.com/coinnode/coinnode/cmd/coinnode/commands"
	"github.com/coinnode/coinnode/config"
)

func main() {
	conf := config.DefaultConfig()
	v := viper.New()

	rootCmd := commands.RootCommand(v, conf)
	rootCmd.AddCommand(
		commands.MakeInitCommand(conf),
		commands.NewRunNodeCmd(conf),
		commands.MakeShowPeersCommand(conf),
		commands.MakeVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
