package commands

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/coinnode/coinnode/version"
)

const versionCmdName = "version"

// MakeVersionCommand returns the command that prints the version.
func MakeVersionCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   versionCmdName,
		Short: "Show version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return nil
			}

			values, err := json.MarshalIndent(struct {
				Coinnode  string `json:"coinnode"`
				GitCommit string `json:"git_commit,omitempty"`
				Go        string `json:"go"`
			}{
				Coinnode:  version.CoinnodeSemVer,
				GitCommit: version.GitCommit,
				Go:        runtime.Version(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(values))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show build details")
	return cmd
}
