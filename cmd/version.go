package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the 'version' subcommand
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if outputJSON {
				return json.NewEncoder(out).Encode(map[string]string{
					"version": Version,
					"go":      runtime.Version(),
				})
			}
			_, err := fmt.Fprintf(out, "appserver %s (%s)\n", Version, runtime.Version())
			return err
		},
	}
}
