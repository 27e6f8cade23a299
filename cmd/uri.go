package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"appserver/config"

	"github.com/spf13/cobra"
)

// errInvalidURI is returned when the connection parameters do not validate
var errInvalidURI = errors.New("database connection string is invalid")

type uriOutput struct {
	URI      string `json:"uri"`
	Database string `json:"database,omitempty"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

// newURICmd creates the 'uri' subcommand
func newURICmd() *cobra.Command {
	var showPassword bool

	cmd := &cobra.Command{
		Use:   "uri",
		Short: "Show the database connection string",
		Long: `Show the MongoDB connection string built from MONGO_USER, MONGO_PASSWORD and MONGO_PATH.

The password is masked unless --show-password is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := config.LoadSecrets(cfg); err != nil {
				return err
			}
			db := cfg.Database
			out := cmd.OutOrStdout()

			result := uriOutput{URI: db.Redacted(), Database: db.DatabaseName(), Valid: true}
			if err := db.Validate(); err != nil {
				result.Valid = false
				result.Error = err.Error()
			} else if showPassword {
				result.URI, _ = db.URI()
			}

			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				headerColor.Fprintln(out, "Database connection")
				fmt.Fprintf(out, "  %-10s %s\n", "URI:", result.URI)
				if result.Database != "" {
					fmt.Fprintf(out, "  %-10s %s\n", "Database:", result.Database)
				}
				if result.Valid {
					successColor.Fprintln(out, "✓ Connection parameters are valid")
					if showPassword {
						warningColor.Fprintln(out, "Warning: the password is shown in clear text")
					}
				} else {
					errorColor.Fprintf(out, "✗ %s\n", result.Error)
					infoColor.Fprintln(out, "Set MONGO_USER, MONGO_PASSWORD and MONGO_PATH (starting with '@')")
				}
			}

			if !result.Valid {
				return errInvalidURI
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPassword, "show-password", false, "Print the password in clear text")

	return cmd
}
