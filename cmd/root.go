// Package cmd provides command-line interface commands for the application server.
package cmd

import (
	"appserver/api"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X appserver/cmd.Version=..."
var Version = "dev"

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	configFile string
	noColor    bool
)

// NewRootCmd creates the root command. controllers are mounted by serve.
func NewRootCmd(controllers ...api.Controller) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "appserver",
		Short: "HTTP application server",
		Long: `HTTP application server with a shared middleware stack and a MongoDB connection.

The database connection is configured with MONGO_USER, MONGO_PASSWORD and MONGO_PATH;
everything else is read from config.yaml or APP_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if configFile != "" {
				viper.SetConfigFile(configFile)
			}
		},
	}

	// Add persistent flags
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd(controllers))
	rootCmd.AddCommand(newURICmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
