package cmd

import (
	"github.com/spf13/cobra"

	"cqlmigrate/internal"
)

// version is set at build time via ldflags
var version = "0.0.0"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "cqlmigrate",
	Short: "Move a table between Cassandra-compatible clusters",
	Long: `cqlmigrate copies the rows of one table into an equivalent table on
another cluster, either through an intermediate flat file (extract, then
insert) or directly (end-to-end). Writes to the target are throttled to the
connection pool's capacity and transient write timeouts are retried.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			internal.SetLogLevel("debug")
		} else {
			internal.SetLogLevel("warn")
		}
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default is $HOME/.cqlmigrate/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
}
