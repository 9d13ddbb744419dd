package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cqlmigrate/config"
	"cqlmigrate/migrate"
)

var checkCmd = &cobra.Command{
	Use:           "check",
	Short:         "Compare the schemas of two tables",
	Args:          cobra.NoArgs,
	RunE:          runCheck,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func runCheck(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")
	dest, _ := cmd.Flags().GetString("dest")

	if source == "" || dest == "" {
		return formatError(fmt.Errorf("both --source and --dest are required"))
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	src, closeSrc, err := openEndpoint(ctx, cfg, source)
	if err != nil {
		return formatError(err)
	}
	defer closeSrc()

	dst, closeDst, err := openEndpoint(ctx, cfg, dest)
	if err != nil {
		return formatError(err)
	}
	defer closeDst()

	report, err := migrate.Check(ctx, src, dst)
	if err != nil {
		return formatError(err)
	}

	if report.Compliant {
		fmt.Printf("✅ %s and %s are compliant\n", src, dst)
		return nil
	}

	if len(report.Missing) > 0 {
		fmt.Printf("   missing on one side: %s\n", strings.Join(report.Missing, ", "))
	}
	if len(report.TypeMismatches) > 0 {
		fmt.Printf("   type mismatches: %s\n", strings.Join(report.TypeMismatches, ", "))
	}
	return fmt.Errorf("❌ %s and %s differ (%d mismatch(es))", src, dst, report.Mismatches)
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("source", "", "Source table as cluster/keyspace.table (required)")
	checkCmd.Flags().String("dest", "", "Destination table as cluster/keyspace.table (required)")
	checkCmd.MarkFlagRequired("source")
	checkCmd.MarkFlagRequired("dest")
}
