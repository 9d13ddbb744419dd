package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"cqlmigrate/cassandra"
	"cqlmigrate/config"
	"cqlmigrate/flatfile"
	"cqlmigrate/insert"
	"cqlmigrate/internal"
	"cqlmigrate/metrics"
	"cqlmigrate/migrate"
	"cqlmigrate/schema"
)

const (
	modeExtract  = "extract"
	modeInsert   = "insert"
	modeEndToEnd = "end-to-end"
)

var migrateCmd = &cobra.Command{
	Use:           "migrate [extract|insert|end-to-end]",
	Short:         "Copy a table between clusters",
	Args:          cobra.ExactArgs(1),
	ValidArgs:     []string{modeExtract, modeInsert, modeEndToEnd},
	RunE:          runMigrate,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	mode := args[0]

	source, _ := cmd.Flags().GetString("source")
	dest, _ := cmd.Flags().GetString("dest")
	file, _ := cmd.Flags().GetString("file")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	if err := validateMigrateArgs(mode, source, dest, file); err != nil {
		return formatError(err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := migrationOptions(cmd, cfg)
	opts.Metrics = startMetrics(ctx, metricsAddr)

	runID := internal.WithRun()
	internal.Logger.Info("Starting migration",
		"mode", mode,
		"source", source,
		"dest", dest,
		"file", file,
		"run", runID)

	start := time.Now()
	defer func() {
		internal.Logger.Info("Migration finished", "mode", mode, "duration", time.Since(start))
	}()

	switch mode {
	case modeExtract:
		err = runExtract(ctx, cfg, source, file, opts)
	case modeInsert:
		err = runInsert(ctx, cfg, dest, file, opts)
	case modeEndToEnd:
		err = runEndToEnd(ctx, cfg, source, dest, opts)
	}
	if err != nil {
		return formatError(err)
	}
	return nil
}

func validateMigrateArgs(mode, source, dest, file string) error {
	switch mode {
	case modeExtract:
		if source == "" || file == "" {
			return errors.New("extract requires --source and --file")
		}
	case modeInsert:
		if dest == "" || file == "" {
			return errors.New("insert requires --dest and --file")
		}
	case modeEndToEnd:
		if source == "" || dest == "" {
			return errors.New("end-to-end requires --source and --dest")
		}
	default:
		return fmt.Errorf("unsupported migrate mode: %s", mode)
	}
	return nil
}

// migrationOptions merges command-line flags over the migration section of
// the config file.
func migrationOptions(cmd *cobra.Command, cfg *config.Config) migrate.Options {
	m := cfg.Migration
	flags := cmd.Flags()

	if flags.Changed("batch-size") {
		m.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("rate-limit") {
		m.RateLimit, _ = flags.GetFloat64("rate-limit")
	}
	if flags.Changed("quote-all") {
		m.QuoteAll, _ = flags.GetBool("quote-all")
	}
	if flags.Changed("null-marker") {
		m.NullMarker, _ = flags.GetString("null-marker")
	}

	return migrate.Options{
		BatchSize: m.BatchSize,
		RateLimit: m.RateLimit,
		File: flatfile.Options{
			NullMarker: m.NullMarker,
			QuoteAll:   m.QuoteAll,
		},
		Retry:        m.Retry,
		ShowProgress: !internal.VerboseMode,
	}
}

func startMetrics(ctx context.Context, addr string) *metrics.Metrics {
	if addr == "" {
		return metrics.New(nil)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go func() {
		if err := metrics.Serve(ctx, addr, reg); err != nil {
			internal.Logger.Error("Metrics listener failed", "addr", addr, "error", err)
		}
	}()
	return m
}

func runExtract(ctx context.Context, cfg *config.Config, source, file string, opts migrate.Options) error {
	src, closeSrc, err := openEndpoint(ctx, cfg, source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer closeSrc()

	rows, err := migrate.Extract(ctx, src, file, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Extracted %d rows from %s to %s\n", rows, src, file)
	return nil
}

func runInsert(ctx context.Context, cfg *config.Config, dest, file string, opts migrate.Options) error {
	dst, closeDst, err := openEndpoint(ctx, cfg, dest)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}
	defer closeDst()

	summary, err := migrate.Insert(ctx, dst, file, opts)
	printSummary(dst, summary)
	return err
}

func runEndToEnd(ctx context.Context, cfg *config.Config, source, dest string, opts migrate.Options) error {
	src, closeSrc, err := openEndpoint(ctx, cfg, source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer closeSrc()

	ref, err := config.ParseTableRef(dest)
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	if ref.Table == "" {
		ref.Table = src.Table
	}
	dst, closeDst, err := openEndpoint(ctx, cfg, ref.String())
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}
	defer closeDst()

	summary, err := migrate.EndToEnd(ctx, src, dst, opts)

	// a schema mismatch ends this mode without failing the process
	var ce *schema.ComplianceError
	if errors.As(err, &ce) {
		internal.Logger.Error("Schemas are not compliant, nothing copied",
			"source", ce.Source, "target", ce.Target, "mismatches", ce.Report.Mismatches)
		fmt.Printf("⚠️  %s\n", ce.Error())
		return nil
	}

	printSummary(dst, summary)
	return err
}

func printSummary(dst migrate.Endpoint, summary insert.Summary) {
	if summary.Issued == 0 {
		return
	}
	fmt.Printf("Inserted %d of %d rows into %s in %d batch(es)",
		summary.Succeeded, summary.Issued, dst, summary.Batches)
	if summary.Failed > 0 {
		fmt.Printf(", %d failed", summary.Failed)
	}
	fmt.Println()
}

// openEndpoint connects to the cluster named in ref and resolves the table,
// prompting for one when ref names only a keyspace.
func openEndpoint(ctx context.Context, cfg *config.Config, ref string) (migrate.Endpoint, func(), error) {
	tableRef, err := config.ParseTableRef(ref)
	if err != nil {
		return migrate.Endpoint{}, nil, err
	}

	clusterConfig, err := cfg.GetCluster(tableRef.Cluster)
	if err != nil {
		return migrate.Endpoint{}, nil, err
	}

	var session *cassandra.Session
	err = internal.WithSpinner(fmt.Sprintf("Connecting to %s", tableRef.Cluster), func() error {
		var err error
		session, err = cassandra.Connect(*clusterConfig)
		return err
	})
	if err != nil {
		return migrate.Endpoint{}, nil, err
	}

	table := tableRef.Table
	if table == "" {
		tables, err := session.Tables(ctx, tableRef.Keyspace)
		if err != nil {
			session.Close()
			return migrate.Endpoint{}, nil, err
		}
		table, err = internal.NewTableSelector(tableRef.Keyspace, tables).SelectTable()
		if err != nil {
			session.Close()
			return migrate.Endpoint{}, nil, err
		}
	}

	endpoint := migrate.Endpoint{Cluster: session, Keyspace: tableRef.Keyspace, Table: table}
	return endpoint, session.Close, nil
}

func formatError(err error) error {
	var (
		connErr       *cassandra.ConnectivityError
		parseErr      *flatfile.ParseError
		complianceErr *schema.ComplianceError
		failedErr     *insert.FailedWritesError
	)
	switch {
	case errors.As(err, &connErr):
		return fmt.Errorf("❌ Cannot connect to cluster (%s). Please check your connection settings.", strings.Join(connErr.Hosts, ","))
	case errors.As(err, &parseErr):
		return fmt.Errorf("❌ Malformed flat file: %s", parseErr.Error())
	case errors.As(err, &complianceErr):
		return fmt.Errorf("❌ %s", complianceErr.Error())
	case errors.As(err, &failedErr):
		return fmt.Errorf("❌ %s. See the log for each failed row.", failedErr.Error())
	}

	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") {
		return fmt.Errorf("❌ Cannot connect to cluster. Please check your connection settings.")
	}

	if strings.Contains(errStr, "Username and/or password are incorrect") ||
		strings.Contains(errStr, "authentication") {
		return fmt.Errorf("❌ Cluster authentication failed. Please check your username and password.")
	}

	if strings.Contains(errStr, "unconfigured table") || strings.Contains(errStr, "does not exist") {
		return fmt.Errorf("❌ Table or keyspace does not exist. Please check your table reference.")
	}

	return fmt.Errorf("❌ %s", errStr)
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	addMigrateFlags(migrateCmd)
}

func addMigrateFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Source table as cluster/keyspace[.table]")
	cmd.Flags().String("dest", "", "Destination table as cluster/keyspace[.table]")
	cmd.Flags().String("file", "", "Flat file to write (extract) or read (insert); .zst is compressed")
	cmd.Flags().Int("batch-size", insert.DefaultBatchSize, "Rows written between completion barriers")
	cmd.Flags().Float64("rate-limit", 0, "Maximum writes per second (0 = unlimited)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	cmd.Flags().Bool("quote-all", false, "Quote every non-null field in the flat file")
	cmd.Flags().String("null-marker", "", `Token written for null values, e.g. \N`)
}
