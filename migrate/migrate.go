package migrate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/gocql/gocql"
	"golang.org/x/sync/errgroup"

	"cqlmigrate/cassandra"
	"cqlmigrate/extract"
	"cqlmigrate/flatfile"
	"cqlmigrate/insert"
	"cqlmigrate/internal"
	"cqlmigrate/metrics"
	"cqlmigrate/retry"
	"cqlmigrate/schema"
)

// pipeBuffer is the number of rows queued between extractor and inserter
// in end-to-end mode.
const pipeBuffer = 1024

// Cluster is the subset of a cluster session the tasks need.
type Cluster interface {
	Schema(ctx context.Context, keyspace, table string) (schema.Table, error)
	Rows(ctx context.Context, table schema.Table) iter.Seq2[schema.Row, error]
	Exec(ctx context.Context, query string, consistency gocql.Consistency, args []any) error
	Consistency() gocql.Consistency
	MaxRequestsPerConn() int
}

// Endpoint names one table on one cluster.
type Endpoint struct {
	Cluster  Cluster
	Keyspace string
	Table    string
}

func (e Endpoint) String() string {
	return e.Keyspace + "." + e.Table
}

type Options struct {
	BatchSize    int
	RateLimit    float64
	File         flatfile.Options
	Retry        retry.Config
	Metrics      *metrics.Metrics
	ShowProgress bool
}

func (o Options) metrics() *metrics.Metrics {
	if o.Metrics == nil {
		return metrics.New(nil)
	}
	return o.Metrics
}

func (o Options) progress(label string) *internal.Progress {
	if !o.ShowProgress {
		return nil
	}
	p := internal.NewProgress(label)
	p.Start()
	return p
}

func finish(p *internal.Progress, err error, message string) {
	if p == nil {
		return
	}
	if err != nil {
		p.Error(message)
		return
	}
	p.Success(message)
}

// Extract writes every row of src to the flat file at path.
func Extract(ctx context.Context, src Endpoint, path string, opts Options) (rows int64, err error) {
	table, err := src.Cluster.Schema(ctx, src.Keyspace, src.Table)
	if err != nil {
		return 0, err
	}
	internal.Logger.Info("Extracting table", "table", table.QualifiedName(), "columns", len(table.Columns), "file", path)

	out, err := flatfile.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	progress := opts.progress("Extracting " + table.QualifiedName())
	rows, err = extract.New(src.Cluster, opts.metrics(), progress).
		ToFile(ctx, table, flatfile.NewWriter(out, opts.File))
	finish(progress, err, "Extracted "+table.QualifiedName())
	if err != nil {
		return rows, err
	}

	internal.Logger.Info("Extraction finished", "table", table.QualifiedName(), "rows", rows)
	return rows, nil
}

// Insert loads the flat file at path into dst.
func Insert(ctx context.Context, dst Endpoint, path string, opts Options) (insert.Summary, error) {
	table, err := dst.Cluster.Schema(ctx, dst.Keyspace, dst.Table)
	if err != nil {
		return insert.Summary{}, err
	}

	in, err := flatfile.Open(path)
	if err != nil {
		return insert.Summary{}, err
	}
	defer in.Close()

	reader := flatfile.NewReader(in, opts.File)
	header, err := reader.Header()
	if err != nil {
		return insert.Summary{}, err
	}
	if err := checkHeader(header, table); err != nil {
		return insert.Summary{}, err
	}

	internal.Logger.Info("Inserting file", "file", path, "table", table.QualifiedName())
	rows := flatfile.NewDeserializer(table, opts.File).Rows(reader)
	return runInserter(ctx, dst.Cluster, table, rows, opts)
}

func checkHeader(header []string, table schema.Table) error {
	if len(header) != len(table.Columns) {
		return &flatfile.ParseError{
			Line: 1,
			Err: fmt.Errorf("header has %d columns, table %s has %d",
				len(header), table.QualifiedName(), len(table.Columns)),
		}
	}
	if !slices.Equal(header, table.ColumnNames()) {
		internal.Logger.Warn("File header differs from target columns, binding by position",
			"header", header, "columns", table.ColumnNames())
	}
	return nil
}

// EndToEnd streams rows from src straight into dst, after checking that the
// two tables are compliant.
func EndToEnd(ctx context.Context, src, dst Endpoint, opts Options) (insert.Summary, error) {
	source, target, err := schemas(ctx, src, dst)
	if err != nil {
		return insert.Summary{}, err
	}
	if err := schema.CheckCompliance(source, target).Err(source, target); err != nil {
		return insert.Summary{}, err
	}

	order, err := columnOrder(source, target)
	if err != nil {
		return insert.Summary{}, err
	}

	internal.Logger.Info("Copying table", "source", source.QualifiedName(), "target", target.QualifiedName())

	g, gctx := errgroup.WithContext(ctx)
	pipe := make(chan []schema.Value, pipeBuffer)
	extractor := extract.New(src.Cluster, opts.metrics(), nil)

	g.Go(func() error {
		defer close(pipe)
		for row, err := range extractor.Rows(gctx, source) {
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", source.QualifiedName(), err)
			}
			values := make([]schema.Value, len(order))
			for i, j := range order {
				values[i] = row[j]
			}
			select {
			case pipe <- values:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var summary insert.Summary
	g.Go(func() error {
		var err error
		summary, err = runInserter(gctx, dst.Cluster, target, drain(gctx, pipe), opts)
		return err
	})

	err = g.Wait()
	return summary, err
}

// drain yields rows from pipe until it is closed, or the context error once
// the group is cancelled.
func drain(ctx context.Context, pipe <-chan []schema.Value) iter.Seq2[[]schema.Value, error] {
	return func(yield func([]schema.Value, error) bool) {
		for {
			select {
			case values, ok := <-pipe:
				if !ok {
					return
				}
				if !yield(values, nil) {
					return
				}
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
		}
	}
}

// columnOrder maps each target column to the index of the source column
// with the same name.
func columnOrder(source, target schema.Table) ([]int, error) {
	index := make(map[string]int, len(source.Columns))
	for i, col := range source.Columns {
		index[col.Name] = i
	}
	order := make([]int, len(target.Columns))
	for i, col := range target.Columns {
		j, ok := index[col.Name]
		if !ok {
			return nil, fmt.Errorf("column %s missing from %s", col.Name, source.QualifiedName())
		}
		order[i] = j
	}
	return order, nil
}

// Check reports whether src and dst are compliant.
func Check(ctx context.Context, src, dst Endpoint) (schema.Report, error) {
	source, target, err := schemas(ctx, src, dst)
	if err != nil {
		return schema.Report{}, err
	}
	return schema.CheckCompliance(source, target), nil
}

func schemas(ctx context.Context, src, dst Endpoint) (schema.Table, schema.Table, error) {
	source, err := src.Cluster.Schema(ctx, src.Keyspace, src.Table)
	if err != nil {
		return schema.Table{}, schema.Table{}, fmt.Errorf("failed to read source schema: %w", err)
	}
	target, err := dst.Cluster.Schema(ctx, dst.Keyspace, dst.Table)
	if err != nil {
		return schema.Table{}, schema.Table{}, fmt.Errorf("failed to read target schema: %w", err)
	}
	return source, target, nil
}

func runInserter(ctx context.Context, dst Cluster, table schema.Table, rows iter.Seq2[[]schema.Value, error], opts Options) (insert.Summary, error) {
	cfg := opts.Retry
	if cfg == (retry.Config{}) {
		cfg = retry.DefaultConfig()
	}
	policy, err := retry.NewPolicy(cfg)
	if err != nil {
		return insert.Summary{}, err
	}

	stmt := insert.NewStatement(cassandra.InsertQuery(table), table, dst.Consistency())
	progress := opts.progress("Inserting into " + table.QualifiedName())
	// one connection's request limit caps the whole run
	inserter, err := insert.New(dst, stmt, policy, insert.Options{
		BatchSize:   opts.BatchSize,
		MaxInFlight: dst.MaxRequestsPerConn(),
		RateLimit:   opts.RateLimit,
		Progress:    progress,
	}, opts.metrics())
	if err != nil {
		finish(progress, err, "Inserted into "+table.QualifiedName())
		return insert.Summary{}, err
	}

	summary, err := inserter.Run(ctx, rows)
	finish(progress, err, "Inserted into "+table.QualifiedName())

	var failed *insert.FailedWritesError
	switch {
	case errors.As(err, &failed):
		internal.Logger.Warn("Insertion finished with failures",
			"table", table.QualifiedName(), "succeeded", summary.Succeeded, "failed", summary.Failed)
	case err != nil:
		internal.Logger.Error("Insertion aborted", "table", table.QualifiedName(), "error", err)
	default:
		internal.Logger.Info("Insertion finished",
			"table", table.QualifiedName(), "rows", summary.Succeeded, "batches", summary.Batches)
	}
	return summary, err
}
