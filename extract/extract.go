package extract

import (
	"context"
	"fmt"
	"iter"

	"cqlmigrate/flatfile"
	"cqlmigrate/internal"
	"cqlmigrate/metrics"
	"cqlmigrate/schema"
)

// Source streams the rows of a table in column order.
type Source interface {
	Rows(ctx context.Context, table schema.Table) iter.Seq2[schema.Row, error]
}

type Extractor struct {
	source   Source
	metrics  *metrics.Metrics
	progress *internal.Progress
}

func New(source Source, m *metrics.Metrics, progress *internal.Progress) *Extractor {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Extractor{source: source, metrics: m, progress: progress}
}

// Normalize converts timestamps to epoch milliseconds tagged int64. All
// other values are returned unchanged.
func Normalize(row schema.Row) schema.Row {
	out := make(schema.Row, len(row))
	for i, v := range row {
		if v.Type() != schema.TypeTimestamp {
			out[i] = v
			continue
		}
		if v.IsNull() {
			out[i] = schema.Null(schema.TypeInt64)
			continue
		}
		out[i] = schema.Int64(v.Time().UnixMilli())
	}
	return out
}

// Rows yields the normalized rows of table.
func (e *Extractor) Rows(ctx context.Context, table schema.Table) iter.Seq2[schema.Row, error] {
	return func(yield func(schema.Row, error) bool) {
		for row, err := range e.source.Rows(ctx, table) {
			if err != nil {
				yield(nil, err)
				return
			}
			if len(row) != len(table.Columns) {
				yield(nil, fmt.Errorf("row has %d values, table %s has %d columns",
					len(row), table.QualifiedName(), len(table.Columns)))
				return
			}
			e.metrics.RowsExtracted.Inc()
			if e.progress != nil {
				e.progress.Add(1)
			}
			if !yield(Normalize(row), nil) {
				return
			}
		}
	}
}

// ToFile writes the header and every row of table to w and returns the
// number of rows written.
func (e *Extractor) ToFile(ctx context.Context, table schema.Table, w *flatfile.Writer) (int64, error) {
	if err := w.WriteHeader(table.ColumnNames()); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	for row, err := range e.Rows(ctx, table) {
		if err != nil {
			return w.Rows(), fmt.Errorf("failed to extract %s: %w", table.QualifiedName(), err)
		}
		if err := w.Write(row); err != nil {
			return w.Rows(), fmt.Errorf("failed to write row %d: %w", w.Rows()+1, err)
		}
	}

	if err := w.Flush(); err != nil {
		return w.Rows(), fmt.Errorf("failed to flush output: %w", err)
	}
	internal.Logger.Debug("Extraction complete", "table", table.QualifiedName(), "rows", w.Rows())
	return w.Rows(), nil
}
