package extract

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cqlmigrate/flatfile"
	"cqlmigrate/metrics"
	"cqlmigrate/schema"
)

type fakeSource struct {
	rows  []schema.Row
	err   error
	calls int
}

func (f *fakeSource) Rows(ctx context.Context, table schema.Table) iter.Seq2[schema.Row, error] {
	f.calls++
	return func(yield func(schema.Row, error) bool) {
		for _, row := range f.rows {
			if !yield(row, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

var eventsTable = schema.Table{
	Keyspace: "ks",
	Name:     "events",
	Columns: []schema.Column{
		{Name: "id", Type: schema.TypeInt64},
		{Name: "at", Type: schema.TypeTimestamp},
		{Name: "note", Type: schema.TypeText},
	},
}

func TestNormalize(t *testing.T) {
	at := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	row := schema.Row{
		schema.Int32(5),
		schema.Timestamp(at),
		schema.Null(schema.TypeTimestamp),
		schema.Text("x"),
	}

	out := Normalize(row)

	assert.Equal(t, schema.Int32(5), out[0])
	assert.Equal(t, schema.TypeInt64, out[1].Type())
	assert.Equal(t, int64(1700000000000), out[1].Int())
	assert.True(t, out[2].IsNull())
	assert.Equal(t, schema.TypeInt64, out[2].Type())
	assert.Equal(t, schema.Text("x"), out[3])
	assert.Equal(t, schema.TypeTimestamp, row[1].Type(), "input row must not be modified")
}

func TestToFile(t *testing.T) {
	source := &fakeSource{rows: []schema.Row{
		{schema.Int64(1), schema.Timestamp(time.UnixMilli(1700000000000)), schema.Text(`He said "hi", bye`)},
		{schema.Int64(2), schema.Null(schema.TypeTimestamp), schema.Text("")},
	}}
	m := metrics.New(nil)
	e := New(source, m, nil)

	var buf bytes.Buffer
	n, err := e.ToFile(context.Background(), eventsTable, flatfile.NewWriter(&buf, flatfile.Options{}))
	require.NoError(t, err)

	assert.Equal(t, int64(2), n)
	assert.Equal(t, "id,at,note\n1,1700000000000,\"He said \"\"hi\"\", bye\"\n2,,\n", buf.String())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RowsExtracted))
}

func TestToFileEmptyTable(t *testing.T) {
	e := New(&fakeSource{}, nil, nil)

	var buf bytes.Buffer
	n, err := e.ToFile(context.Background(), eventsTable, flatfile.NewWriter(&buf, flatfile.Options{}))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "id,at,note\n", buf.String())
}

func TestToFileSourceError(t *testing.T) {
	boom := errors.New("connection reset")
	source := &fakeSource{
		rows: []schema.Row{{schema.Int64(1), schema.Null(schema.TypeTimestamp), schema.Text("a")}},
		err:  boom,
	}
	e := New(source, nil, nil)

	var buf bytes.Buffer
	n, err := e.ToFile(context.Background(), eventsTable, flatfile.NewWriter(&buf, flatfile.Options{}))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), n)
}

func TestRowsRejectsShortRows(t *testing.T) {
	source := &fakeSource{rows: []schema.Row{{schema.Int64(1)}}}
	e := New(source, nil, nil)

	var got error
	for _, err := range e.Rows(context.Background(), eventsTable) {
		got = err
	}
	assert.ErrorContains(t, got, "row has 1 values")
}

func TestRowsIsRestartable(t *testing.T) {
	source := &fakeSource{rows: []schema.Row{
		{schema.Int64(1), schema.Null(schema.TypeTimestamp), schema.Text("a")},
	}}
	e := New(source, nil, nil)
	rows := e.Rows(context.Background(), eventsTable)

	for range 2 {
		count := 0
		for _, err := range rows {
			require.NoError(t, err)
			count++
		}
		assert.Equal(t, 1, count)
	}
	assert.Equal(t, 2, source.calls)
}
