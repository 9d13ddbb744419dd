package cassandra

import (
	"context"
	"encoding/hex"
	"fmt"
	"iter"
	"reflect"
	"time"

	"github.com/gocql/gocql"

	"cqlmigrate/internal"
	"cqlmigrate/schema"
)

// LogicalTypeOf maps a driver column type to a LogicalType. Types without a
// dedicated mapping are opaque.
func LogicalTypeOf(info gocql.TypeInfo) schema.LogicalType {
	if info == nil {
		return schema.TypeOpaque
	}
	switch info.Type() {
	case gocql.TypeBigInt, gocql.TypeCounter:
		return schema.TypeInt64
	case gocql.TypeInt:
		return schema.TypeInt32
	case gocql.TypeSmallInt:
		return schema.TypeInt16
	case gocql.TypeBoolean:
		return schema.TypeBool
	case gocql.TypeTimestamp:
		return schema.TypeTimestamp
	case gocql.TypeText, gocql.TypeVarchar, gocql.TypeAscii:
		return schema.TypeText
	default:
		return schema.TypeOpaque
	}
}

// Rows streams every row of table, page by page. Each call issues a fresh
// query, so the sequence can be ranged over more than once.
func (s *Session) Rows(ctx context.Context, table schema.Table) iter.Seq2[schema.Row, error] {
	return func(yield func(schema.Row, error) bool) {
		query := s.session.Query(SelectQuery(table)).
			WithContext(ctx).
			PageSize(s.config.PageSize)
		it := query.Iter()

		infos := it.Columns()
		dests := make([]any, len(table.Columns))
		for i, col := range table.Columns {
			var info gocql.TypeInfo
			if i < len(infos) {
				info = infos[i].TypeInfo
			}
			dests[i] = scanTarget(col.Type, info)
		}

		for it.Scan(dests...) {
			row, err := rowFrom(table, dests)
			if err != nil {
				it.Close()
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				it.Close()
				return
			}
		}
		if err := it.Close(); err != nil {
			yield(nil, s.wrap(fmt.Sprintf("failed to read %s", table.QualifiedName()), err))
		}
	}
}

// scanTarget returns a pointer-to-pointer destination so nulls scan as nil.
func scanTarget(t schema.LogicalType, info gocql.TypeInfo) any {
	switch t {
	case schema.TypeInt64:
		return new(*int64)
	case schema.TypeInt32:
		return new(*int32)
	case schema.TypeInt16:
		return new(*int16)
	case schema.TypeBool:
		return new(*bool)
	case schema.TypeTimestamp:
		return new(*time.Time)
	case schema.TypeText:
		return new(*string)
	default:
		return opaqueTarget(info)
	}
}

func opaqueTarget(info gocql.TypeInfo) (dest any) {
	defer func() {
		if r := recover(); r != nil {
			internal.Logger.Debug("No native type for column, scanning raw bytes", "type", info)
			dest = new(*[]byte)
		}
	}()
	if info == nil {
		return new(*[]byte)
	}
	native := info.New()
	if native == nil {
		return new(*[]byte)
	}
	// info.New returns *T; scan into **T
	return reflect.New(reflect.TypeOf(native)).Interface()
}

func rowFrom(table schema.Table, dests []any) (schema.Row, error) {
	row := make(schema.Row, len(dests))
	for i, dest := range dests {
		col := table.Columns[i]
		switch d := dest.(type) {
		case **int64:
			row[i] = nullable(col.Type, *d, schema.Int64)
		case **int32:
			row[i] = nullable(col.Type, *d, schema.Int32)
		case **int16:
			row[i] = nullable(col.Type, *d, schema.Int16)
		case **bool:
			row[i] = nullable(col.Type, *d, schema.Bool)
		case **time.Time:
			row[i] = nullable(col.Type, *d, schema.Timestamp)
		case **string:
			row[i] = nullable(col.Type, *d, schema.Text)
		default:
			v, err := opaqueValue(dest)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col.Name, err)
			}
			row[i] = v
		}
	}
	return row, nil
}

func nullable[T any](t schema.LogicalType, p *T, of func(T) schema.Value) schema.Value {
	if p == nil {
		return schema.Null(t)
	}
	return of(*p)
}

func opaqueValue(dest any) (schema.Value, error) {
	ptr := reflect.ValueOf(dest)
	if ptr.Kind() != reflect.Pointer || ptr.Elem().Kind() != reflect.Pointer {
		return schema.Value{}, fmt.Errorf("unexpected scan destination %T", dest)
	}
	inner := ptr.Elem()
	if inner.IsNil() {
		return schema.Null(schema.TypeOpaque), nil
	}
	native := inner.Elem().Interface()
	return schema.Opaque(render(native), native), nil
}

// render gives the textual form written to flat files.
func render(v any) string {
	switch n := v.(type) {
	case []byte:
		return "0x" + hex.EncodeToString(n)
	case fmt.Stringer:
		return n.String()
	default:
		return fmt.Sprint(v)
	}
}
