package schema

import (
	"fmt"
	"strings"
)

// LogicalType is the semantic type of a column's values.
type LogicalType int

const (
	TypeInt64 LogicalType = iota + 1
	TypeInt32
	TypeInt16
	TypeBool
	TypeTimestamp
	TypeText
	TypeOpaque
)

var typeNames = map[LogicalType]string{
	TypeInt64:     "int64",
	TypeInt32:     "int32",
	TypeInt16:     "int16",
	TypeBool:      "bool",
	TypeTimestamp: "timestamp",
	TypeText:      "text",
	TypeOpaque:    "opaque",
}

func (t LogicalType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("LogicalType(%d)", int(t))
}

// Valid reports whether t is one of the supported logical types.
func (t LogicalType) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Integer reports whether t is one of the fixed-width integer types.
func (t LogicalType) Integer() bool {
	return t == TypeInt64 || t == TypeInt32 || t == TypeInt16
}

// ParseLogicalType converts a type name back into a LogicalType.
func ParseLogicalType(name string) (LogicalType, error) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unsupported logical type: %q", name)
}

// Column describes one column of a table. Columns are identified by name.
type Column struct {
	Name string
	Type LogicalType
}

// NewColumn validates the type before building the column.
func NewColumn(name string, typ LogicalType) (Column, error) {
	if name == "" {
		return Column{}, fmt.Errorf("column name is required")
	}
	if !typ.Valid() {
		return Column{}, fmt.Errorf("column %s: unsupported logical type %s", name, typ)
	}
	return Column{Name: name, Type: typ}, nil
}

func (c Column) String() string {
	return c.Name + ":" + c.Type.String()
}

// Table is the ordered column list of keyspace.name. The order is the one
// returned by introspection and is used for positional binding.
type Table struct {
	Keyspace string
	Name     string
	Columns  []Column
}

// QualifiedName returns keyspace.table.
func (t Table) QualifiedName() string {
	return t.Keyspace + "." + t.Name
}

// ColumnNames returns the column names in binding order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Row is one extracted row, ordered like the Table it was read from.
type Row []Value
