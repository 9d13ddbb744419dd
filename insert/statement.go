package insert

import (
	"fmt"

	"github.com/gocql/gocql"

	"cqlmigrate/schema"
)

// Statement is a parameterized write whose placeholders follow the column
// order of Table.
type Statement struct {
	Query       string
	Table       schema.Table
	Consistency gocql.Consistency
}

func NewStatement(query string, table schema.Table, consistency gocql.Consistency) *Statement {
	return &Statement{Query: query, Table: table, Consistency: consistency}
}

// Request is a Statement bound to concrete positional values.
type Request struct {
	Statement *Statement
	Args      []any
	// Seq is the position of the row in the input, starting at 1.
	Seq int64
}

// Bind checks values against the statement's columns and converts them to
// driver arguments.
func (s *Statement) Bind(seq int64, values []schema.Value) (*Request, error) {
	cols := s.Table.Columns
	if len(values) != len(cols) {
		return nil, fmt.Errorf("row %d: expected %d values, got %d", seq, len(cols), len(values))
	}

	args := make([]any, len(values))
	for i, v := range values {
		if !bindable(cols[i].Type, v) {
			return nil, fmt.Errorf("row %d: column %s: cannot bind %s value to %s column",
				seq, cols[i].Name, v.Type(), cols[i].Type)
		}
		args[i] = v.Arg()
	}
	return &Request{Statement: s, Args: args, Seq: seq}, nil
}

func bindable(col schema.LogicalType, v schema.Value) bool {
	switch {
	case v.IsNull(), v.Type() == col:
		return true
	case col == schema.TypeTimestamp && v.Type() == schema.TypeInt64:
		// extracted timestamps travel as epoch milliseconds
		return true
	case col == schema.TypeText || col == schema.TypeOpaque:
		return v.Type() == schema.TypeText || v.Type() == schema.TypeOpaque
	}
	return false
}
