package internal

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// TableSelector asks the user to pick one table of a keyspace.
type TableSelector struct {
	keyspace string
	tables   []string
	ask      func(p survey.Prompt, response interface{}) error
}

// NewTableSelector sorts tables for a stable display order.
func NewTableSelector(keyspace string, tables []string) *TableSelector {
	sorted := make([]string, len(tables))
	copy(sorted, tables)
	sort.Strings(sorted)

	return &TableSelector{
		keyspace: keyspace,
		tables:   sorted,
		ask: func(p survey.Prompt, response interface{}) error {
			return survey.AskOne(p, response, survey.WithPageSize(15))
		},
	}
}

// Tables returns the candidate tables in display order.
func (ts *TableSelector) Tables() []string {
	return ts.tables
}

// SelectTable returns the chosen table name. A keyspace with a single table
// is selected without prompting.
func (ts *TableSelector) SelectTable() (string, error) {
	switch len(ts.tables) {
	case 0:
		return "", fmt.Errorf("no tables found in keyspace %s", ts.keyspace)
	case 1:
		Logger.Info("Only one table in keyspace, selecting it", "keyspace", ts.keyspace, "table", ts.tables[0])
		return ts.tables[0], nil
	}

	Logger.Info("Found tables for selection", "keyspace", ts.keyspace, "count", len(ts.tables))

	var selected string
	prompt := &survey.Select{
		Message: fmt.Sprintf("Select a table from %s:", ts.keyspace),
		Options: ts.tables,
	}
	if err := ts.ask(prompt, &selected); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return "", fmt.Errorf("selection cancelled by user")
		}
		return "", fmt.Errorf("selection error: %w", err)
	}
	if selected == "" {
		return "", fmt.Errorf("no table selected")
	}
	return selected, nil
}
