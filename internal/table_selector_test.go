package internal

import (
	"errors"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

func TestSelectTable(t *testing.T) {
	tests := []struct {
		name        string
		tables      []string
		answer      string
		askErr      error
		expected    string
		expectError bool
	}{
		{name: "no tables", tables: nil, expectError: true},
		{name: "single table is auto-selected", tables: []string{"users"}, expected: "users"},
		{name: "prompted choice", tables: []string{"users", "orders"}, answer: "orders", expected: "orders"},
		{name: "interrupted", tables: []string{"users", "orders"}, askErr: terminal.InterruptErr, expectError: true},
		{name: "prompt failure", tables: []string{"users", "orders"}, askErr: errors.New("no tty"), expectError: true},
		{name: "empty answer", tables: []string{"users", "orders"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := NewTableSelector("shop", tt.tables)
			prompted := false
			ts.ask = func(p survey.Prompt, response interface{}) error {
				prompted = true
				if tt.askErr != nil {
					return tt.askErr
				}
				*response.(*string) = tt.answer
				return nil
			}

			got, err := ts.SelectTable()

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
			if len(tt.tables) == 1 && prompted {
				t.Error("Expected no prompt for a single table")
			}
		})
	}
}

func TestSelectTableCancelledMessage(t *testing.T) {
	ts := NewTableSelector("shop", []string{"a", "b"})
	ts.ask = func(p survey.Prompt, response interface{}) error {
		return terminal.InterruptErr
	}

	_, err := ts.SelectTable()
	if err == nil || err.Error() != "selection cancelled by user" {
		t.Errorf("Expected cancellation error, got %v", err)
	}
}

func TestNewTableSelectorSorts(t *testing.T) {
	input := []string{"orders", "accounts", "users"}
	ts := NewTableSelector("shop", input)

	want := []string{"accounts", "orders", "users"}
	for i, name := range ts.Tables() {
		if name != want[i] {
			t.Errorf("Expected %v, got %v", want, ts.Tables())
			break
		}
	}
	if input[0] != "orders" {
		t.Error("Input slice should not be reordered")
	}
}
