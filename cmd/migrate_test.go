package cmd

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gocql/gocql"
	"github.com/spf13/cobra"

	"cqlmigrate/cassandra"
	"cqlmigrate/config"
	"cqlmigrate/flatfile"
	"cqlmigrate/insert"
	"cqlmigrate/retry"
	"cqlmigrate/schema"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name          string
		inputError    error
		expectedStart string
	}{
		{
			name:          "connectivity error",
			inputError:    fmt.Errorf("failed to open source: %w", &cassandra.ConnectivityError{Hosts: []string{"10.0.0.1"}, Err: gocql.ErrNoConnections}),
			expectedStart: "❌ Cannot connect to cluster (10.0.0.1)",
		},
		{
			name:          "connection refused error",
			inputError:    &mockError{"dial tcp 127.0.0.1:9042: connect: connection refused"},
			expectedStart: "❌ Cannot connect to cluster",
		},
		{
			name:          "authentication error",
			inputError:    &mockError{"Provided username cassandra and/or password are incorrect: Username and/or password are incorrect"},
			expectedStart: "❌ Cluster authentication failed",
		},
		{
			name:          "unknown table error",
			inputError:    &mockError{"unconfigured table orders"},
			expectedStart: "❌ Table or keyspace does not exist",
		},
		{
			name:          "parse error",
			inputError:    &flatfile.ParseError{Line: 4, Column: "id", Text: "three", Err: errors.New("invalid syntax")},
			expectedStart: "❌ Malformed flat file",
		},
		{
			name:          "failed writes",
			inputError:    &insert.FailedWritesError{Failed: 2},
			expectedStart: "❌ 2 write(s) failed",
		},
		{
			name:          "compliance error",
			inputError:    &schema.ComplianceError{Source: "a.b", Target: "c.d", Report: schema.Report{Mismatches: 1}},
			expectedStart: "❌ ",
		},
		{
			name:          "generic error",
			inputError:    &mockError{"some other error"},
			expectedStart: "❌ some other error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatError(tt.inputError)

			if !strings.HasPrefix(result.Error(), tt.expectedStart) {
				t.Errorf("Expected error to start with '%s', got '%s'",
					tt.expectedStart, result.Error())
			}
		})
	}
}

func TestValidateMigrateArgs(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		source      string
		dest        string
		file        string
		expectError bool
		errorMsg    string
	}{
		{name: "extract", mode: "extract", source: "a/ks.t", file: "t.csv"},
		{name: "extract without file", mode: "extract", source: "a/ks.t", expectError: true, errorMsg: "--file"},
		{name: "insert", mode: "insert", dest: "b/ks.t", file: "t.csv"},
		{name: "insert without dest", mode: "insert", file: "t.csv", expectError: true, errorMsg: "--dest"},
		{name: "end-to-end", mode: "end-to-end", source: "a/ks.t", dest: "b/ks"},
		{name: "end-to-end without source", mode: "end-to-end", dest: "b/ks", expectError: true, errorMsg: "--source"},
		{name: "invalid mode", mode: "invalid", expectError: true, errorMsg: "unsupported migrate mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMigrateArgs(tt.mode, tt.source, tt.dest, tt.file)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestMigrateCommandConfiguration(t *testing.T) {
	if migrateCmd.Use != "migrate [extract|insert|end-to-end]" {
		t.Errorf("Expected Use to be 'migrate [extract|insert|end-to-end]', got '%s'", migrateCmd.Use)
	}

	if !migrateCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}

	if !migrateCmd.SilenceErrors {
		t.Error("Expected SilenceErrors to be true")
	}

	found := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"migrate", "check"} {
		if !found[name] {
			t.Errorf("Expected root command to have subcommand '%s'", name)
		}
	}
}

func TestMigrateCommandFlags(t *testing.T) {
	flags := migrateCmd.Flags()

	expected := []string{
		"source", "dest", "file", "batch-size", "rate-limit",
		"metrics-addr", "quote-all", "null-marker",
	}
	for _, flagName := range expected {
		if flags.Lookup(flagName) == nil {
			t.Errorf("Expected flag '%s' to exist", flagName)
		}
	}

	batchFlag := flags.Lookup("batch-size")
	if batchFlag != nil && batchFlag.DefValue != "100000" {
		t.Errorf("Expected batch-size default to be '100000', got '%s'", batchFlag.DefValue)
	}

	for _, flagName := range []string{"config", "verbose"} {
		if rootCmd.PersistentFlags().Lookup(flagName) == nil {
			t.Errorf("Expected persistent flag '%s' to exist", flagName)
		}
	}
}

func TestMigrationOptions(t *testing.T) {
	cfg := &config.Config{Migration: config.MigrationConfig{
		BatchSize:  5000,
		RateLimit:  200,
		NullMarker: `\N`,
		Retry:      retry.DefaultConfig(),
	}}

	t.Run("config values without flags", func(t *testing.T) {
		cmd := &cobra.Command{}
		addMigrateFlags(cmd)

		opts := migrationOptions(cmd, cfg)
		if opts.BatchSize != 5000 || opts.RateLimit != 200 || opts.File.NullMarker != `\N` {
			t.Errorf("Expected config values, got %+v", opts)
		}
		if opts.Retry != retry.DefaultConfig() {
			t.Errorf("Expected retry config to pass through, got %+v", opts.Retry)
		}
	})

	t.Run("flags override config", func(t *testing.T) {
		cmd := &cobra.Command{}
		addMigrateFlags(cmd)
		if err := cmd.ParseFlags([]string{"--batch-size=10", "--quote-all", "--null-marker="}); err != nil {
			t.Fatalf("Failed to parse flags: %v", err)
		}

		opts := migrationOptions(cmd, cfg)
		if opts.BatchSize != 10 {
			t.Errorf("Expected batch size 10, got %d", opts.BatchSize)
		}
		if !opts.File.QuoteAll {
			t.Error("Expected quote-all to be set")
		}
		if opts.File.NullMarker != "" {
			t.Errorf("Expected empty null marker, got %q", opts.File.NullMarker)
		}
		if opts.RateLimit != 200 {
			t.Errorf("Expected rate limit from config, got %v", opts.RateLimit)
		}
	})
}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}
