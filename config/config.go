package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"cqlmigrate/cassandra"
	"cqlmigrate/insert"
	"cqlmigrate/retry"
)

const envPrefix = "CQLMIGRATE"

type Config struct {
	// Clusters is keyed by name. Names are case-insensitive.
	Clusters  map[string]cassandra.Config `mapstructure:"clusters" yaml:"clusters"`
	Migration MigrationConfig             `mapstructure:"migration" yaml:"migration"`

	path string
}

type MigrationConfig struct {
	BatchSize  int          `mapstructure:"batch_size" yaml:"batch_size"`
	RateLimit  float64      `mapstructure:"rate_limit" yaml:"rate_limit"`
	QuoteAll   bool         `mapstructure:"quote_all" yaml:"quote_all"`
	NullMarker string       `mapstructure:"null_marker" yaml:"null_marker"`
	Retry      retry.Config `mapstructure:"retry" yaml:"retry"`
}

// TableRef points at a table as cluster/keyspace.table. The table part is
// optional.
type TableRef struct {
	Cluster  string
	Keyspace string
	Table    string
}

func (r TableRef) String() string {
	s := r.Cluster + "/" + r.Keyspace
	if r.Table != "" {
		s += "." + r.Table
	}
	return s
}

func ParseTableRef(ref string) (*TableRef, error) {
	cluster, rest, ok := strings.Cut(ref, "/")
	if !ok || cluster == "" || rest == "" || strings.Contains(rest, "/") {
		return nil, fmt.Errorf("invalid table reference: %s (expected cluster/keyspace[.table])", ref)
	}

	keyspace, table, hasTable := strings.Cut(rest, ".")
	if keyspace == "" || (hasTable && (table == "" || strings.Contains(table, "."))) {
		return nil, fmt.Errorf("invalid table reference: %s (expected cluster/keyspace[.table])", ref)
	}

	return &TableRef{Cluster: strings.ToLower(cluster), Keyspace: keyspace, Table: table}, nil
}

// DefaultPath is ~/.cqlmigrate/config.yaml.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cqlmigrate", "config.yaml")
	}
	return filepath.Join(homeDir, ".cqlmigrate", "config.yaml")
}

// LoadConfig reads the config at path, or DefaultPath when path is empty.
// A missing file is created with example contents. Values can be
// overridden with CQLMIGRATE_* environment variables, for example
// CQLMIGRATE_MIGRATION_BATCH_SIZE.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := createDefaultConfig(path); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Migration.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid migration.retry: %w", err)
	}
	config.path = path

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	r := retry.DefaultConfig()
	v.SetDefault("migration.batch_size", insert.DefaultBatchSize)
	v.SetDefault("migration.rate_limit", 0)
	v.SetDefault("migration.quote_all", false)
	v.SetDefault("migration.null_marker", "")
	v.SetDefault("migration.retry.max_attempts", r.MaxAttempts)
	v.SetDefault("migration.retry.initial_delay", r.InitialDelay)
	v.SetDefault("migration.retry.max_delay", r.MaxDelay)
	v.SetDefault("migration.retry.multiplier", r.Multiplier)
	v.SetDefault("migration.retry.retry_unavailable", r.RetryUnavailable)
}

// Path is the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) SaveConfig() error {
	if c.path == "" {
		c.path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) GetCluster(name string) (*cassandra.Config, error) {
	cluster, exists := c.Clusters[strings.ToLower(name)]
	if !exists {
		return nil, fmt.Errorf("cluster config not found for %s", name)
	}
	return &cluster, nil
}

func (c *Config) SetCluster(name string, cluster cassandra.Config) {
	if c.Clusters == nil {
		c.Clusters = make(map[string]cassandra.Config)
	}
	c.Clusters[strings.ToLower(name)] = cluster
}

// ClusterNames returns the configured cluster names, sorted.
func (c *Config) ClusterNames() []string {
	names := make([]string, 0, len(c.Clusters))
	for name := range c.Clusters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func createDefaultConfig(path string) error {
	config := &Config{
		Clusters: map[string]cassandra.Config{
			"local": {
				Hosts:              []string{"127.0.0.1"},
				Port:               cassandra.DefaultPort,
				Consistency:        cassandra.DefaultConsistency,
				Timeout:            10 * time.Second,
				ConnectTimeout:     10 * time.Second,
				NumConns:           2,
				MaxRequestsPerConn: cassandra.DefaultMaxRequestsPerConn,
				PageSize:           cassandra.DefaultPageSize,
			},
		},
		Migration: MigrationConfig{
			BatchSize: insert.DefaultBatchSize,
			Retry:     retry.DefaultConfig(),
		},
		path: path,
	}

	if err := config.SaveConfig(); err != nil {
		return fmt.Errorf("failed to save default config: %w", err)
	}

	fmt.Printf("Created default config at %s\n", path)
	fmt.Println("Please edit the config file to add your cluster connections.")

	return nil
}
