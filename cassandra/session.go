package cassandra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"cqlmigrate/internal"
	"cqlmigrate/schema"
)

const (
	DefaultPort               = 9042
	DefaultConsistency        = "LOCAL_QUORUM"
	DefaultPageSize           = 5000
	DefaultMaxRequestsPerConn = 1024
)

// Config describes how to reach one cluster.
type Config struct {
	Hosts       []string `mapstructure:"hosts" yaml:"hosts"`
	Port        int      `mapstructure:"port" yaml:"port"`
	Username    string   `mapstructure:"username" yaml:"username,omitempty"`
	Password    string   `mapstructure:"password" yaml:"password,omitempty"`
	Consistency string   `mapstructure:"consistency" yaml:"consistency"`

	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	NumConns       int           `mapstructure:"num_conns" yaml:"num_conns"`
	// MaxRequestsPerConn bounds outstanding writes during bulk insertion.
	MaxRequestsPerConn int `mapstructure:"max_requests_per_conn" yaml:"max_requests_per_conn"`
	PageSize           int `mapstructure:"page_size" yaml:"page_size"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Consistency == "" {
		c.Consistency = DefaultConsistency
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.NumConns == 0 {
		c.NumConns = 2
	}
	if c.MaxRequestsPerConn == 0 {
		c.MaxRequestsPerConn = DefaultMaxRequestsPerConn
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	return c
}

// ConnectivityError reports that the cluster could not be reached.
type ConnectivityError struct {
	Hosts []string
	Err   error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", strings.Join(e.Hosts, ","), e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Session is an open connection to one cluster.
type Session struct {
	session     *gocql.Session
	config      Config
	consistency gocql.Consistency
}

func Connect(cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	if len(cfg.Hosts) == 0 {
		return nil, &ConnectivityError{Err: errors.New("no hosts configured")}
	}

	consistency, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
	if err != nil {
		return nil, fmt.Errorf("invalid consistency %q: %w", cfg.Consistency, err)
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Consistency = consistency
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.NumConns = cfg.NumConns
	cluster.PageSize = cfg.PageSize
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	internal.Logger.Debug("Connecting to cluster", "hosts", cfg.Hosts, "port", cfg.Port, "consistency", consistency)
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, &ConnectivityError{Hosts: cfg.Hosts, Err: err}
	}

	return &Session{session: session, config: cfg, consistency: consistency}, nil
}

func (s *Session) Close() {
	if s.session != nil {
		s.session.Close()
	}
}

// Consistency is the configured default consistency level.
func (s *Session) Consistency() gocql.Consistency {
	return s.consistency
}

// MaxRequestsPerConn is the in-flight limit for bulk writes.
func (s *Session) MaxRequestsPerConn() int {
	return s.config.MaxRequestsPerConn
}

// Schema reads the column layout of keyspace.table from the metadata of a
// single-row query.
func (s *Session) Schema(ctx context.Context, keyspace, table string) (schema.Table, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT 1", QualifiedName(keyspace, table))
	internal.Logger.Debug("Reading table schema", "table", keyspace+"."+table)

	iter := s.session.Query(query).WithContext(ctx).Iter()
	infos := iter.Columns()
	if err := iter.Close(); err != nil {
		return schema.Table{}, s.wrap(fmt.Sprintf("failed to read schema of %s.%s", keyspace, table), err)
	}

	columns := make([]schema.Column, len(infos))
	for i, info := range infos {
		columns[i] = schema.Column{Name: info.Name, Type: LogicalTypeOf(info.TypeInfo)}
	}
	return schema.Table{Keyspace: keyspace, Name: table, Columns: columns}, nil
}

// Tables lists the tables of keyspace.
func (s *Session) Tables(ctx context.Context, keyspace string) ([]string, error) {
	iter := s.session.Query(
		"SELECT table_name FROM system_schema.tables WHERE keyspace_name = ?", keyspace,
	).WithContext(ctx).Iter()

	var (
		tables []string
		name   string
	)
	for iter.Scan(&name) {
		tables = append(tables, name)
	}
	if err := iter.Close(); err != nil {
		return nil, s.wrap(fmt.Sprintf("failed to list tables in %s", keyspace), err)
	}
	return tables, nil
}

// Exec runs a single write with the given consistency. Driver-level retries
// are disabled; retrying is left to the caller's policy.
func (s *Session) Exec(ctx context.Context, query string, consistency gocql.Consistency, args []any) error {
	return s.session.Query(query, args...).
		WithContext(ctx).
		Consistency(consistency).
		RetryPolicy(nil).
		Exec()
}

func (s *Session) wrap(msg string, err error) error {
	if errors.Is(err, gocql.ErrNoConnections) || errors.Is(err, gocql.ErrNoHosts) {
		return &ConnectivityError{Hosts: s.config.Hosts, Err: err}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// QuoteIdent quotes a CQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func QualifiedName(keyspace, table string) string {
	return QuoteIdent(keyspace) + "." + QuoteIdent(table)
}

// InsertQuery builds a positional INSERT for every column of table, in
// column order.
func InsertQuery(table schema.Table) string {
	names := make([]string, len(table.Columns))
	marks := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		names[i] = QuoteIdent(col.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QualifiedName(table.Keyspace, table.Name),
		strings.Join(names, ", "),
		strings.Join(marks, ", "))
}

// SelectQuery builds a full-table read of the columns of table.
func SelectQuery(table schema.Table) string {
	names := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		names[i] = QuoteIdent(col.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), QualifiedName(table.Keyspace, table.Name))
}
