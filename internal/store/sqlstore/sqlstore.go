// Package sqlstore implements store.Store on top of a branchable,
// content-addressed SQL database — Dolt, accessed either embedded via
// github.com/dolthub/driver or in server mode via
// github.com/go-sql-driver/mysql — grounded on the teacher's
// internal/storage/dolt package. Dolt's own MVCC/versioning makes it a
// natural backing store for an adapter that is itself a version-control
// system: every table here is ordinary row storage, and the adapter's
// Git-like semantics live entirely above this layer.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/store"
)

var sqlTracer = otel.Tracer("github.com/newffy/nessie/store/sql")

var sqlMetrics struct {
	casRetries metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/newffy/nessie/store/sql")
	sqlMetrics.casRetries, _ = m.Int64Counter("nessie.store.cas_retries",
		metric.WithDescription("CAS attempts that lost the race on the global pointer row"),
		metric.WithUnit("{retry}"),
	)
}

const currentSchemaVersion = 1

// Config configures a Store connection (spec.md §6 StoreDSN).
type Config struct {
	// DSN is either an embedded Dolt DSN (dolthub/driver ParseDSN format)
	// or a go-sql-driver/mysql DSN when ServerMode is set.
	DSN          string
	ServerMode   bool
	Database     string // defaults to "nessie"
	RepositoryID string // defaults to "default"
}

// Store is a sqlstore.Store backed by a single *sql.DB, scoped to one
// repository ID, matching the teacher's one-DoltStore-per-database
// shape.
type Store struct {
	db           *sql.DB
	closed       atomic.Bool
	connector    interface{ Close() error }
	repositoryID string
}

var _ store.Store = (*Store)(nil)
var _ store.RepoDescriptionStore = (*Store)(nil)

// Open connects to the configured backend and ensures the schema
// exists, mirroring the teacher's withEmbeddedDolt lifecycle: parse
// DSN, connect, ping to force the connection open (retrying transient
// errors in server mode; embedded mode pings once), then initialize
// schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	database := cfg.Database
	if database == "" {
		database = "nessie"
	}
	repositoryID := cfg.RepositoryID
	if repositoryID == "" {
		repositoryID = "default"
	}

	var db *sql.DB
	var closer interface{ Close() error }

	if cfg.ServerMode {
		conn, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: opening server-mode connection")
		}
		if _, err := conn.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+database); err != nil {
			conn.Close()
			return nil, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: creating database")
		}
		if _, err := conn.ExecContext(ctx, "USE "+database); err != nil {
			conn.Close()
			return nil, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: selecting database")
		}
		db = conn
	} else {
		dcfg, err := embedded.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, nesserr.Wrap(nesserr.InvalidArgument, err, "sqlstore: parsing embedded DSN")
		}
		connector, err := embedded.NewConnector(dcfg)
		if err != nil {
			return nil, nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: creating embedded connector")
		}
		db = sql.OpenDB(connector)
		closer = connector
	}

	if err := pingWithRetry(ctx, db, cfg.ServerMode); err != nil {
		db.Close()
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	s := &Store{db: db, connector: closer, repositoryID: repositoryID}
	if err := s.initSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection (and, in embedded mode, the
// connector holding the engine's filesystem locks).
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.connector != nil {
		errs = append(errs, s.connector.Close())
	}
	return errors.Join(errs...)
}

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return bo
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "invalid connection")
}

func pingWithRetry(ctx context.Context, db *sql.DB, serverMode bool) error {
	if !serverMode {
		return db.PingContext(ctx)
	}
	op := func() error {
		err := db.PingContext(ctx)
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(newRetryBackoff(), ctx)); err != nil {
		return nesserr.Wrap(nesserr.Unavailable, err, "sqlstore: connecting")
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Store) initSchema(ctx context.Context) error {
	ctx, span := sqlTracer.Start(ctx, "sqlstore.initSchema", trace.WithAttributes(attribute.String("db.system", "dolt")))
	var err error
	defer func() { endSpan(span, err) }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nessie_config (
			repository_id VARCHAR(255) NOT NULL,
			` + "`key`" + ` VARCHAR(255) NOT NULL,
			` + "`value`" + ` TEXT NOT NULL,
			PRIMARY KEY (repository_id, ` + "`key`" + `)
		)`,
		`CREATE TABLE IF NOT EXISTS nessie_global_pointer (
			repository_id VARCHAR(255) PRIMARY KEY,
			global_id BINARY(32) NOT NULL,
			ref_log_id BINARY(32) NOT NULL,
			version VARCHAR(64) NOT NULL,
			payload LONGBLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nessie_commit_log (
			repository_id VARCHAR(255) NOT NULL,
			hash BINARY(32) NOT NULL,
			payload LONGBLOB NOT NULL,
			PRIMARY KEY (repository_id, hash)
		)`,
		`CREATE TABLE IF NOT EXISTS nessie_global_log (
			repository_id VARCHAR(255) NOT NULL,
			hash BINARY(32) NOT NULL,
			payload LONGBLOB NOT NULL,
			PRIMARY KEY (repository_id, hash)
		)`,
		`CREATE TABLE IF NOT EXISTS nessie_ref_log (
			repository_id VARCHAR(255) NOT NULL,
			hash BINARY(32) NOT NULL,
			payload LONGBLOB NOT NULL,
			PRIMARY KEY (repository_id, hash)
		)`,
		`CREATE TABLE IF NOT EXISTS nessie_repo_description (
			repository_id VARCHAR(255) PRIMARY KEY,
			repo_version INT NOT NULL,
			version VARCHAR(64) NOT NULL,
			payload LONGBLOB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, e := s.db.ExecContext(ctx, stmt); e != nil {
			err = fmt.Errorf("sqlstore: running schema statement: %w", e)
			return err
		}
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO nessie_config (repository_id, `key`, `value`) VALUES ('_global', 'schema_version', ?) "+
			"ON DUPLICATE KEY UPDATE `value` = ?",
		fmt.Sprint(currentSchemaVersion), fmt.Sprint(currentSchemaVersion))
	return err
}

func errNotFound(kind nesserr.Kind, what string, h hashid.Hash) error {
	return nesserr.New(kind, "%s %s not found", what, h)
}
