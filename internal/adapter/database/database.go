// Package database stores the access records of ingested distributions in PostgreSQL.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/models"
	"github.com/ubuntu/decorate"
)

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// errNotConnected is returned when the pool was never opened or is already closed.
var errNotConnected = errors.New("database not initialized")

const schema = `
CREATE TABLE IF NOT EXISTS accessinformation (
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    distributionid TEXT        NOT NULL,
    datasetid      TEXT        NOT NULL,
    url            TEXT        NOT NULL
);
CREATE INDEX IF NOT EXISTS accessinformation_lookup_idx
    ON accessinformation (datasetid, distributionid);`

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Manager manages the PostgreSQL database connection pool.
type Manager struct {
	dbpool dbPool

	timeout time.Duration
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
	timeout time.Duration
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithTimeout sets the maximum duration of a single statement.
func WithTimeout(d time.Duration) Options {
	return func(o *options) {
		o.timeout = d
	}
}

// New creates a database manager with a PostgreSQL connection pool using the provided configuration.
// Note: The connection is validated with a ping, but it is not maintained.
func New(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
		timeout: 10 * time.Second,
	}

	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool, timeout: opts.timeout}, nil
}

// EnsureSchema creates the access record table if it does not exist yet.
func (db Manager) EnsureSchema(ctx context.Context) (err error) {
	defer decorate.OnError(&err, "could not prepare database schema")

	_, err = db.exec(ctx, schema)
	return err
}

// InsertAccessRecord stores rec.
func (db Manager) InsertAccessRecord(ctx context.Context, rec models.AccessRecord) (err error) {
	defer decorate.OnError(&err, "could not store access record for distribution %q", rec.DistributionID)

	_, err = db.exec(ctx,
		`INSERT INTO accessinformation (
			created_at,
			updated_at,
			distributionid,
			datasetid,
			url
		) VALUES ($1, $2, $3, $4, $5)`,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.DistributionID,
		rec.DatasetID,
		rec.URL,
	)
	return err
}

// DeleteAccessRecords removes every access record of datasetID and returns how many were removed.
func (db Manager) DeleteAccessRecords(ctx context.Context, datasetID string) (n int64, err error) {
	defer decorate.OnError(&err, "could not delete access records of dataset %q", datasetID)

	tag, err := db.exec(ctx, `DELETE FROM accessinformation WHERE datasetid = $1`, datasetID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteAccessRecord removes the access records of one distribution of datasetID.
func (db Manager) DeleteAccessRecord(ctx context.Context, datasetID, distributionID string) (err error) {
	defer decorate.OnError(&err, "could not delete access record of distribution %q", distributionID)

	_, err = db.exec(ctx,
		`DELETE FROM accessinformation WHERE datasetid = $1 AND distributionid = $2`,
		datasetID, distributionID)
	return err
}

// AccessURLs returns the stored URLs of the distribution distributionID of datasetID.
// Each stored record yields one entry, duplicates included.
func (db Manager) AccessURLs(ctx context.Context, datasetID, distributionID string) (urls []string, err error) {
	defer decorate.OnError(&err, "could not look up access record of distribution %q", distributionID)

	if db.dbpool == nil {
		return nil, errNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	rows, err := db.dbpool.Query(ctx,
		`SELECT url FROM accessinformation WHERE datasetid = $1 AND distributionid = $2`,
		datasetID, distributionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (db Manager) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if db.dbpool == nil {
		return pgconn.CommandTag{}, errNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	tag, err := db.dbpool.Exec(ctx, sql, args...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return tag, fmt.Errorf("statement canceled: %v", err)
		}
		return tag, err
	}
	return tag, nil
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (db *Manager) Close() error {
	if db.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		db.dbpool.Close()
	}()

	select {
	case <-done:
		db.dbpool = nil
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

// URI is a helper method that returns a connection URI for PostgreSQL.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c Config) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
