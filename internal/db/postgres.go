package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mjbo/alkisimport/internal/config"
)

// Executor is the subset of pgx.Conn the pipeline issues statements through.
// Every probe is a scalar QueryRow, every mutation a single auto-committing
// Exec; no multi-statement transaction spans any step.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Client manages a connection to PostgreSQL.
type Client struct {
	conn *pgx.Conn
}

// Connect opens and pings a connection.
func Connect(ctx context.Context, connString string) (*Client, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the database connection.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

// CloseFunc releases a dialed connection.
type CloseFunc func(context.Context) error

// DialFunc opens a connection to the named database with the run's
// credentials. Provisioning uses it to reach maintenance databases; tests
// substitute fakes.
type DialFunc func(ctx context.Context, dbname string) (Executor, CloseFunc, error)

// Dialer returns a DialFunc backed by pgx using the profile's credentials.
func Dialer(profile *config.Profile) DialFunc {
	return func(ctx context.Context, dbname string) (Executor, CloseFunc, error) {
		client, err := Connect(ctx, profile.URL(dbname))
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
}

// maintenanceDBs are tried in order when a connection outside the import
// target is needed, e.g. to run CREATE DATABASE.
var maintenanceDBs = []string{"postgres", "template1"}

// DialMaintenance connects to the first reachable maintenance database.
func DialMaintenance(ctx context.Context, dial DialFunc) (Executor, CloseFunc, error) {
	var errs []string
	for _, name := range maintenanceDBs {
		ex, closeFn, err := dial(ctx, name)
		if err == nil {
			return ex, closeFn, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", name, err))
	}
	return nil, nil, fmt.Errorf("failed to connect to a maintenance database (%s)", strings.Join(errs, "; "))
}
