package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mjbo/alkisimport/internal/config"
	"github.com/mjbo/alkisimport/internal/ui"
)

// Extension is the spatial extension the loader's geometry columns require.
const Extension = "postgis"

// ErrDeclined is returned when the operator declines a creation the pipeline
// cannot proceed without, or fails the reset code check.
var ErrDeclined = errors.New("declined by operator")

// ErrAborted is returned when the operator actively chooses not to proceed.
// It is a deliberate no-op, not a failure.
var ErrAborted = errors.New("aborted by operator")

// Provisioner converges database, extension and schema to an existing state.
// It only ever adds: creations are confirmation-gated, nothing is dropped.
type Provisioner struct {
	dial    DialFunc
	confirm ui.Confirmer
	console *ui.Console
}

func NewProvisioner(dial DialFunc, confirm ui.Confirmer, console *ui.Console) *Provisioner {
	return &Provisioner{dial: dial, confirm: confirm, console: console}
}

// EnsureDatabase makes sure the target database exists, creating it after
// confirmation when absent. Reports whether it was created.
func (p *Provisioner) EnsureDatabase(ctx context.Context, profile *config.Profile) (bool, error) {
	admin, closeAdmin, err := DialMaintenance(ctx, p.dial)
	if err != nil {
		return false, err
	}
	defer func() { _ = closeAdmin(ctx) }()

	switch NewProber(admin).Database(ctx, profile.DBName) {
	case Present:
		p.console.Verbosef("database %q exists", profile.DBName)
		return false, nil
	case ProbeFailed:
		return false, fmt.Errorf("could not determine whether database %q exists", profile.DBName)
	}

	ok, err := p.confirm.Confirm(fmt.Sprintf("Database %q does not exist. Create it?", profile.DBName))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("database %q not created: %w", profile.DBName, ErrDeclined)
	}

	stmt := "CREATE DATABASE " + pgx.Identifier{profile.DBName}.Sanitize()
	if profile.User != "" {
		stmt += " OWNER " + pgx.Identifier{profile.User}.Sanitize()
	}
	if _, err := admin.Exec(ctx, stmt); err != nil {
		// One documented fallback: retry through template1, which works on
		// clusters where the postgres maintenance database is locked down.
		p.console.Warnf("create database failed (%v), retrying via template1", err)
		fallback, closeFallback, ferr := p.dial(ctx, "template1")
		if ferr != nil {
			return false, fmt.Errorf("failed to create database %q: %w", profile.DBName, err)
		}
		defer func() { _ = closeFallback(ctx) }()
		if _, ferr := fallback.Exec(ctx, stmt); ferr != nil {
			return false, fmt.Errorf("failed to create database %q: %w", profile.DBName, ferr)
		}
	}

	p.console.Printf("created database %q", profile.DBName)
	return true, nil
}

// EnsureExtension enables the spatial extension on the target database.
// Enabling is non-destructive, so no confirmation is asked.
func (p *Provisioner) EnsureExtension(ctx context.Context, target Executor) error {
	switch NewProber(target).Extension(ctx, Extension) {
	case Present:
		p.console.Verbosef("extension %q enabled", Extension)
		return nil
	case ProbeFailed:
		return fmt.Errorf("could not determine whether extension %q is enabled", Extension)
	}

	if _, err := target.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS "+Extension); err != nil {
		return fmt.Errorf("failed to enable extension %q: %w", Extension, err)
	}
	p.console.Printf("enabled extension %q", Extension)
	return nil
}

// EnsureSchema makes sure the target schema exists, creating it after
// confirmation when absent. On creation the configured user is granted the
// default privileges the loader needs to create and fill tables.
func (p *Provisioner) EnsureSchema(ctx context.Context, target Executor, profile *config.Profile) (bool, error) {
	switch NewProber(target).Schema(ctx, profile.Schema) {
	case Present:
		p.console.Verbosef("schema %q exists", profile.Schema)
		return false, nil
	case ProbeFailed:
		return false, fmt.Errorf("could not determine whether schema %q exists", profile.Schema)
	}

	ok, err := p.confirm.Confirm(fmt.Sprintf("Schema %q does not exist. Create it?", profile.Schema))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("schema %q not created: %w", profile.Schema, ErrDeclined)
	}

	if err := createSchema(ctx, target, profile.Schema, profile.User); err != nil {
		return false, err
	}
	p.console.Printf("created schema %q", profile.Schema)
	return true, nil
}

func createSchema(ctx context.Context, ex Executor, schema, user string) error {
	if _, err := ex.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("failed to create schema %q: %w", schema, err)
	}
	return grantDefaults(ctx, ex, schema, user)
}

// grantDefaults grants the user full access to the schema and to every table
// and sequence created in it later. The loader creates objects under this
// schema and must be able to write without per-object grants.
func grantDefaults(ctx context.Context, ex Executor, schema, user string) error {
	if user == "" {
		return nil
	}
	s := pgx.Identifier{schema}.Sanitize()
	u := pgx.Identifier{user}.Sanitize()
	stmts := []string{
		fmt.Sprintf("GRANT ALL ON SCHEMA %s TO %s", s, u),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT ALL ON TABLES TO %s", s, u),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT ALL ON SEQUENCES TO %s", s, u),
	}
	for _, stmt := range stmts {
		if _, err := ex.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to grant privileges on schema %q to %q: %w", schema, user, err)
		}
	}
	return nil
}
