package db

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"github.com/mjbo/alkisimport/internal/config"
	"github.com/mjbo/alkisimport/internal/ui"
)

// Decision is the outcome of the conflict check on a non-empty schema.
type Decision int

const (
	DecisionAppend Decision = iota
	DecisionReset
	DecisionAbort
)

func (d Decision) String() string {
	switch d {
	case DecisionReset:
		return "reset"
	case DecisionAbort:
		return "abort"
	default:
		return "append"
	}
}

var conflictChoices = []string{"append", "reset", "abort"}

// ConflictResolver decides what happens when the target schema already
// contains tables: append to them, drop and recreate the schema, or stop.
// The reset path is gated by a code generated fresh for every run; there is
// deliberately no flag or configuration that skips the check.
type ConflictResolver struct {
	db      Executor
	confirm ui.Confirmer
	console *ui.Console

	// newCode is swapped by tests to make the reset code predictable.
	newCode func() (string, error)
}

func NewConflictResolver(db Executor, confirm ui.Confirmer, console *ui.Console) *ConflictResolver {
	return &ConflictResolver{db: db, confirm: confirm, console: console, newCode: resetCode}
}

// Resolve inspects the schema and, when it is non-empty, asks the operator
// for a decision. A fresh schema resolves to append without prompting.
func (r *ConflictResolver) Resolve(ctx context.Context, profile *config.Profile) (Decision, error) {
	count, err := NewProber(r.db).TableCount(ctx, profile.Schema)
	if err != nil {
		return DecisionAbort, fmt.Errorf("failed to count tables in schema %q: %w", profile.Schema, err)
	}
	if count == 0 {
		r.console.Verbosef("schema %q is empty", profile.Schema)
		return DecisionAppend, nil
	}

	r.console.Printf("schema %q already contains %d tables", profile.Schema, count)
	choice, err := r.confirm.Choose("Append to the existing data, reset the schema, or abort?", conflictChoices)
	if err != nil {
		return DecisionAbort, err
	}

	switch choice {
	case "append":
		return DecisionAppend, nil
	case "abort":
		return DecisionAbort, ErrAborted
	}

	code, err := r.newCode()
	if err != nil {
		return DecisionAbort, err
	}
	ok, err := r.confirm.ConfirmWithCode(
		fmt.Sprintf("Reset drops schema %q with all %d tables and everything in them.", profile.Schema, count),
		code)
	if err != nil {
		return DecisionAbort, err
	}
	if !ok {
		return DecisionAbort, fmt.Errorf("reset of schema %q not confirmed: %w", profile.Schema, ErrDeclined)
	}

	if err := r.reset(ctx, profile); err != nil {
		return DecisionAbort, err
	}
	return DecisionReset, nil
}

// reset drops the schema with everything in it and recreates it empty with
// the same default privileges a freshly provisioned schema gets.
func (r *ConflictResolver) reset(ctx context.Context, profile *config.Profile) error {
	stmt := "DROP SCHEMA " + pgx.Identifier{profile.Schema}.Sanitize() + " CASCADE"
	if _, err := r.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to drop schema %q: %w", profile.Schema, err)
	}
	if err := createSchema(ctx, r.db, profile.Schema, profile.User); err != nil {
		return err
	}
	r.console.Printf("schema %q reset", profile.Schema)
	return nil
}

// resetCode returns a fixed-width random numeric confirmation code. A new
// code is drawn per prompt, so a code noted down from an earlier run never
// matches.
func resetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to generate confirmation code: %w", err)
	}
	return fmt.Sprintf("%04d", n), nil
}
