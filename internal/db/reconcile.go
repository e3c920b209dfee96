package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mjbo/alkisimport/internal/ui"
)

// ConstraintTarget names a column whose NOT NULL constraint the schema
// definition declares stricter than the source data actually is.
type ConstraintTarget struct {
	Table  string
	Column string
}

func (t ConstraintTarget) String() string {
	return t.Table + "." + t.Column
}

// ParseConstraintTarget parses a "table.column" argument.
func ParseConstraintTarget(s string) (ConstraintTarget, error) {
	table, column, ok := strings.Cut(s, ".")
	if !ok || table == "" || column == "" {
		return ConstraintTarget{}, fmt.Errorf("invalid constraint target %q (want table.column)", s)
	}
	return ConstraintTarget{Table: table, Column: column}, nil
}

// DefaultConstraintTargets are the columns known to be declared NOT NULL by
// the schema definition while real cadastral deliveries leave them empty.
func DefaultConstraintTargets() []ConstraintTarget {
	return []ConstraintTarget{
		{Table: "ax_anschrift", Column: "ort_post"},
		{Table: "ax_person", Column: "nachnameoderfirma"},
	}
}

// Reconciler relaxes the known overly strict constraints. It runs before the
// loader (tables may persist from an earlier run) and again after it (the
// loader's schema step may have recreated them strict).
type Reconciler struct {
	db      Executor
	console *ui.Console
	targets []ConstraintTarget
}

// NewReconciler builds a reconciler for the given targets; nil means the
// default set.
func NewReconciler(db Executor, console *ui.Console, targets []ConstraintTarget) *Reconciler {
	if targets == nil {
		targets = DefaultConstraintTargets()
	}
	return &Reconciler{db: db, console: console, targets: targets}
}

// Relax drops the NOT NULL constraint on every target whose table exists and
// whose column is currently strict. With bestEffort set, per-target failures
// are logged and skipped; otherwise the first failure stops the pass.
func (r *Reconciler) Relax(ctx context.Context, schema string, bestEffort bool) error {
	for _, target := range r.targets {
		if err := r.relaxOne(ctx, schema, target); err != nil {
			if !bestEffort {
				return err
			}
			r.console.Warnf("could not relax %s: %v", target, err)
		}
	}
	return nil
}

func (r *Reconciler) relaxOne(ctx context.Context, schema string, target ConstraintTarget) error {
	prober := NewProber(r.db)

	switch prober.Table(ctx, schema, target.Table) {
	case Absent:
		r.console.Verbosef("table %s.%s not present, skipping %s", schema, target.Table, target)
		return nil
	case ProbeFailed:
		return fmt.Errorf("could not determine whether table %s.%s exists", schema, target.Table)
	}

	switch prober.NotNull(ctx, schema, target.Table, target.Column) {
	case Absent:
		// Already nullable, or the column is gone. Nothing to do.
		return nil
	case ProbeFailed:
		return fmt.Errorf("could not determine nullability of %s.%s", schema, target)
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL",
		pgx.Identifier{schema, target.Table}.Sanitize(),
		pgx.Identifier{target.Column}.Sanitize())
	if _, err := r.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to relax %s.%s: %w", schema, target, err)
	}
	r.console.Printf("relaxed %s.%s to nullable", schema, target)
	return nil
}
