package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ProbeResult is the three-valued outcome of an existence check. A failed
// probe is never folded into Absent: acting on "absent" when the truth is
// "unknown" is what turns a connectivity blip into a conflicting CREATE.
type ProbeResult int

const (
	Absent ProbeResult = iota
	Present
	ProbeFailed
)

func (r ProbeResult) String() string {
	switch r {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "probe-failed"
	}
}

// Prober answers existence questions against the system catalogs.
type Prober struct {
	db Executor
}

func NewProber(db Executor) *Prober {
	return &Prober{db: db}
}

// probe runs a scalar SELECT 1 query. A row means present, no row absent,
// anything else is a failed probe.
func (p *Prober) probe(ctx context.Context, sql string, args ...any) ProbeResult {
	var one int
	err := p.db.QueryRow(ctx, sql, args...).Scan(&one)
	switch {
	case err == nil:
		return Present
	case errors.Is(err, pgx.ErrNoRows):
		return Absent
	default:
		return ProbeFailed
	}
}

func (p *Prober) Database(ctx context.Context, name string) ProbeResult {
	return p.probe(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", name)
}

func (p *Prober) Extension(ctx context.Context, name string) ProbeResult {
	return p.probe(ctx, "SELECT 1 FROM pg_extension WHERE extname = $1", name)
}

func (p *Prober) Schema(ctx context.Context, name string) ProbeResult {
	return p.probe(ctx, "SELECT 1 FROM information_schema.schemata WHERE schema_name = $1", name)
}

func (p *Prober) Table(ctx context.Context, schema, table string) ProbeResult {
	return p.probe(ctx, `
		SELECT 1
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2 AND table_type = 'BASE TABLE'`,
		schema, table)
}

func (p *Prober) Column(ctx context.Context, schema, table, column string) ProbeResult {
	return p.probe(ctx, `
		SELECT 1
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`,
		schema, table, column)
}

// NotNull reports whether the column currently forbids nulls.
func (p *Prober) NotNull(ctx context.Context, schema, table, column string) ProbeResult {
	return p.probe(ctx, `
		SELECT 1
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name = $3
			AND is_nullable = 'NO'`,
		schema, table, column)
}

// TableCount returns the number of base tables in the schema.
func (p *Prober) TableCount(ctx context.Context, schema string) (int, error) {
	var count int
	err := p.db.QueryRow(ctx, `
		SELECT count(*)
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'`,
		schema).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
