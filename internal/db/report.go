package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/mjbo/alkisimport/internal/ui"
)

// ImportLogTable records which source files went into the schema. The
// pipeline only provisions it; the loader writes the rows.
const ImportLogTable = "alkis_importlog"

// reportTables is the fixed set of key tables whose row counts the operator
// checks after a run. Tables absent from the schema are skipped, not
// reported as zero.
var reportTables = []string{
	"ax_flurstueck",
	"ax_gebaeude",
	"ax_lagebezeichnungkatalogeintrag",
	"ax_lagebezeichnungmithausnummer",
	"ax_buchungsblatt",
	"ax_person",
	"ax_anschrift",
}

// Reporter runs the post-load reconciliation bookkeeping and prints the
// per-table row counts for operator verification. It runs win or lose:
// whatever the loader did, the operator gets to see the resulting state.
type Reporter struct {
	db      Executor
	console *ui.Console
}

func NewReporter(db Executor, console *ui.Console) *Reporter {
	return &Reporter{db: db, console: console}
}

// EnsureImportLog creates the import-log table if it is missing. The create
// is idempotent; no rows are ever written here.
func (r *Reporter) EnsureImportLog(ctx context.Context, schema string) error {
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (datei text, datendatum text, importiert timestamp DEFAULT current_timestamp)",
		pgx.Identifier{schema, ImportLogTable}.Sanitize())
	if _, err := r.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create import log table: %w", err)
	}
	return nil
}

// GrantAll repairs grants on everything currently in the schema. Default
// privileges only cover objects created after the grant was issued, and the
// loader may have created tables before that point.
func (r *Reporter) GrantAll(ctx context.Context, schema, user string) error {
	if user == "" {
		return nil
	}
	s := pgx.Identifier{schema}.Sanitize()
	u := pgx.Identifier{user}.Sanitize()
	stmts := []string{
		fmt.Sprintf("GRANT ALL ON ALL TABLES IN SCHEMA %s TO %s", s, u),
		fmt.Sprintf("GRANT ALL ON ALL SEQUENCES IN SCHEMA %s TO %s", s, u),
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to grant on schema %q to %q: %w", schema, user, err)
		}
	}
	return nil
}

// Report prints the schema's table count and the row counts of the key
// tables that exist.
func (r *Reporter) Report(ctx context.Context, schema string) error {
	prober := NewProber(r.db)

	count, err := prober.TableCount(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to count tables in schema %q: %w", schema, err)
	}
	r.console.Printf("schema %q contains %d tables", schema, count)

	table := tablewriter.NewWriter(r.console.Writer())
	table.Options(tablewriter.WithConfig(tablewriter.Config{
		Header: tw.CellConfig{
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
	}))
	if !r.console.IsTerminal() {
		table.Options(tablewriter.WithSymbols(&tw.SymbolASCII{}))
	}
	table.Header("table", "rows")

	for _, name := range reportTables {
		switch prober.Table(ctx, schema, name) {
		case Absent:
			continue
		case ProbeFailed:
			r.console.Warnf("could not determine whether table %s.%s exists", schema, name)
			continue
		}

		var rows int64
		qualified := pgx.Identifier{schema, name}.Sanitize()
		if err := r.db.QueryRow(ctx, "SELECT count(*) FROM "+qualified).Scan(&rows); err != nil {
			r.console.Warnf("failed to count %s.%s: %v", schema, name, err)
			continue
		}
		table.Append(schema+"."+name, strconv.FormatInt(rows, 10))
	}

	table.Render()
	return nil
}
