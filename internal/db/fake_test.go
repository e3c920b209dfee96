package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryRule answers a QueryRow whose SQL contains sqlContains and whose
// rendered argument list contains argContains (empty matches anything).
// Rules are checked in order; no match behaves like an empty result.
type queryRule struct {
	sqlContains string
	argContains string
	val         any
	err         error
}

type execRule struct {
	sqlContains string
	err         error
}

type fakeExecutor struct {
	queryRules []queryRule
	execRules  []execRule

	execs []string
}

func (f *fakeExecutor) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	rendered := fmt.Sprintf("%v", args)
	for _, r := range f.queryRules {
		if !strings.Contains(sql, r.sqlContains) {
			continue
		}
		if r.argContains != "" && !strings.Contains(rendered, r.argContains) {
			continue
		}
		return fakeRow{val: r.val, err: r.err}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (f *fakeExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	for _, r := range f.execRules {
		if strings.Contains(sql, r.sqlContains) {
			return pgconn.NewCommandTag(""), r.err
		}
	}
	return pgconn.NewCommandTag(""), nil
}

func (f *fakeExecutor) executed(substr string) bool {
	for _, sql := range f.execs {
		if strings.Contains(sql, substr) {
			return true
		}
	}
	return false
}

type fakeRow struct {
	val any
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return nil
	}
	switch d := dest[0].(type) {
	case *int:
		switch v := r.val.(type) {
		case int:
			*d = v
		}
	case *int64:
		switch v := r.val.(type) {
		case int:
			*d = int64(v)
		case int64:
			*d = v
		}
	}
	return nil
}

// dialFor returns a DialFunc serving the given executors by database name.
func dialFor(execs map[string]Executor) DialFunc {
	return func(_ context.Context, dbname string) (Executor, CloseFunc, error) {
		ex, ok := execs[dbname]
		if !ok {
			return nil, nil, fmt.Errorf("no database %q", dbname)
		}
		return ex, func(context.Context) error { return nil }, nil
	}
}
