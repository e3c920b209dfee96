package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mjbo/alkisimport/internal/ui"
)

func tableCountRule(n int) queryRule {
	return queryRule{sqlContains: "information_schema.tables", val: n}
}

func TestResolveEmptySchemaAppendsWithoutPrompt(t *testing.T) {
	ex := &fakeExecutor{queryRules: []queryRule{tableCountRule(0)}}
	confirm := &ui.Scripted{}
	r := NewConflictResolver(ex, confirm, testConsole())

	decision, err := r.Resolve(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if decision != DecisionAppend {
		t.Errorf("Resolve() = %v, want append", decision)
	}
	if len(confirm.Prompts) != 0 {
		t.Errorf("fresh schema must not prompt, got %v", confirm.Prompts)
	}
}

func TestResolveAppend(t *testing.T) {
	ex := &fakeExecutor{queryRules: []queryRule{tableCountRule(3)}}
	confirm := &ui.Scripted{Choices: []string{"append"}}
	r := NewConflictResolver(ex, confirm, testConsole())

	decision, err := r.Resolve(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if decision != DecisionAppend {
		t.Errorf("Resolve() = %v, want append", decision)
	}
	if len(ex.execs) != 0 {
		t.Errorf("append must not mutate, got %v", ex.execs)
	}
}

func TestResolveAbort(t *testing.T) {
	ex := &fakeExecutor{queryRules: []queryRule{tableCountRule(3)}}
	confirm := &ui.Scripted{Choices: []string{"abort"}}
	r := NewConflictResolver(ex, confirm, testConsole())

	decision, err := r.Resolve(context.Background(), testProfile())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Resolve() error = %v, want ErrAborted", err)
	}
	if decision != DecisionAbort {
		t.Errorf("Resolve() = %v, want abort", decision)
	}
	if len(ex.execs) != 0 {
		t.Errorf("abort must not mutate, got %v", ex.execs)
	}
}

func TestResolveResetCodeMismatchLeavesSchema(t *testing.T) {
	ex := &fakeExecutor{queryRules: []queryRule{tableCountRule(3)}}
	confirm := &ui.Scripted{Choices: []string{"reset"}, Codes: []string{"9999"}}
	r := NewConflictResolver(ex, confirm, testConsole())
	r.newCode = func() (string, error) { return "1234", nil }

	_, err := r.Resolve(context.Background(), testProfile())
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("Resolve() error = %v, want ErrDeclined", err)
	}
	if len(ex.execs) != 0 {
		t.Errorf("mismatched code must not mutate, got %v", ex.execs)
	}
}

func TestResolveResetDropsAndRecreates(t *testing.T) {
	ex := &fakeExecutor{queryRules: []queryRule{tableCountRule(3)}}
	confirm := &ui.Scripted{Choices: []string{"reset"}, Codes: []string{"1234"}}
	r := NewConflictResolver(ex, confirm, testConsole())
	r.newCode = func() (string, error) { return "1234", nil }

	decision, err := r.Resolve(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if decision != DecisionReset {
		t.Errorf("Resolve() = %v, want reset", decision)
	}
	for _, want := range []string{
		`DROP SCHEMA "demo" CASCADE`,
		`CREATE SCHEMA "demo"`,
		`ALTER DEFAULT PRIVILEGES IN SCHEMA "demo" GRANT ALL ON TABLES TO "importer"`,
	} {
		if !ex.executed(want) {
			t.Errorf("missing statement %q in %v", want, ex.execs)
		}
	}
}

func TestResolveGeneratesFreshCodePerRun(t *testing.T) {
	// A code noted down from an earlier prompt must not unlock a later reset.
	n := 0
	newCode := func() (string, error) {
		n++
		return fmt.Sprintf("%04d", n), nil
	}

	first := &fakeExecutor{queryRules: []queryRule{tableCountRule(3)}}
	r := NewConflictResolver(first, &ui.Scripted{Choices: []string{"reset"}, Codes: []string{"0001"}}, testConsole())
	r.newCode = newCode
	if _, err := r.Resolve(context.Background(), testProfile()); err != nil {
		t.Fatalf("first Resolve() error: %v", err)
	}

	second := &fakeExecutor{queryRules: []queryRule{tableCountRule(3)}}
	r = NewConflictResolver(second, &ui.Scripted{Choices: []string{"reset"}, Codes: []string{"0001"}}, testConsole())
	r.newCode = newCode
	_, err := r.Resolve(context.Background(), testProfile())
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("stale code: Resolve() error = %v, want ErrDeclined", err)
	}
	if second.executed("DROP SCHEMA") {
		t.Errorf("stale code must not drop, got %v", second.execs)
	}
}

func TestResolveCountFailure(t *testing.T) {
	ex := &fakeExecutor{queryRules: []queryRule{
		{sqlContains: "information_schema.tables", err: errors.New("connection reset")},
	}}
	r := NewConflictResolver(ex, &ui.Scripted{}, testConsole())

	if _, err := r.Resolve(context.Background(), testProfile()); err == nil {
		t.Fatal("Resolve() expected error when table count fails")
	}
}

func TestResetCodeFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := resetCode()
		if err != nil {
			t.Fatalf("resetCode() error: %v", err)
		}
		if len(code) != 4 {
			t.Fatalf("resetCode() = %q, want four digits", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("resetCode() = %q, want digits only", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("resetCode() never varies")
	}
}

func TestDecisionString(t *testing.T) {
	tests := []struct {
		decision Decision
		want     string
	}{
		{DecisionAppend, "append"},
		{DecisionReset, "reset"},
		{DecisionAbort, "abort"},
	}
	for _, tt := range tests {
		if got := tt.decision.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.decision, got, tt.want)
		}
	}
}
