// Package alkisimport orchestrates imports of ALKIS cadastral data into
// PostgreSQL/PostGIS.
//
// The package prepares the target database for an external ogr2ogr-based
// loader and reconciles what the loader leaves behind. A run walks through a
// fixed sequence: resolve the connection from the run-control file, make sure
// database, postgis extension and target schema exist (creating each only
// after operator confirmation), decide what to do when the schema already
// holds tables (append, confirmation-code-gated reset, or abort), relax the
// known overly strict NOT NULL constraints, hand off to the loader, then
// relax again, provision the import-log table, repair grants and report row
// counts for the key tables.
//
// Every preparation step is independently idempotent, so a run that stops
// halfway is recovered by simply running again. Destructive action is
// unreachable without a freshly generated confirmation code typed back by
// the operator; no option bypasses that.
//
// The simplest use is the CLI in cmd/alkisimport. Programmatic use goes
// through Run:
//
//	code, err := alkisimport.Run(context.Background(), &alkisimport.Options{
//		ConfigPath: "bordesholm.alkis",
//	})
//
// The returned code is the process exit code: 0 for success, 1 for any
// fatal precondition failure, otherwise the loader's own exit code.
package alkisimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mjbo/alkisimport/internal/config"
	"github.com/mjbo/alkisimport/internal/db"
	"github.com/mjbo/alkisimport/internal/loader"
	"github.com/mjbo/alkisimport/internal/ui"
)

// ErrAborted is returned when the operator actively chooses not to proceed.
// Callers should treat it as a clean no-op, not a failure.
var ErrAborted = db.ErrAborted

// ErrDeclined is returned when the operator declines a required creation or
// fails the reset confirmation code.
var ErrDeclined = db.ErrDeclined

// Options configures a pipeline run.
//
// Only ConfigPath is required. If not specified:
//   - LoaderCommand: the default loader is looked up on PATH
//   - ConstraintTargets: the built-in target list plus any relax directives
//     from the run-control file
//   - LogPath: alkisimport.log next to the executable (only used with Verbose)
type Options struct {
	// ConfigPath is the run-control file driving this import.
	ConfigPath string

	// Verbose enables progress detail and tees all output to LogPath.
	Verbose bool

	// LoaderCommand overrides the loader executable name.
	LoaderCommand string

	// ConstraintTargets overrides the "table.column" constraint targets to
	// relax. Nil keeps the built-in list extended by relax directives.
	ConstraintTargets []string

	// LogPath overrides the tee log file used with Verbose.
	LogPath string

	// Test hooks. Nil means the real terminal, pgx dialer and loader.
	confirm ui.Confirmer
	dial    db.DialFunc
	invoker *loader.Invoker
	out     io.Writer
}

// Run executes the whole import pipeline and returns the process exit code.
//
// The code is 0 on success, 1 on fatal precondition failures, and the
// loader's verbatim exit code once provisioning succeeded. ErrAborted is
// returned with code 0 when the operator chose to stop at the conflict
// prompt.
func Run(ctx context.Context, opts *Options) (int, error) {
	if opts == nil || opts.ConfigPath == "" {
		return 1, errors.New("run-control file path is required")
	}

	out := opts.out
	if out == nil {
		out = os.Stdout
	}
	console := ui.NewConsole(out, opts.Verbose)
	defer func() { _ = console.Close() }()
	if opts.Verbose {
		logPath := opts.LogPath
		if logPath == "" {
			logPath = defaultLogPath()
		}
		if err := console.TeeTo(logPath); err != nil {
			console.Warnf("%v", err)
		}
	}

	profile, err := config.Load(opts.ConfigPath)
	if err != nil {
		return 1, err
	}
	for _, w := range profile.Warnings {
		console.Warnf("%s", w)
	}

	targets, err := resolveTargets(opts, profile)
	if err != nil {
		return 1, err
	}

	invoker := opts.invoker
	if invoker == nil {
		invoker = loader.New(opts.LoaderCommand)
	}
	if err := invoker.Preflight(); err != nil {
		return 1, err
	}

	confirm := opts.confirm
	if confirm == nil {
		confirm = ui.NewTerminal(os.Stdin, out)
	}

	if profile.User != "" && profile.Password == "" {
		password, err := confirm.Password(fmt.Sprintf("Password for %s: ", profile.User))
		if err != nil {
			return 1, err
		}
		profile.Password = password
	}

	dial := opts.dial
	if dial == nil {
		dial = db.Dialer(profile)
	}

	provisioner := db.NewProvisioner(dial, confirm, console)
	if _, err := provisioner.EnsureDatabase(ctx, profile); err != nil {
		return 1, err
	}

	target, closeTarget, err := dial(ctx, profile.DBName)
	if err != nil {
		return 1, fmt.Errorf("failed to connect to database %q: %w", profile.DBName, err)
	}
	defer func() { _ = closeTarget(ctx) }()

	if err := provisioner.EnsureExtension(ctx, target); err != nil {
		return 1, err
	}
	if _, err := provisioner.EnsureSchema(ctx, target, profile); err != nil {
		return 1, err
	}

	decision, err := db.NewConflictResolver(target, confirm, console).Resolve(ctx, profile)
	if err != nil {
		if errors.Is(err, ErrAborted) {
			console.Printf("import aborted, nothing changed")
			return 0, ErrAborted
		}
		return 1, err
	}
	console.Verbosef("proceeding with decision: %s", decision)

	reconciler := db.NewReconciler(target, console, targets)
	if err := reconciler.Relax(ctx, profile.Schema, false); err != nil {
		return 1, err
	}

	console.Printf("invoking loader %q with %d source entries", invoker.Command, len(profile.Files))
	code, err := invoker.Run(ctx, profile)
	if err != nil {
		return 1, err
	}
	if code != 0 {
		console.Warnf("loader exited with code %d", code)
	}

	// Post-load reconciliation runs win or lose; failures here are
	// observable but never eat the loader's exit code.
	_ = reconciler.Relax(ctx, profile.Schema, true)

	reporter := db.NewReporter(target, console)
	if err := reporter.EnsureImportLog(ctx, profile.Schema); err != nil {
		console.Warnf("%v", err)
	}
	if err := reporter.GrantAll(ctx, profile.Schema, profile.User); err != nil {
		console.Warnf("%v", err)
	}
	if err := reporter.Report(ctx, profile.Schema); err != nil {
		console.Warnf("%v", err)
	}

	return code, nil
}

// resolveTargets merges the constraint-target configuration: an explicit
// override in Options wins, otherwise the built-in list is extended by the
// run-control file's relax directives.
func resolveTargets(opts *Options, profile *config.Profile) ([]db.ConstraintTarget, error) {
	raw := opts.ConstraintTargets
	var targets []db.ConstraintTarget
	if raw == nil {
		targets = db.DefaultConstraintTargets()
		raw = profile.RelaxTargets
	} else {
		targets = make([]db.ConstraintTarget, 0, len(raw))
	}
	for _, s := range raw {
		t, err := db.ParseConstraintTarget(s)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func defaultLogPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "alkisimport.log"
	}
	return filepath.Join(filepath.Dir(exe), "alkisimport.log")
}
