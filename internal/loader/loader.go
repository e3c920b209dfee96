// Package loader invokes the external conversion tool that parses the NAS
// XML documents and fills the base tables. The tool is opaque to the
// pipeline: it gets the run-control file and the connection environment, and
// its exit code is passed through verbatim.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/mjbo/alkisimport/internal/config"
)

// DefaultCommand is the ogr2ogr wrapper looked up on PATH when no loader
// command is configured.
const DefaultCommand = "alkis-loader"

// Invoker runs the loader as a child process.
type Invoker struct {
	Command string
	Stdout  io.Writer
	Stderr  io.Writer
}

func New(command string) *Invoker {
	if command == "" {
		command = DefaultCommand
	}
	return &Invoker{Command: command, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Preflight verifies the loader command is on PATH before any provisioning
// touches the database.
func (i *Invoker) Preflight() error {
	if _, err := exec.LookPath(i.Command); err != nil {
		return fmt.Errorf("loader command %q not found in PATH: %w", i.Command, err)
	}
	return nil
}

// Run executes the loader with the run-control file and returns its exit
// code. The connection parameters travel as libpq environment variables
// scoped to the child process. A non-zero exit is not an error here, the
// caller finishes its reconciliation and reporting first, then exits with
// this code.
func (i *Invoker) Run(ctx context.Context, profile *config.Profile) (int, error) {
	cmd := exec.CommandContext(ctx, i.Command, profile.Path)
	cmd.Env = append(os.Environ(), profile.LoaderEnv()...)
	cmd.Stdout = i.Stdout
	cmd.Stderr = i.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("failed to run loader %q: %w", i.Command, err)
}
