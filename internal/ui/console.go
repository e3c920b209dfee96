package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	warnPrefix = color.New(color.FgYellow)
	errPrefix  = color.New(color.FgRed)
)

// Console is the single sink for operator-facing output. All pipeline
// messages go through it so they can be teed to a log file as one stream.
type Console struct {
	w       io.Writer
	verbose bool
	color   bool
	tee     *os.File
}

// NewConsole writes to w, coloring warnings and errors when w is a terminal.
func NewConsole(w io.Writer, verbose bool) *Console {
	c := &Console{w: w, verbose: verbose}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		c.color = true
	}
	return c
}

// Writer returns the underlying writer, including any tee target.
func (c *Console) Writer() io.Writer {
	return c.w
}

// IsTerminal reports whether output goes to an interactive terminal.
func (c *Console) IsTerminal() bool {
	return c.color
}

// TeeTo duplicates all subsequent output into the file at path, appending.
func (c *Console) TeeTo(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	c.tee = f
	c.w = io.MultiWriter(c.w, f)
	return nil
}

// Close closes the tee log file, if any.
func (c *Console) Close() error {
	if c.tee == nil {
		return nil
	}
	return c.tee.Close()
}

func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.w, format+"\n", args...)
}

// Verbosef prints only when the console was created with verbose enabled.
func (c *Console) Verbosef(format string, args ...any) {
	if !c.verbose {
		return
	}
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *Console) Warnf(format string, args ...any) {
	prefix := "warning:"
	if c.color {
		prefix = warnPrefix.Sprint(prefix)
	}
	fmt.Fprintf(c.w, prefix+" "+format+"\n", args...)
}

func (c *Console) Errorf(format string, args ...any) {
	prefix := "error:"
	if c.color {
		prefix = errPrefix.Sprint(prefix)
	}
	fmt.Fprintf(c.w, prefix+" "+format+"\n", args...)
}
