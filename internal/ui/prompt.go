package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer is the blocking, human-in-the-loop decision gate. Every create
// and every destructive step goes through it; there is no flag that bypasses
// it. The terminal implementation reads from stdin, the scripted one answers
// from a fixed list for tests.
type Confirmer interface {
	// Confirm asks a yes/no question. The default on empty input is no.
	Confirm(prompt string) (bool, error)

	// ConfirmWithCode asks the operator to type code back verbatim.
	ConfirmWithCode(prompt, code string) (bool, error)

	// Choose asks the operator to pick one of options. Input may be the
	// full option or an unambiguous prefix; anything else is an error.
	Choose(prompt string, options []string) (string, error)

	// Password reads a secret without echoing it.
	Password(prompt string) (string, error)
}

// Terminal prompts on out and reads answers from in.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(t.out, "%s [y/N]: ", prompt)
	line, err := t.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (t *Terminal) ConfirmWithCode(prompt, code string) (bool, error) {
	fmt.Fprintf(t.out, "%s\nEnter %s to confirm: ", prompt, code)
	line, err := t.readLine()
	if err != nil {
		return false, err
	}
	return line == code, nil
}

func (t *Terminal) Choose(prompt string, options []string) (string, error) {
	fmt.Fprintf(t.out, "%s [%s]: ", prompt, strings.Join(options, "/"))
	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	line = strings.ToLower(line)
	if line == "" {
		return "", fmt.Errorf("no choice entered (expected one of %s)", strings.Join(options, ", "))
	}
	var match string
	for _, o := range options {
		if o == line {
			return o, nil
		}
		if strings.HasPrefix(o, line) {
			if match != "" {
				return "", fmt.Errorf("ambiguous choice %q", line)
			}
			match = o
		}
	}
	if match == "" {
		return "", fmt.Errorf("unrecognized choice %q (expected one of %s)", line, strings.Join(options, ", "))
	}
	return match, nil
}

func (t *Terminal) Password(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)
	if f, ok := t.out.(*os.File); ok && f == os.Stdout {
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(t.out)
		if err == nil {
			return string(pass), nil
		}
		// Not a terminal; fall through to a plain read.
	}
	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	return line, nil
}

// Scripted answers prompts from pre-seeded lists and records every prompt it
// was shown. A prompt with no remaining answer is an error, never a silent
// default, so a test cannot accidentally walk through a destructive path.
type Scripted struct {
	Answers   []bool
	Codes     []string
	Choices   []string
	Passwords []string

	Prompts []string
}

func (s *Scripted) Confirm(prompt string) (bool, error) {
	s.Prompts = append(s.Prompts, prompt)
	if len(s.Answers) == 0 {
		return false, fmt.Errorf("unexpected confirmation prompt: %s", prompt)
	}
	a := s.Answers[0]
	s.Answers = s.Answers[1:]
	return a, nil
}

func (s *Scripted) ConfirmWithCode(prompt, code string) (bool, error) {
	s.Prompts = append(s.Prompts, prompt)
	if len(s.Codes) == 0 {
		return false, fmt.Errorf("unexpected code prompt: %s", prompt)
	}
	entered := s.Codes[0]
	s.Codes = s.Codes[1:]
	return entered == code, nil
}

func (s *Scripted) Choose(prompt string, options []string) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	if len(s.Choices) == 0 {
		return "", fmt.Errorf("unexpected choice prompt: %s", prompt)
	}
	c := s.Choices[0]
	s.Choices = s.Choices[1:]
	for _, o := range options {
		if o == c {
			return o, nil
		}
	}
	return "", fmt.Errorf("scripted choice %q not among options %v", c, options)
}

func (s *Scripted) Password(prompt string) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	if len(s.Passwords) == 0 {
		return "", fmt.Errorf("unexpected password prompt: %s", prompt)
	}
	p := s.Passwords[0]
	s.Passwords = s.Passwords[1:]
	return p, nil
}
