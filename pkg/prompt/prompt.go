// Package prompt implements operator interaction for deployment runs:
// yes/no confirmation gates, indexed selection between ambiguous resource
// candidates, and masked secret entry. It satisfies the engine's Prompter
// interface and degrades cleanly when no terminal is attached.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Terminal prompts the operator on the process's standard streams.
type Terminal struct {
	in      io.Reader
	out     io.Writer
	reader  *bufio.Reader
	isTerm  bool
	noInput bool
}

// New creates a terminal prompter on stdin/stderr. Prompts go to stderr so
// manifest output on stdout stays machine-readable. noInput forces headless
// behavior even when a terminal is attached (the --no-input flag).
func New(noInput bool) *Terminal {
	return NewWithStreams(os.Stdin, os.Stderr, isTerminalFile(os.Stdin) && isTerminalFile(os.Stderr), noInput)
}

// NewWithStreams creates a prompter on explicit streams. Tests use this with
// scripted readers; interactive reports whether the streams behave like a
// terminal.
func NewWithStreams(in io.Reader, out io.Writer, interactive, noInput bool) *Terminal {
	return &Terminal{
		in:      in,
		out:     out,
		reader:  bufio.NewReader(in),
		isTerm:  interactive,
		noInput: noInput,
	}
}

// Interactive reports whether an operator is attached and input is allowed.
func (t *Terminal) Interactive() bool {
	return t.isTerm && !t.noInput
}

// Unattended reports whether prompting was explicitly disabled with
// --no-input, rather than the terminal simply being absent.
func (t *Terminal) Unattended() bool {
	return t.noInput
}

// Confirm asks a yes/no question. Headless sessions return the default
// without blocking. Empty input accepts the default; unrecognized input
// re-asks up to three times before falling back to the default.
func (t *Terminal) Confirm(prompt string, def bool) (bool, error) {
	if !t.Interactive() {
		return def, nil
	}

	suffix := "[y/N]"
	if def {
		suffix = "[Y/n]"
	}

	for attempt := 0; attempt < 3; attempt++ {
		fmt.Fprintf(t.out, "%s %s: ", prompt, suffix)
		line, err := t.readLine()
		if err != nil {
			return def, err
		}
		switch strings.ToLower(line) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, "Please answer 'y' or 'n'.")
	}
	return def, nil
}

// Select presents a numbered option list and returns the zero-based index
// of the operator's choice. Out-of-range or non-numeric input is an error;
// the caller owns the re-prompt budget.
func (t *Terminal) Select(prompt string, options []string) (int, error) {
	if !t.Interactive() {
		return -1, fmt.Errorf("cannot prompt for selection: no terminal attached")
	}
	if len(options) == 0 {
		return -1, fmt.Errorf("cannot prompt for selection: no options")
	}

	fmt.Fprintln(t.out, prompt)
	for i, opt := range options {
		fmt.Fprintf(t.out, "  [%d] %s\n", i+1, opt)
	}
	fmt.Fprintf(t.out, "Enter choice [1-%d]: ", len(options))

	line, err := t.readLine()
	if err != nil {
		return -1, err
	}
	idx, err := strconv.Atoi(line)
	if err != nil {
		return -1, fmt.Errorf("invalid selection %q: expected a number", line)
	}
	if idx < 1 || idx > len(options) {
		return -1, fmt.Errorf("selection %d out of range [1-%d]", idx, len(options))
	}
	return idx - 1, nil
}

// Secret reads a value with terminal echo disabled. When the input stream is
// not a real terminal (tests, piped input) it falls back to a plain line
// read so the value is still consumed from the stream.
func (t *Terminal) Secret(prompt string) (string, error) {
	if !t.Interactive() {
		return "", fmt.Errorf("cannot prompt for secret: no terminal attached")
	}

	fmt.Fprintf(t.out, "%s: ", prompt)
	if file, ok := t.in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		raw, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(t.out)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	return line, nil
}

// readLine reads one line of input, trimming the trailing newline and
// surrounding whitespace. EOF with pending bytes still returns the bytes.
func (t *Terminal) readLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func isTerminalFile(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
