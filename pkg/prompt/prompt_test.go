package prompt

import (
	"bytes"
	"strings"
	"testing"
)

func newTestTerminal(input string, interactive bool) (*Terminal, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewWithStreams(strings.NewReader(input), out, interactive, false), out
}

func TestTerminal_Interactive(t *testing.T) {
	tests := []struct {
		name        string
		interactive bool
		noInput     bool
		want        bool
	}{
		{"terminal attached", true, false, true},
		{"no terminal", false, false, false},
		{"no-input flag overrides terminal", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := NewWithStreams(strings.NewReader(""), &bytes.Buffer{}, tt.interactive, tt.noInput)
			if got := term.Interactive(); got != tt.want {
				t.Errorf("Interactive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTerminal_Unattended(t *testing.T) {
	// Unattended reflects only the --no-input flag; a missing terminal
	// alone does not make a run unattended.
	withFlag := NewWithStreams(strings.NewReader(""), &bytes.Buffer{}, true, true)
	if !withFlag.Unattended() {
		t.Error("Expected Unattended() = true with --no-input set")
	}
	detached := NewWithStreams(strings.NewReader(""), &bytes.Buffer{}, false, false)
	if detached.Unattended() {
		t.Error("Expected Unattended() = false for a detached terminal")
	}
}

func TestTerminal_Confirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		def   bool
		want  bool
	}{
		{"yes", "y\n", false, true},
		{"yes long form", "yes\n", false, true},
		{"no", "n\n", true, false},
		{"no long form", "no\n", true, false},
		{"empty accepts default true", "\n", true, true},
		{"empty accepts default false", "\n", false, false},
		{"case insensitive", "Y\n", false, true},
		{"garbage then yes", "maybe\ny\n", false, true},
		{"garbage falls back to default", "a\nb\nc\n", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, _ := newTestTerminal(tt.input, true)
			got, err := term.Confirm("proceed?", tt.def)
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTerminal_Confirm_HeadlessReturnsDefault(t *testing.T) {
	term, out := newTestTerminal("n\n", false)
	got, err := term.Confirm("destroy everything?", true)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if !got {
		t.Error("Expected headless Confirm to return the default without reading input")
	}
	if out.Len() != 0 {
		t.Errorf("Expected no prompt output in headless mode, got %q", out.String())
	}
}

func TestTerminal_Select(t *testing.T) {
	options := []string{"vnet-demo (id=1)", "vnet-demo (id=2)", "vnet-demo (id=3)"}

	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"first option", "1\n", 0, false},
		{"last option", "3\n", 2, false},
		{"zero is out of range", "0\n", -1, true},
		{"past the end", "4\n", -1, true},
		{"not a number", "vnet-demo\n", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, out := newTestTerminal(tt.input, true)
			got, err := term.Select("pick one", options)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Select() = %d, want %d", got, tt.want)
			}
			if !strings.Contains(out.String(), "[3] vnet-demo (id=3)") {
				t.Errorf("Expected numbered option list in prompt output, got %q", out.String())
			}
		})
	}
}

func TestTerminal_Select_Headless(t *testing.T) {
	term, _ := newTestTerminal("1\n", false)
	if _, err := term.Select("pick one", []string{"a"}); err == nil {
		t.Error("Expected error selecting without a terminal")
	}
}

func TestTerminal_Secret_FallsBackToLineRead(t *testing.T) {
	// A strings.Reader is not a terminal, so Secret reads a plain line.
	term, _ := newTestTerminal("hunter2\n", true)
	got, err := term.Secret("client secret")
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}
	if got != "hunter2" {
		t.Errorf("Secret() = %q, want %q", got, "hunter2")
	}
}

func TestTerminal_Secret_Headless(t *testing.T) {
	term, _ := newTestTerminal("hunter2\n", false)
	if _, err := term.Secret("client secret"); err == nil {
		t.Error("Expected error prompting for a secret without a terminal")
	}
}
