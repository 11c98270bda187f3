package secrets

import (
	"context"
	"fmt"
	"time"
)

// fakeVault is an in-memory Vault with per-entry versions. corrupt makes
// every read return a mangled value, simulating a store that lies about
// writes.
type fakeVault struct {
	entries map[string]*SecretEntry
	corrupt bool
	reads   int
	writes  int
	failOn  string
}

func newFakeVault() *fakeVault {
	return &fakeVault{entries: make(map[string]*SecretEntry)}
}

func (v *fakeVault) Read(_ context.Context, name string) (*SecretEntry, error) {
	v.reads++
	if v.failOn == "read" {
		return nil, fmt.Errorf("vault sealed")
	}
	entry, ok := v.entries[name]
	if !ok {
		return nil, nil
	}
	value := entry.Value
	if v.corrupt {
		value = value + "-corrupted"
	}
	return &SecretEntry{Name: name, Value: value, Version: entry.Version, CreatedAt: entry.CreatedAt}, nil
}

func (v *fakeVault) Write(_ context.Context, name, value string) (*SecretEntry, error) {
	v.writes++
	if v.failOn == "write" {
		return nil, fmt.Errorf("vault sealed")
	}
	version := 1
	if prev, ok := v.entries[name]; ok {
		version = prev.Version + 1
	}
	entry := &SecretEntry{Name: name, Value: value, Version: version, CreatedAt: time.Now()}
	v.entries[name] = entry
	return &SecretEntry{Name: name, Value: value, Version: version, CreatedAt: entry.CreatedAt}, nil
}

// scriptedPrompter answers Secret prompts from a fixed queue.
type scriptedPrompter struct {
	interactive bool
	answers     []string
	asked       int
}

func (p *scriptedPrompter) Interactive() bool { return p.interactive }

func (p *scriptedPrompter) Unattended() bool { return false }

func (p *scriptedPrompter) Confirm(string, bool) (bool, error) { return true, nil }

func (p *scriptedPrompter) Select(string, []string) (int, error) { return 0, nil }

func (p *scriptedPrompter) Secret(string) (string, error) {
	if p.asked >= len(p.answers) {
		return "", fmt.Errorf("no scripted answer left")
	}
	answer := p.answers[p.asked]
	p.asked++
	return answer, nil
}
