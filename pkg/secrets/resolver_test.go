package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/provio/provio/pkg/engine"
)

func envWith(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestResolver_PrecedenceExplicitWins(t *testing.T) {
	// Every channel populated: explicit value must win without falling
	// through.
	vault := newFakeVault()
	if _, err := vault.Write(context.Background(), "app-client-secret", "from-vault"); err != nil {
		t.Fatalf("failed to seed vault: %v", err)
	}
	prompter := &scriptedPrompter{interactive: true, answers: []string{"from-prompt"}}

	r := NewResolver(ResolverConfig{
		Vault:     vault,
		Prompter:  prompter,
		LookupEnv: envWith(map[string]string{"CLIENT_SECRET": "from-env"}),
	})

	got, err := r.Resolve(context.Background(), engine.CredentialSpec{
		Name:     "clientSecret",
		Resource: "app",
		Role:     "client-secret",
		Value:    "from-explicit",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Value != "from-explicit" {
		t.Errorf("Resolve() value = %q, want %q", got.Value, "from-explicit")
	}
	if got.Source != engine.SourceExplicit {
		t.Errorf("Resolve() source = %s, want %s", got.Source, engine.SourceExplicit)
	}
	if vault.reads != 0 {
		t.Errorf("Expected no vault reads, got %d", vault.reads)
	}
	if prompter.asked != 0 {
		t.Errorf("Expected no prompts, got %d", prompter.asked)
	}
}

func TestResolver_PrecedenceChain(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		seedVault  bool
		prompt     []string
		wantValue  string
		wantSource engine.CredentialSource
	}{
		{
			name:       "environment beats vault",
			env:        map[string]string{"DB_ADMIN_PASSWORD": "from-env"},
			seedVault:  true,
			wantValue:  "from-env",
			wantSource: engine.SourceEnv,
		},
		{
			name:       "vault beats prompt",
			seedVault:  true,
			prompt:     []string{"from-prompt"},
			wantValue:  "from-vault",
			wantSource: engine.SourceVault,
		},
		{
			name:       "prompt is the last resort",
			prompt:     []string{"from-prompt"},
			wantValue:  "from-prompt",
			wantSource: engine.SourcePrompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vault := newFakeVault()
			if tt.seedVault {
				if _, err := vault.Write(context.Background(), "db-admin-password", "from-vault"); err != nil {
					t.Fatalf("failed to seed vault: %v", err)
				}
			}
			r := NewResolver(ResolverConfig{
				Vault:     vault,
				Prompter:  &scriptedPrompter{interactive: true, answers: tt.prompt},
				LookupEnv: envWith(tt.env),
			})

			got, err := r.Resolve(context.Background(), engine.CredentialSpec{
				Name:     "db-admin-password",
				Resource: "db",
				Role:     "admin-password",
			})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Resolve() value = %q, want %q", got.Value, tt.wantValue)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Resolve() source = %s, want %s", got.Source, tt.wantSource)
			}
		})
	}
}

func TestResolver_MissingCredential(t *testing.T) {
	r := NewResolver(ResolverConfig{
		Vault:     newFakeVault(),
		Prompter:  &scriptedPrompter{interactive: false},
		LookupEnv: envWith(nil),
	})

	_, err := r.Resolve(context.Background(), engine.CredentialSpec{
		Name:     "clientSecret",
		Resource: "app",
		Role:     "client-secret",
	})
	if err == nil {
		t.Fatal("Expected MissingCredentialError")
	}
	var derr *engine.DeployError
	if !errors.As(err, &derr) {
		t.Fatalf("Expected DeployError, got %T", err)
	}
	if derr.Code != engine.ErrCodeMissingCredential {
		t.Errorf("Code = %s, want %s", derr.Code, engine.ErrCodeMissingCredential)
	}
	// The message must name the consulted sources so the operator knows
	// which channels to supply.
	for _, want := range []string{"CLIENT_SECRET", "app-client-secret", "non-interactive"} {
		if !strings.Contains(derr.Error(), want) {
			t.Errorf("Expected error to mention %q, got: %s", want, derr.Error())
		}
	}
}

func TestResolver_VaultErrorIsNotMissing(t *testing.T) {
	vault := newFakeVault()
	vault.failOn = "read"
	r := NewResolver(ResolverConfig{
		Vault:     vault,
		LookupEnv: envWith(nil),
	})

	_, err := r.Resolve(context.Background(), engine.CredentialSpec{
		Name:     "clientSecret",
		Resource: "app",
		Role:     "client-secret",
	})
	if err == nil {
		t.Fatal("Expected error from broken vault")
	}
	if engine.CodeOf(err) == engine.ErrCodeMissingCredential {
		t.Error("A vault failure must not be reported as a missing credential")
	}
}

func TestResolver_NonInteractiveSkipsPrompt(t *testing.T) {
	prompter := &scriptedPrompter{interactive: false, answers: []string{"never-used"}}
	r := NewResolver(ResolverConfig{
		Prompter:  prompter,
		LookupEnv: envWith(nil),
	})

	_, err := r.Resolve(context.Background(), engine.CredentialSpec{Name: "token"})
	if err == nil {
		t.Fatal("Expected MissingCredentialError")
	}
	if prompter.asked != 0 {
		t.Errorf("Expected no prompt in non-interactive session, got %d", prompter.asked)
	}
}
