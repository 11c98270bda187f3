package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/provio/provio/pkg/engine"
)

func TestPublisher_PublishAndRoundTrip(t *testing.T) {
	// Values with shell-hostile characters must round-trip byte-for-byte.
	values := []string{
		"plain",
		"with ~tilde and $dollar",
		"quo\"tes 'single' `backtick`",
		"back\\slash and\nnewline",
		"unicode ✓ value",
	}

	for _, value := range values {
		t.Run(value[:min(len(value), 12)], func(t *testing.T) {
			vault := newFakeVault()
			p := NewPublisher(vault, nil)

			receipt, err := p.Publish(context.Background(), engine.SecretRequest{
				Name:  "app-client-secret",
				Mode:  engine.SecretModeRegenerate,
				Value: value,
			})
			if err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			if receipt.Value != value {
				t.Errorf("receipt value = %q, want %q", receipt.Value, value)
			}

			stored, err := vault.Read(context.Background(), "app-client-secret")
			if err != nil {
				t.Fatalf("failed to read back: %v", err)
			}
			if stored.Value != value {
				t.Errorf("stored value = %q, want %q", stored.Value, value)
			}
		})
	}
}

func TestPublisher_ReuseReturnsExisting(t *testing.T) {
	vault := newFakeVault()
	if _, err := vault.Write(context.Background(), "app-client-secret", "original"); err != nil {
		t.Fatalf("failed to seed vault: %v", err)
	}
	p := NewPublisher(vault, nil)

	receipt, err := p.Publish(context.Background(), engine.SecretRequest{
		Name: "app-client-secret",
		Mode: engine.SecretModeReuse,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !receipt.Reused {
		t.Error("Expected Reused = true for an existing secret")
	}
	if receipt.Value != "original" {
		t.Errorf("receipt value = %q, want %q", receipt.Value, "original")
	}
	if vault.writes != 1 {
		t.Errorf("Expected no writes beyond the seed, got %d", vault.writes)
	}
}

func TestPublisher_ReuseGeneratesWhenAbsent(t *testing.T) {
	vault := newFakeVault()
	p := NewPublisher(vault, nil)

	receipt, err := p.Publish(context.Background(), engine.SecretRequest{
		Name:      "app-client-secret",
		Mode:      engine.SecretModeReuse,
		Generator: engine.GeneratorToken,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if receipt.Reused {
		t.Error("Expected Reused = false when the vault held nothing")
	}
	if receipt.Value == "" {
		t.Error("Expected a generated value")
	}
}

func TestPublisher_RegenerateReplacesValue(t *testing.T) {
	vault := newFakeVault()
	p := NewPublisher(vault, nil)
	ctx := context.Background()

	first, err := p.Publish(ctx, engine.SecretRequest{
		Name: "app-client-secret",
		Mode: engine.SecretModeRegenerate,
	})
	if err != nil {
		t.Fatalf("first Publish() error = %v", err)
	}
	second, err := p.Publish(ctx, engine.SecretRequest{
		Name: "app-client-secret",
		Mode: engine.SecretModeRegenerate,
	})
	if err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}

	if first.Value == second.Value {
		t.Error("Expected regenerate to mint a fresh value")
	}
	if second.Version <= first.Version {
		t.Errorf("Expected version to advance, got %d then %d", first.Version, second.Version)
	}

	// The old value is gone: a reuse-mode read now returns the new one.
	stored, err := vault.Read(ctx, "app-client-secret")
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if stored.Value != second.Value {
		t.Errorf("stored value = %q, want the regenerated value", stored.Value)
	}
}

func TestPublisher_VerificationMismatchIsFatal(t *testing.T) {
	vault := newFakeVault()
	vault.corrupt = true
	p := NewPublisher(vault, nil)

	_, err := p.Publish(context.Background(), engine.SecretRequest{
		Name:  "app-client-secret",
		Mode:  engine.SecretModeRegenerate,
		Value: "value",
	})
	if err == nil {
		t.Fatal("Expected SecretVerificationError")
	}
	var derr *engine.DeployError
	if !errors.As(err, &derr) {
		t.Fatalf("Expected DeployError, got %T", err)
	}
	if derr.Code != engine.ErrCodeSecretVerification {
		t.Errorf("Code = %s, want %s", derr.Code, engine.ErrCodeSecretVerification)
	}
	if engine.IsRetryable(err) {
		t.Error("A verification mismatch must never be retryable")
	}
}

func TestPublisher_SSHKeypairPublishesPublicMaterial(t *testing.T) {
	vault := newFakeVault()
	p := NewPublisher(vault, nil)
	ctx := context.Background()

	receipt, err := p.Publish(ctx, engine.SecretRequest{
		Name:      "app-ssh-key",
		Mode:      engine.SecretModeRegenerate,
		Generator: engine.GeneratorSSHKeypair,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !strings.Contains(receipt.Value, "OPENSSH PRIVATE KEY") {
		t.Error("Expected a PEM-encoded private key")
	}
	if !strings.HasPrefix(receipt.PublicMaterial, "ssh-ed25519 ") {
		t.Errorf("Expected authorized_keys public material, got %q", receipt.PublicMaterial)
	}

	// Reuse recovers the public half from the companion entry.
	reused, err := p.Publish(ctx, engine.SecretRequest{
		Name:      "app-ssh-key",
		Mode:      engine.SecretModeReuse,
		Generator: engine.GeneratorSSHKeypair,
	})
	if err != nil {
		t.Fatalf("reuse Publish() error = %v", err)
	}
	if !reused.Reused {
		t.Error("Expected Reused = true")
	}
	if reused.PublicMaterial != receipt.PublicMaterial {
		t.Error("Expected reuse to recover the same public material")
	}
}

func TestPublisher_RequiresName(t *testing.T) {
	p := NewPublisher(newFakeVault(), nil)
	if _, err := p.Publish(context.Background(), engine.SecretRequest{}); err == nil {
		t.Error("Expected error publishing without a name")
	}
}
