package secrets

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/provio/provio/pkg/engine"
	"github.com/provio/provio/pkg/telemetry"
)

// publicSuffix names the companion entry holding non-secret public material
// for keypair secrets, e.g. "app-ssh-key-pub" next to "app-ssh-key".
const publicSuffix = "-pub"

// Publisher stores secrets in the vault with write-then-read-back
// verification. Reuse mode returns an existing non-empty secret untouched;
// regenerate mode always mints and stores a fresh value. Every write is
// immediately read back and byte-compared; a mismatch is a
// SecretVerificationError and is never retried.
type Publisher struct {
	vault  Vault
	logger *telemetry.Logger
}

// NewPublisher creates a publisher backed by the given vault.
func NewPublisher(vault Vault, logger *telemetry.Logger) *Publisher {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Publisher{
		vault:  vault,
		logger: logger.WithField("component", "secrets"),
	}
}

// Publish implements engine.SecretPublisher.
func (p *Publisher) Publish(ctx context.Context, req engine.SecretRequest) (*engine.SecretReceipt, error) {
	if req.Name == "" {
		return nil, engine.NewPermanentError("secret name is required", nil)
	}
	if p.vault == nil {
		return nil, engine.NewPermanentError("no vault configured", nil).WithResource(req.Name)
	}
	mode := req.Mode
	if mode == "" {
		mode = engine.SecretModeReuse
	}
	log := p.logger.WithField("secret", req.Name).WithField("mode", string(mode))

	if mode == engine.SecretModeReuse {
		existing, err := p.vault.Read(ctx, req.Name)
		if err != nil {
			return nil, engine.NewPermanentError("vault read failed", err).WithResource(req.Name)
		}
		if existing != nil && existing.Value != "" {
			log.WithField("created_at", existing.CreatedAt).
				WithField("version", existing.Version).
				Info("Reusing existing secret")
			receipt := &engine.SecretReceipt{
				Name:    req.Name,
				Value:   existing.Value,
				Reused:  true,
				Version: existing.Version,
			}
			if req.Generator == engine.GeneratorSSHKeypair {
				if pub, err := p.vault.Read(ctx, req.Name+publicSuffix); err == nil && pub != nil {
					receipt.PublicMaterial = pub.Value
				}
			}
			return receipt, nil
		}
	}

	value := req.Value
	var publicMaterial string
	if value == "" {
		var err error
		value, publicMaterial, err = generate(req)
		if err != nil {
			return nil, engine.NewPermanentError("secret generation failed", err).WithResource(req.Name)
		}
	}

	entry, err := p.write(ctx, req.Name, value)
	if err != nil {
		return nil, err
	}
	if publicMaterial != "" {
		// Public material is not secret, but keeping it next to the private
		// half lets reuse-mode runs recover it.
		if _, err := p.write(ctx, req.Name+publicSuffix, publicMaterial); err != nil {
			return nil, err
		}
	}

	log.WithField("version", entry.Version).
		WithField("value_length", len(value)).
		Info("Secret published and verified")

	return &engine.SecretReceipt{
		Name:           req.Name,
		Value:          value,
		Reused:         false,
		PublicMaterial: publicMaterial,
		Version:        entry.Version,
	}, nil
}

// write stores one entry and verifies the stored value reads back
// byte-identical.
func (p *Publisher) write(ctx context.Context, name, value string) (*SecretEntry, error) {
	entry, err := p.vault.Write(ctx, name, value)
	if err != nil {
		return nil, engine.NewPermanentError("vault write failed", err).WithResource(name)
	}

	stored, err := p.vault.Read(ctx, name)
	if err != nil {
		return nil, engine.NewPermanentError("read-back after write failed", err).WithResource(name)
	}
	if stored == nil || subtle.ConstantTimeCompare([]byte(stored.Value), []byte(value)) != 1 {
		return nil, engine.NewSecretVerificationError(name)
	}
	if stored.Version != 0 {
		entry.Version = stored.Version
	}
	return entry, nil
}

// generate produces fresh secret material for a request without an explicit
// value.
func generate(req engine.SecretRequest) (value, publicMaterial string, err error) {
	switch req.Generator {
	case engine.GeneratorSSHKeypair:
		return GenerateSSHKeypair(req.Name)
	case engine.GeneratorToken, "":
		value, err = GenerateToken(req.Length)
		return value, "", err
	default:
		return "", "", fmt.Errorf("unknown secret generator %q", req.Generator)
	}
}
