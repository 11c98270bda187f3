package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// valueKey is the data key holding the secret value inside each vault entry.
const valueKey = "value"

// SecretEntry is one stored secret with its vault metadata.
type SecretEntry struct {
	// Name is the vault secret name.
	Name string `json:"name"`

	// Value is the stored secret value.
	Value string `json:"-"`

	// Version is the vault KV version of this entry.
	Version int `json:"version,omitempty"`

	// CreatedAt is when this version was written, when the vault reports it.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Vault is the narrow boundary to the external secret store: read a named
// secret, write one. Absence is an answer, not an error.
type Vault interface {
	// Read returns the named secret, or nil when the vault holds none.
	Read(ctx context.Context, name string) (*SecretEntry, error)

	// Write stores the value under the name and returns the new entry's
	// metadata.
	Write(ctx context.Context, name, value string) (*SecretEntry, error)
}

// VaultConfig wires a HashiCorp Vault client.
type VaultConfig struct {
	// Address is the vault server URL. Empty falls back to the
	// PROVIO_VAULT_ADDR then VAULT_ADDR environment variables.
	Address string

	// Token authenticates the client. Empty falls back to VAULT_TOKEN.
	Token string

	// Namespace is the optional vault enterprise namespace.
	Namespace string

	// Mount is the KV v2 mount path. Defaults to "secret".
	Mount string
}

// AddressFromEnv resolves the vault address from the environment.
func AddressFromEnv() string {
	if addr := strings.TrimSpace(os.Getenv("PROVIO_VAULT_ADDR")); addr != "" {
		return addr
	}
	return strings.TrimSpace(os.Getenv("VAULT_ADDR"))
}

// HashiVault stores secrets in a HashiCorp Vault KV v2 mount. Each secret is
// one entry whose "value" data key holds the material.
type HashiVault struct {
	client *vault.Client
	mount  string
}

// NewVault creates a vault client from its configuration.
func NewVault(cfg VaultConfig) (*HashiVault, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		address = AddressFromEnv()
	}
	if address == "" {
		return nil, fmt.Errorf("vault address is required (set PROVIO_VAULT_ADDR or VAULT_ADDR)")
	}

	apiCfg := vault.DefaultConfig()
	apiCfg.Address = address
	client, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		client.SetNamespace(ns)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("VAULT_TOKEN"))
	}
	if token != "" {
		client.SetToken(token)
	}

	mount := strings.Trim(strings.TrimSpace(cfg.Mount), "/")
	if mount == "" {
		mount = "secret"
	}
	return &HashiVault{client: client, mount: mount}, nil
}

// Read implements Vault. A missing secret or a present entry without a
// value key returns nil.
func (v *HashiVault) Read(ctx context.Context, name string) (*SecretEntry, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return nil, fmt.Errorf("vault secret name is required")
	}

	secret, err := v.client.KVv2(v.mount).Get(ctx, name)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read vault secret %q: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	value, ok := secret.Data[valueKey].(string)
	if !ok {
		return nil, nil
	}
	entry := &SecretEntry{Name: name, Value: value}
	if secret.VersionMetadata != nil {
		entry.Version = secret.VersionMetadata.Version
		entry.CreatedAt = secret.VersionMetadata.CreatedTime
	}
	return entry, nil
}

// Write implements Vault.
func (v *HashiVault) Write(ctx context.Context, name, value string) (*SecretEntry, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return nil, fmt.Errorf("vault secret name is required")
	}

	secret, err := v.client.KVv2(v.mount).Put(ctx, name, map[string]interface{}{
		valueKey: value,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write vault secret %q: %w", name, err)
	}
	entry := &SecretEntry{Name: name, Value: value}
	if secret != nil && secret.VersionMetadata != nil {
		entry.Version = secret.VersionMetadata.Version
		entry.CreatedAt = secret.VersionMetadata.CreatedTime
	}
	return entry, nil
}
