// Package keystore loads the producer signing key used to verify
// production records, either from configuration or from HashiCorp Vault.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/device-onboarding-backend/cryptoutils"
)

// ErrKeyNotFound is returned when the configured location holds no key.
var ErrKeyNotFound = errors.New("signing key not found")

// KeySource provides the producer's public signing key.
type KeySource interface {
	SigningKey(ctx context.Context) (*ecdsa.PublicKey, error)
}

// StaticKeySource serves a key given directly in configuration.
type StaticKeySource struct {
	key *ecdsa.PublicKey
}

// FromHex parses a 128-hex-character x||y public key.
func FromHex(s string) (*StaticKeySource, error) {
	key, err := cryptoutils.ParseSigningKeyHex(s)
	if err != nil {
		return nil, err
	}
	return &StaticKeySource{key: key}, nil
}

func (s *StaticKeySource) SigningKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	return s.key, nil
}

// VaultOptions locates the key in a KV v2 secrets engine.
type VaultOptions struct {
	Address string
	Token   string

	// Path is "mount/secret/path", e.g. "secret/onboarding/producer".
	Path string

	// Field is the secret field holding the hex key.
	Field string
}

// VaultKeySource reads the key from HashiCorp Vault KV v2.
type VaultKeySource struct {
	client    *api.Client
	mountPath string
	dataPath  string
	field     string
	log       *slog.Logger
}

// NewVaultKeySource creates a Vault client for opts.
func NewVaultKeySource(opts VaultOptions, log *slog.Logger) (*VaultKeySource, error) {
	mountPath, dataPath, found := strings.Cut(strings.Trim(opts.Path, "/"), "/")
	if !found || mountPath == "" || dataPath == "" {
		return nil, fmt.Errorf("vault key path must be mount/path, got %q", opts.Path)
	}
	if opts.Field == "" {
		opts.Field = "public_key"
	}

	config := api.DefaultConfig()
	config.Address = opts.Address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if opts.Token != "" {
		client.SetToken(opts.Token)
	}

	return &VaultKeySource{
		client:    client,
		mountPath: mountPath,
		dataPath:  dataPath,
		field:     opts.Field,
		log:       log,
	}, nil
}

// SigningKey reads and parses the key. It is called once at startup.
func (s *VaultKeySource) SigningKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	path := fmt.Sprintf("%s/data/%s", s.mountPath, s.dataPath)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response at %s", path)
	}

	value, ok := data[s.field].(string)
	if !ok || value == "" {
		return nil, fmt.Errorf("%w: field %q at %s", ErrKeyNotFound, s.field, path)
	}

	key, err := cryptoutils.ParseSigningKeyHex(value)
	if err != nil {
		return nil, err
	}

	s.log.Info("Loaded signing key from Vault", slog.String("path", path))
	return key, nil
}
