// credvault.go: Credential vault plugin interface for device-local secrets.
//
// This module provides a plugin-based architecture powered by
// github.com/agilira/go-plugins for storing session tokens and protected
// identity blobs on the client device: OS keychains (macOS Keychain,
// Windows Credential Manager, libsecret) as primary providers, with an
// encrypted-file fallback for headless environments.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	goplugins "github.com/agilira/go-plugins"
)

// VaultItemKind distinguishes the credential classes a vault stores.
type VaultItemKind string

const (
	// VaultItemToken is a session or API token for the secret store.
	VaultItemToken VaultItemKind = "token"
	// VaultItemIdentity is a serialized ProtectedPrivateKey record.
	VaultItemIdentity VaultItemKind = "identity"
)

// VaultCapability represents features a credential vault provider supports.
type VaultCapability string

const (
	CapabilityTokenStorage    VaultCapability = "token_storage"
	CapabilityIdentityStorage VaultCapability = "identity_storage"
	CapabilityBiometricUnlock VaultCapability = "biometric_unlock"
	CapabilityAtRestEncrypted VaultCapability = "at_rest_encrypted"
)

// CredentialVault defines the interface all vault provider plugins implement.
//
// Providers hold opaque blobs keyed by (kind, user): the vault never
// interprets what it stores. A provider that cannot guarantee at-rest
// encryption must not advertise CapabilityAtRestEncrypted; the manager
// prefers providers that do.
type CredentialVault interface {
	// Provider Information
	Name() string
	Capabilities() []VaultCapability

	// Lifecycle Management
	Initialize(ctx context.Context, config map[string]interface{}) error
	Close() error
	IsHealthy() bool

	// Credential Operations
	Put(ctx context.Context, kind VaultItemKind, user string, data []byte) error
	Get(ctx context.Context, kind VaultItemKind, user string) ([]byte, error)
	Delete(ctx context.Context, kind VaultItemKind, user string) error
}

// VaultRequest represents a request to a vault provider plugin.
type VaultRequest struct {
	Operation string        `json:"operation"` // put, get, delete, health
	Kind      VaultItemKind `json:"kind"`
	User      string        `json:"user"`
	Data      []byte        `json:"data,omitempty"`
}

// VaultResponse represents a response from a vault provider plugin.
type VaultResponse struct {
	Success bool   `json:"success"`
	Data    []byte `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VaultManagerConfig provides configuration for the vault manager.
type VaultManagerConfig struct {
	DefaultProvider   string                            `json:"default_provider"`
	ProviderConfigs   map[string]map[string]interface{} `json:"provider_configs"`
	FailoverEnabled   bool                              `json:"failover_enabled"`
	FailoverProviders []string                          `json:"failover_providers"` // Priority order.
	OperationTimeout  time.Duration                     `json:"operation_timeout"`
}

// VaultManager manages credential vault providers using the go-plugins
// framework, with health-checked failover from OS keychains down to the
// encrypted-file fallback.
type VaultManager struct {
	mu              sync.RWMutex
	pluginManager   *goplugins.Manager[VaultRequest, VaultResponse]
	activeProviders map[string]CredentialVault
	defaultProvider string
	config          *VaultManagerConfig
}

// Common vault errors with error codes for auditing.
var (
	ErrVaultProviderNotFound = goerrors.New("VAULT_001", "credential vault provider not found")
	ErrVaultHealthCheck      = goerrors.New("VAULT_002", "credential vault health check failed")
	ErrVaultItemNotFound     = goerrors.New("VAULT_003", "credential not found in vault")
	ErrVaultNotInitialized   = goerrors.New("VAULT_004", "credential vault not initialized")
)

// NewVaultManager creates a vault manager with plugin support.
func NewVaultManager(config *VaultManagerConfig, pluginManager *goplugins.Manager[VaultRequest, VaultResponse]) (*VaultManager, error) {
	if config == nil {
		config = &VaultManagerConfig{
			FailoverEnabled:  true,
			OperationTimeout: 10 * time.Second,
		}
	}

	return &VaultManager{
		pluginManager:   pluginManager,
		activeProviders: make(map[string]CredentialVault),
		config:          config,
	}, nil
}

// RegisterProvider initializes and registers a vault provider.
func (m *VaultManager) RegisterProvider(name string, provider CredentialVault) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	ctx := context.Background()
	if timeout := m.config.OperationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	providerConfig := m.config.ProviderConfigs[name]
	if err := provider.Initialize(ctx, providerConfig); err != nil {
		return fmt.Errorf("failed to initialize vault provider %s: %w", name, err)
	}

	m.activeProviders[name] = provider

	if m.defaultProvider == "" || m.config.DefaultProvider == name {
		m.defaultProvider = name
	}
	return nil
}

// GetProvider returns a healthy vault provider. With an empty name the
// default is tried first; if failover is enabled, unhealthy providers are
// skipped in FailoverProviders order before giving up with
// ErrVaultUnavailable.
func (m *VaultManager) GetProvider(name string) (CredentialVault, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name != "" {
		provider, exists := m.activeProviders[name]
		if !exists {
			return nil, fmt.Errorf("%w: provider %s", ErrVaultProviderNotFound, name)
		}
		if !provider.IsHealthy() {
			return nil, fmt.Errorf("%w: provider %s", ErrVaultHealthCheck, name)
		}
		return provider, nil
	}

	candidates := []string{m.defaultProvider}
	if m.config.FailoverEnabled {
		candidates = append(candidates, m.config.FailoverProviders...)
	}

	for _, candidate := range candidates {
		provider, exists := m.activeProviders[candidate]
		if !exists {
			continue
		}
		if provider.IsHealthy() {
			return provider, nil
		}
	}

	richErr := goerrors.New(ErrCodeVault, "no healthy credential vault provider available")
	return nil, fmt.Errorf("%w: %w", ErrVaultUnavailable, richErr)
}

// Close shuts down all vault providers.
func (m *VaultManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, provider := range m.activeProviders {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close vault provider %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close some vault providers: %v", errs)
	}
	return nil
}

// EncryptedFileVault is the software fallback provider: credentials are
// sealed with the project's AEAD primitive under a caller-supplied local
// key and written to per-item files. It exists for headless machines and
// CI where no OS keychain is reachable; an OS keychain provider should
// always be preferred when one is healthy.
type EncryptedFileVault struct {
	mu          sync.RWMutex
	dir         string
	localKey    []byte
	initialized bool
}

// NewEncryptedFileVault creates a fallback vault rooted at dir, sealing
// items under localKey (KeySize bytes, typically derived from a machine
// passphrase via DeriveKey).
func NewEncryptedFileVault(dir string, localKey []byte) (*EncryptedFileVault, error) {
	if err := ValidateKey(localKey); err != nil {
		return nil, err
	}
	key := make([]byte, len(localKey))
	copy(key, localKey)
	return &EncryptedFileVault{dir: dir, localKey: key}, nil
}

// Name implements CredentialVault.
func (v *EncryptedFileVault) Name() string { return "encrypted-file" }

// Capabilities implements CredentialVault.
func (v *EncryptedFileVault) Capabilities() []VaultCapability {
	return []VaultCapability{
		CapabilityTokenStorage,
		CapabilityIdentityStorage,
		CapabilityAtRestEncrypted,
	}
}

// Initialize creates the vault directory with owner-only permissions.
func (v *EncryptedFileVault) Initialize(ctx context.Context, _ map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.MkdirAll(v.dir, 0700); err != nil {
		return goerrors.Wrap(err, ErrCodeVault, "failed to create vault directory")
	}
	v.initialized = true
	return nil
}

// Close zeroizes the local key; the vault is unusable afterwards.
func (v *EncryptedFileVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	Zeroize(v.localKey)
	v.initialized = false
	return nil
}

// IsHealthy reports whether the vault directory is still accessible.
func (v *EncryptedFileVault) IsHealthy() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.initialized {
		return false
	}
	info, err := os.Stat(v.dir)
	return err == nil && info.IsDir()
}

// itemPath maps (kind, user) to a file name. User names are sanitized so a
// crafted user string cannot escape the vault directory.
func (v *EncryptedFileVault) itemPath(kind VaultItemKind, user string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '@':
			return r
		default:
			return '_'
		}
	}, user)
	return filepath.Join(v.dir, fmt.Sprintf("%s.%s.veil", safe, kind))
}

// Put seals the credential and writes it atomically via a temp file rename.
func (v *EncryptedFileVault) Put(ctx context.Context, kind VaultItemKind, user string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return ErrVaultNotInitialized
	}

	sealed, err := EncryptPayload(data, v.localKey)
	if err != nil {
		return err
	}
	record, err := json.Marshal(sealed)
	if err != nil {
		return goerrors.Wrap(err, ErrCodeVault, "failed to serialize vault item")
	}

	path := v.itemPath(kind, user)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, record, 0600); err != nil {
		return goerrors.Wrap(err, ErrCodeVault, "failed to write vault item")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return goerrors.Wrap(err, ErrCodeVault, "failed to commit vault item")
	}
	return nil
}

// Get reads and unseals a credential.
func (v *EncryptedFileVault) Get(ctx context.Context, kind VaultItemKind, user string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.initialized {
		return nil, ErrVaultNotInitialized
	}

	record, err := os.ReadFile(v.itemPath(kind, user))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s/%s", ErrVaultItemNotFound, kind, user)
	}
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeVault, "failed to read vault item")
	}

	var sealed SealedPayload
	if err := json.Unmarshal(record, &sealed); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeVault, "failed to parse vault item")
	}
	return DecryptPayload(&sealed, v.localKey)
}

// Delete removes a credential. Deleting an absent item is not an error.
func (v *EncryptedFileVault) Delete(ctx context.Context, kind VaultItemKind, user string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return ErrVaultNotInitialized
	}

	err := os.Remove(v.itemPath(kind, user))
	if err != nil && !os.IsNotExist(err) {
		return goerrors.Wrap(err, ErrCodeVault, "failed to delete vault item")
	}
	return nil
}
