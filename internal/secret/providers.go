package secret

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	ProviderEnv     = "env"
	ProviderKeyring = "keyring"

	// KeyringService groups every 9-box entry in the OS keyring
	KeyringService = "ninebox"
)

var (
	ErrInvalidRef      = errors.New("invalid secret reference")
	ErrUnknownProvider = errors.New("unknown secret provider")
	ErrNotFound        = errors.New("secret not found")
	ErrReadOnly        = errors.New("secret provider is read-only")
)

// Provider looks secrets up by key
type Provider interface {
	Lookup(ctx context.Context, key string) (string, error)
	Store(ctx context.Context, key, value string) error
	Available() bool
}

// EnvProvider reads process environment variables
type EnvProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) Lookup(_ context.Context, key string) (string, error) {
	value, ok := p.lookup(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: environment variable %s is unset or empty", ErrNotFound, key)
	}
	return value, nil
}

func (p *EnvProvider) Store(context.Context, string, string) error {
	return fmt.Errorf("%w: env", ErrReadOnly)
}

func (p *EnvProvider) Available() bool { return true }

// KeyringProvider reads and writes the OS keyring (Keychain, Secret Service, WinCred)
type KeyringProvider struct {
	service string
}

func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{service: KeyringService}
}

func (p *KeyringProvider) Lookup(_ context.Context, key string) (string, error) {
	value, err := keyring.Get(p.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: keyring entry %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("keyring lookup %s: %w", key, err)
	}
	return value, nil
}

func (p *KeyringProvider) Store(_ context.Context, key, value string) error {
	if err := keyring.Set(p.service, key, value); err != nil {
		return fmt.Errorf("keyring store %s: %w", key, err)
	}
	return nil
}

// Available looks up an entry that never exists; ErrNotFound means a
// keyring backend answered.
func (p *KeyringProvider) Available() bool {
	_, err := keyring.Get(p.service, "__ninebox_availability__")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
