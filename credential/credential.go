// Package credential resolves the access token appended to the connection URL.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Mmx233/QLink/config"
)

var (
	ErrNotFound      = errors.New("credential not found")
	ErrUnknownSource = errors.New("unknown credential source")
	ErrEmptyKey      = errors.New("credential key cannot be empty")
)

// Provider returns the current access token. An empty token with a nil
// error means the connection is made without a credential.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// None never supplies a credential.
type None struct{}

func (None) Token(context.Context) (string, error) {
	return "", nil
}

// Static supplies a fixed token.
type Static string

func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}

// Env reads the token from an environment variable on every call.
type Env struct {
	Name string
}

func (e Env) Token(context.Context) (string, error) {
	token, ok := os.LookupEnv(e.Name)
	if !ok {
		return "", fmt.Errorf("env %s: %w", e.Name, ErrNotFound)
	}
	return token, nil
}

// FromConfig builds the provider selected by cfg.Source.
// Providers holding resources implement io.Closer, see Close.
func FromConfig(cfg config.Credential) (Provider, error) {
	switch cfg.Source {
	case config.CredentialNone, "":
		return None{}, nil
	case config.CredentialStatic:
		return Static(cfg.Token), nil
	case config.CredentialEnv:
		if cfg.Env == "" {
			return nil, fmt.Errorf("credential.env cannot be empty for source %s", cfg.Source)
		}
		return Env{Name: cfg.Env}, nil
	case config.CredentialSQLite:
		if cfg.Key == "" {
			return nil, ErrEmptyKey
		}
		store, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store.Provider(cfg.Key), nil
	case config.CredentialRedis:
		return NewRedis(cfg.RedisURL, cfg.Key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}
}

// Close releases p if it holds resources.
func Close(p Provider) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
