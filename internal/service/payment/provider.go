package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// IntentParams what the provider needs to open a payment
type IntentParams struct {
	Reference string
	Amount    int64
	Currency  string
}

// ProviderIntent provider handle for an opened payment
type ProviderIntent struct {
	Ref          string
	ClientSecret string
}

// Provider payment gateway client
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, params IntentParams) (*ProviderIntent, error)
}

// SandboxProvider accepts every intent without a network call. Refs and
// client secrets are random.
type SandboxProvider struct{}

// NewSandboxProvider creates the sandbox provider
func NewSandboxProvider() *SandboxProvider {
	return &SandboxProvider{}
}

// Name provider name stored on intents
func (SandboxProvider) Name() string {
	return "sandbox"
}

// CreateIntent returns a fresh ref and secret
func (SandboxProvider) CreateIntent(ctx context.Context, params IntentParams) (*ProviderIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.Amount <= 0 {
		return nil, errors.New("sandbox: amount must be positive")
	}
	ref := "pi_" + compactUUID()
	return &ProviderIntent{
		Ref:          ref,
		ClientSecret: ref + "_secret_" + compactUUID(),
	}, nil
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
