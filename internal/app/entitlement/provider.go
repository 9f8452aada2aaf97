// internal/app/entitlement/provider.go
package entitlement

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrProviderRejectedEmail is returned by an IdentityProvider when the
// address is deliverable-looking but the provider refuses to invite it
// (bounced domain, suppression list). The resolver falls back to
// degraded provisioning rather than failing the operation.
var ErrProviderRejectedEmail = errors.New("identity provider rejected email")

// ProviderUser is the provider's view of an account.
type ProviderUser struct {
	ExternalID string
	Email      string
	FullName   string
}

// ProvisionMetadata carries the context an invite email needs.
type ProvisionMetadata struct {
	TenantName  string
	InviterName string
	FullName    string
}

// IdentityProvider is the upstream account system. FindByEmail returns
// (nil, nil) when the provider has no account for the address.
// ProvisionAndInvite creates the account and sends the invite in one
// provider call.
type IdentityProvider interface {
	FindByEmail(ctx context.Context, email string) (*ProviderUser, error)
	ProvisionAndInvite(ctx context.Context, email string, meta ProvisionMetadata) (*ProviderUser, error)
}

// StubProvider is the development-mode provider (identity_provider=stub).
// It accepts every address and keeps accounts in memory, so invites flow
// end to end without an upstream dependency. RejectDomains lets tests
// exercise the degraded path.
type StubProvider struct {
	mu       sync.Mutex
	accounts map[string]ProviderUser

	// RejectDomains lists email domains ProvisionAndInvite refuses,
	// returning ErrProviderRejectedEmail.
	RejectDomains map[string]bool
}

// NewStubProvider returns an empty in-memory provider.
func NewStubProvider() *StubProvider {
	return &StubProvider{accounts: make(map[string]ProviderUser)}
}

func (p *StubProvider) FindByEmail(_ context.Context, email string) (*ProviderUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.accounts[email]; ok {
		out := u
		return &out, nil
	}
	return nil, nil
}

func (p *StubProvider) ProvisionAndInvite(_ context.Context, email string, meta ProvisionMetadata) (*ProviderUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if at := strings.LastIndexByte(email, '@'); at >= 0 && p.RejectDomains[email[at+1:]] {
		return nil, ErrProviderRejectedEmail
	}

	if u, ok := p.accounts[email]; ok {
		out := u
		return &out, nil
	}
	u := ProviderUser{
		ExternalID: uuid.NewString(),
		Email:      email,
		FullName:   meta.FullName,
	}
	p.accounts[email] = u
	out := u
	return &out, nil
}
