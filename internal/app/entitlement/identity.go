// internal/app/entitlement/identity.go
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	userstore "github.com/commonward/communitygate/internal/app/store/users"
	"github.com/commonward/communitygate/internal/app/system/normalize"
	"github.com/commonward/communitygate/internal/app/system/timeouts"
	"github.com/commonward/communitygate/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ResolutionOutcome says how an email resolved to a user.
type ResolutionOutcome string

const (
	// ResolvedExisting: a shadow profile or provider account already existed.
	ResolvedExisting ResolutionOutcome = "resolved_existing"
	// Provisioned: the provider created the account and sent the invite.
	Provisioned ResolutionOutcome = "provisioned"
	// ProvisioningDegraded: the provider rejected the address; a shadow
	// profile with a deferred-activation token was created instead.
	ProvisioningDegraded ResolutionOutcome = "provisioning_degraded"
)

// Resolution is the result of resolving an email to a user.
type Resolution struct {
	User    models.User
	Outcome ResolutionOutcome

	// ActivationToken is set only for ProvisioningDegraded. It is the
	// plaintext deferred-activation token; only its bcrypt hash is
	// persisted, so this is the caller's one chance to deliver it.
	ActivationToken string
}

// IdentityResolver turns a target email into a user record, provisioning
// through the identity provider when no account exists yet.
type IdentityResolver struct {
	users    UserStore
	provider IdentityProvider
	log      *zap.Logger
	backoff  time.Duration
}

// NewIdentityResolver wires a resolver over the shadow-user store and
// the configured provider.
func NewIdentityResolver(users UserStore, provider IdentityProvider, log *zap.Logger) *IdentityResolver {
	return &IdentityResolver{
		users:    users,
		provider: provider,
		log:      log,
		backoff:  defaultBackoff,
	}
}

// ResolveOrProvision resolves email to a user, creating one when needed.
//
// Order of consultation: shadow store, then provider lookup, then
// provider provisioning. A provider rejection of a syntactically valid
// address degrades to a local deferred-activation profile instead of
// failing; only transport-level provider failures surface as
// ErrIdentityProviderUnavailable.
func (r *IdentityResolver) ResolveOrProvision(ctx context.Context, email string, meta ProvisionMetadata) (*Resolution, error) {
	email = normalize.Email(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	existing, err := callStore(ctx, r.log, r.backoff, "users.GetByEmail", func(ctx context.Context) (*models.User, error) {
		return r.users.GetByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Resolution{User: *existing, Outcome: ResolvedExisting}, nil
	}

	pu, err := r.callProvider(ctx, "FindByEmail", func(ctx context.Context) (*ProviderUser, error) {
		return r.provider.FindByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if pu != nil {
		u, err := r.createShadow(ctx, models.User{Email: email, FullName: pu.FullName})
		if err != nil {
			return nil, err
		}
		return &Resolution{User: u, Outcome: ResolvedExisting}, nil
	}

	pu, err = r.callProvider(ctx, "ProvisionAndInvite", func(ctx context.Context) (*ProviderUser, error) {
		return r.provider.ProvisionAndInvite(ctx, email, meta)
	})
	switch {
	case err == nil:
		u, cerr := r.createShadow(ctx, models.User{Email: email, FullName: pu.FullName})
		if cerr != nil {
			return nil, cerr
		}
		return &Resolution{User: u, Outcome: Provisioned}, nil

	case errors.Is(err, ErrProviderRejectedEmail):
		return r.provisionDegraded(ctx, email, meta)

	default:
		return nil, err
	}
}

// provisionDegraded creates a local deferred-activation profile when the
// provider refuses the address. The operation still succeeds; the caller
// surfaces the degraded outcome so an operator can hand-deliver the token.
func (r *IdentityResolver) provisionDegraded(ctx context.Context, email string, meta ProvisionMetadata) (*Resolution, error) {
	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash activation token: %w", err)
	}

	u, err := r.createShadow(ctx, models.User{
		Email:               email,
		FullName:            meta.FullName,
		ActivationPending:   true,
		ActivationTokenHash: string(hash),
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("identity provisioning degraded",
		zap.String("email", email),
		zap.String("user_id", u.ID.Hex()))

	return &Resolution{User: u, Outcome: ProvisioningDegraded, ActivationToken: token}, nil
}

// createShadow inserts the shadow profile, tolerating the race where a
// concurrent resolve already inserted it: the duplicate loser re-reads
// and returns the winner's row.
func (r *IdentityResolver) createShadow(ctx context.Context, u models.User) (models.User, error) {
	created, err := callStoreWrite(ctx, r.log, r.backoff, "users.Create", func(ctx context.Context) (models.User, error) {
		return r.users.Create(ctx, u)
	})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, userstore.ErrDuplicateEmail) {
		return models.User{}, err
	}

	existing, gerr := callStore(ctx, r.log, r.backoff, "users.GetByEmail", func(ctx context.Context) (*models.User, error) {
		return r.users.GetByEmail(ctx, u.Email)
	})
	if gerr != nil {
		return models.User{}, gerr
	}
	if existing == nil {
		return models.User{}, fmt.Errorf("%w: users.GetByEmail after duplicate insert", ErrStoreUnavailable)
	}
	return *existing, nil
}

// callProvider runs one provider call with the provider timeout,
// retrying once on transient failure. ErrProviderRejectedEmail is a
// deliberate outcome and passes through.
func (r *IdentityResolver) callProvider(ctx context.Context, op string, fn func(context.Context) (*ProviderUser, error)) (*ProviderUser, error) {
	run := func() (*ProviderUser, error) {
		opCtx, cancel := context.WithTimeout(ctx, timeouts.Provider())
		defer cancel()
		return fn(opCtx)
	}

	pu, err := run()
	if err == nil || errors.Is(err, ErrProviderRejectedEmail) {
		return pu, err
	}

	r.log.Warn("identity provider call failed, retrying once",
		zap.String("op", op),
		zap.Error(err))

	select {
	case <-time.After(r.backoff):
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrIdentityProviderUnavailable, op, ctx.Err())
	}

	pu, err = run()
	if err == nil || errors.Is(err, ErrProviderRejectedEmail) {
		return pu, err
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrIdentityProviderUnavailable, op, err)
}
