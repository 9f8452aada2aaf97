// internal/app/entitlement/subscription.go
package entitlement

import (
	"context"
	"time"

	"github.com/commonward/communitygate/internal/app/policy/billingpolicy"
	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SubscriptionGate answers "is this tenant's subscription usable right
// now". Absence of a subscription row means no: free tenants carry an
// explicit row with a far-future period end rather than relying on a
// missing-row default.
type SubscriptionGate struct {
	subs    SubscriptionStore
	tenants TenantCounter
	log     *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewSubscriptionGate wires a gate over the subscription and tenant stores.
func NewSubscriptionGate(subs SubscriptionStore, tenants TenantCounter, log *zap.Logger) *SubscriptionGate {
	return &SubscriptionGate{subs: subs, tenants: tenants, log: log, backoff: defaultBackoff, now: time.Now}
}

// IsActive reports whether the tenant's subscription passes the gate:
// status active or trialing, and the current period has not ended.
// past_due fails even before the period end. Fails closed on store error.
func (g *SubscriptionGate) IsActive(ctx context.Context, tenantID primitive.ObjectID) (bool, error) {
	sub, err := g.current(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	if sub.Status != models.SubStatusActive && sub.Status != models.SubStatusTrialing {
		return false, nil
	}
	return sub.CurrentPeriodEnd.After(g.now()), nil
}

// CurrentPlan returns the tenant's plan id, or "" when no subscription
// row exists.
func (g *SubscriptionGate) CurrentPlan(ctx context.Context, tenantID primitive.ObjectID) (string, error) {
	sub, err := g.current(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", nil
	}
	return sub.PlanID, nil
}

// PaymentRequired reports whether this owner's next community needs a
// paid subscription before provisioning. The external tenant-creation
// flow calls this through the payment-check endpoint; the first
// community is free, every later one is not.
func (g *SubscriptionGate) PaymentRequired(ctx context.Context, ownerUserID primitive.ObjectID) (bool, error) {
	count, err := callStore(ctx, g.log, g.backoff, "tenants.CountByOwner", func(ctx context.Context) (int64, error) {
		return g.tenants.CountByOwner(ctx, ownerUserID)
	})
	if err != nil {
		return false, err
	}
	return billingpolicy.RequiresPayment(int(count)), nil
}

func (g *SubscriptionGate) current(ctx context.Context, tenantID primitive.ObjectID) (*models.SubscriptionState, error) {
	return callStore(ctx, g.log, g.backoff, "subscriptions.Get", func(ctx context.Context) (*models.SubscriptionState, error) {
		return g.subs.Get(ctx, tenantID)
	})
}
