// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"

	"github.com/commonward/communitygate/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Membership controls logging for membership lifecycle events
	// (invites, join requests, transitions, removals, household moves).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Membership string
	// Access controls logging for access-check decisions. High volume;
	// defaults to "log" in production configs.
	// Values: "all", "db", "log", "off"
	Access string
}

// Logger provides convenience methods for recording audit events.
// It logs to MongoDB (via audit.Store) and structured logs (via zap).
// Security-category events (cross-tenant violations, forbidden actors)
// are always recorded regardless of configuration.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.TenantID != nil {
		fields = append(fields, zap.String("tenant_id", event.TenantID.Hex()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	switch {
	case event.Category == audit.CategorySecurity:
		l.zapLog.Error("audit event", fields...)
	case event.Success:
		l.zapLog.Info("audit event", fields...)
	default:
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryMembership:
		setting = l.config.Membership
	case audit.CategoryAccess:
		setting = l.config.Access
	default:
		// Security events are never filtered out.
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Insert(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Membership events ---

// MemberInvited logs a successful direct invite (approved membership created).
func (l *Logger) MemberInvited(ctx context.Context, tenantID primitive.ObjectID, actorID, userID primitive.ObjectID, role string, degraded bool) {
	details := map[string]string{"role": role}
	if degraded {
		details["provisioning"] = "degraded"
	}
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventMemberInvited,
		TenantID:  &tenantID,
		ActorID:   &actorID,
		UserID:    &userID,
		Success:   true,
		Details:   details,
	})
}

// JoinRequested logs a self-service signup (pending membership created).
func (l *Logger) JoinRequested(ctx context.Context, tenantID, userID primitive.ObjectID, role string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventMemberJoinRequested,
		TenantID:  &tenantID,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"role": role},
	})
}

// MemberTransitioned logs a lifecycle status change.
func (l *Logger) MemberTransitioned(ctx context.Context, tenantID, actorID, userID primitive.ObjectID, from, to string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventMemberTransitioned,
		TenantID:  &tenantID,
		ActorID:   &actorID,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"from": from, "to": to},
	})
}

// MemberRemoved logs a membership deletion.
func (l *Logger) MemberRemoved(ctx context.Context, tenantID, actorID, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventMemberRemoved,
		TenantID:  &tenantID,
		ActorID:   &actorID,
		UserID:    &userID,
		Success:   true,
	})
}

// HouseholdAssigned logs a membership being bound to a household.
func (l *Logger) HouseholdAssigned(ctx context.Context, tenantID, actorID, userID primitive.ObjectID, householdName string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventHouseholdAssigned,
		TenantID:  &tenantID,
		ActorID:   &actorID,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"household": householdName},
	})
}

// HouseholdCleared logs a membership's household link (and head flag)
// being removed.
func (l *Logger) HouseholdCleared(ctx context.Context, tenantID, actorID, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventHouseholdCleared,
		TenantID:  &tenantID,
		ActorID:   &actorID,
		UserID:    &userID,
		Success:   true,
	})
}

// ProvisioningDegraded logs that the identity provider rejected an
// invite and a deferred-activation user was created instead.
func (l *Logger) ProvisioningDegraded(ctx context.Context, tenantID primitive.ObjectID, userID primitive.ObjectID, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryMembership,
		EventType:     audit.EventProvisioningDegraded,
		TenantID:      &tenantID,
		UserID:        &userID,
		Success:       false,
		FailureReason: reason,
	})
}

// --- Access events ---

// AccessDecision logs an access-check outcome.
func (l *Logger) AccessDecision(ctx context.Context, tenantID primitive.ObjectID, role, featureKey string, allowed bool, reason string) {
	eventType := audit.EventAccessAllowed
	if !allowed {
		eventType = audit.EventAccessDenied
	}
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAccess,
		EventType:     eventType,
		TenantID:      &tenantID,
		Success:       allowed,
		FailureReason: reason,
		Details:       map[string]string{"role": role, "feature": featureKey},
	})
}

// --- Security events ---

// CrossTenantViolation logs an attempt to bind records across tenant
// boundaries. Always recorded.
func (l *Logger) CrossTenantViolation(ctx context.Context, tenantID primitive.ObjectID, actorID primitive.ObjectID, detail string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySecurity,
		EventType:     audit.EventCrossTenantViolation,
		TenantID:      &tenantID,
		ActorID:       &actorID,
		Success:       false,
		FailureReason: detail,
	})
}

// ActorForbidden logs a mutation attempt by an actor without the
// required role. Always recorded.
func (l *Logger) ActorForbidden(ctx context.Context, tenantID, actorID primitive.ObjectID, operation string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySecurity,
		EventType:     audit.EventActorForbidden,
		TenantID:      &tenantID,
		ActorID:       &actorID,
		Success:       false,
		FailureReason: "actor lacks management role",
		Details:       map[string]string{"operation": operation},
	})
}
