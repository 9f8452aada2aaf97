// internal/app/store/audit/auditstore.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryMembership = "membership"
	CategoryAccess     = "access"
	CategorySecurity   = "security"
)

// Membership event types
const (
	EventMemberInvited        = "member_invited"
	EventMemberJoinRequested  = "member_join_requested"
	EventMemberTransitioned   = "member_transitioned"
	EventMemberRemoved        = "member_removed"
	EventHouseholdAssigned    = "household_assigned"
	EventHouseholdCleared     = "household_cleared"
	EventProvisioningDegraded = "provisioning_degraded"
)

// Access event types
const (
	EventAccessAllowed = "access_allowed"
	EventAccessDenied  = "access_denied"
)

// Security event types
const (
	EventCrossTenantViolation = "cross_tenant_violation"
	EventActorForbidden       = "actor_forbidden"
)

// Event is one audit record. Events are append-only; nothing updates or
// deletes them through this store.
type Event struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty"`
	Timestamp time.Time           `bson:"timestamp"`
	TenantID  *primitive.ObjectID `bson:"tenant_id,omitempty"`

	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	UserID  *primitive.ObjectID `bson:"user_id,omitempty"`  // affected user
	ActorID *primitive.ObjectID `bson:"actor_id,omitempty"` // who performed the action

	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty"`
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Insert appends an event. The timestamp is set here if the caller left
// it zero.
func (s *Store) Insert(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, e)
	return err
}

// RecentByTenant returns the newest events for a tenant, most recent
// first. limit caps the result; values <= 0 default to 50.
func (s *Store) RecentByTenant(ctx context.Context, tenantID primitive.ObjectID, limit int64) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)
	cur, err := s.c.Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
