// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	"github.com/commonward/communitygate/internal/app/system/memberstatus"
	"github.com/commonward/communitygate/internal/app/system/normalize"
	"github.com/commonward/communitygate/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c          *mongo.Collection
	households *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:          db.Collection("memberships"),
		households: db.Collection("households"),
	}
}

var (
	// ErrAlreadyMember is returned when a membership already exists for the
	// (tenant, user) pair. It is an idempotency signal, not a failure: bulk
	// callers skip the row and continue.
	ErrAlreadyMember = errors.New("user already has a membership in this tenant")

	// ErrInvalidTransition is returned when a requested status change is not
	// one of the explicit state-machine edges. The membership is left
	// unchanged.
	ErrInvalidTransition = errors.New("membership status transition not allowed")

	// ErrCrossTenant is returned when a household belongs to a different
	// tenant than the membership. This indicates a caller bug.
	ErrCrossTenant = errors.New("household belongs to a different tenant")

	// ErrNotFound is returned by mutations that target a membership id that
	// does not exist. Remove is the exception: it is idempotent and treats
	// a missing id as success.
	ErrNotFound = errors.New("membership not found")

	// ErrNoHousehold is returned when marking a membership household head
	// while it has no household. A membership must never be head of nothing.
	ErrNoHousehold = errors.New("membership has no household")

	errBadRole   = errors.New(`role must be "resident"|"community_manager"|"guard"|"head_of_security"`)
	errBadStatus = errors.New(`status must be "pending"|"approved"|"suspended"|"rejected"`)
)

// Create inserts a new membership after normalizing and validating fields.
//
// Atomicity of the (tenant, user) uniqueness invariant rests on the unique
// compound index, not on a read-then-write check: when two creates race,
// the database accepts one insert and rejects the other with a duplicate
// key error, which is surfaced as ErrAlreadyMember.
func (s *Store) Create(ctx context.Context, m models.Membership) (models.Membership, error) {
	m.ID = primitive.NewObjectID()
	m.Role = normalize.Role(m.Role)
	m.Status = normalize.Status(m.Status)
	if m.Unit != nil {
		u := normalize.Unit(*m.Unit)
		if u == "" {
			m.Unit = nil
		} else {
			m.Unit = &u
		}
	}

	if !memberstatus.IsValidRole(m.Role) {
		return models.Membership{}, errBadRole
	}
	if !memberstatus.IsValid(m.Status) {
		return models.Membership{}, errBadStatus
	}
	if m.IsHouseholdHead && m.HouseholdID == nil {
		return models.Membership{}, ErrNoHousehold
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Membership{}, ErrAlreadyMember
		}
		return models.Membership{}, err
	}
	return m, nil
}

// Get returns the membership for (tenant, user), or nil if none exists.
func (s *Store) Get(ctx context.Context, tenantID, userID primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	err := s.c.FindOne(ctx, bson.M{"tenant_id": tenantID, "user_id": userID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByID returns the membership with the given id, or nil if none exists.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Transition moves a membership to a new status along one of the explicit
// state-machine edges:
//
//	pending   → approved | rejected
//	approved  → suspended
//	suspended → approved
//
// Any other (from, to) pair returns ErrInvalidTransition with the status
// unchanged. The update filters on the observed status so a concurrent
// transition cannot be silently overwritten.
func (s *Store) Transition(ctx context.Context, id primitive.ObjectID, newStatus string) (*models.Membership, error) {
	newStatus = normalize.Status(newStatus)
	if !memberstatus.IsValid(newStatus) {
		return nil, errBadStatus
	}

	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}
	if !memberstatus.CanTransition(cur.Status, newStatus) {
		return nil, ErrInvalidTransition
	}

	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	var updated models.Membership
	err = s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": cur.Status},
		bson.M{"$set": bson.M{"status": newStatus, "updated_at": time.Now().UTC()}},
		opts,
	).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		// Status moved underneath us; the observed edge no longer applies.
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// AssignHousehold sets or clears a membership's household. A nil
// householdID clears the assignment and the household-head flag with it,
// preserving the invariant that a head always has a household.
//
// Assigning a household from a different tenant returns ErrCrossTenant.
func (s *Store) AssignHousehold(ctx context.Context, id primitive.ObjectID, householdID *primitive.ObjectID) (*models.Membership, error) {
	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	update := bson.M{"$set": set}

	if householdID == nil {
		update["$unset"] = bson.M{"household_id": ""}
		set["is_household_head"] = false
	} else {
		var h models.Household
		if err := s.households.FindOne(ctx, bson.M{"_id": *householdID}).Decode(&h); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if h.TenantID != cur.TenantID {
			return nil, ErrCrossTenant
		}
		set["household_id"] = *householdID
	}

	after := options.After
	var updated models.Membership
	err = s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(after)).Decode(&updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetHouseholdHead marks or unmarks a membership as its household's head.
// Marking requires the membership to have a household.
func (s *Store) SetHouseholdHead(ctx context.Context, id primitive.ObjectID, head bool) (*models.Membership, error) {
	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}
	if head && cur.HouseholdID == nil {
		return nil, ErrNoHousehold
	}

	after := options.After
	var updated models.Membership
	err = s.c.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_household_head": head, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(after)).Decode(&updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Remove deletes a membership by id. Removal is idempotent: deleting an
// id that does not exist succeeds, so retried removals are no-ops.
func (s *Store) Remove(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// ListByHousehold returns the memberships assigned to a household.
func (s *Store) ListByHousehold(ctx context.Context, householdID primitive.ObjectID) ([]models.Membership, error) {
	cur, err := s.c.Find(ctx, bson.M{"household_id": householdID},
		options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Membership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByTenant returns the number of memberships in a tenant, optionally
// filtered by role.
func (s *Store) CountByTenant(ctx context.Context, tenantID primitive.ObjectID, role string) (int64, error) {
	filter := bson.M{"tenant_id": tenantID}
	if role != "" {
		filter["role"] = normalize.Role(role)
	}
	return s.c.CountDocuments(ctx, filter)
}
