// internal/app/store/households/householdstore.go

// Package householdstore manages household rows and their resolve-or-create
// lookup used by invite and bulk-import flows.
//
// Known limitation: ResolveOrCreate is lookup-then-insert, not atomic.
// Import batches are processed single-threaded, so repeated names within a
// batch resolve to one household, but two concurrent batches first-using
// the same name in the same tenant can create two households. That race is
// rare and manually correctable, so it is documented rather than engineered
// away.
package householdstore

import (
	"context"
	"errors"
	"time"

	"github.com/commonward/communitygate/internal/app/system/normalize"
	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("households")}
}

var errEmptyName = errors.New("household name must not be empty")

// ResolveOrCreate returns the household with the given name in the tenant,
// creating it if absent. Name matching is exact and case-sensitive.
func (s *Store) ResolveOrCreate(ctx context.Context, tenantID primitive.ObjectID, name string) (models.Household, error) {
	name = normalize.HouseholdName(name)
	if name == "" {
		return models.Household{}, errEmptyName
	}

	var existing models.Household
	err := s.c.FindOne(ctx, bson.M{"tenant_id": tenantID, "name": name}).Decode(&existing)
	if err == nil {
		return existing, nil
	}
	if err != mongo.ErrNoDocuments {
		return models.Household{}, err
	}

	h := models.Household{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, h); err != nil {
		return models.Household{}, err
	}
	return h, nil
}

// GetByID returns the household with the given id, or nil if none exists.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Household, error) {
	var h models.Household
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&h)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// SetContactEmail sets or clears the household's contact email.
func (s *Store) SetContactEmail(ctx context.Context, id primitive.ObjectID, email *string) error {
	update := bson.M{}
	if email == nil {
		update["$unset"] = bson.M{"contact_email": ""}
	} else {
		e := normalize.Email(*email)
		update["$set"] = bson.M{"contact_email": e}
	}
	_, err := s.c.UpdateByID(ctx, id, update)
	return err
}
