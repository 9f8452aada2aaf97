package householdstore_test

import (
	"testing"

	householdstore "github.com/commonward/communitygate/internal/app/store/households"
	"github.com/commonward/communitygate/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestStore_ResolveOrCreate_CreatesOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := householdstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tenant := fixtures.CreateTenant(ctx, "oakwood", "Oakwood Commons")

	first, err := store.ResolveOrCreate(ctx, tenant.ID, "Unit 202")
	if err != nil {
		t.Fatalf("first ResolveOrCreate failed: %v", err)
	}

	// Repeated calls within a batch must resolve to the same household.
	second, err := store.ResolveOrCreate(ctx, tenant.ID, "Unit 202")
	if err != nil {
		t.Fatalf("second ResolveOrCreate failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same household, got %v and %v", first.ID, second.ID)
	}

	count, err := db.Collection("households").CountDocuments(ctx, bson.M{
		"tenant_id": tenant.ID,
		"name":      "Unit 202",
	})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 household, got %d", count)
	}
}

func TestStore_ResolveOrCreate_CaseSensitive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := householdstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tenant := fixtures.CreateTenant(ctx, "oakwood", "Oakwood Commons")

	a, err := store.ResolveOrCreate(ctx, tenant.ID, "Unit 202")
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	b, err := store.ResolveOrCreate(ctx, tenant.ID, "unit 202")
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	if a.ID == b.ID {
		t.Error("expected different households for differently cased names")
	}
}

func TestStore_ResolveOrCreate_ScopedToTenant(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := householdstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	t1 := fixtures.CreateTenant(ctx, "oakwood", "Oakwood Commons")
	t2 := fixtures.CreateTenant(ctx, "birchwood", "Birchwood Estates")

	a, err := store.ResolveOrCreate(ctx, t1.ID, "Unit 1")
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	b, err := store.ResolveOrCreate(ctx, t2.ID, "Unit 1")
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	if a.ID == b.ID {
		t.Error("expected distinct households per tenant")
	}
	if a.TenantID != t1.ID || b.TenantID != t2.ID {
		t.Error("household tenant ids do not match their tenants")
	}
}

func TestStore_ResolveOrCreate_EmptyName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := householdstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tenant := fixtures.CreateTenant(ctx, "oakwood", "Oakwood Commons")

	if _, err := store.ResolveOrCreate(ctx, tenant.ID, "   "); err == nil {
		t.Fatal("expected error for empty household name")
	}
}
