package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// userCollections returns the stores the user contract is checked against. The Mongo
// store is included only when a server is reachable.
func userCollections(t *testing.T) map[string]UserCollection {
	stores := map[string]UserCollection{"memory": NewMemoryUserCollection()}
	if database := testDatabase(t); database != nil {
		collection := database.Collection(UsersCollection)
		_ = collection.Drop(context.Background())
		if err := EnsureIndexes(context.Background(), database); err != nil {
			t.Fatalf("ensure indexes: %v", err)
		}
		stores["mongo"] = &MongoUserCollection{Collection: collection}
	}
	return stores
}

func testUser(username string, role models.Role) models.User {
	return models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hashedpassword",
		Role:         role,
		FirstName:    "Test",
		LastName:     "User",
	}
}

func TestUserCollection_InsertAndFind(t *testing.T) {
	for name, users := range userCollections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, users.InsertUser(ctx, testUser("testuser", models.RoleTravelAdmin)))

			found, err := users.FindUserByUsername(ctx, "testuser")
			require.NoError(t, err)
			assert.Equal(t, "testuser@example.com", found.Email)
			assert.Equal(t, models.RoleTravelAdmin, found.Role)
			assert.True(t, found.IsActive)
			assert.NotZero(t, found.CreatedAt)

			byID, err := users.FindUserByID(ctx, found.ID.Hex())
			require.NoError(t, err)
			assert.Equal(t, found.Username, byID.Username)

			byEmail, err := users.FindUserByEmail(ctx, "testuser@example.com")
			require.NoError(t, err)
			assert.Equal(t, found.ID, byEmail.ID)

			_, err = users.FindUserByUsername(ctx, "nonexistent")
			assert.ErrorIs(t, err, apperr.ErrNotFound)

			_, err = users.FindUserByID(ctx, "invalid-id")
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestUserCollection_UpdateAndDelete(t *testing.T) {
	for name, users := range userCollections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, users.InsertUser(ctx, testUser("driver1", models.RoleDriver)))
			inserted, err := users.FindUserByUsername(ctx, "driver1")
			require.NoError(t, err)

			updated := *inserted
			updated.FirstName = "Updated"
			require.NoError(t, users.UpdateUser(ctx, inserted.ID.Hex(), updated))

			found, err := users.FindUserByID(ctx, inserted.ID.Hex())
			require.NoError(t, err)
			assert.Equal(t, "Updated", found.FirstName)
			assert.False(t, found.UpdatedAt.Before(inserted.UpdatedAt))

			require.NoError(t, users.UpdateLastLogin(ctx, inserted.ID.Hex()))
			found, err = users.FindUserByID(ctx, inserted.ID.Hex())
			require.NoError(t, err)
			assert.NotNil(t, found.LastLogin)

			err = users.UpdateUser(ctx, primitive.NewObjectID().Hex(), updated)
			assert.ErrorIs(t, err, apperr.ErrNotFound)

			require.NoError(t, users.DeleteUser(ctx, inserted.ID.Hex()))
			_, err = users.FindUserByID(ctx, inserted.ID.Hex())
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestUserCollection_FindUsersByRole(t *testing.T) {
	for name, users := range userCollections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, users.InsertUser(ctx, testUser("zoe", models.RoleDriver)))
			require.NoError(t, users.InsertUser(ctx, testUser("amir", models.RoleDriver)))
			require.NoError(t, users.InsertUser(ctx, testUser("priya", models.RoleEmployee)))

			drivers, err := users.FindUsersByRole(ctx, models.RoleDriver)
			require.NoError(t, err)
			require.Len(t, drivers, 2)
			assert.Equal(t, "amir", drivers[0].Username)
			assert.Equal(t, "zoe", drivers[1].Username)

			all, err := users.FindUsersByRole(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestUserCollection_Duplicates(t *testing.T) {
	for name, users := range userCollections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, users.InsertUser(ctx, testUser("dup", models.RoleEmployee)))

			err := users.InsertUser(ctx, testUser("dup", models.RoleEmployee))
			assert.ErrorIs(t, err, apperr.ErrConflict, "same username")

			sameEmail := testUser("other", models.RoleEmployee)
			sameEmail.Email = "dup@example.com"
			err = users.InsertUser(ctx, sameEmail)
			assert.ErrorIs(t, err, apperr.ErrConflict, "same email")

			noEmail := testUser("noemail1", models.RoleDriver)
			noEmail.Email = ""
			require.NoError(t, users.InsertUser(ctx, noEmail))
			noEmail = testUser("noemail2", models.RoleDriver)
			noEmail.Email = ""
			require.NoError(t, users.InsertUser(ctx, noEmail), "accounts without email do not collide")
		})
	}
}
