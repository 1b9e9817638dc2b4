package repository

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-identity-service/internal/model"
)

func seedIdentity(id, email string, created time.Time) model.Identity {
	return model.Identity{
		ID:           id,
		Name:         "Name " + id,
		Email:        email,
		PasswordHash: "hash-" + id,
		Role:         model.RoleUser,
		Active:       true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestMemoryIdentityRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryIdentityRepository()

	require.NoError(t, repo.Create(ctx, seedIdentity("id-1", "ada@example.com", testNow)))

	t.Run("email lookup is case insensitive", func(t *testing.T) {
		identity, err := repo.FindByEmail(ctx, " ADA@Example.com")
		require.NoError(t, err)
		assert.Equal(t, "id-1", identity.ID)
	})

	t.Run("duplicate email differing only in case", func(t *testing.T) {
		err := repo.Create(ctx, seedIdentity("id-2", "Ada@example.COM", testNow))
		assert.ErrorIs(t, err, model.ErrDuplicateEmail)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, model.ErrIdentityNotFound)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		require.NoError(t, repo.SetResetToken(ctx, "id-1", "hash", testNow.Add(time.Minute), testNow))

		identity, err := repo.FindByID(ctx, "id-1")
		require.NoError(t, err)
		*identity.ResetTokenHash = "tampered"

		again, err := repo.FindByID(ctx, "id-1")
		require.NoError(t, err)
		assert.Equal(t, "hash", *again.ResetTokenHash)
	})
}

func TestMemoryIdentityRepository_ConcurrentDuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryIdentityRepository()

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := repo.Create(ctx, seedIdentity(fmt.Sprintf("id-%d", i), "race@example.com", testNow)); err == nil {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryIdentityRepository_ConsumeResetToken(t *testing.T) {
	ctx := context.Background()
	changedAt := testNow.Add(-time.Second)

	setup := func(t *testing.T, active bool) *MemoryIdentityRepository {
		repo := NewMemoryIdentityRepository()
		identity := seedIdentity("id-1", "ada@example.com", testNow)
		identity.Active = active
		require.NoError(t, repo.Create(ctx, identity))
		require.NoError(t, repo.SetResetToken(ctx, "id-1", "hash", testNow.Add(10*time.Minute), testNow))
		return repo
	}

	t.Run("live token sets password once", func(t *testing.T) {
		repo := setup(t, true)

		identity, err := repo.ConsumeResetToken(ctx, "hash", "new-hash", changedAt, testNow)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", identity.PasswordHash)
		assert.False(t, identity.HasResetToken())

		_, err = repo.ConsumeResetToken(ctx, "hash", "other", changedAt, testNow)
		assert.ErrorIs(t, err, model.ErrResetTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		repo := setup(t, true)

		_, err := repo.ConsumeResetToken(ctx, "hash", "new-hash", changedAt, testNow.Add(10*time.Minute))
		assert.ErrorIs(t, err, model.ErrResetTokenInvalid)

		identity, err := repo.FindByID(ctx, "id-1")
		require.NoError(t, err)
		assert.Equal(t, "hash-id-1", identity.PasswordHash)
	})

	t.Run("inactive identity", func(t *testing.T) {
		repo := setup(t, false)

		_, err := repo.ConsumeResetToken(ctx, "hash", "new-hash", changedAt, testNow)
		assert.ErrorIs(t, err, model.ErrResetTokenInvalid)
	})
}

func TestMemoryIdentityRepository_UpdatePasswordClearsResetToken(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryIdentityRepository()
	require.NoError(t, repo.Create(ctx, seedIdentity("id-1", "ada@example.com", testNow)))
	require.NoError(t, repo.SetResetToken(ctx, "id-1", "hash", testNow.Add(time.Minute), testNow))

	require.NoError(t, repo.UpdatePassword(ctx, "id-1", "new-hash", testNow, testNow))

	identity, err := repo.FindByID(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, identity.HasResetToken())
	require.NotNil(t, identity.PasswordChangedAt)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, "missing", "x", testNow, testNow), model.ErrIdentityNotFound)
}

func TestMemoryIdentityRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryIdentityRepository()
	require.NoError(t, repo.Create(ctx, seedIdentity("id-1", "ada@example.com", testNow)))
	require.NoError(t, repo.Create(ctx, seedIdentity("id-2", "bob@example.com", testNow)))

	t.Run("moves the email index", func(t *testing.T) {
		email := "ada@new.example.com"
		_, err := repo.Update(ctx, "id-1", model.AdminPatch{ProfilePatch: model.ProfilePatch{Email: &email}}, testNow)
		require.NoError(t, err)

		_, err = repo.FindByEmail(ctx, "ada@example.com")
		assert.ErrorIs(t, err, model.ErrIdentityNotFound)
		identity, err := repo.FindByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, "id-1", identity.ID)
	})

	t.Run("rejects a taken email", func(t *testing.T) {
		email := "BOB@example.com"
		_, err := repo.Update(ctx, "id-1", model.AdminPatch{ProfilePatch: model.ProfilePatch{Email: &email}}, testNow)
		assert.ErrorIs(t, err, model.ErrDuplicateEmail)
	})

	t.Run("role and active", func(t *testing.T) {
		role := model.RoleAdmin
		active := false
		identity, err := repo.Update(ctx, "id-2", model.AdminPatch{Role: &role, Active: &active}, testNow)
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, identity.Role)
		assert.False(t, identity.Active)
	})
}

func TestMemoryIdentityRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryIdentityRepository()
	for i := 0; i < 5; i++ {
		identity := seedIdentity(fmt.Sprintf("id-%d", i), fmt.Sprintf("u%d@example.com", i), testNow.Add(time.Duration(i)*time.Minute))
		if i == 4 {
			identity.Role = model.RoleAdmin
		}
		require.NoError(t, repo.Create(ctx, identity))
	}

	t.Run("default order is newest first", func(t *testing.T) {
		identities, total, err := repo.List(ctx, model.ListQuery{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, identities, 2)
		assert.Equal(t, "id-4", identities[0].ID)
		assert.Equal(t, "id-3", identities[1].ID)
	})

	t.Run("filter by role", func(t *testing.T) {
		role := model.RoleUser
		identities, total, err := repo.List(ctx, model.ListQuery{Role: &role, Page: 1, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, identities, 4)
	})

	t.Run("page past the end is empty", func(t *testing.T) {
		identities, total, err := repo.List(ctx, model.ListQuery{Page: 9, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, identities)
	})

	t.Run("overflowing offset does not panic", func(t *testing.T) {
		query := model.ListQuery{Page: math.MaxInt/model.MaxListLimit + 2, Limit: model.MaxListLimit}
		require.Negative(t, query.Offset())

		identities, total, err := repo.List(ctx, query)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, identities, 5)

		identities, _, err = repo.List(ctx, model.ListQuery{Page: 2, Limit: math.MaxInt})
		require.NoError(t, err)
		assert.Empty(t, identities)
	})

	t.Run("delete frees the email", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "id-0"))
		assert.ErrorIs(t, repo.Delete(ctx, "id-0"), model.ErrIdentityNotFound)
		require.NoError(t, repo.Create(ctx, seedIdentity("id-9", "u0@example.com", testNow)))
	})
}
