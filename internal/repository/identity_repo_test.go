package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-identity-service/internal/model"
)

var (
	testNow     = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	columnNames = []string{
		"id", "name", "email", "photo", "password_hash", "role",
		"password_changed_at", "reset_token_hash", "reset_token_expires_at",
		"active", "created_at", "updated_at",
	}
)

func identityRow(id, email string) *pgxmock.Rows {
	return pgxmock.NewRows(columnNames).AddRow(
		id, "Ada", email, "", "$2a$04$hash", "user",
		(*time.Time)(nil), (*string)(nil), (*time.Time)(nil),
		true, testNow, testNow,
	)
}

func TestIdentityRepository_Create(t *testing.T) {
	identity := model.Identity{
		ID:           "id-1",
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "$2a$04$hash",
		Role:         model.RoleUser,
		Active:       true,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		errMsg    string
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WithArgs("id-1", "Ada", "ada@example.com", "", "$2a$04$hash", "user", true, testNow, testNow).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique email violation maps to duplicate",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WithArgs("id-1", "Ada", "ada@example.com", "", "$2a$04$hash", "user", true, testNow, testNow).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: emailUniqueConstraint})
			},
			wantErr: model.ErrDuplicateEmail,
		},
		{
			name: "other unique violation is not a duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WithArgs("id-1", "Ada", "ada@example.com", "", "$2a$04$hash", "user", true, testNow, testNow).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "identities_pkey"})
			},
			errMsg: "identities_pkey",
		},
		{
			name: "connection failure",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WithArgs("id-1", "Ada", "ada@example.com", "", "$2a$04$hash", "user", true, testNow, testNow).
					WillReturnError(errors.New("connection refused"))
			},
			errMsg: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			err = NewIdentityRepository(mock).Create(context.Background(), identity)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				require.Error(t, err)
				assert.NotErrorIs(t, err, model.ErrDuplicateEmail)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestIdentityRepository_FindByEmail(t *testing.T) {
	t.Run("normalizes the lookup key", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM identities WHERE lower\(email\) = lower\(\$1\)`).
			WithArgs("ada@example.com").
			WillReturnRows(identityRow("id-1", "Ada@Example.com"))

		identity, err := NewIdentityRepository(mock).FindByEmail(context.Background(), "  ADA@example.com ")
		require.NoError(t, err)
		assert.Equal(t, "id-1", identity.ID)
		assert.Equal(t, model.RoleUser, identity.Role)
		assert.Nil(t, identity.PasswordChangedAt)
		assert.False(t, identity.HasResetToken())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM identities WHERE lower\(email\)`).
			WithArgs("ghost@example.com").
			WillReturnRows(pgxmock.NewRows(columnNames))

		_, err = NewIdentityRepository(mock).FindByEmail(context.Background(), "ghost@example.com")
		assert.ErrorIs(t, err, model.ErrIdentityNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIdentityRepository_FindByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM identities WHERE id = \$1`).
		WithArgs("id-1").
		WillReturnError(errors.New("timeout"))

	_, err = NewIdentityRepository(mock).FindByID(context.Background(), "id-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrIdentityNotFound)
	assert.Contains(t, err.Error(), "timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_ConsumeResetToken(t *testing.T) {
	changedAt := testNow.Add(-time.Second)

	t.Run("consumes a live token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows(columnNames).AddRow(
			"id-1", "Ada", "ada@example.com", "", "$2a$04$new", "user",
			&changedAt, (*string)(nil), (*time.Time)(nil),
			true, testNow, testNow,
		)
		mock.ExpectQuery(`UPDATE identities SET password_hash = \$2`).
			WithArgs("hash", "$2a$04$new", changedAt, testNow).
			WillReturnRows(rows)

		identity, err := NewIdentityRepository(mock).ConsumeResetToken(context.Background(), "hash", "$2a$04$new", changedAt, testNow)
		require.NoError(t, err)
		assert.Equal(t, "$2a$04$new", identity.PasswordHash)
		require.NotNil(t, identity.PasswordChangedAt)
		assert.True(t, identity.PasswordChangedAt.Equal(changedAt))
		assert.False(t, identity.HasResetToken())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no matching row is an invalid token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`UPDATE identities SET password_hash = \$2`).
			WithArgs("hash", "$2a$04$new", changedAt, testNow).
			WillReturnRows(pgxmock.NewRows(columnNames))

		_, err = NewIdentityRepository(mock).ConsumeResetToken(context.Background(), "hash", "$2a$04$new", changedAt, testNow)
		assert.ErrorIs(t, err, model.ErrResetTokenInvalid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIdentityRepository_ResetTokenLifecycle(t *testing.T) {
	expires := testNow.Add(10 * time.Minute)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE identities SET reset_token_hash = \$2`).
		WithArgs("id-1", "hash", expires, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE identities SET reset_token_hash = NULL`).
		WithArgs("id-1", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE identities SET reset_token_hash = \$2`).
		WithArgs("missing", "hash", expires, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewIdentityRepository(mock)
	require.NoError(t, repo.SetResetToken(context.Background(), "id-1", "hash", expires, testNow))
	require.NoError(t, repo.ClearResetToken(context.Background(), "id-1", testNow))
	assert.ErrorIs(t, repo.SetResetToken(context.Background(), "missing", "hash", expires, testNow), model.ErrIdentityNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_UpdatePassword(t *testing.T) {
	changedAt := testNow.Add(-time.Second)

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "updates existing identity", affected: 1},
		{name: "missing identity", affected: 0, wantErr: model.ErrIdentityNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`UPDATE identities SET password_hash = \$2, password_changed_at = \$3`).
				WithArgs("id-1", "$2a$04$new", changedAt, testNow).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err = NewIdentityRepository(mock).UpdatePassword(context.Background(), "id-1", "$2a$04$new", changedAt, testNow)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepository_Update(t *testing.T) {
	name := "Grace"
	role := model.RoleModerator
	patch := model.AdminPatch{ProfilePatch: model.ProfilePatch{Name: &name}, Role: &role}

	t.Run("returns the updated row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows(columnNames).AddRow(
			"id-1", "Grace", "ada@example.com", "", "$2a$04$hash", "moderator",
			(*time.Time)(nil), (*string)(nil), (*time.Time)(nil),
			true, testNow, testNow,
		)
		mock.ExpectQuery(`UPDATE identities SET name = COALESCE\(\$2, name\)`).
			WithArgs("id-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), testNow).
			WillReturnRows(rows)

		identity, err := NewIdentityRepository(mock).Update(context.Background(), "id-1", patch, testNow)
		require.NoError(t, err)
		assert.Equal(t, "Grace", identity.Name)
		assert.Equal(t, model.RoleModerator, identity.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email collision is a duplicate", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`UPDATE identities SET name = COALESCE`).
			WithArgs("id-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), testNow).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: emailUniqueConstraint})

		_, err = NewIdentityRepository(mock).Update(context.Background(), "id-1", patch, testNow)
		assert.ErrorIs(t, err, model.ErrDuplicateEmail)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIdentityRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM identities WHERE id = \$1`).
		WithArgs("id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM identities WHERE id = \$1`).
		WithArgs("id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewIdentityRepository(mock)
	require.NoError(t, repo.Delete(context.Background(), "id-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "id-1"), model.ErrIdentityNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	role := model.RoleUser
	query := model.ListQuery{
		Role:  &role,
		Sort:  []model.SortField{{Column: "name"}},
		Page:  2,
		Limit: 1,
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM identities WHERE role = \$1`).
		WithArgs("user").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`FROM identities WHERE role = \$1 ORDER BY name ASC, id LIMIT \$2 OFFSET \$3`).
		WithArgs("user", 1, 1).
		WillReturnRows(identityRow("id-2", "b@example.com"))

	identities, total, err := NewIdentityRepository(mock).List(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, identities, 1)
	assert.Equal(t, "id-2", identities[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, "created_at DESC, id", orderBy(nil))
	assert.Equal(t, "role ASC, created_at DESC, id", orderBy([]model.SortField{
		{Column: "role"},
		{Column: "created_at", Descending: true},
	}))
}
