package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"go-identity-service/internal/model"
)

// DBTX is the subset of *pgxpool.Pool used by the repositories. It is also
// satisfied by pgxmock pools in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const emailUniqueConstraint = "identities_email_key"

const identityColumns = `id, name, email, photo, password_hash, role, password_changed_at, reset_token_hash, reset_token_expires_at, active, created_at, updated_at`

// IdentityRepository stores identities in PostgreSQL. Every mutation is a
// single-row statement so concurrent writers never observe a half-applied
// update.
type IdentityRepository struct {
	pool DBTX
}

func NewIdentityRepository(pool DBTX) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) Create(ctx context.Context, identity model.Identity) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO identities (id, name, email, photo, password_hash, role, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		identity.ID, identity.Name, identity.Email, identity.Photo, identity.PasswordHash,
		string(identity.Role), identity.Active, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, emailUniqueConstraint) {
			return oops.Code("IDENTITY_DUPLICATE_EMAIL").
				With("email", identity.Email).
				Wrap(model.ErrDuplicateEmail)
		}
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			Wrap(err)
	}
	return nil
}

func (r *IdentityRepository) FindByID(ctx context.Context, id string) (model.Identity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	if err != nil {
		return model.Identity{}, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "find identity by id").
			With("id", id).
			Wrap(err)
	}
	return identity, nil
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (model.Identity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`,
		model.NormalizeEmail(email))

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, oops.Code("IDENTITY_NOT_FOUND").Wrap(model.ErrIdentityNotFound)
	}
	if err != nil {
		return model.Identity{}, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "find identity by email").
			Wrap(err)
	}
	return identity, nil
}

// FindByResetTokenHash returns the owner of a reset token regardless of its
// expiry.
func (r *IdentityRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (model.Identity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE reset_token_hash = $1`, tokenHash)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, oops.Code("IDENTITY_NOT_FOUND").Wrap(model.ErrIdentityNotFound)
	}
	if err != nil {
		return model.Identity{}, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "find identity by reset token").
			Wrap(err)
	}
	return identity, nil
}

func (r *IdentityRepository) SetResetToken(ctx context.Context, id string, tokenHash string, expiresAt time.Time, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = $4 WHERE id = $1`,
		id, tokenHash, expiresAt, now)
	if err != nil {
		return oops.Code("IDENTITY_RESET_TOKEN_FAILED").
			With("operation", "set reset token").
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	return nil
}

func (r *IdentityRepository) ClearResetToken(ctx context.Context, id string, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE identities SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $2 WHERE id = $1`,
		id, now)
	if err != nil {
		return oops.Code("IDENTITY_RESET_TOKEN_FAILED").
			With("operation", "clear reset token").
			With("id", id).
			Wrap(err)
	}
	return nil
}

// UpdatePassword replaces the hash, stamps password_changed_at and drops any
// outstanding reset token in the same statement.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET password_hash = $2, password_changed_at = $3, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $4 WHERE id = $1`,
		id, passwordHash, changedAt, now)
	if err != nil {
		return oops.Code("IDENTITY_PASSWORD_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	return nil
}

// ConsumeResetToken sets a new password for the active identity holding an
// unexpired reset token and clears the token. Only one caller can consume a
// given token.
func (r *IdentityRepository) ConsumeResetToken(ctx context.Context, tokenHash string, passwordHash string, changedAt time.Time, now time.Time) (model.Identity, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE identities SET password_hash = $2, password_changed_at = $3, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $4
		 WHERE reset_token_hash = $1 AND reset_token_expires_at > $4 AND active
		 RETURNING `+identityColumns,
		tokenHash, passwordHash, changedAt, now)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, oops.Code("RESET_TOKEN_INVALID").Wrap(model.ErrResetTokenInvalid)
	}
	if err != nil {
		return model.Identity{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume reset token").
			Wrap(err)
	}
	return identity, nil
}

// Update applies the non-nil fields of patch.
func (r *IdentityRepository) Update(ctx context.Context, id string, patch model.AdminPatch, now time.Time) (model.Identity, error) {
	var role *string
	if patch.Role != nil {
		value := string(*patch.Role)
		role = &value
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE identities SET name = COALESCE($2, name), email = COALESCE($3, email), photo = COALESCE($4, photo), role = COALESCE($5, role), active = COALESCE($6, active), updated_at = $7
		 WHERE id = $1
		 RETURNING `+identityColumns,
		id, patch.Name, patch.Email, patch.Photo, role, patch.Active, now)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	if err != nil {
		if isUniqueViolation(err, emailUniqueConstraint) {
			return model.Identity{}, oops.Code("IDENTITY_DUPLICATE_EMAIL").
				With("id", id).
				Wrap(model.ErrDuplicateEmail)
		}
		return model.Identity{}, oops.Code("IDENTITY_UPDATE_FAILED").
			With("operation", "update identity").
			With("id", id).
			Wrap(err)
	}
	return identity, nil
}

func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return oops.Code("IDENTITY_DELETE_FAILED").
			With("operation", "delete identity").
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	return nil
}

func (r *IdentityRepository) List(ctx context.Context, query model.ListQuery) ([]model.Identity, int, error) {
	where, args := listFilter(query)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`+where, args...).Scan(&total); err != nil {
		return nil, 0, oops.Code("IDENTITY_LIST_FAILED").
			With("operation", "count identities").
			Wrap(err)
	}

	args = append(args, query.Limit, query.Offset())
	sql := fmt.Sprintf(`SELECT %s FROM identities%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		identityColumns, where, orderBy(query.Sort), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, oops.Code("IDENTITY_LIST_FAILED").
			With("operation", "list identities").
			Wrap(err)
	}
	defer rows.Close()

	identities := make([]model.Identity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, 0, oops.Code("IDENTITY_LIST_FAILED").
				With("operation", "scan identity").
				Wrap(err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, oops.Code("IDENTITY_LIST_FAILED").
			With("operation", "iterate identities").
			Wrap(err)
	}

	return identities, total, nil
}

func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); err != nil {
		return 0, oops.Code("IDENTITY_COUNT_FAILED").Wrap(err)
	}
	return count, nil
}

func listFilter(query model.ListQuery) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 5)

	if query.Role != nil {
		args = append(args, string(*query.Role))
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}
	if query.Active != nil {
		args = append(args, *query.Active)
		clauses = append(clauses, fmt.Sprintf("active = $%d", len(args)))
	}
	if query.Email != "" {
		args = append(args, query.Email)
		clauses = append(clauses, fmt.Sprintf("lower(email) = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// orderBy only emits columns from model.SortableFields, which ParseListQuery
// has already checked.
func orderBy(fields []model.SortField) string {
	if len(fields) == 0 {
		return "created_at DESC, id"
	}

	parts := make([]string, 0, len(fields)+1)
	for _, field := range fields {
		direction := "ASC"
		if field.Descending {
			direction = "DESC"
		}
		parts = append(parts, field.Column+" "+direction)
	}
	parts = append(parts, "id")
	return strings.Join(parts, ", ")
}

func scanIdentity(row pgx.Row) (model.Identity, error) {
	var identity model.Identity
	var role string
	err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.Email,
		&identity.Photo,
		&identity.PasswordHash,
		&role,
		&identity.PasswordChangedAt,
		&identity.ResetTokenHash,
		&identity.ResetTokenExpiresAt,
		&identity.Active,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return model.Identity{}, err
	}
	identity.Role = model.Role(role)
	return identity, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
