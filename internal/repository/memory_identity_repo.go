package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"go-identity-service/internal/model"
)

// MemoryIdentityRepository is an in-process store with the same contract as
// IdentityRepository. Values are copied in and out so callers never share
// state with the map.
type MemoryIdentityRepository struct {
	mu      sync.RWMutex
	byID    map[string]model.Identity
	byEmail map[string]string
}

func NewMemoryIdentityRepository() *MemoryIdentityRepository {
	return &MemoryIdentityRepository{
		byID:    make(map[string]model.Identity),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryIdentityRepository) Create(_ context.Context, identity model.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := model.NormalizeEmail(identity.Email)
	if _, exists := r.byEmail[key]; exists {
		return oops.Code("IDENTITY_DUPLICATE_EMAIL").With("email", identity.Email).Wrap(model.ErrDuplicateEmail)
	}
	if _, exists := r.byID[identity.ID]; exists {
		return oops.Code("IDENTITY_CREATE_FAILED").With("id", identity.ID).Errorf("identity id already exists")
	}

	r.byID[identity.ID] = cloneIdentity(identity)
	r.byEmail[key] = identity.ID
	return nil
}

func (r *MemoryIdentityRepository) FindByID(_ context.Context, id string) (model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byID[id]
	if !ok {
		return model.Identity{}, oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	return cloneIdentity(identity), nil
}

func (r *MemoryIdentityRepository) FindByEmail(_ context.Context, email string) (model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.Identity{}, oops.Code("IDENTITY_NOT_FOUND").Wrap(model.ErrIdentityNotFound)
	}
	return cloneIdentity(r.byID[id]), nil
}

func (r *MemoryIdentityRepository) FindByResetTokenHash(_ context.Context, tokenHash string) (model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, identity := range r.byID {
		if identity.ResetTokenHash != nil && *identity.ResetTokenHash == tokenHash {
			return cloneIdentity(identity), nil
		}
	}
	return model.Identity{}, oops.Code("IDENTITY_NOT_FOUND").Wrap(model.ErrIdentityNotFound)
}

func (r *MemoryIdentityRepository) SetResetToken(_ context.Context, id string, tokenHash string, expiresAt time.Time, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	identity.ResetTokenHash = &tokenHash
	identity.ResetTokenExpiresAt = &expiresAt
	identity.UpdatedAt = now
	r.byID[id] = identity
	return nil
}

func (r *MemoryIdentityRepository) ClearResetToken(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil
	}
	identity.ResetTokenHash = nil
	identity.ResetTokenExpiresAt = nil
	identity.UpdatedAt = now
	r.byID[id] = identity
	return nil
}

func (r *MemoryIdentityRepository) UpdatePassword(_ context.Context, id string, passwordHash string, changedAt time.Time, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	setPassword(&identity, passwordHash, changedAt, now)
	r.byID[id] = identity
	return nil
}

func (r *MemoryIdentityRepository) ConsumeResetToken(_ context.Context, tokenHash string, passwordHash string, changedAt time.Time, now time.Time) (model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, identity := range r.byID {
		if identity.ResetTokenHash == nil || *identity.ResetTokenHash != tokenHash {
			continue
		}
		if !identity.Active || identity.ResetTokenExpiresAt == nil || !identity.ResetTokenExpiresAt.After(now) {
			break
		}
		setPassword(&identity, passwordHash, changedAt, now)
		r.byID[id] = identity
		return cloneIdentity(identity), nil
	}
	return model.Identity{}, oops.Code("RESET_TOKEN_INVALID").Wrap(model.ErrResetTokenInvalid)
}

func (r *MemoryIdentityRepository) Update(_ context.Context, id string, patch model.AdminPatch, now time.Time) (model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return model.Identity{}, oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}

	oldKey := model.NormalizeEmail(identity.Email)
	if patch.Email != nil {
		newKey := model.NormalizeEmail(*patch.Email)
		if owner, exists := r.byEmail[newKey]; exists && owner != id {
			return model.Identity{}, oops.Code("IDENTITY_DUPLICATE_EMAIL").With("id", id).Wrap(model.ErrDuplicateEmail)
		}
		identity.Email = *patch.Email
		delete(r.byEmail, oldKey)
		r.byEmail[newKey] = id
	}
	if patch.Name != nil {
		identity.Name = *patch.Name
	}
	if patch.Photo != nil {
		identity.Photo = *patch.Photo
	}
	if patch.Role != nil {
		identity.Role = *patch.Role
	}
	if patch.Active != nil {
		identity.Active = *patch.Active
	}
	identity.UpdatedAt = now

	r.byID[id] = identity
	return cloneIdentity(identity), nil
}

func (r *MemoryIdentityRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(model.ErrIdentityNotFound)
	}
	delete(r.byEmail, model.NormalizeEmail(identity.Email))
	delete(r.byID, id)
	return nil
}

func (r *MemoryIdentityRepository) List(_ context.Context, query model.ListQuery) ([]model.Identity, int, error) {
	r.mu.RLock()
	matched := make([]model.Identity, 0, len(r.byID))
	for _, identity := range r.byID {
		if query.Role != nil && identity.Role != *query.Role {
			continue
		}
		if query.Active != nil && identity.Active != *query.Active {
			continue
		}
		if query.Email != "" && model.NormalizeEmail(identity.Email) != query.Email {
			continue
		}
		matched = append(matched, cloneIdentity(identity))
	}
	r.mu.RUnlock()

	sortIdentities(matched, query.Sort)

	total := len(matched)
	start := max(0, min(query.Offset(), total))
	end := total
	if query.Limit > 0 && query.Limit < total-start {
		end = start + query.Limit
	}
	return matched[start:end], total, nil
}

func (r *MemoryIdentityRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

func setPassword(identity *model.Identity, passwordHash string, changedAt time.Time, now time.Time) {
	identity.PasswordHash = passwordHash
	identity.PasswordChangedAt = &changedAt
	identity.ResetTokenHash = nil
	identity.ResetTokenExpiresAt = nil
	identity.UpdatedAt = now
}

func sortIdentities(identities []model.Identity, fields []model.SortField) {
	if len(fields) == 0 {
		fields = []model.SortField{{Column: "created_at", Descending: true}}
	}

	sort.SliceStable(identities, func(i, j int) bool {
		for _, field := range fields {
			c := compareColumn(identities[i], identities[j], field.Column)
			if c == 0 {
				continue
			}
			if field.Descending {
				return c > 0
			}
			return c < 0
		}
		return identities[i].ID < identities[j].ID
	})
}

func compareColumn(a, b model.Identity, column string) int {
	switch column {
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(string(a.Role), string(b.Role))
	default:
		return 0
	}
}

func cloneIdentity(identity model.Identity) model.Identity {
	clone := identity
	if identity.PasswordChangedAt != nil {
		v := *identity.PasswordChangedAt
		clone.PasswordChangedAt = &v
	}
	if identity.ResetTokenHash != nil {
		v := *identity.ResetTokenHash
		clone.ResetTokenHash = &v
	}
	if identity.ResetTokenExpiresAt != nil {
		v := *identity.ResetTokenExpiresAt
		clone.ResetTokenExpiresAt = &v
	}
	return clone
}
