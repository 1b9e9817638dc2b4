package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"go-identity-service/internal/event"
	"go-identity-service/internal/model"
	"go-identity-service/internal/security"
	"go-identity-service/pkg/apierror"
)

// IdentityService owns identity records: registration, lookups, password and
// profile changes, and the administrative operations.
type IdentityService struct {
	store  IdentityStore
	hasher security.PasswordHasher
	clock  abtime.AbstractTime
	events event.Bus
}

func NewIdentityService(store IdentityStore, hasher security.PasswordHasher, clock abtime.AbstractTime, events event.Bus) *IdentityService {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	if events == nil {
		events = event.Nop{}
	}
	return &IdentityService{store: store, hasher: hasher, clock: clock, events: events}
}

func (s *IdentityService) now() time.Time {
	return s.clock.Now().UTC()
}

// Register creates a user-role identity. Any role supplied by the client is
// ignored.
func (s *IdentityService) Register(ctx context.Context, req model.RegisterRequest) (model.Identity, error) {
	return s.create(ctx, req, model.RoleUser)
}

func (s *IdentityService) create(ctx context.Context, req model.RegisterRequest, role model.Role) (model.Identity, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = model.NormalizeEmail(req.Email)
	req.Photo = strings.TrimSpace(req.Photo)
	if err := validateStruct(req); err != nil {
		return model.Identity{}, err
	}

	hash, err := hashPassword(s.hasher, req.Password)
	if err != nil {
		return model.Identity{}, err
	}

	now := s.now()
	identity := model.Identity{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Photo:        req.Photo,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			return model.Identity{}, apierror.Duplicate("Email already registered", "").WithCause(err)
		}
		return model.Identity{}, err
	}

	s.events.Publish(event.New(event.TypeIdentityRegistered, identity.ID, "", now))
	return identity, nil
}

// FindByID returns store errors unchanged so callers can tell a missing
// identity from a failing store.
func (s *IdentityService) FindByID(ctx context.Context, id string) (model.Identity, error) {
	return s.store.FindByID(ctx, id)
}

func (s *IdentityService) FindByEmail(ctx context.Context, email string) (model.Identity, error) {
	return s.store.FindByEmail(ctx, model.NormalizeEmail(email))
}

// ChangePassword re-hashes, stamps passwordChangedAt and clears any pending
// reset token. Sessions issued before the change stop being accepted.
func (s *IdentityService) ChangePassword(ctx context.Context, id string, password string, confirm string) (model.Identity, error) {
	if err := validateStruct(model.PasswordInput{Password: password, PasswordConfirm: confirm}); err != nil {
		return model.Identity{}, err
	}

	hash, err := hashPassword(s.hasher, password)
	if err != nil {
		return model.Identity{}, err
	}

	now := s.now()
	if err := s.store.UpdatePassword(ctx, id, hash, model.PasswordChangeStamp(now), now); err != nil {
		return model.Identity{}, err
	}

	s.events.Publish(event.New(event.TypePasswordChanged, id, "", now))
	return s.store.FindByID(ctx, id)
}

// UpdateProfile applies the self-service fields name, email and photo. A body
// naming any password field is refused before anything is written.
func (s *IdentityService) UpdateProfile(ctx context.Context, id string, body map[string]json.RawMessage) (model.Identity, error) {
	if err := rejectPasswordFields(body, "This route is not for password updates. Please use /auth/password."); err != nil {
		return model.Identity{}, err
	}

	profile, err := decodeProfilePatch(body)
	if err != nil {
		return model.Identity{}, err
	}
	if profile.Empty() {
		return s.store.FindByID(ctx, id)
	}

	updated, err := s.update(ctx, id, model.AdminPatch{ProfilePatch: profile})
	if err != nil {
		return model.Identity{}, err
	}

	s.events.Publish(event.New(event.TypeIdentityUpdated, id, "", updated.UpdatedAt))
	return updated, nil
}

// Deactivate soft-deletes the identity. It can no longer log in or
// authenticate with an existing token.
func (s *IdentityService) Deactivate(ctx context.Context, id string) error {
	active := false
	now := s.now()
	if _, err := s.store.Update(ctx, id, model.AdminPatch{Active: &active}, now); err != nil {
		return err
	}

	s.events.Publish(event.New(event.TypeIdentityDeactivated, id, "", now))
	return nil
}

func (s *IdentityService) List(ctx context.Context, query model.ListQuery) ([]model.Identity, int, error) {
	return s.store.List(ctx, query)
}

func (s *IdentityService) Get(ctx context.Context, id string) (model.Identity, error) {
	identity, err := s.store.FindByID(ctx, id)
	if errors.Is(err, model.ErrIdentityNotFound) {
		return model.Identity{}, apierror.NotFound("No user found with that ID", id).WithCause(err)
	}
	return identity, err
}

// AdminUpdate applies name, email, photo, role and active. Password fields
// are refused; passwords only change through the password flows.
func (s *IdentityService) AdminUpdate(ctx context.Context, actorID string, id string, body map[string]json.RawMessage) (model.Identity, error) {
	if err := rejectPasswordFields(body, "Passwords cannot be changed through this route."); err != nil {
		return model.Identity{}, err
	}

	profile, err := decodeProfilePatch(body)
	if err != nil {
		return model.Identity{}, err
	}
	patch := model.AdminPatch{ProfilePatch: profile}

	if raw, ok := body["role"]; ok {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return model.Identity{}, apierror.Validation("Invalid input data", "role must be a string")
		}
		role, known := model.ParseRole(value)
		if !known {
			return model.Identity{}, apierror.Validation("Invalid input data", "role must be one of user, moderator, admin")
		}
		patch.Role = &role
	}
	if raw, ok := body["active"]; ok {
		var active bool
		if err := json.Unmarshal(raw, &active); err != nil {
			return model.Identity{}, apierror.Validation("Invalid input data", "active must be a boolean")
		}
		patch.Active = &active
	}

	if patch.Empty() {
		return s.Get(ctx, id)
	}

	updated, err := s.update(ctx, id, patch)
	if err != nil {
		return model.Identity{}, err
	}

	s.events.Publish(event.New(event.TypeIdentityUpdated, id, actorID, updated.UpdatedAt))
	return updated, nil
}

func (s *IdentityService) Delete(ctx context.Context, actorID string, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrIdentityNotFound) {
			return apierror.NotFound("No user found with that ID", id).WithCause(err)
		}
		return err
	}

	s.events.Publish(event.New(event.TypeIdentityDeleted, id, actorID, s.now()))
	return nil
}

// EnsureBootstrapAdmin creates an admin identity when the store is empty.
// It reports whether one was created.
func (s *IdentityService) EnsureBootstrapAdmin(ctx context.Context, name string, email string, password string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	admin, err := s.create(ctx, model.RegisterRequest{
		Name:            name,
		Email:           email,
		Password:        password,
		PasswordConfirm: password,
	}, model.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}

	slog.Info("bootstrap admin created", "id", admin.ID, "email", admin.Email)
	return true, nil
}

func (s *IdentityService) update(ctx context.Context, id string, patch model.AdminPatch) (model.Identity, error) {
	updated, err := s.store.Update(ctx, id, patch, s.now())
	switch {
	case errors.Is(err, model.ErrDuplicateEmail):
		return model.Identity{}, apierror.Duplicate("Email already registered", "").WithCause(err)
	case errors.Is(err, model.ErrIdentityNotFound):
		return model.Identity{}, apierror.NotFound("No user found with that ID", id).WithCause(err)
	case err != nil:
		return model.Identity{}, err
	}
	return updated, nil
}

func rejectPasswordFields(body map[string]json.RawMessage, message string) error {
	for _, field := range model.PasswordFields {
		if _, ok := body[field]; ok {
			return apierror.Validation(message, "")
		}
	}
	return nil
}

// decodeProfilePatch reads the name, email and photo keys. Other keys are
// ignored.
func decodeProfilePatch(body map[string]json.RawMessage) (model.ProfilePatch, error) {
	var patch model.ProfilePatch

	readString := func(key string) (*string, error) {
		raw, ok := body[key]
		if !ok {
			return nil, nil
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, apierror.Validation("Invalid input data", key+" must be a string")
		}
		value = strings.TrimSpace(value)
		return &value, nil
	}

	var err error
	if patch.Name, err = readString("name"); err != nil {
		return model.ProfilePatch{}, err
	}
	if patch.Email, err = readString("email"); err != nil {
		return model.ProfilePatch{}, err
	}
	if patch.Photo, err = readString("photo"); err != nil {
		return model.ProfilePatch{}, err
	}

	if patch.Name != nil {
		if err := validateVar("name", *patch.Name, "required,max=100"); err != nil {
			return model.ProfilePatch{}, err
		}
	}
	if patch.Email != nil {
		normalized := model.NormalizeEmail(*patch.Email)
		if err := validateVar("email", normalized, "required,email,max=255"); err != nil {
			return model.ProfilePatch{}, err
		}
		patch.Email = &normalized
	}
	if patch.Photo != nil {
		if err := validateVar("photo", *patch.Photo, "max=2048"); err != nil {
			return model.ProfilePatch{}, err
		}
	}

	return patch, nil
}
