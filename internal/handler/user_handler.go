package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-identity-service/internal/middleware"
	"go-identity-service/internal/model"
	"go-identity-service/internal/service"
	"go-identity-service/pkg/apierror"
)

type UserHandler struct {
	identities *service.IdentityService
}

func NewUserHandler(identities *service.IdentityService) *UserHandler {
	return &UserHandler{identities: identities}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated("You are not logged in! Please log in to get access."))
		return
	}

	writeSuccess(w, http.StatusOK, newUserResponse(identity), nil)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated("You are not logged in! Please log in to get access."))
		return
	}

	var body map[string]json.RawMessage
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.identities.UpdateProfile(r.Context(), identity.ID, body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, newUserResponse(updated), nil)
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated("You are not logged in! Please log in to get access."))
		return
	}

	if err := h.identities.Deactivate(r.Context(), identity.ID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, nil, nil)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := model.ParseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, apierror.Validation("Invalid query", err.Error()))
		return
	}

	identities, total, err := h.identities.List(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	users := make([]model.PublicIdentity, 0, len(identities))
	for _, identity := range identities {
		users = append(users, identity.Public())
	}

	writeSuccess(w, http.StatusOK, model.PublicIdentityList{Users: users}, model.NewMeta(query.Page, query.Limit, total))
}

// Create is not supported; identities come from /auth/register.
func (h *UserHandler) Create(w http.ResponseWriter, _ *http.Request) {
	writeError(w, apierror.New(apierror.CodeInternal, "This route is not defined! Please use /auth/register instead", "", http.StatusInternalServerError))
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identities.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, newUserResponse(identity), nil)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.IdentityFromContext(r.Context())

	var body map[string]json.RawMessage
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.identities.AdminUpdate(r.Context(), actor.ID, chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, newUserResponse(updated), nil)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.IdentityFromContext(r.Context())

	if err := h.identities.Delete(r.Context(), actor.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
