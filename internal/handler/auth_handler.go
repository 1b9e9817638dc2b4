package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-identity-service/internal/middleware"
	"go-identity-service/internal/model"
	"go-identity-service/internal/service"
	"go-identity-service/pkg/apierror"
)

type AuthHandler struct {
	auth      *service.AuthService
	reset     *service.ResetService
	delivery  *CredentialDelivery
	publicURL string
}

func NewAuthHandler(auth *service.AuthService, reset *service.ResetService, delivery *CredentialDelivery, publicURL string) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		reset:     reset,
		delivery:  delivery,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.auth.Register(r.Context(), payload, h.origin(r))
	if err != nil {
		writeError(w, err)
		return
	}

	h.delivery.Deliver(w, r, http.StatusCreated, session, true)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	remember := payload.Remember == nil || *payload.Remember
	h.delivery.Deliver(w, r, http.StatusOK, session, remember)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.delivery.Clear(w, r)
	writeSuccess(w, http.StatusOK, nil, nil)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ForgotPasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.reset.RequestReset(r.Context(), payload.Email, h.origin(r)); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Token sent to email!")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.reset.CompleteReset(r.Context(), chi.URLParam(r, "token"), payload.Password, payload.PasswordConfirm)
	if err != nil {
		writeError(w, err)
		return
	}

	h.delivery.Deliver(w, r, http.StatusOK, session, true)
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated("You are not logged in! Please log in to get access."))
		return
	}

	var payload model.UpdatePasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.auth.UpdateOwnPassword(r.Context(), identity.ID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	h.delivery.Deliver(w, r, http.StatusOK, session, true)
}

// origin is the base URL links in emails point at: the caller's Origin
// header, or the configured public URL.
func (h *AuthHandler) origin(r *http.Request) string {
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && origin != "null" {
		return origin
	}
	return h.publicURL
}
