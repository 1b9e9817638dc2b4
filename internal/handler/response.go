package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-identity-service/internal/model"
	"go-identity-service/pkg/apierror"
)

const maxBodyBytes = 2 << 20

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Message: message,
	})
}

// writeError is the single place where errors become responses. Anything
// that is not an *apierror.APIError or a known sentinel is logged and
// rendered as a generic 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    apierror.CodeInternal,
		Message: "Something went very wrong!",
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		if status >= http.StatusInternalServerError {
			slog.Error("request failed", "error_code", apiErr.Code, "error", err)
		}
	} else if errors.Is(err, model.ErrIdentityNotFound) {
		status = http.StatusNotFound
		body.Code = apierror.CodeNotFound
		body.Message = "No user found with that ID"
	} else if errors.Is(err, model.ErrDuplicateEmail) {
		status = http.StatusUnauthorized
		body.Code = apierror.CodeDuplicate
		body.Message = "Email already registered"
	} else if errors.Is(err, model.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
		body.Code = apierror.CodeUnauthenticated
		body.Message = "Incorrect email or password"
	} else if errors.Is(err, model.ErrTokenInvalid) || errors.Is(err, model.ErrTokenExpired) {
		status = http.StatusUnauthorized
		body.Code = apierror.CodeUnauthenticated
		body.Message = "Invalid or expired token. Please log in again."
	} else if errors.Is(err, model.ErrResetTokenInvalid) {
		status = http.StatusBadRequest
		body.Code = apierror.CodeBadRequest
		body.Message = "Token is invalid or has expired"
	} else {
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierror.BadRequest("request body too large", "")
		}
		return apierror.BadRequest("invalid JSON body", "")
	}
	return nil
}

type userResponse struct {
	User model.PublicIdentity `json:"user"`
}

func newUserResponse(identity model.Identity) userResponse {
	return userResponse{User: identity.Public()}
}
