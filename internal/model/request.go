package model

type RegisterRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Photo           string `json:"photo" validate:"omitempty,max=2048"`
	Password        string `json:"password" validate:"required,min=6,bcryptmax"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Remember selects a persistent cookie. Absent means true.
	Remember *bool `json:"remember,omitempty"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"password_current"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// PasswordInput is validated whenever a password is set after registration.
type PasswordInput struct {
	Password        string `json:"password" validate:"required,min=6,bcryptmax"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

// PasswordFields are body keys that may never reach a profile update.
var PasswordFields = []string{"password", "password_confirm", "passwordConfirm", "password_current"}
