package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"go-identity-service/internal/security"
	"go-identity-service/pkg/apierror"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return strings.ToLower(field.Name)
		}
		return name
	})
	// bcryptmax bounds the encoded length; max counts runes.
	_ = v.RegisterValidation("bcryptmax", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= security.MaxPasswordBytes
	})
	return v
}

// hashPassword reports bcrypt's length limit as a validation error rather
// than a failure of the hasher.
func hashPassword(hasher security.PasswordHasher, password string) (string, error) {
	hash, err := hasher.Hash(password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apierror.Validation("Invalid input data", describe("password", "bcryptmax", "")).WithCause(err)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// validateStruct runs the struct's validate tags and reports every failing
// field in a single validation error.
func validateStruct(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate input: %w", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describeFieldError(fe))
	}
	return apierror.Validation("Invalid input data", strings.Join(messages, "; "))
}

func validateVar(field string, value any, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate %s: %w", field, err)
	}
	return apierror.Validation("Invalid input data", describe(field, fieldErrs[0].Tag(), fieldErrs[0].Param()))
}

func describeFieldError(fe validator.FieldError) string {
	return describe(fe.Field(), fe.Tag(), fe.Param())
}

func describe(field, tag, param string) string {
	switch tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "bcryptmax":
		return fmt.Sprintf("%s must be at most %d bytes", field, security.MaxPasswordBytes)
	case "eqfield":
		return fmt.Sprintf("%s must match %s", field, strings.ToLower(param))
	default:
		return fmt.Sprintf("%s failed %s", field, tag)
	}
}
