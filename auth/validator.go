package auth

import (
	"eventmaster/errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type SignInRequest struct {
	Email string `validate:"required,email"`
}

func ValidateSignIn(req SignInRequest) error {
	if err := validate.Struct(req); err != nil {
		return errors.NewValidationError(errors.FieldError{
			Field:   "email",
			Rule:    "email",
			Message: fmt.Sprintf("%q is not a valid email address", req.Email),
		})
	}
	return nil
}

// UserFromEmail builds the identity used by the local sign-in: the lowercased
// email is the id, its local part the display name.
func UserFromEmail(email string) User {
	email = strings.ToLower(strings.TrimSpace(email))
	name, _, _ := strings.Cut(email, "@")
	return User{ID: email, Email: email, Name: name}
}
