// Defines the validation interface for requests and the field rules.

package dto

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validatable is implemented by request types that can validate their fields.
// The Wrap function in handler_wrapper.go uses this interface as a type
// constraint to ensure all request types provide validation.
type Validatable interface {
	Validate() error
}

var (
	// Letters including Latin-1 accented ones, whitespace, apostrophes and hyphens.
	personNameRe = regexp.MustCompile(`^[a-zA-Z\x{00C0}-\x{00FF}\s'-]+$`)
	mailboxRe    = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")
)

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return mailboxRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("nodoubledot", func(fl validator.FieldLevel) bool {
		return !strings.Contains(fl.Field().String(), "..")
	})
	return v
})

// messages maps "field.tag" to the message reported to clients.
var messages = map[string]string{
	"name.required":     "name is required",
	"name.min":          "name must be at least 2 characters",
	"name.max":          "name is too long (maximum 100 characters)",
	"name.personname":   "name contains invalid characters",
	"email.required":    "email is required",
	"email.mailbox":     "invalid email format",
	"email.nodoubledot": "email must not contain consecutive dots",
	"email.max":         "email is too long (maximum 254 characters)",
}

// validateStruct runs the struct tag rules and converts failures to a single
// ValidationFailed error listing every message, in field order.
func validateStruct(s any) error {
	err := validate().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return InternalWithError("validation error", err)
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.ToLower(fe.Field()) + "." + fe.Tag()
		if msg, ok := messages[key]; ok {
			out = append(out, msg)
			continue
		}
		out = append(out, strings.ToLower(fe.Field())+" is invalid")
	}
	return ValidationFailed(out)
}
