package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Email reports whether s is a syntactically valid email address.
func Email(s string) bool {
	return v.Var(s, "required,email") == nil
}

// Phone reports whether s is an E.164 phone number ("+" followed by up to 15 digits).
// The e164 tag alone accepts a missing "+".
func Phone(s string) bool {
	return strings.HasPrefix(s, "+") && v.Var(s, "required,e164") == nil
}

// Code reports whether s is a 6-digit numeric one-time code.
func Code(s string) bool {
	return v.Var(s, "required,numeric,len=6") == nil
}

// Username reports whether s is a 2-40 character alphanumeric handle.
func Username(s string) bool {
	return v.Var(s, "required,min=2,max=40,alphanum") == nil
}
