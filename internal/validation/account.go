package validation

import (
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	PasswordMinLength = 8
	// bcrypt ignores input beyond 72 bytes.
	PasswordMaxLength = 72
)

var credentialsSchema = jsonschema.MustCompileString("credentials.json", `{
	"type": "object",
	"properties": {
		"email": {"type": "string", "maxLength": 254, "pattern": "^[^@\\s]+@[^@\\s]+\\.[^@\\s]+$"},
		"password": {"type": "string", "minLength": 8, "maxLength": 72}
	},
	"required": ["email", "password"]
}`)

var credentialMessages = messages{
	"email": {"*": "Email must be a valid address"},
	"password": {
		"minLength": "Password must be at least 8 characters",
		"maxLength": "Password must be at most 72 characters",
		"*":         "Password is required",
	},
}

// Credentials is the raw shape submitted by the register and login forms.
type Credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// ValidateCredentials checks a registration form. The returned email is
// trimmed and lowercased; the password is kept as typed.
func ValidateCredentials(input Credentials) (Credentials, FieldErrors) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	doc := map[string]interface{}{"email": email, "password": input.Password}

	errs := FieldErrors{}
	check(credentialsSchema, doc, credentialMessages, errs)
	if len(input.Password) > PasswordMaxLength {
		errs.Add("password", "Password must be at most 72 characters")
	}
	if len(errs) > 0 {
		return Credentials{}, errs
	}
	return Credentials{Email: email, Password: input.Password}, nil
}
