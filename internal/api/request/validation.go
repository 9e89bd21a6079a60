package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var (
	nameRegex       = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)
	commandRegex    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9:_.\-]*$`)
	phpVersionRegex = regexp.MustCompile(`^[0-9]+(\.[0-9A-Za-z]+)*$`)
)

func init() {
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return nameRegex.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("command", func(fl validator.FieldLevel) bool {
		return commandRegex.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("phpversion", func(fl validator.FieldLevel) bool {
		return phpVersionRegex.MatchString(fl.Field().String())
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// RequireName checks a path parameter is present.
func RequireName(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required name")
	}
	return s, nil
}
