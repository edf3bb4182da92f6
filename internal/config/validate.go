package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rileyhilliard/sshman/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateServer checks a merged record: host and user are required and the
// port must be in range.
func ValidateServer(rec ServerRecord) error {
	if err := validate.Struct(rec); err != nil {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Server %q is misconfigured: %s", rec.Name, describe(err)),
			fmt.Sprintf("Set SSH_SERVER_%s_HOST and SSH_SERVER_%s_USER, or add it to servers.yaml",
				strings.ToUpper(rec.Name), strings.ToUpper(rec.Name)))
	}
	if rec.Password != "" && rec.KeyPath != "" {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Server %q sets both a password and a key path", rec.Name),
			"Pick one: password auth or key auth")
	}
	return nil
}

// ValidateSettings checks settings.yaml values.
func ValidateSettings(s Settings) error {
	if err := validate.Struct(s); err != nil {
		return errors.New(errors.ErrConfig,
			"Invalid settings: "+describe(err),
			"log_level must be one of debug, info, warn, error")
	}
	if s.ConnectTimeout <= 0 || s.CommandTimeout <= 0 || s.HookTimeout <= 0 || s.LockTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			"Timeouts must be positive",
			"Use Go duration syntax, e.g. 10s")
	}
	return nil
}

// describe flattens validator errors into "host is required, port must be <= 65535".
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be >= %s", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be <= %s", field, fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of %s", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}
