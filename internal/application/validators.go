package application

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterConfigValidators registers the custom struct-tag rules used by
// Config: semver and modelformat.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}
	return nil
}

// validateSemver accepts X.Y.Z where X, Y and Z are non-negative integers.
func validateSemver(fl validator.FieldLevel) bool {
	var major, minor, patch int
	var rest string
	n, _ := fmt.Sscanf(fl.Field().String(), "%d.%d.%d%s", &major, &minor, &patch, &rest)
	return n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateModelFormat checks the provider/model selector shape. The provider
// is lowercase alphanumeric; the model may itself contain slashes, as in
// "groq/meta-llama/llama-4-scout", and an optional @version suffix.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}

	provider, name, ok := strings.Cut(model, "/")
	if !ok || provider == "" || name == "" {
		return false
	}
	for _, ch := range provider {
		if (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') {
			return false
		}
	}

	name, version, hasVersion := strings.Cut(name, "@")
	if hasVersion && !validModelChars(version, false) {
		return false
	}
	return validModelChars(name, true)
}

func validModelChars(s string, allowSlash bool) bool {
	if s == "" || strings.HasSuffix(s, "/") {
		return false
	}
	for _, ch := range s {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.', ch == ':':
		case ch == '/' && allowSlash:
		default:
			return false
		}
	}
	return true
}
