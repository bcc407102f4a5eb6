package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/t7a/stowbase"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags, then the rules tags can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	known := false
	for _, algo := range stowbase.Algos() {
		known = known || algo == cfg.Algo
	}
	if !known {
		return errors.Wrapf(stowbase.ErrInvalid, "algo: %q is not one of %v", cfg.Algo, stowbase.Algos())
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return errors.Wrapf(stowbase.ErrInvalid, "%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
