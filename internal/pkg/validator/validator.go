// Package validator wraps go-playground/validator with a shared instance
// and joined, human-readable field errors.
package validator

import (
	"errors"
	"fmt"

	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is the first error in the chain returned by Validate
var ErrValidationFailed = errors.New("struct validation failed")

var validate = gvalidator.New(gvalidator.WithRequiredStructEnabled())

const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, fe := range validationErrors {
		errs = append(errs, fmt.Errorf(errStringFormat, fe.Namespace(), fe.Value(), fe.Tag()))
	}

	return errors.Join(errs...)
}

// Validate checks v against its `validate` struct tags
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatError(err)
	}
	return nil
}

// Var checks a single value against a tag expression such as "required,eth_addr"
func Var(field any, tag string) error {
	if err := validate.Var(field, tag); err != nil {
		return formatError(err)
	}
	return nil
}
