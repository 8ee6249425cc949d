package models

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var tagPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9\-_?]*$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the package-wide validator instance, registering the
// `tagpattern` custom rule (spec §6.5's tag format) once at first use.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("tagpattern", func(fl validator.FieldLevel) bool {
			return tagPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}
