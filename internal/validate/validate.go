// Package validate holds the request validator shared by the engine flows
// and the HTTP layer.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9@.+_-]+$`)

var v = newValidator()

// Error names the first field that failed and the rule it broke.
type Error struct {
	Field string
	Rule  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed the %q rule", e.Field, e.Rule)
}

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	must(val.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}))
	must(val.RegisterValidation("nocontrol", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
	}))
	return val
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Struct validates s against its validate tags.
func Struct(s any) error {
	return convert(v.Struct(s), "")
}

// Var validates a single value under the given field name.
func Var(field string, value any, tag string) error {
	return convert(v.Var(value, tag), field)
}

func convert(err error, field string) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	if field == "" {
		field = fe.Field()
	}
	return &Error{Field: field, Rule: fe.Tag()}
}
