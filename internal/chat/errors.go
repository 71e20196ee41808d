package chat

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// ErrValidation marks a rejected write: a required field is missing, empty or too long.
// Use errors.Is to detect it.
var ErrValidation = errors.New("validation failed")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	// report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateDraft checks the required fields of d.
func ValidateDraft(d Draft) error {
	return validateStruct(d)
}

// ValidateMessage checks a relayed message: its draft fields and the length of
// a client supplied id.
func ValidateMessage(m Message) error {
	if err := validateStruct(m); err != nil {
		return err
	}
	return ValidateDraft(m.Draft())
}

// ValidateUser checks that u carries an id.
func ValidateUser(u User) error {
	return validateStruct(u)
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	var missing, tooLong []string
	for _, fe := range fieldErrs {
		if fe.Tag() == "max" {
			tooLong = append(tooLong, fmt.Sprintf("%s longer than %s", fe.Field(), fe.Param()))
			continue
		}
		missing = append(missing, fe.Field())
	}
	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing "+strings.Join(missing, ", "))
	}
	problems = append(problems, tooLong...)
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
}
