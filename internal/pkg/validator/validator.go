package validator

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate struct fields. Returns field name -> failed tag, or nil.
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	return FieldErrors(err)
}

// FieldErrors flattens a validation error, including gin binding errors,
// into field name -> failed tag.
func FieldErrors(err error) map[string]string {
	errs := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["_"] = err.Error()
		return errs
	}
	for _, e := range verrs {
		errs[e.Field()] = e.Tag()
	}
	return errs
}
