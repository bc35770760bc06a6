package main

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// requestValidator plugs go-playground/validator into echo's c.Validate.
type requestValidator struct {
	validator *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{validator: validator.New()}
}

func (rv *requestValidator) Validate(i any) error {
	return rv.validator.Struct(i)
}

// fieldErrorClasses maps request struct fields to the error class reported
// when their validation fails.
var fieldErrorClasses = map[string]*QueueError{
	"Name":     ErrNameInvalid,
	"Duration": ErrDurationInvalid,
}

// validationError turns a validator failure into a QueueError so that
// rejected requests share the error body of every other rejection.
func validationError(err error) *QueueError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if class, ok := fieldErrorClasses[fe.StructField()]; ok {
				return class.WithMessagef("%s failed %q (value %v)", fe.StructField(), fe.Tag(), fe.Value())
			}
		}
	}
	return ErrRequestInvalid.WithMessage(err.Error())
}
