package validator

import (
	"errors"
	"strings"

	"memberconsole/internal/model"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Custom validators
	_ = v.RegisterValidation("notblank", validateNotBlank)
	_ = v.RegisterValidation("role", validateRole)
	_ = v.RegisterValidation("membership_status", validateMembershipStatus)

	return &Validator{validate: v}
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}

// Fields returns the struct field names that failed validation, or nil
// when err is not a validation error.
func Fields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateRole(fl validator.FieldLevel) bool {
	return model.ParseRole(fl.Field().String()).Valid()
}

func validateMembershipStatus(fl validator.FieldLevel) bool {
	status, ok := model.ParseRequestStatus(fl.Field().String())
	if !ok {
		return false
	}
	return status == model.RequestStatusApproved || status == model.RequestStatusSuspended
}
