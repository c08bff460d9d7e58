package common

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// AssessmentAlphabet lists the accepted answer letters.
const AssessmentAlphabet = "ABCD"

// RegisterCustomValidations adds the project's tags to v and makes error
// fields report their JSON names.
func RegisterCustomValidations(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		return err
	}
	return v.RegisterValidation("assessment", validateAssessmentAnswers)
}

// validateAssessmentAnswers accepts strings made only of AssessmentAlphabet
// letters. Length is checked separately with len=.
func validateAssessmentAnswers(fl validator.FieldLevel) bool {
	answers := fl.Field().String()
	for _, r := range answers {
		if !strings.ContainsRune(AssessmentAlphabet, r) {
			return false
		}
	}
	return true
}
