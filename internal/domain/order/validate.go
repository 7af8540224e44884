package order

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// phonePattern matches Algerian mobile numbers: 05, 06 or 07 followed by
// eight digits.
var phonePattern = regexp.MustCompile(`^0[567][0-9]{8}$`)

// ValidPhone reports whether s is an accepted mobile number.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

var fieldMessages = map[string]string{
	"required": "is required",
	"phone":    "must be a mobile number starting with 05, 06 or 07 followed by 8 digits",
	"oneof":    "must be office or home",
	"min":      "must be at least 1",
	"max":      "must be at most",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	return v
}

// validateStruct runs v on s and converts the first failure into a
// ValidationError.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, "validate")
	}
	fe := verrs[0]

	// Drop the struct name from the namespace: "PlaceOrderRequest.items[0].quantity".
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	msg, ok := fieldMessages[fe.Tag()]
	switch {
	case !ok:
		msg = "is invalid"
	case fe.Tag() == "min" && fe.Kind() == reflect.String:
		msg = "must not be empty"
	case fe.Tag() == "max":
		msg = "must be at most " + fe.Param()
	}
	return &ValidationError{Field: field, Message: msg}
}
