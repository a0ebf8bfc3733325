package httpx

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	pincodeRegex = regexp.MustCompile(`^\d{6}$`)
)

// Validator returns the shared validator. Field errors are reported under
// their JSON names.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
			return pincodeRegex.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// validationFields flattens validator errors into field -> message.
func validationFields(err error) (map[string]string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fieldMessage(fe)
	}
	return fields, true
}

// fieldPath drops the root struct name: "Order.shipping_address.pincode"
// becomes "shipping_address.pincode".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "email":
		return "must be a valid email address"
	case "pincode":
		return "must be a 6 digit pincode"
	case "latitude", "longitude":
		return fmt.Sprintf("must be a valid %s", fe.Tag())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
