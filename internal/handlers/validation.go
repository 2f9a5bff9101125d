package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

const maxRequestBodyBytes = 1 << 16

var validate = newValidator()

// Field errors are reported under the JSON key the client sent
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateRequest runs struct tag validation on req and describes the first
// failing field
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return fmt.Errorf("%s: %s", fe.Field(), describeFieldError(fe))
	}
	return fmt.Errorf("invalid request: %w", err)
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// the validation_error response is already written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WriteValidationError(w, "request body too large")
		} else {
			pkghttp.WriteValidationError(w, "malformed JSON body")
		}
		return false
	}

	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return false
	}
	return true
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "numeric":
		return "must contain only digits"
	case "alphanum":
		return "must contain only letters and digits"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
