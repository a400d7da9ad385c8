package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"github.com/go-playground/validator/v10"
)

var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.\-^=]{0,11}$`)
)

var (
	validate     *validator.Validate
	onceValidate sync.Once
)

func getValidator() *validator.Validate {
	onceValidate.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
			return userIDRegex.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
			return symbolRegex.MatchString(fl.Field().String())
		})
	})
	return validate
}

// validateStruct runs the struct's validate tags and reports the first
// failure as a *domain.ValidationError.
func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &domain.ValidationError{Message: describe(verrs[0])}
	}
	return &domain.ValidationError{Message: err.Error()}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "userid":
		return fmt.Sprintf("%s must be 1-64 letters, digits, '-' or '_'", fe.Field())
	case "symbol":
		return fmt.Sprintf("%s %q is not a valid ticker symbol", fe.Field(), fe.Value())
	}
	return fmt.Sprintf("%s failed the %s check", fe.Field(), fe.Tag())
}
