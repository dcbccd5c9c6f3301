// Package validate wraps go-playground/validator with JSON field names and
// English messages, returning apperr.ValidationError on failure.
package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/Sheiden1/hackathon/internal/apperr"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	notBlankTag  = "notblank"
	notBlankText = "{0} cannot be blank"
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlank)
	_ = validate.RegisterTranslation(
		notBlankTag, translator,
		func(t ut.Translator) error { return t.Add(notBlankTag, notBlankText, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(notBlankTag, fe.Field())
			return s
		},
	)
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Struct validates v and converts validator failures into a
// *apperr.ValidationError wrapping cause.
func Struct(v any, cause error) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	flds := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, apperr.FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return apperr.NewValidationError(cause, flds...)
}
