package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names so messages match the request body.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, trans)
	return validate, trans
}

// validationDetails renders field errors as sentences and reports whether
// any of them is a missing required field.
func validationDetails(err error, trans ut.Translator) (details []string, missing bool) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}, false
	}
	for _, fe := range fieldErrs {
		details = append(details, fe.Translate(trans))
		if strings.HasPrefix(fe.Tag(), "required") {
			missing = true
		}
	}
	return details, missing
}
