// Package validator checks struct configuration with go-playground/validator
// and the vector index naming rules, reporting failures as translated
// field errors.
package validator

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Supported message languages.
const (
	LangEN = "en"
	LangZH = "zh"
)

// Validator holds a configured validate instance and its translators.
type Validator struct {
	validate *validator.Validate
	trans    map[string]ut.Translator
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
)

// Default returns the process-wide validator, built on first use.
func Default() *Validator {
	defaultOnce.Do(func() {
		defaultValidator = New()
	})
	return defaultValidator
}

// New builds a validator with the custom rules and both message languages
// registered. Field names in messages come from the json tag.
func New() *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		trans:    make(map[string]ut.Translator, 2),
	}
	v.validate.RegisterTagNameFunc(jsonFieldName)

	uni := ut.New(en.New(), en.New(), zh.New())
	for lang, register := range map[string]func(*validator.Validate, ut.Translator) error{
		LangEN: en_translations.RegisterDefaultTranslations,
		LangZH: zh_translations.RegisterDefaultTranslations,
	} {
		trans, _ := uni.GetTranslator(lang)
		_ = register(v.validate, trans)
		v.trans[lang] = trans
	}

	for _, r := range rules {
		_ = v.validate.RegisterValidation(r.tag, r.fn)
		for lang, msg := range r.messages {
			if trans, ok := v.trans[lang]; ok {
				registerMessage(v.validate, trans, r.tag, msg)
			}
		}
	}
	return v
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

func registerMessage(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(t ut.Translator) error {
			return t.Add(tag, message, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field())
			return msg
		},
	)
}

// Struct validates s. A nil return means s is valid; otherwise the result
// lists every failed field with a message in lang (English when unknown).
func (v *Validator) Struct(s any, lang string) *ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return &ValidationErrors{Errors: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	trans, ok := v.trans[lang]
	if !ok {
		trans = v.trans[LangEN]
	}
	out := &ValidationErrors{Errors: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fe.Translate(trans),
		})
	}
	return out
}

// Var validates a single value against tag.
func (v *Validator) Var(field any, tag string) error {
	return v.validate.Var(field, tag)
}

// Struct validates s with the default validator and English messages.
func Struct(s any) *ValidationErrors {
	return Default().Struct(s, LangEN)
}

// Var validates a single value with the default validator.
func Var(field any, tag string) error {
	return Default().Var(field, tag)
}
