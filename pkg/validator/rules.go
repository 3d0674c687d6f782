package validator

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags.
const (
	// TagIdentifier accepts metadata field names usable in filters.
	TagIdentifier = "identifier"
	// TagIndexName accepts names valid as both a Milvus collection and an OpenSearch index.
	TagIndexName = "indexname"
	// TagNoWhitespace rejects any whitespace character.
	TagNoWhitespace = "nowhitespace"
)

var (
	identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)
	indexNameRegex  = regexp.MustCompile(`^[a-z][a-z0-9_]{0,254}$`)
)

type rule struct {
	tag      string
	fn       validator.Func
	messages map[string]string
}

var rules = []rule{
	{
		tag: TagIdentifier,
		fn:  emptyOr(IsIdentifier),
		messages: map[string]string{
			LangEN: "{0} must start with a letter or underscore and contain only letters, numbers, and underscores",
			LangZH: "{0}必须以字母或下划线开头，只能包含字母、数字和下划线",
		},
	},
	{
		tag: TagIndexName,
		fn:  emptyOr(IsIndexName),
		messages: map[string]string{
			LangEN: "{0} must start with a lowercase letter and contain only lowercase letters, numbers, and underscores",
			LangZH: "{0}必须以小写字母开头，只能包含小写字母、数字和下划线",
		},
	},
	{
		tag: TagNoWhitespace,
		fn:  emptyOr(func(s string) bool { return !strings.ContainsFunc(s, unicode.IsSpace) }),
		messages: map[string]string{
			LangEN: "{0} must not contain whitespace characters",
			LangZH: "{0}不能包含空白字符",
		},
	},
}

// emptyOr leaves empty values to required/omitempty.
func emptyOr(match func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || match(s)
	}
}

// IsIdentifier reports whether s is a valid metadata field name.
func IsIdentifier(s string) bool {
	return identifierRegex.MatchString(s)
}

// IsIndexName reports whether s is accepted as an index name by every backend.
func IsIndexName(s string) bool {
	return indexNameRegex.MatchString(s)
}
