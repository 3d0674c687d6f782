package validator

import "strings"

// FieldError is one failed field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors collects the failed fields of one struct.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return ""
	}
	return "validation failed: " + strings.Join(v.Messages(), "; ")
}

// HasErrors reports whether any field failed.
func (v *ValidationErrors) HasErrors() bool {
	return v != nil && len(v.Errors) > 0
}

// Fields returns the failed field names in order.
func (v *ValidationErrors) Fields() []string {
	if v == nil {
		return nil
	}
	fields := make([]string, len(v.Errors))
	for i, fe := range v.Errors {
		fields[i] = fe.Field
	}
	return fields
}

// Messages returns the translated messages in order.
func (v *ValidationErrors) Messages() []string {
	if v == nil {
		return nil
	}
	msgs := make([]string, len(v.Errors))
	for i, fe := range v.Errors {
		msgs[i] = fe.Message
	}
	return msgs
}
