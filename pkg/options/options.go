// Package options holds the pflag option groups of the vector index and the
// helpers that drive them as a set.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group.
type IOptions interface {
	// AddFlags registers the group's flags, named <prefixes...>.<group>.<flag>.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)

	// Complete fills derived and defaulted fields after flags are parsed.
	Complete() error

	// Validate reports every invalid field.
	Validate() []error
}

// Join returns prefixes joined by "." with a trailing ".", or "" when they
// join to nothing.
func Join(prefixes ...string) string {
	if p := strings.Join(prefixes, "."); p != "" {
		return p + "."
	}
	return ""
}

// CompleteAll completes groups in order and stops at the first error.
func CompleteAll(groups ...IOptions) error {
	for _, g := range groups {
		if err := g.Complete(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAll collects the validation errors of all groups.
func ValidateAll(groups ...IOptions) []error {
	var errs []error
	for _, g := range groups {
		errs = append(errs, g.Validate()...)
	}
	return errs
}
