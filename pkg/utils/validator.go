package utils

import (
	"fmt"
	"regexp"
)

var (
	emailRegex      = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	identifierRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateIdentifier validates tenant, user, and role identifiers:
// lowercase alphanumerics, underscores, and hyphens, not starting with a
// separator
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier is empty")
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s", id)
	}
	return nil
}
