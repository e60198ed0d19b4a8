package session

import (
	"fmt"
	"regexp"
)

var (
	nameRegexp   = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
	userIDRegexp = regexp.MustCompile(`^[A-Za-z0-9._@+-]{1,128}$`)
)

// ValidateName checks that name is usable as a session directory.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match %s", name, nameRegexp)
	}
	return nil
}

// ValidateUserID checks a login user id. Ids end up in remote document
// paths and in single-chat pair ids, so separators and spaces are refused.
func ValidateUserID(id string) error {
	if !userIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid user id %q: must match %s", id, userIDRegexp)
	}
	return nil
}
