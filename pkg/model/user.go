package model

import (
	"errors"
	"fmt"
	"strings"
)

const MaxUsernameLength = 20

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters or underscores")
var ErrUsernameReserved = errors.New("username is reserved")

// reservedNames collide with server line prefixes and are rejected regardless of case.
var reservedNames = []string{"SERVER", "INFO", "ERR"}

// ValidateUsername checks that a username is 1-20 ASCII alphanumeric or underscore
// characters and is not a reserved word. Returns nil on success or a descriptive error.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return ErrUsernameInvalidChars
		}
	}
	for _, reserved := range reservedNames {
		if strings.EqualFold(name, reserved) {
			return ErrUsernameReserved
		}
	}
	return nil
}
