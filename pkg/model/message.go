package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MessageMaxBodyLength bounds a whole inbound line as well as a message body.
const MessageMaxBodyLength = 1000

var ErrMessageBodyTooLong = fmt.Errorf("message body exceeds %d characters", MessageMaxBodyLength)
var ErrMessageBodyEmpty = errors.New("message body cannot be empty")

// ValidateMessage checks a chat body for emptiness and length (in characters).
func ValidateMessage(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrMessageBodyEmpty
	} else if utf8.RuneCountInString(body) > MessageMaxBodyLength {
		return ErrMessageBodyTooLong
	}

	return nil
}
