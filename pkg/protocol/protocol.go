// Package protocol defines the newline-delimited command grammar spoken between
// chat clients and the server.
//
// Client lines are "<VERB> <args>" with a case-insensitive verb. Server lines
// start with one of the prefixes OK, ERR, INFO, MSG, DM, USER or PONG.
package protocol

import (
	"strings"
	"unicode/utf8"

	"github.com/NicolasHaas/linechat/pkg/model"
)

// MaxLineLength is the maximum accepted line length in characters, after trimming.
const MaxLineLength = model.MessageMaxBodyLength

// Verb identifies an inbound command.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbLogin
	VerbMsg
	VerbDM
	VerbWho
	VerbName
	VerbPing
	VerbHelp
	VerbQuit
)

func (v Verb) String() string {
	switch v {
	case VerbLogin:
		return "LOGIN"
	case VerbMsg:
		return "MSG"
	case VerbDM:
		return "DM"
	case VerbWho:
		return "WHO"
	case VerbName:
		return "NAME"
	case VerbPing:
		return "PING"
	case VerbHelp:
		return "HELP"
	case VerbQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

var verbs = map[string]Verb{
	"LOGIN": VerbLogin,
	"MSG":   VerbMsg,
	"DM":    VerbDM,
	"WHO":   VerbWho,
	"NAME":  VerbName,
	"PING":  VerbPing,
	"HELP":  VerbHelp,
	"QUIT":  VerbQuit,
}

// takesArgs reports whether a verb expects an argument tail.
func (v Verb) takesArgs() bool {
	switch v {
	case VerbLogin, VerbMsg, VerbDM, VerbName:
		return true
	default:
		return false
	}
}

// Command is one parsed inbound line.
type Command struct {
	Verb Verb
	Args string // raw argument tail, trimmed
}

// Parse splits a line into its verb and argument tail. Surrounding whitespace
// is ignored. Verbs that take no arguments parse as VerbUnknown when followed
// by anything, so "WHO is here" is not a WHO.
func Parse(line string) Command {
	line = strings.TrimSpace(line)
	word, rest, _ := strings.Cut(line, " ")
	verb, ok := verbs[strings.ToUpper(word)]
	if !ok {
		return Command{Verb: VerbUnknown, Args: line}
	}
	rest = strings.TrimSpace(rest)
	if !verb.takesArgs() && rest != "" {
		return Command{Verb: VerbUnknown, Args: line}
	}
	return Command{Verb: verb, Args: rest}
}

// TooLong reports whether a trimmed line exceeds MaxLineLength characters.
func TooLong(line string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(line)) > MaxLineLength
}

// SplitDM splits a DM argument tail into target and text. ok is false when
// either part is missing.
func SplitDM(args string) (target, text string, ok bool) {
	target, text, found := strings.Cut(strings.TrimSpace(args), " ")
	if !found || target == "" {
		return "", "", false
	}
	return target, strings.TrimSpace(text), true
}
