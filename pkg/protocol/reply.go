package protocol

import (
	"fmt"
	"time"
)

// Error reason tokens sent after "ERR ".
const (
	ErrInvalidUsername  = "invalid-username"
	ErrUsernameTaken    = "username-taken"
	ErrPleaseLoginFirst = "please-login-first"
	ErrTooManyAttempts  = "too-many-attempts"
	ErrUnknownCommand   = "unknown-command"
	ErrMessageTooLong   = "message-too-long"
	ErrEmptyMessage     = "empty-message"
	ErrUserNotFound     = "user-not-found"
	ErrCannotDMYourself = "cannot-dm-yourself"
	ErrInvalidDMFormat  = "invalid-dm-format. Use: DM <username> <message>"
	ErrProcessing       = "processing-error"
	ErrConnTimeout      = "connection-timeout"
)

const (
	LoginPrompt     = "Please login using: LOGIN <username>"
	Goodbye         = "Goodbye!"
	ShutdownNotice  = "Server is shutting down. Goodbye!"
	UsernameChanged = "username-changed"
)

// HelpLines is the static command list returned by HELP, one INFO line each.
var HelpLines = []string{
	"Available commands:",
	"  MSG <message>        - Broadcast message to all users",
	"  DM <user> <message>  - Send private message",
	"  WHO                  - List online users",
	"  NAME <new_name>      - Change username",
	"  PING                 - Check the connection",
	"  HELP                 - Show this help",
	"  QUIT                 - Exit chat",
}

// OK formats a success reply, optionally with a detail token.
func OK(detail string) string {
	if detail == "" {
		return "OK"
	}
	return "OK " + detail
}

// Err formats an error reply.
func Err(reason string) string { return "ERR " + reason }

// Info formats an informational line.
func Info(text string) string { return "INFO " + text }

// Msg formats a broadcast chat line.
func Msg(from, text string) string { return "MSG " + from + ": " + text }

// DM formats a direct message as seen by its target.
func DM(from, text string) string { return "DM from " + from + ": " + text }

// User formats one WHO entry.
func User(name string, online time.Duration) string {
	return fmt.Sprintf("USER %s (online for %d minutes)", name, int64(online/time.Minute))
}

// Pong is the reply to PING.
func Pong() string { return "PONG" }

// Joined announces a login to other sessions.
func Joined(name string) string { return Info(name + " joined the chat") }

// Left announces a departure to remaining sessions.
func Left(name string) string { return Info(name + " left the chat") }

// Renamed announces a display name change.
func Renamed(oldName, newName string) string {
	return Info(oldName + " is now known as " + newName)
}

// DMSent confirms a direct message to its sender.
func DMSent(target string) string { return Info("DM sent to " + target) }

// WhoHeader precedes the USER lines of a WHO reply.
func WhoHeader(count int) string { return Info(fmt.Sprintf("Online users (%d):", count)) }

// WhoEmpty replaces the WHO listing when nobody is online.
func WhoEmpty() string { return Info("No other users online") }
