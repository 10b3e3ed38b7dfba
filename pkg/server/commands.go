package server

import (
	"errors"
	"fmt"

	"github.com/NicolasHaas/linechat/pkg/model"
	"github.com/NicolasHaas/linechat/pkg/protocol"
)

// dispatch executes one authenticated command. A panic inside a handler is
// contained to the command that caused it.
func (h *connHandler) dispatch(cmd protocol.Command) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("command panicked", "verb", cmd.Verb, "panic", fmt.Sprint(r))
			h.reply(protocol.Err(protocol.ErrProcessing))
		}
	}()

	sess := h.session.Load()
	switch cmd.Verb {
	case protocol.VerbMsg:
		h.handleMsg(sess, cmd.Args)
	case protocol.VerbDM:
		h.handleDM(sess, cmd.Args)
	case protocol.VerbWho:
		h.handleWho()
	case protocol.VerbName:
		h.handleName(sess, cmd.Args)
	case protocol.VerbPing:
		h.reply(protocol.Pong())
	case protocol.VerbHelp:
		lines := make([]string, 0, len(protocol.HelpLines))
		for _, line := range protocol.HelpLines {
			lines = append(lines, protocol.Info(line))
		}
		h.reply(lines...)
	default: // includes LOGIN once authenticated
		h.reply(protocol.Err(protocol.ErrUnknownCommand))
	}
}

func (h *connHandler) handleMsg(sess *Session, text string) {
	if err := model.ValidateMessage(text); err != nil {
		if errors.Is(err, model.ErrMessageBodyTooLong) {
			h.reply(protocol.Err(protocol.ErrMessageTooLong))
		} else {
			h.reply(protocol.Err(protocol.ErrEmptyMessage))
		}
		return
	}
	h.srv.metrics.Broadcasts.Inc()
	h.srv.router.Broadcast(sess, protocol.Msg(sess.Name(), text))
}

func (h *connHandler) handleDM(sess *Session, args string) {
	target, text, ok := protocol.SplitDM(args)
	if !ok {
		h.reply(protocol.Err(protocol.ErrInvalidDMFormat))
		return
	}
	if err := model.ValidateMessage(text); err != nil {
		if errors.Is(err, model.ErrMessageBodyTooLong) {
			h.reply(protocol.Err(protocol.ErrMessageTooLong))
		} else {
			h.reply(protocol.Err(protocol.ErrEmptyMessage))
		}
		return
	}
	if target == sess.Name() {
		h.reply(protocol.Err(protocol.ErrCannotDMYourself))
		return
	}
	if err := h.srv.router.DirectMessage(sess, target, text); err != nil {
		h.reply(protocol.Err(protocol.ErrUserNotFound))
		return
	}
	h.reply(protocol.DMSent(target))
}

func (h *connHandler) handleWho() {
	entries := h.srv.registry.Snapshot()
	if len(entries) == 0 {
		h.reply(protocol.WhoEmpty())
		return
	}
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, protocol.WhoHeader(len(entries)))
	for _, e := range entries {
		lines = append(lines, protocol.User(e.Name, h.srv.clock.Since(e.JoinedAt)))
	}
	h.reply(lines...)
}

func (h *connHandler) handleName(sess *Session, newName string) {
	if err := model.ValidateUsername(newName); err != nil {
		h.reply(protocol.Err(protocol.ErrInvalidUsername))
		return
	}
	oldName := sess.Name()
	if newName == oldName {
		h.reply(protocol.OK(protocol.UsernameChanged))
		return
	}
	if err := h.srv.registry.Rename(oldName, newName); err != nil {
		if errors.Is(err, ErrNameTaken) {
			h.reply(protocol.Err(protocol.ErrUsernameTaken))
			return
		}
		// Lost the session concurrently; the read loop will notice.
		h.log.Debug("rename failed", "err", err)
		h.reply(protocol.Err(protocol.ErrProcessing))
		return
	}

	h.log = h.log.With("user", newName)
	h.log.Info("client renamed", "old", oldName)
	h.reply(protocol.OK(protocol.UsernameChanged))
	h.srv.router.audit.rename(sess, oldName, newName)
	h.srv.router.Broadcast(sess, protocol.Renamed(oldName, newName))
}
