package handler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mymmrac/telego"

	"tg-amnesia/internal/handshake"
	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/service"
)

const (
	maxConcurrentMessages = 100
	acquireTimeout        = 10 * time.Second
)

// messageProcessingSemaphore bounds how many updates are handled at once.
var messageProcessingSemaphore = make(chan struct{}, maxConcurrentMessages)

// MessageHandler routes inbound messages to the recorder and the clear commands.
type MessageHandler struct {
	bot      *telego.Bot
	services *service.Services
}

func NewMessageHandler(bot *telego.Bot, services *service.Services) *MessageHandler {
	return &MessageHandler{bot: bot, services: services}
}

// handleIncomingMessage runs the message as a clear command or as a bare
// confirmation, then records it.
func (h *MessageHandler) handleIncomingMessage(ctx context.Context, message telego.Message) error {
	incrementCounter(&totalMessagesProcessed)

	if !acquire(ctx) {
		incrementCounter(&totalTimeouts)
		logger.Warningf("Dropping message %d in %d, too many handlers busy", message.MessageID, message.Chat.ID)
		return nil
	}
	defer release()

	if message.From == nil {
		return nil
	}

	var conv service.Conversation
	if !message.From.IsBot && message.Text != "" {
		conv = newConversation(h.bot, message, h.services.Recorder)
	}
	h.route(ctx, conv, entryFromMessage(message))
	return nil
}

// route dispatches conv when it is set and stores entry afterwards, so a
// command is never part of the history it erases. Scoped clears purge the
// command row later by message id, the full erasure by its purge passes.
func (h *MessageHandler) route(ctx context.Context, conv service.Conversation, entry service.Entry) {
	if conv != nil {
		h.dispatch(ctx, conv)
	}
	if err := h.services.Recorder.Record(ctx, entry); err != nil {
		incrementCounter(&totalErrors)
		logger.Warningf("Error recording message: %v", err)
	}
}

func (h *MessageHandler) dispatch(ctx context.Context, conv service.Conversation) {
	if cmd, ok := service.ParseCommand(conv.Text()); ok {
		incrementCounter(&totalCommands)
		h.logOutcome(conv, h.services.Erase.Execute(ctx, conv, cmd))
		return
	}

	handled, err := h.services.Erase.ConfirmFromMessage(ctx, conv)
	if handled {
		incrementCounter(&totalCommands)
	}
	h.logOutcome(conv, err)
}

// logOutcome logs command errors. Rejections were already answered in chat.
func (h *MessageHandler) logOutcome(conv service.Conversation, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, service.ErrPermissionDenied),
		errors.Is(err, service.ErrPluginDisabled),
		errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, service.ErrMissingContext),
		errors.Is(err, handshake.ErrNoPendingRequest),
		errors.Is(err, handshake.ErrExpired),
		errors.Is(err, handshake.ErrWrongConversation),
		errors.Is(err, handshake.ErrAlreadyPending):
		logger.Debugf("Clear command from %s rejected: %v", conv.RequesterID(), err)
	default:
		incrementCounter(&totalErrors)
		logger.Errorf("Clear command from %s in %s failed: %v", conv.RequesterID(), conv.ConversationID(), err)
	}
}

func acquire(ctx context.Context) bool {
	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()
	select {
	case messageProcessingSemaphore <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func release() {
	<-messageProcessingSemaphore
}

// GetActiveHandlersCount returns how many messages are being handled right now.
func GetActiveHandlersCount() int {
	return len(messageProcessingSemaphore)
}
