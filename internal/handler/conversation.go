package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mymmrac/telego"

	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/service"
)

// tgConversation adapts a telego message to service.Conversation. Replies go to
// the same chat and are recorded like any other message.
type tgConversation struct {
	bot      *telego.Bot
	message  telego.Message
	recorder *service.Recorder
}

func newConversation(bot *telego.Bot, message telego.Message, recorder *service.Recorder) *tgConversation {
	return &tgConversation{bot: bot, message: message, recorder: recorder}
}

func (c *tgConversation) RequesterID() string {
	if c.message.From == nil {
		return ""
	}
	return strconv.FormatInt(c.message.From.ID, 10)
}

func (c *tgConversation) ConversationID() string {
	if c.message.Chat.ID == 0 {
		return ""
	}
	return c.recorder.StreamID(c.message.Chat.ID)
}

func (c *tgConversation) MessageID() string {
	if c.message.MessageID == 0 {
		return ""
	}
	return strconv.Itoa(c.message.MessageID)
}

func (c *tgConversation) Text() string {
	return c.message.Text
}

func (c *tgConversation) Reply(ctx context.Context, text string) (string, error) {
	sent, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: c.message.Chat.ID},
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return "", errors.Wrapf(err, "send message to %d", c.message.Chat.ID)
	}

	if err := c.recorder.Record(ctx, entryFromMessage(*sent)); err != nil {
		logger.Warningf("Error recording bot reply: %v", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// entryFromMessage converts a telego message for the recorder.
func entryFromMessage(m telego.Message) service.Entry {
	e := service.Entry{
		ChatID:    m.Chat.ID,
		ChatTitle: m.Chat.Title,
		IsGroup:   m.Chat.Type != telego.ChatTypePrivate,
		MessageID: m.MessageID,
		Text:      m.Text,
		Time:      time.Now(),
	}
	if e.Text == "" {
		e.Text = m.Caption
	}
	if m.Date > 0 {
		e.Time = time.Unix(m.Date, 0)
	}
	if m.From != nil {
		e.UserID = m.From.ID
		e.UserName = displayName(*m.From)
		e.IsBot = m.From.IsBot
	}
	return e
}

// displayName is "First Last (@username)" with the missing parts left out.
func displayName(user telego.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if user.Username != "" {
		if name == "" {
			return "@" + user.Username
		}
		return name + " (@" + user.Username + ")"
	}
	return name
}
