package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/models"
	"tg-amnesia/internal/storage"
)

// StreamID builds the conversation identity used as Message.ChatID.
func StreamID(platform string, chatID int64) string {
	return fmt.Sprintf("%s:%d", platform, chatID)
}

// Entry is one message to store, inbound or sent by the bot.
type Entry struct {
	ChatID    int64
	ChatTitle string
	IsGroup   bool
	MessageID int
	UserID    int64
	UserName  string
	Text      string
	IsBot     bool
	Time      time.Time
}

// Recorder writes the chat history the clear commands operate on.
type Recorder struct {
	messages *storage.MessageRepository
	metrics  *Metrics
	platform string
	enabled  atomic.Bool
}

func NewRecorder(messages *storage.MessageRepository, metrics *Metrics, enabled bool, platform string) *Recorder {
	r := &Recorder{messages: messages, metrics: metrics, platform: platform}
	r.enabled.Store(enabled)
	return r
}

func (r *Recorder) SetEnabled(enabled bool) { r.enabled.Store(enabled) }

func (r *Recorder) Enabled() bool { return r.enabled.Load() }

func (r *Recorder) StreamID(chatID int64) string { return StreamID(r.platform, chatID) }

// Record upserts the chat stream and stores the message.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if !r.Enabled() {
		return nil
	}

	streamID := r.StreamID(e.ChatID)
	ts := models.UnixSeconds(e.Time)
	stream := &models.ChatStream{
		StreamID:       streamID,
		Platform:       r.platform,
		UserID:         fmt.Sprint(e.UserID),
		CreateTime:     ts,
		LastActiveTime: ts,
	}
	if e.IsGroup {
		stream.GroupID = fmt.Sprint(e.ChatID)
		stream.GroupName = e.ChatTitle
	}
	if err := r.messages.TouchStream(ctx, stream); err != nil {
		return errors.Wrapf(err, "touch stream %s", streamID)
	}

	err := r.messages.Record(ctx, &models.Message{
		MessageID: fmt.Sprint(e.MessageID),
		ChatID:    streamID,
		Time:      ts,
		UserID:    fmt.Sprint(e.UserID),
		UserName:  e.UserName,
		Text:      e.Text,
		IsBot:     e.IsBot,
	})
	if err != nil {
		return errors.Wrapf(err, "record message %d in %s", e.MessageID, streamID)
	}
	if r.metrics != nil {
		r.metrics.Recorded.Add(1)
	}
	logger.Debugf("Recorded message %d in %s", e.MessageID, streamID)
	return nil
}
