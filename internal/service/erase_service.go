package service

import (
	"context"
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"

	"tg-amnesia/internal/handshake"
	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/models"
	"tg-amnesia/internal/scheduler"
	"tg-amnesia/internal/storage"
)

// Options tune the erase service.
type Options struct {
	Language         string
	ScopedDelay      time.Duration
	FirstPassDelay   time.Duration
	SecondPassDelay  time.Duration
	PendingRetention time.Duration
	SweepInterval    time.Duration
}

// Deps are the collaborators of EraseService.
type Deps struct {
	Gate       *PermissionGate
	Messages   *storage.MessageRepository
	Eraser     *storage.EraseRepository
	LocalStore *storage.LocalStore
	StyleDirs  *storage.StyleDirs
	Handshake  *handshake.Handshake
	Scheduler  *scheduler.Scheduler
}

// EraseService runs the clear commands: scoped erasures on one conversation and
// the confirmed full erasure.
type EraseService struct {
	gate      *PermissionGate
	messages  *storage.MessageRepository
	eraser    *storage.EraseRepository
	local     *storage.LocalStore
	styles    *storage.StyleDirs
	handshake *handshake.Handshake
	sched     *scheduler.Scheduler
	clock     clockwork.Clock
	opts      Options
	metrics   Metrics
}

func NewEraseService(d Deps, opts Options) *EraseService {
	if opts.Language == "" {
		opts.Language = models.LangSimplifiedChinese
	}
	return &EraseService{
		gate:      d.Gate,
		messages:  d.Messages,
		eraser:    d.Eraser,
		local:     d.LocalStore,
		styles:    d.StyleDirs,
		handshake: d.Handshake,
		sched:     d.Scheduler,
		clock:     d.Scheduler.Clock(),
		opts:      opts,
	}
}

func (s *EraseService) Gate() *PermissionGate { return s.gate }

func (s *EraseService) Metrics() *Metrics { return &s.metrics }

func (s *EraseService) t(key string, args ...interface{}) string {
	return models.Tf(s.opts.Language, key, args...)
}

func (s *EraseService) reply(ctx context.Context, conv Conversation, text string) string {
	id, err := conv.Reply(ctx, text)
	if err != nil {
		logger.Warningf("Error replying in %s: %v", conv.ConversationID(), err)
		return ""
	}
	return id
}

// Execute runs a parsed clear command on behalf of the sender of conv.
func (s *EraseService) Execute(ctx context.Context, conv Conversation, cmd Command) error {
	s.metrics.Commands.Add(1)

	if err := s.gate.Check(conv.RequesterID()); err != nil {
		if errors.Is(err, ErrPluginDisabled) {
			logger.Debugf("Ignoring clear command from %s, plugin disabled", conv.RequesterID())
			return err
		}
		s.metrics.Denied.Add(1)
		logger.Warningf("Denied clear command from %s in %s", conv.RequesterID(), conv.ConversationID())
		s.reply(ctx, conv, s.t("no_permission"))
		return err
	}

	if conv.ConversationID() == "" {
		s.reply(ctx, conv, s.t("missing_chat"))
		return ErrMissingContext
	}

	if cmd.BadArg {
		s.reply(ctx, conv, s.t("invalid_number", html.EscapeString(cmd.Raw)))
		return errors.Wrapf(ErrInvalidArgument, "%s %q", cmd.Sub, cmd.Raw)
	}

	logger.Infof("Clear command %q from %s in %s", cmd.Sub, conv.RequesterID(), conv.ConversationID())
	switch cmd.Sub {
	case SubAll:
		_, err := s.ClearAll(ctx, conv)
		return err
	case SubRecent:
		_, err := s.ClearRecent(ctx, conv, cmd.Arg)
		return err
	case SubBefore:
		_, err := s.ClearBefore(ctx, conv, cmd.Arg)
		return err
	case SubAmnesia:
		return s.RequestAmnesia(ctx, conv)
	case SubAmnesiaConfirm:
		_, err := s.ConfirmAmnesia(ctx, conv)
		return err
	case SubUnknown:
		s.reply(ctx, conv, s.t("unknown_subcommand", html.EscapeString(cmd.Raw)))
		return nil
	default:
		s.reply(ctx, conv, s.t("help_text"))
		return nil
	}
}

// ClearAll removes every stored message of the conversation.
func (s *EraseService) ClearAll(ctx context.Context, conv Conversation) (int64, error) {
	chatID := conv.ConversationID()
	count, err := s.messages.CountByChat(ctx, chatID)
	if err != nil {
		return 0, s.scopedFailure(ctx, conv, errors.Wrap(err, "count messages"))
	}
	if count == 0 {
		s.finishScoped(ctx, conv, s.t("nothing_all"))
		return 0, nil
	}

	removed, err := s.messages.DeleteByChat(ctx, chatID)
	if err != nil {
		return 0, s.scopedFailure(ctx, conv, errors.Wrap(err, "delete messages"))
	}
	logger.Infof("Cleared all %d messages of %s", removed, chatID)
	s.metrics.RowsRemoved.Add(removed)
	s.finishScoped(ctx, conv, s.t("cleared_all", removed))
	return removed, nil
}

// ClearRecent removes the n newest messages of the conversation.
func (s *EraseService) ClearRecent(ctx context.Context, conv Conversation, n int) (int64, error) {
	chatID := conv.ConversationID()
	removed, err := s.messages.DeleteRecent(ctx, chatID, n)
	if err != nil {
		return 0, s.scopedFailure(ctx, conv, errors.Wrapf(err, "delete %d recent messages", n))
	}
	if removed == 0 {
		s.finishScoped(ctx, conv, s.t("nothing_recent"))
		return 0, nil
	}
	logger.Infof("Cleared %d recent messages of %s", removed, chatID)
	s.metrics.RowsRemoved.Add(removed)
	s.finishScoped(ctx, conv, s.t("cleared_recent", n, removed))
	return removed, nil
}

// ClearBefore removes messages older than hours, measured from now.
func (s *EraseService) ClearBefore(ctx context.Context, conv Conversation, hours int) (int64, error) {
	chatID := conv.ConversationID()
	threshold := models.UnixSeconds(s.clock.Now().Add(-time.Duration(hours) * time.Hour))
	removed, err := s.messages.DeleteBefore(ctx, chatID, threshold)
	if err != nil {
		return 0, s.scopedFailure(ctx, conv, errors.Wrapf(err, "delete messages older than %dh", hours))
	}
	if removed == 0 {
		s.finishScoped(ctx, conv, s.t("nothing_before", hours))
		return 0, nil
	}
	logger.Infof("Cleared %d messages older than %d hours in %s", removed, hours, chatID)
	s.metrics.RowsRemoved.Add(removed)
	s.finishScoped(ctx, conv, s.t("cleared_before", hours, removed))
	return removed, nil
}

func (s *EraseService) scopedFailure(ctx context.Context, conv Conversation, err error) error {
	s.metrics.Failures.Add(1)
	logger.Errorf("Clear command failed in %s: %+v", conv.ConversationID(), err)
	s.reply(ctx, conv, s.t("clear_failed"))
	return err
}

// finishScoped replies, then removes the reply and the command from history once
// the recorder has stored them.
func (s *EraseService) finishScoped(ctx context.Context, conv Conversation, text string) {
	ids := []string{}
	if id := conv.MessageID(); id != "" {
		ids = append(ids, id)
	}
	if id := s.reply(ctx, conv, text); id != "" {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}

	chatID := conv.ConversationID()
	s.sched.After("scoped-cleanup", s.opts.ScopedDelay, func(ctx context.Context) {
		s.metrics.CleanupJobs.Add(1)
		removed, err := s.messages.DeleteByMessageIDs(ctx, chatID, ids)
		if err != nil {
			logger.Warningf("Error removing clear command traces in %s: %v", chatID, err)
			return
		}
		logger.Debugf("Removed %d clear command traces in %s", removed, chatID)
	})
}

// RequestAmnesia opens the confirmation window and warns what will be lost.
func (s *EraseService) RequestAmnesia(ctx context.Context, conv Conversation) error {
	p, err := s.handshake.Request(ctx, conv.RequesterID(), conv.ConversationID())
	var pending *handshake.PendingError
	if errors.As(err, &pending) {
		s.reply(ctx, conv, s.t("amnesia_pending", ceilSeconds(pending.Remaining)))
		return err
	}
	if err != nil {
		s.metrics.Failures.Add(1)
		logger.Errorf("Error creating amnesia request for %s: %+v", conv.RequesterID(), err)
		s.reply(ctx, conv, s.t("amnesia_failed"))
		return err
	}

	logger.Warningf("Amnesia requested by %s in %s", p.RequesterID, p.ConversationID)
	s.reply(ctx, conv, s.t("amnesia_warning", s.targets(), ceilSeconds(s.handshake.Timeout())))
	return nil
}

// targets lists everything a full erasure destroys.
func (s *EraseService) targets() string {
	var lines []string
	for _, name := range storage.CollectionNames() {
		lines = append(lines, "- "+s.t("target_"+name))
	}
	lines = append(lines, "- "+s.t("target_local_store", s.local.Path()))
	for _, dir := range s.styles.Dirs() {
		lines = append(lines, "- "+s.t("target_style_dir", dir))
	}
	return strings.Join(lines, "\n")
}

// ConfirmAmnesia consumes the pending request of the sender and, if it is valid,
// erases everything.
func (s *EraseService) ConfirmAmnesia(ctx context.Context, conv Conversation) (*models.EraseStats, error) {
	if _, err := s.handshake.Confirm(ctx, conv.RequesterID(), conv.ConversationID()); err != nil {
		switch {
		case errors.Is(err, handshake.ErrNoPendingRequest):
			s.reply(ctx, conv, s.t("amnesia_no_pending"))
		case errors.Is(err, handshake.ErrExpired):
			s.reply(ctx, conv, s.t("amnesia_expired"))
		case errors.Is(err, handshake.ErrWrongConversation):
			s.reply(ctx, conv, s.t("amnesia_wrong_chat"))
		default:
			s.metrics.Failures.Add(1)
			logger.Errorf("Error confirming amnesia for %s: %+v", conv.RequesterID(), err)
			s.reply(ctx, conv, s.t("amnesia_failed"))
		}
		return nil, err
	}

	logger.Warningf("Amnesia confirmed by %s in %s, erasing everything", conv.RequesterID(), conv.ConversationID())
	stats, err := s.eraseEverything(ctx)
	if stats != nil {
		s.metrics.RowsRemoved.Add(stats.Total())
	}
	if err != nil {
		s.metrics.Failures.Add(1)
		logger.Errorf("Amnesia failed after %d removed rows: %+v", stats.Total(), err)
		s.reply(ctx, conv, s.t("amnesia_failed"))
		return stats, err
	}

	s.metrics.Erasures.Add(1)
	logger.Infof("Amnesia complete, %d rows removed", stats.Total())
	s.reply(ctx, conv, s.t("amnesia_done", stats.Total(), stats.Lines(s.opts.Language)))
	s.purgeTracesLater(s.opts.FirstPassDelay)
	s.purgeTracesLater(s.opts.SecondPassDelay)
	return stats, nil
}

// ConfirmFromMessage handles a freestanding confirmation word. It only acts when
// the sender is allowed and holds a request, so ordinary chatter is ignored. An
// expired request is answered and dropped by ConfirmAmnesia.
func (s *EraseService) ConfirmFromMessage(ctx context.Context, conv Conversation) (bool, error) {
	if !IsConfirmWord(conv.Text()) || s.gate.Check(conv.RequesterID()) != nil {
		return false, nil
	}
	has, err := s.handshake.Has(ctx, conv.RequesterID())
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}
	_, err = s.ConfirmAmnesia(ctx, conv)
	return true, err
}

// eraseEverything deletes the database collections first, then resets the local
// files. Nothing is rolled back on failure.
func (s *EraseService) eraseEverything(ctx context.Context) (*models.EraseStats, error) {
	stats, err := s.eraser.EraseAll(ctx)
	if err != nil {
		return stats, err
	}

	var result *multierror.Error
	if err := s.local.Reset(s.clock.Now()); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "reset local store"))
	}
	if err := s.styles.Reset(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "reset style directories"))
	}
	return stats, result.ErrorOrNil()
}

func (s *EraseService) purgeTracesLater(delay time.Duration) {
	s.sched.After("amnesia-cleanup", delay, func(ctx context.Context) {
		s.metrics.CleanupJobs.Add(1)
		stats, err := s.eraser.PurgeTraces(ctx)
		if err != nil {
			logger.Warningf("Error purging amnesia traces: %v", err)
			return
		}
		logger.Infof("Amnesia cleanup pass after %v removed %d rows", delay, stats.Total())
	})
}

// StartSweeper drops pending requests older than the retention window.
func (s *EraseService) StartSweeper() {
	s.sched.Every("pending-sweep", s.opts.SweepInterval, func(ctx context.Context) {
		removed, err := s.handshake.Sweep(ctx, s.opts.PendingRetention)
		if err != nil {
			logger.Warningf("Error sweeping pending amnesia requests: %v", err)
			return
		}
		if removed > 0 {
			logger.Infof("Swept %d stale amnesia requests", removed)
		}
	})
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func (o Options) String() string {
	return fmt.Sprintf("lang=%s scoped=%v passes=%v/%v retention=%v sweep=%v",
		o.Language, o.ScopedDelay, o.FirstPassDelay, o.SecondPassDelay, o.PendingRetention, o.SweepInterval)
}
