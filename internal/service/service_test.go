package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"

	"tg-amnesia/internal/config"
	"tg-amnesia/internal/handshake"
	"tg-amnesia/internal/models"
	"tg-amnesia/internal/scheduler"
	"tg-amnesia/internal/storage"
)

const (
	admin     = "1001"
	stranger  = "2002"
	statePath = "data/local_store.json"
)

var styleDirs = []string{"data/expression/learnt_style", "data/expression/learnt_grammar"}

type fakeConv struct {
	requester string
	chat      string
	messageID string
	text      string
	db        *gorm.DB

	mu      sync.Mutex
	replies []string
}

func (c *fakeConv) RequesterID() string    { return c.requester }
func (c *fakeConv) ConversationID() string { return c.chat }
func (c *fakeConv) MessageID() string      { return c.messageID }
func (c *fakeConv) Text() string           { return c.text }

// Reply stores the outgoing message the way the recorder would.
func (c *fakeConv) Reply(_ context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	id := fmt.Sprintf("reply-%d", len(c.replies))
	if c.db != nil {
		if err := c.db.Create(&models.Message{MessageID: id, ChatID: c.chat, Text: text, IsBot: true}).Error; err != nil {
			return "", err
		}
	}
	return id, nil
}

func (c *fakeConv) lastReply() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return ""
	}
	return c.replies[len(c.replies)-1]
}

type fixture struct {
	svc   *EraseService
	db    *gorm.DB
	fs    afero.Fs
	clock *clockwork.FakeClock
	sched *scheduler.Scheduler
	store *handshake.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "svc.db"),
		LogLevel: "SILENT",
	})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	t.Cleanup(func() { _ = storage.Close(db) })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	sched := scheduler.New(clock)
	t.Cleanup(func() { sched.Stop(time.Second) })

	fs := afero.NewMemMapFs()
	store := handshake.NewMemoryStore()
	svc := NewEraseService(Deps{
		Gate:       NewPermissionGate(true, []string{admin}),
		Messages:   storage.NewMessageRepository(db),
		Eraser:     storage.NewEraseRepository(db),
		LocalStore: storage.NewLocalStore(fs, statePath),
		StyleDirs:  storage.NewStyleDirs(fs, styleDirs),
		Handshake:  handshake.New(store, clock, 30*time.Second),
		Scheduler:  sched,
	}, Options{
		Language:         models.LangEnglish,
		ScopedDelay:      3 * time.Second,
		FirstPassDelay:   500 * time.Millisecond,
		SecondPassDelay:  5 * time.Second,
		PendingRetention: 5 * time.Minute,
		SweepInterval:    time.Minute,
	})
	return &fixture{svc: svc, db: db, fs: fs, clock: clock, sched: sched, store: store}
}

func (f *fixture) conv(requester, chat, text string) *fakeConv {
	return &fakeConv{requester: requester, chat: chat, messageID: "cmd", text: text, db: f.db}
}

func (f *fixture) seed(t *testing.T, chat string, n int, ts float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.db.Create(&models.Message{
			MessageID: fmt.Sprintf("%s-%d", chat, i),
			ChatID:    chat,
			Time:      ts,
		}).Error)
	}
}

func (f *fixture) count(t *testing.T, chat string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("chat_id = ? AND is_bot = ?", chat, false).Count(&n).Error)
	return n
}

func (f *fixture) run(t *testing.T, conv *fakeConv) error {
	t.Helper()
	cmd, ok := ParseCommand(conv.text)
	require.True(t, ok, "not a clear command: %s", conv.text)
	return f.svc.Execute(context.Background(), conv, cmd)
}

func (f *fixture) advance(t *testing.T, waiters int, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, waiters))
	f.clock.Advance(d)
}

func TestClearAllEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C1", 5, 100)
	f.seed(t, "C2", 3, 100)

	conv := f.conv(admin, "C1", "/clear all")
	require.NoError(t, f.run(t, conv))

	assert.Zero(t, f.count(t, "C1"))
	assert.Equal(t, int64(3), f.count(t, "C2"))
	assert.Equal(t, models.Tf(models.LangEnglish, "cleared_all", 5), conv.lastReply())
	assert.Equal(t, int64(5), f.svc.Metrics().RowsRemoved.Load())
}

func TestClearAllWithNothingStored(t *testing.T) {
	f := newFixture(t)
	conv := f.conv(admin, "C1", "/clear 全部")
	require.NoError(t, f.run(t, conv))
	assert.Equal(t, models.Tf(models.LangEnglish, "nothing_all"), conv.lastReply())
}

func TestDeniedRequesterChangesNothing(t *testing.T) {
	for _, text := range []string{
		"/clear all", "/clear recent 3", "/clear before 1", "/clear amnesia", "/clear amnesia confirm", "/清除上下文 全部",
	} {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "C1", 5, 100)

			conv := f.conv(stranger, "C1", text)
			err := f.run(t, conv)
			require.ErrorIs(t, err, ErrPermissionDenied)

			assert.Equal(t, int64(5), f.count(t, "C1"))
			assert.Zero(t, f.store.Len())
			assert.Equal(t, models.Tf(models.LangEnglish, "no_permission"), conv.lastReply())
			assert.Equal(t, int64(1), f.svc.Metrics().Denied.Load())
		})
	}
}

func TestDisabledPluginIgnoresEveryone(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C1", 2, 100)
	f.svc.Gate().Update(false, []string{admin})

	conv := f.conv(admin, "C1", "/clear all")
	require.ErrorIs(t, f.run(t, conv), ErrPluginDisabled)
	assert.Equal(t, int64(2), f.count(t, "C1"))
	assert.Empty(t, conv.lastReply())
}

func TestMissingConversation(t *testing.T) {
	f := newFixture(t)
	conv := f.conv(admin, "", "/clear all")
	require.ErrorIs(t, f.run(t, conv), ErrMissingContext)
	assert.Equal(t, models.Tf(models.LangEnglish, "missing_chat"), conv.lastReply())
}

func TestClearRecentWithFewerRows(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C1", 3, 100)

	conv := f.conv(admin, "C1", "/clear recent")
	require.NoError(t, f.run(t, conv))
	assert.Zero(t, f.count(t, "C1"))
	assert.Equal(t, models.Tf(models.LangEnglish, "cleared_recent", 10, 3), conv.lastReply())
}

func TestClearRecentTakesNewest(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C1", 2, 100)
	f.seed(t, "C1", 1, 200)

	removed, err := f.svc.ClearRecent(context.Background(), f.conv(admin, "C1", ""), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var newest int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("chat_id = ? AND time = ?", "C1", 200).Count(&newest).Error)
	assert.Zero(t, newest)
}

func TestClearBeforeKeepsRowAtThreshold(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	threshold := models.UnixSeconds(now.Add(-24 * time.Hour))
	f.seed(t, "C1", 1, threshold)
	f.seed(t, "C2", 1, threshold)
	require.NoError(t, f.db.Create(&models.Message{MessageID: "old", ChatID: "C1", Time: threshold - 1}).Error)
	require.NoError(t, f.db.Create(&models.Message{MessageID: "new", ChatID: "C1", Time: models.UnixSeconds(now)}).Error)

	// replies are not recorded here so they cannot match the threshold
	conv := &fakeConv{requester: admin, chat: "C1", text: "/clear before"}
	require.NoError(t, f.run(t, conv))

	assert.Equal(t, int64(2), f.count(t, "C1"))
	assert.Equal(t, models.Tf(models.LangEnglish, "cleared_before", 24, 1), conv.lastReply())

	conv = &fakeConv{requester: admin, chat: "C1", text: "/clear 之前 24"}
	require.NoError(t, f.run(t, conv))
	assert.Equal(t, models.Tf(models.LangEnglish, "nothing_before", 24), conv.lastReply())
}

func TestInvalidArgumentTouchesNothing(t *testing.T) {
	for _, text := range []string{"/clear recent abc", "/clear before -3", "/clear 最近 0"} {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "C1", 4, 100)

			conv := f.conv(admin, "C1", text)
			require.ErrorIs(t, f.run(t, conv), ErrInvalidArgument)
			assert.Equal(t, int64(4), f.count(t, "C1"))
			assert.Contains(t, conv.lastReply(), "positive integer")
		})
	}
}

func TestUnknownSubcommandAndHelp(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C1", 1, 100)

	conv := f.conv(admin, "C1", "/clear everything")
	require.NoError(t, f.run(t, conv))
	assert.Equal(t, models.Tf(models.LangEnglish, "unknown_subcommand", "everything"), conv.lastReply())

	conv = f.conv(admin, "C1", "/clear")
	require.NoError(t, f.run(t, conv))
	assert.Equal(t, models.Tf(models.LangEnglish, "help_text"), conv.lastReply())
	assert.Equal(t, int64(1), f.count(t, "C1"))
}

func TestScopedClearRemovesItsOwnTraces(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C1", 2, 100)
	require.NoError(t, f.db.Create(&models.Message{MessageID: "cmd", ChatID: "C1", Time: models.UnixSeconds(f.clock.Now())}).Error)

	conv := f.conv(admin, "C1", "/clear before 24")
	require.NoError(t, f.run(t, conv))

	var replies int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("message_id IN ?", []string{"cmd", "reply-1"}).Count(&replies).Error)
	require.Equal(t, int64(2), replies)

	f.advance(t, 1, 3*time.Second)
	f.sched.Wait()

	require.NoError(t, f.db.Model(&models.Message{}).Where("message_id IN ?", []string{"cmd", "reply-1"}).Count(&replies).Error)
	assert.Zero(t, replies)
	assert.Equal(t, int64(1), f.svc.Metrics().CleanupJobs.Load())
}

func seedAll(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.Message{MessageID: "1", ChatID: "C1", Time: 1}).Error)
	require.NoError(t, db.Create(&models.Message{MessageID: "2", ChatID: "C2", Time: 2}).Error)
	require.NoError(t, db.Create(&models.ChatStream{StreamID: "C1", CreateTime: 1, LastActiveTime: 1}).Error)
	require.NoError(t, db.Create(&models.PersonInfo{PersonID: "p1"}).Error)
	require.NoError(t, db.Create(&models.GroupInfo{GroupID: "g1"}).Error)
	require.NoError(t, db.Create(&models.Expression{ChatID: "C1", Style: "s"}).Error)
	require.NoError(t, db.Create(&models.ActionRecord{ChatID: "C1", ActionName: "reply"}).Error)
	require.NoError(t, db.Create(&models.ChatHistory{ChatID: "C1", Summary: "s"}).Error)
	require.NoError(t, db.Create(&models.ThinkingBack{ChatID: "C1", Question: "q"}).Error)
	require.NoError(t, db.Create(&models.Jargon{ChatID: "C1", Content: "j"}).Error)
}

func seedFiles(t *testing.T, fs afero.Fs) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, statePath,
		[]byte(`{"create_time": 1, "installation_id": "old", "nickname": "bot", "statistics": {"total": 7}}`), 0644))
	require.NoError(t, afero.WriteFile(fs, styleDirs[0]+"/C1/style.json", []byte("{}"), 0644))
	require.NoError(t, afero.WriteFile(fs, styleDirs[1]+"/grammar.json", []byte("{}"), 0644))
}

func TestAmnesiaFullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedAll(t, f.db)
	seedFiles(t, f.fs)

	req := f.conv(admin, "C1", "/clear amnesia")
	req.db = nil
	require.NoError(t, f.run(t, req))
	warning := req.lastReply()
	assert.Contains(t, warning, models.Tf(models.LangEnglish, "target_jargon"))
	assert.Contains(t, warning, statePath)
	assert.Contains(t, warning, styleDirs[1])
	assert.Contains(t, warning, "30 seconds")

	// a confirmation elsewhere is rejected and leaves the request usable
	other := f.conv(admin, "C2", "/clear amnesia confirm")
	other.db = nil
	require.ErrorIs(t, f.run(t, other), handshake.ErrWrongConversation)
	assert.Equal(t, 1, f.store.Len())

	confirm := f.conv(admin, "C1", "/clear 失忆 确认")
	require.NoError(t, f.run(t, confirm))
	assert.Contains(t, confirm.lastReply(), "Amnesia complete, removed 10 records")
	assert.Zero(t, f.store.Len())

	// the report itself is recorded until the cleanup passes run
	var left int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)

	f.advance(t, 2, 500*time.Millisecond)
	f.advance(t, 1, 5*time.Second)
	f.sched.Wait()

	for _, m := range storage.AllModels() {
		var n int64
		require.NoError(t, f.db.Model(m).Count(&n).Error)
		assert.Zero(t, n, "%T not empty", m)
	}

	body, err := afero.ReadFile(f.fs, statePath)
	require.NoError(t, err)
	var keys []string
	gjson.ParseBytes(body).ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	assert.ElementsMatch(t, []string{storage.LocalKeyCreateTime, storage.LocalKeyInstallationID, storage.LocalKeyStatistics}, keys)
	assert.Equal(t, int64(7), gjson.GetBytes(body, "statistics.total").Int())

	for _, dir := range styleDirs {
		empty, err := afero.IsEmpty(f.fs, dir)
		require.NoError(t, err)
		assert.True(t, empty)
	}

	// single use
	_, err = f.svc.ConfirmAmnesia(ctx, f.conv(admin, "C1", ""))
	assert.ErrorIs(t, err, handshake.ErrNoPendingRequest)
	assert.Equal(t, int64(1), f.svc.Metrics().Erasures.Load())
}

func TestAmnesiaRequestWhilePending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run(t, f.conv(admin, "C1", "/clear amnesia")))

	f.clock.Advance(12 * time.Second)
	again := f.conv(admin, "C1", "/clear 失忆")
	require.ErrorIs(t, f.run(t, again), handshake.ErrAlreadyPending)
	assert.Equal(t, models.Tf(models.LangEnglish, "amnesia_pending", 18), again.lastReply())
}

func TestAmnesiaConfirmAfterTimeout(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C1", 2, 100)
	require.NoError(t, f.run(t, f.conv(admin, "C1", "/clear amnesia")))

	f.clock.Advance(31 * time.Second)
	late := f.conv(admin, "C1", "/clear amnesia confirm")
	require.ErrorIs(t, f.run(t, late), handshake.ErrExpired)
	assert.Equal(t, models.Tf(models.LangEnglish, "amnesia_expired"), late.lastReply())
	assert.Equal(t, int64(2), f.count(t, "C1"))
	assert.Zero(t, f.store.Len())

	require.NoError(t, f.run(t, f.conv(admin, "C1", "/clear amnesia")))
}

func TestAmnesiaStorageFailureIsReported(t *testing.T) {
	f := newFixture(t)
	seedAll(t, f.db)
	require.NoError(t, f.db.Migrator().DropTable(&models.Expression{}))

	require.NoError(t, f.run(t, f.conv(admin, "C1", "/clear amnesia")))
	confirm := f.conv(admin, "C1", "/clear amnesia confirm")
	require.Error(t, f.run(t, confirm))

	assert.Equal(t, models.Tf(models.LangEnglish, "amnesia_failed"), confirm.lastReply())
	assert.Equal(t, int64(1), f.svc.Metrics().Failures.Load())
	// no rollback of what already ran
	assert.Zero(t, f.count(t, "C1"))
}

func TestConfirmFromMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "C1", 3, 100)

	handled, err := f.svc.ConfirmFromMessage(ctx, f.conv(admin, "C1", "确认"))
	require.NoError(t, err)
	assert.False(t, handled, "nothing pending")

	require.NoError(t, f.run(t, f.conv(admin, "C1", "/clear amnesia")))

	handled, err = f.svc.ConfirmFromMessage(ctx, f.conv(stranger, "C1", "confirm"))
	require.NoError(t, err)
	assert.False(t, handled)

	handled, err = f.svc.ConfirmFromMessage(ctx, f.conv(admin, "C1", "ok then"))
	require.NoError(t, err)
	assert.False(t, handled)

	bare := f.conv(admin, "C1", " 确认 ")
	handled, err = f.svc.ConfirmFromMessage(ctx, bare)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Zero(t, f.count(t, "C1"))

	// the command path now finds the entry consumed
	cmd := f.conv(admin, "C1", "/clear amnesia confirm")
	require.ErrorIs(t, f.run(t, cmd), handshake.ErrNoPendingRequest)
}

func TestBareConfirmAfterTimeoutIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "C1", 2, 100)
	require.NoError(t, f.run(t, f.conv(admin, "C1", "/clear amnesia")))

	f.clock.Advance(31 * time.Second)
	late := f.conv(admin, "C1", "confirm")
	handled, err := f.svc.ConfirmFromMessage(ctx, late)
	require.ErrorIs(t, err, handshake.ErrExpired)
	assert.True(t, handled)
	assert.Equal(t, models.Tf(models.LangEnglish, "amnesia_expired"), late.lastReply())
	assert.Zero(t, f.store.Len())
	assert.Equal(t, int64(2), f.count(t, "C1"))

	// with the entry gone the word is chatter again
	again := f.conv(admin, "C1", "confirm")
	handled, err = f.svc.ConfirmFromMessage(ctx, again)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, again.lastReply())
}

func TestSweeperDropsStaleRequests(t *testing.T) {
	f := newFixture(t)
	f.svc.StartSweeper()
	require.NoError(t, f.run(t, f.conv(admin, "C1", "/clear amnesia")))

	for i := 0; i < 6; i++ {
		f.advance(t, 1, time.Minute)
	}
	assert.Eventually(t, func() bool { return f.store.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
