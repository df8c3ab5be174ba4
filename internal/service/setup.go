package service

import (
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"tg-amnesia/internal/config"
	"tg-amnesia/internal/handshake"
	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/scheduler"
	"tg-amnesia/internal/storage"
)

// OptionsFromConfig maps the amnesia and cleanup sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Language:         cfg.Amnesia.Language,
		ScopedDelay:      cfg.Cleanup.ScopedDelay,
		FirstPassDelay:   cfg.Cleanup.FirstPassDelay,
		SecondPassDelay:  cfg.Cleanup.SecondPassDelay,
		PendingRetention: cfg.Amnesia.PendingRetention,
		SweepInterval:    cfg.Amnesia.SweepInterval,
	}
}

// Services bundles what the handlers need.
type Services struct {
	Erase    *EraseService
	Recorder *Recorder
}

// Initialize builds the services on top of an opened database. fs is where the
// local state file and style directories live.
func Initialize(cfg *config.Config, db *gorm.DB, fs afero.Fs, store handshake.Store, sched *scheduler.Scheduler) *Services {
	messages := storage.NewMessageRepository(db)
	if err := messages.MigrateTable(); err != nil {
		logger.Warningf("Error migrating messages table: %v", err)
	}

	gate := NewPermissionGate(cfg.Plugin.Enabled, cfg.Plugin.Permission)
	if gate.Size() == 0 {
		logger.Warningf("plugin.permission is empty, nobody can run clear commands")
	}

	opts := OptionsFromConfig(cfg)
	erase := NewEraseService(Deps{
		Gate:       gate,
		Messages:   messages,
		Eraser:     storage.NewEraseRepository(db),
		LocalStore: storage.NewLocalStore(fs, cfg.Amnesia.LocalStorePath),
		StyleDirs:  storage.NewStyleDirs(fs, cfg.Amnesia.StyleDirs),
		Handshake:  handshake.New(store, sched.Clock(), cfg.Amnesia.ConfirmTimeout),
		Scheduler:  sched,
	}, opts)
	logger.Infof("Erase service ready (%s)", opts)

	return &Services{
		Erase:    erase,
		Recorder: NewRecorder(messages, erase.Metrics(), cfg.Recorder.Enabled, cfg.Recorder.Platform),
	}
}

// StartCleanup starts the periodic sweep of stale amnesia requests.
func (s *Services) StartCleanup() {
	s.Erase.StartSweeper()
}

// Reload applies a changed config file to the parts that can change at runtime.
func (s *Services) Reload(cfg *config.Config) {
	s.Erase.Gate().Update(cfg.Plugin.Enabled, cfg.Plugin.Permission)
	s.Recorder.SetEnabled(cfg.Recorder.Enabled)
	logger.Infof("Reloaded permission list: %d requesters, enabled=%v", s.Erase.Gate().Size(), cfg.Plugin.Enabled)
}
