package storage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/models"
)

// Keys of the local state file.
const (
	LocalKeyCreateTime     = "create_time"
	LocalKeyInstallationID = "installation_id"
	LocalKeyStatistics     = "statistics"
)

// LocalStore is the small JSON file holding installation metadata and
// accumulated statistics.
type LocalStore struct {
	fs   afero.Fs
	path string
}

func NewLocalStore(fs afero.Fs, path string) *LocalStore {
	return &LocalStore{fs: fs, path: path}
}

func (s *LocalStore) Path() string { return s.path }

// Reset rewrites the file as a fresh installation created at now. The nested
// statistics object survives when the old file had one.
func (s *LocalStore) Reset(now time.Time) error {
	old, err := afero.ReadFile(s.fs, s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "read %s", s.path)
	}

	out := []byte(`{}`)
	out, err = sjson.SetBytes(out, LocalKeyCreateTime, models.UnixSeconds(now))
	if err != nil {
		return errors.Wrap(err, "set create_time")
	}
	out, err = sjson.SetBytes(out, LocalKeyInstallationID, uuid.NewString())
	if err != nil {
		return errors.Wrap(err, "set installation_id")
	}

	if len(old) > 0 {
		if !gjson.ValidBytes(old) {
			logger.Warningf("Local store %s is not valid JSON, statistics are lost", s.path)
		} else if stats := gjson.GetBytes(old, LocalKeyStatistics); stats.Exists() {
			out, err = sjson.SetRawBytes(out, LocalKeyStatistics, []byte(stats.Raw))
			if err != nil {
				return errors.Wrap(err, "keep statistics")
			}
		}
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrapf(err, "create directory for %s", s.path)
	}
	if err := afero.WriteFile(s.fs, s.path, out, 0644); err != nil {
		return errors.Wrapf(err, "write %s", s.path)
	}
	return nil
}

// StyleDirs are the learned-style artifact directories.
type StyleDirs struct {
	fs   afero.Fs
	dirs []string
}

func NewStyleDirs(fs afero.Fs, dirs []string) *StyleDirs {
	return &StyleDirs{fs: fs, dirs: dirs}
}

func (d *StyleDirs) Dirs() []string { return d.dirs }

// Reset removes every directory recursively and recreates it empty. All
// directories are attempted even if one fails.
func (d *StyleDirs) Reset() error {
	var result error
	for _, dir := range d.dirs {
		if err := d.fs.RemoveAll(dir); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "remove %s", dir))
			continue
		}
		if err := d.fs.MkdirAll(dir, 0755); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "recreate %s", dir))
		}
	}
	return result
}
