package media

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultCleanupSchedule runs retention once a day.
const DefaultCleanupSchedule = "@daily"

// Cleaner deletes downloaded message media older than the user's keepMedia
// setting. Avatars are kept.
type Cleaner struct {
	dir     string
	profile Profile
	logger  *zap.Logger
	cron    *cron.Cron
	now     func() time.Time
}

func NewCleaner(dir string, profile Profile, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		dir:     dir,
		profile: profile,
		logger:  logger.Named("media-cleaner"),
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start schedules Clean with a cron spec such as "@daily" or "0 4 * * *".
func (c *Cleaner) Start(spec string) error {
	if spec == "" {
		spec = DefaultCleanupSchedule
	}
	if _, err := c.cron.AddFunc(spec, func() {
		n, err := c.Clean(context.Background())
		if err != nil {
			c.logger.Error("media cleanup", zap.Error(err))
			return
		}
		c.logger.Info("media cleanup", zap.Int("removed", n))
	}); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop cancels the schedule and waits for a running cleanup.
func (c *Cleaner) Stop() {
	<-c.cron.Stop().Done()
}

func retention(k model.KeepMedia) time.Duration {
	switch k {
	case model.KeepWeek:
		return 7 * 24 * time.Hour
	case model.KeepMonth:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Clean removes expired files now and returns how many were removed.
func (c *Cleaner) Clean(ctx context.Context) (int, error) {
	me, err := c.profile(ctx)
	if err != nil || me == nil {
		return 0, err
	}
	keep := retention(me.KeepMedia)
	if keep == 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-keep)

	removed := 0
	root := filepath.Join(c.dir, remote.BucketMedia)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}
