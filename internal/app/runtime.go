// Package app owns the signed-in part of the daemon: it builds the remote
// client, sync runtime, chat manager and media workers on login and tears
// them down on logout.
package app

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/cryptor"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/messenger"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/memremote"
	"github.com/matheus3301/chatsync/internal/remote/relayclient"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	csync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrLoggedOut is returned by operations that need a signed-in user.
var ErrLoggedOut = errors.New("not logged in")

// mediaUploadInterval paces the media queue.
const mediaUploadInterval = time.Second

// Remote is everything the runtime needs from a remote.
type Remote interface {
	remote.Store
	remote.Blobs
	connectivity.Prober
}

// Options locate a session's files.
type Options struct {
	SessionName     string
	SettingsPath    string
	CredentialsPath string
	MediaDir        string
	// Remote replaces the configured remote, for tests.
	Remote Remote
}

// Session is one signed-in user's running components.
type Session struct {
	UserID    string
	Messenger *messenger.Messenger
	Media     *media.Pipeline
	Monitor   *connectivity.Monitor
	Uploaders *csync.Uploaders
	Registry  *csync.Registry
	Chats     *chat.Manager

	queue   *media.Queue
	cleaner *media.Cleaner
	cancel  context.CancelFunc
	wg      gosync.WaitGroup
}

// Runtime switches between logged-out and signed-in states.
type Runtime struct {
	opts    Options
	store   *store.Store
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu       gosync.Mutex
	settings config.Settings
	local    *memremote.Remote
	active   *Session
}

func New(opts Options, st *store.Store, b *bus.Bus, m *status.Machine, logger *zap.Logger) (*Runtime, error) {
	settings, err := config.LoadSettings(opts.SettingsPath)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		opts:     opts,
		store:    st,
		bus:      b,
		machine:  m,
		logger:   logger.Named("runtime"),
		settings: settings,
	}, nil
}

// Start resumes the stored login, if any.
func (r *Runtime) Start(ctx context.Context) error {
	creds, err := config.LoadCredentials(r.opts.CredentialsPath)
	if err != nil {
		_ = r.machine.Ensure(status.Error)
		return err
	}
	if creds == nil {
		r.logger.Info("no credentials found, login required")
		return r.machine.Ensure(status.LoggedOut)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open(ctx, creds)
}

// Login stores the credentials and starts syncing for the user.
func (r *Runtime) Login(ctx context.Context, creds config.Credentials) error {
	if err := session.ValidateUserID(creds.UserID); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return fmt.Errorf("already logged in as %s", r.active.UserID)
	}
	if err := config.SaveCredentials(r.opts.CredentialsPath, &creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return r.open(ctx, &creds)
}

// Logout stops syncing, forgets the credentials and empties the local
// store.
func (r *Runtime) Logout(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ErrLoggedOut
	}
	r.close()
	err := multierr.Append(
		config.RemoveCredentials(r.opts.CredentialsPath),
		r.store.Reset(ctx),
	)
	return multierr.Append(err, r.machine.Ensure(status.LoggedOut))
}

// Stop shuts the signed-in components down and keeps the credentials.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		r.close()
	}
}

// Active returns the signed-in session.
func (r *Runtime) Active() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil, ErrLoggedOut
	}
	return r.active, nil
}

// Settings returns the session settings in effect.
func (r *Runtime) Settings() config.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// SetWifi records whether the device is on Wi-Fi and persists it.
func (r *Runtime) SetWifi(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.Network.Wifi = on
	if r.active != nil {
		r.active.Monitor.SetWifi(on)
	}
	return config.SaveSettings(r.opts.SettingsPath, r.settings)
}

func (r *Runtime) remoteFor(creds *config.Credentials) (Remote, error) {
	if r.opts.Remote != nil {
		return r.opts.Remote, nil
	}
	if r.settings.Remote.URL == "" {
		if r.local == nil {
			r.logger.Warn("no remote url configured, using an in-process remote")
			r.local = memremote.New()
		}
		return r.local, nil
	}
	return relayclient.New(relayclient.Config{
		URL:    r.settings.Remote.URL,
		Token:  creds.Token,
		Logger: r.logger,
	})
}

func (r *Runtime) cryptor() (cryptor.Cryptor, error) {
	if r.settings.Media.Key == "" {
		r.logger.Warn("no media key configured, media is stored unencrypted")
		return cryptor.Plain{}, nil
	}
	return cryptor.FromBase64(r.settings.Media.Key)
}

// open builds and starts the session. r.mu is held.
func (r *Runtime) open(ctx context.Context, creds *config.Credentials) error {
	log := r.logger.With(zap.String("user_id", creds.UserID))
	rs, err := r.remoteFor(creds)
	if err != nil {
		_ = r.machine.Ensure(status.Error)
		return fmt.Errorf("connect remote: %w", err)
	}
	crypt, err := r.cryptor()
	if err != nil {
		_ = r.machine.Ensure(status.Error)
		return err
	}

	me := creds.UserID
	profile := func(ctx context.Context) (*model.Person, error) {
		return store.Get(ctx, r.store, model.Persons, me)
	}
	mon := connectivity.NewMonitor(rs, r.settings.Network.ProbeInterval.Duration, r.settings.Network.Wifi, r.logger)
	pipeline := media.NewPipeline(r.opts.MediaDir, rs, crypt, mon, profile, r.bus, r.logger)
	s := &Session{
		UserID:    me,
		Messenger: messenger.New(r.store, pipeline, me, r.logger),
		Media:     pipeline,
		Monitor:   mon,
		Uploaders: csync.NewUploaders(r.store, rs, mon.IsOnline, r.settings.Sync.UploadInterval.Duration, r.bus, r.logger),
		Registry:  csync.NewRegistry(r.store, rs, r.bus, r.logger),
		Chats:     chat.New(r.store, r.bus, r.logger),
		queue:     media.NewQueue(r.store, pipeline, me, mon.IsOnline, mediaUploadInterval, r.bus, r.logger),
		cleaner:   media.NewCleaner(r.opts.MediaDir, profile, r.logger),
	}

	mon.OnChange(func(online bool) {
		next := status.Offline
		if online {
			next = status.Online
		}
		if err := r.machine.Ensure(next); err != nil {
			r.logger.Warn("status transition", zap.Error(err))
		}
	})
	if err := r.machine.Ensure(status.Offline); err != nil {
		return err
	}
	mon.Probe(ctx)

	if err := s.Chats.Start(ctx, me); err != nil {
		_ = r.machine.Ensure(status.Error)
		return fmt.Errorf("start chat manager: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		mon.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.queue.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		if err := s.Registry.Start(runCtx, me); err != nil {
			log.Error("start observers", zap.Error(err))
			return
		}
		r.ensurePerson(runCtx, s, creds, log)
		if _, err := s.Messenger.Heartbeat(runCtx, false); err != nil {
			log.Warn("heartbeat", zap.Error(err))
		}
	}()
	s.Uploaders.Start(runCtx)
	if err := s.cleaner.Start(r.settings.Media.CleanupSchedule); err != nil {
		log.Error("schedule media cleanup", zap.String("schedule", r.settings.Media.CleanupSchedule), zap.Error(err))
	}

	r.active = s
	log.Info("session started", zap.Bool("online", mon.IsOnline()))
	return nil
}

// ensurePerson creates the user's Person when the remote has none. It is
// skipped offline, so a stale default never overwrites a remote profile.
func (r *Runtime) ensurePerson(ctx context.Context, s *Session, creds *config.Credentials, log *zap.Logger) {
	me, err := s.Messenger.Me(ctx)
	if err != nil || me != nil || !s.Monitor.IsOnline() {
		return
	}
	if _, err := s.Messenger.CreatePerson(ctx, creds.Email, ""); err != nil {
		log.Error("create person", zap.Error(err))
		return
	}
	log.Info("created person")
}

// close stops the active session. r.mu is held.
func (r *Runtime) close() {
	s := r.active
	r.active = nil
	s.cancel()
	s.Uploaders.Stop()
	s.wg.Wait()
	s.Registry.Stop()
	s.Chats.Stop()
	s.cleaner.Stop()
	r.logger.Info("session stopped", zap.String("user_id", s.UserID))
}
