package daemon

import (
	"context"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRuntime,
			provideSessionService,
			provideChatService,
			provideMessageService,
			provideSyncService,
			provideMediaService,
			api.NewPeopleService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so that only the holder opens the
// database.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.Store, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return store.New(db, logger.Named("store")), nil
}

func provideRuntime(p Params, st *store.Store, b *bus.Bus, m *status.Machine, logger *zap.Logger) (*app.Runtime, error) {
	return app.New(app.Options{
		SessionName:     p.SessionName,
		SettingsPath:    session.SettingsPath(p.SessionName),
		CredentialsPath: session.CredentialsPath(p.SessionName),
		MediaDir:        session.MediaDir(p.SessionName),
	}, st, b, m, logger)
}

func provideSessionService(p Params, rt *app.Runtime, m *status.Machine, st *store.Store, b *bus.Bus, logger *zap.Logger) *api.SessionService {
	return api.NewSessionService(p.SessionName, rt, m, st, b, logger)
}

func provideChatService(p Params, rt *app.Runtime, st *store.Store, b *bus.Bus) *api.ChatService {
	return api.NewChatService(p.SessionName, rt, st, b)
}

func provideMessageService(p Params, rt *app.Runtime, b *bus.Bus) *api.MessageService {
	return api.NewMessageService(p.SessionName, rt, b)
}

func provideSyncService(p Params, rt *app.Runtime, b *bus.Bus) *api.SyncService {
	return api.NewSyncService(p.SessionName, rt, b)
}

func provideMediaService(p Params, rt *app.Runtime, b *bus.Bus) *api.MediaService {
	return api.NewMediaService(p.SessionName, rt, b)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, rt *app.Runtime, st *store.Store, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// Resuming a stored login contacts the remote; a failure leaves
			// the daemon up in the error state.
			if err := rt.Start(context.Background()); err != nil {
				logger.Error("resume session failed", zap.Error(err))
				_ = machine.Ensure(status.Error)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			rt.Stop()
			err := multierr.Append(st.Close(), lk.Release())
			if err != nil {
				logger.Warn("error during shutdown", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
