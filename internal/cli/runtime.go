package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nhle/reminders/internal/credential"
	"github.com/nhle/reminders/internal/logging"
	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/recurrence"
	"github.com/nhle/reminders/internal/remote"
	"github.com/nhle/reminders/internal/store"
	appsync "github.com/nhle/reminders/internal/sync"
	"github.com/nhle/reminders/internal/timer"
)

// errSyncDisabled is returned by commands that need the remote when
// remote.base_url is empty.
var errSyncDisabled = errors.New("sync is disabled: set remote.base_url in the config")

// runtime is the wired set of services a command works with.
type runtime struct {
	cfg        *model.AppConfig
	log        *zap.Logger
	store      *store.SQLiteStore
	timers     *timer.Service
	recurrence *recurrence.Engine
	sync       *appsync.Engine // nil when sync is disabled

	closers []func() error
}

// runtimeOptions tweaks openRuntime for a command.
type runtimeOptions struct {
	// logOutput overrides log.output, e.g. a file for the TUI.
	logOutput string
}

func loadConfig(opts *RootOptions) (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openRuntime loads config and wires the store, timer backend, recurrence
// engine and, when configured, the sync engine. The sync worker is not
// started.
func openRuntime(ctx context.Context, opts *RootOptions, ro runtimeOptions) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if ro.logOutput != "" {
		cfg.Log.Output = ro.logOutput
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configuring logging", err)
	}
	rt := &runtime{cfg: cfg, log: log}
	rt.closers = append(rt.closers, func() error {
		_ = log.Sync()
		return nil
	})

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "creating data directory", err)
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path,
		store.WithTimeout(cfg.Store.Timeout),
	)
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "opening event store", err)
	}
	rt.store = s
	rt.closers = append(rt.closers, s.Close)

	backend, err := rt.timerBackend(ctx)
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "opening timer backend", err)
	}
	rt.timers = timer.NewService(backend,
		timer.WithPollInterval(cfg.Timer.PollInterval),
		timer.WithLogger(log.Named("timer")),
	)
	rt.recurrence = recurrence.NewEngine(s, rt.timers,
		recurrence.WithLocation(cfg.Location()),
		recurrence.WithLogger(log.Named("recurrence")),
	)

	if cfg.Remote.BaseURL != "" {
		token, err := credential.Lookup(credential.RemoteToken)
		if err != nil {
			log.Warn("reading remote token from keyring", zap.Error(err))
		}
		client := remote.NewFromConfig(cfg.Remote, token, log.Named("remote"))
		rt.sync = appsync.New(s, client, appsync.WithLogger(log.Named("sync")))
	}

	return rt, nil
}

func (rt *runtime) timerBackend(ctx context.Context) (timer.Backend, error) {
	switch rt.cfg.Timer.Backend {
	case "", "sqlite":
		return rt.store, nil
	case "redis":
		b, err := timer.NewRedisBackend(ctx, rt.cfg.Timer.RedisAddr, rt.cfg.Timer.RedisKey)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, b.Close)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown timer backend %q (want sqlite or redis)", rt.cfg.Timer.Backend)
	}
}

// requireSync returns the sync engine or errSyncDisabled.
func (rt *runtime) requireSync() (*appsync.Engine, error) {
	if rt.sync == nil {
		return nil, WrapExitError(ExitCommandError, "sync", errSyncDisabled)
	}
	return rt.sync, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
