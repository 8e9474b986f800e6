// Package app wires the download engine and its collaborators with fx.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/chatdump/internal/bus"
	"github.com/matheus3301/chatdump/internal/config"
	"github.com/matheus3301/chatdump/internal/engine"
	"github.com/matheus3301/chatdump/internal/logging"
	"github.com/matheus3301/chatdump/internal/paths"
	"github.com/matheus3301/chatdump/internal/progress"
	"github.com/matheus3301/chatdump/internal/remote"
	"github.com/matheus3301/chatdump/internal/remote/gateway"
	"github.com/matheus3301/chatdump/internal/status"
)

// Params holds the resolved settings passed to the fx module.
type Params struct {
	Settings config.Settings
	RunName  string
	Debug    bool
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chatdump",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideReporter,
			provideClient,
			provideEngine,
			NewWatcher,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	logPath := p.Settings.LogFile
	if logPath == "" {
		logPath = paths.LogPath()
	}
	level := p.Settings.Level()
	if p.Debug {
		level = zapcore.DebugLevel
	}
	return logging.New(logPath, p.RunName, level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideReporter(b *bus.Bus) *progress.Reporter {
	return progress.New(b)
}

func provideClient(p Params, logger *zap.Logger) remote.Client {
	return gateway.New(p.Settings.APIURL, p.Settings.APIToken, nil, logger.Named("gateway"))
}

func provideEngine(client remote.Client, b *bus.Bus, m *status.Machine, r *progress.Reporter, logger *zap.Logger) *engine.Engine {
	return engine.New(client, b, m, r, logger)
}

func registerLifecycle(lc fx.Lifecycle, w *Watcher, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			w.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			w.Stop()
			_ = logger.Sync()
			return nil
		},
	})
}
