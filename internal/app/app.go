package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/api"
	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/core"
	"github.com/auto-dns/dns-record-sync/internal/importer"
	"github.com/auto-dns/dns-record-sync/internal/lock"
	"github.com/auto-dns/dns-record-sync/internal/remote"
	"github.com/auto-dns/dns-record-sync/internal/store"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type App struct {
	etcdClient *clientv3.Client
	store      store.Store
	remote     remote.Client
	controller *core.Controller
	importer   *importer.Importer
	server     *api.Server
	logger     zerolog.Logger
}

// New creates a new App by wiring up all dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{logger: logger}

	// Record store and record locks
	var locker lock.Locker
	switch cfg.Store.Backend {
	case "etcd":
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: time.Duration(cfg.Etcd.DialTimeout * float64(time.Second)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		a.etcdClient = etcdClient
		a.store = store.NewEtcdStore(etcdClient, &cfg.Etcd, logger)
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		locker = lock.NewEtcdLocker(etcdClient, &cfg.Etcd, hostname, logger)
	case "sql":
		sqlStore, err := store.OpenSQLStore(&cfg.SQL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sql store: %w", err)
		}
		a.store = sqlStore
		locker = lock.NewKeyedMutex()
	default:
		a.store = store.NewMemoryStore()
		locker = lock.NewKeyedMutex()
	}

	// Remote provider
	rc, err := remote.NewClient(cfg.Provider, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create DNS provider client: %w", err)
	}
	a.remote = rc

	a.controller = core.NewController(a.store, rc, locker, &cfg.App, logger)
	a.importer = importer.NewImporter(a.store, a.controller, &cfg.App, logger)
	a.server = api.NewServer(a.controller, a.importer, a.store, &cfg.HTTP, logger)

	logger.Info().Msgf("Using %s store and %s provider (zone %s)", cfg.Store.Backend, rc.Name(), rc.Zone())
	return a, nil
}

func (a *App) Controller() *core.Controller { return a.controller }
func (a *App) Importer() *importer.Importer  { return a.importer }

// Run serves the HTTP surface until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("Application starting")
	return a.server.Run(ctx)
}

func (a *App) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
	}
	if a.etcdClient != nil {
		if err := a.etcdClient.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close etcd client: %w", err)
		}
	}
	return firstErr
}
