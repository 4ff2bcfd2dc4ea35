package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AzielCF/az-publish/core/config"
	"github.com/AzielCF/az-publish/core/database"
	"github.com/AzielCF/az-publish/core/security"
	"github.com/AzielCF/az-publish/infrastructure/httpclient"
	"github.com/AzielCF/az-publish/infrastructure/valkey"
	"github.com/AzielCF/az-publish/pkg/jobworker"
	"github.com/AzielCF/az-publish/pkg/retry"
	"github.com/AzielCF/az-publish/pkg/utils"
	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/AzielCF/az-publish/publishing/repository"
	"github.com/AzielCF/az-publish/ui/rest"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// container holds every long lived component of one process.
type container struct {
	cfg      *config.Config
	serverID string

	db     *gorm.DB
	vk     *valkey.Client
	pool   *jobworker.Pool
	tokens *security.TokenService

	watcher application.JobWatcher
	waker   application.SweepWaker

	jobs       *application.JobManager
	sweeper    *application.ClaimSweeper
	reconciler *application.Reconciler
	relay      *application.StatusRelay
}

func newContainer(ctx context.Context, cfg *config.Config) (*container, error) {
	if err := utils.EnsureDirectories(cfg.Paths.Storages, cfg.Paths.Artifacts); err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to migrate publishing tables: %w", err)
	}

	c := &container{
		cfg:      cfg,
		serverID: utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages),
		db:       db,
		tokens:   security.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	}
	if !c.tokens.Enabled() {
		logrus.Warn("[APP] AUTH_JWT_SECRET is not set; every authenticated route will answer 401")
	}
	c.initSignals()

	content := repository.NewContentGormRepository(db)
	jobRepo := repository.NewJobGormRepository(db)
	tasks := repository.NewTaskGormRepository(db)
	connections := repository.NewConnectionGormRepository(db)

	hc := httpclient.New(15 * time.Second)
	var broker domain.IdentityBroker
	if cfg.Publishing.IdentityBrokerURL != "" {
		broker = httpclient.NewIdentityBroker(hc, cfg.Publishing.IdentityBrokerURL, cfg.Publishing.IdentityBrokerKey)
	} else {
		logrus.Warn("[APP] IDENTITY_BROKER_URL is not set; providers will fail with credential_error")
	}

	names := make([]string, 0, len(cfg.Publishing.ProviderEndpoints))
	for name := range cfg.Publishing.ProviderEndpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	adapters := make([]domain.ProviderAdapter, 0, len(names))
	for _, name := range names {
		adapters = append(adapters, httpclient.NewProviderEndpoint(hc, name, cfg.Publishing.ProviderEndpoints[name]))
	}
	logrus.Infof("[APP] Provider adapters: %v", names)

	c.pool = jobworker.NewPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)
	c.pool.Start(ctx)

	c.jobs = application.NewJobManager(application.JobManagerDeps{
		Jobs:        jobRepo,
		Content:     content,
		Connections: connections,
		Broker:      broker,
		Adapters:    adapters,
		Pool:        c.pool,
		Watcher:     c.watcher,
	})
	c.sweeper = application.NewClaimSweeper(application.SweeperDeps{
		Content:       content,
		Jobs:          c.jobs,
		Waker:         c.waker,
		Settings:      cfg.Settings(),
		Interval:      cfg.Publishing.SweepInterval,
		Batch:         cfg.Publishing.SweepBatch,
		IsTransient:   database.IsTransient,
		IsOutOfMemory: database.IsOutOfMemory,
	})

	var status domain.TaskStatusClient
	if cfg.Reconciler.StatusURL != "" {
		status = httpclient.NewTaskStatusClient(hc, cfg.Reconciler.StatusURL, cfg.Reconciler.APIKey)
	}
	c.reconciler = application.NewReconciler(application.ReconcilerDeps{
		Tasks:     tasks,
		Status:    status,
		Artifacts: httpclient.NewArtifactDownloader(hc, cfg.Paths.Artifacts),
		Policy: retry.Policy{
			BaseDelay:   cfg.Reconciler.BaseDelay,
			MaxDelay:    cfg.Reconciler.MaxDelay,
			MaxAttempts: cfg.Reconciler.MaxAttempts,
		},
	})
	c.relay = application.NewStatusRelay(jobRepo, c.watcher, application.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		Keepalive:    cfg.Relay.Keepalive,
		MaxDuration:  cfg.Relay.MaxDuration,
	})
	return c, nil
}

// initSignals uses valkey pub/sub when enabled and reachable so relays and
// sweepers on other instances are nudged too; otherwise signals stay local.
func (c *container) initSignals() {
	if c.cfg.Valkey.Enabled {
		vk, err := valkey.NewClient(valkey.Config{
			Address:   c.cfg.Valkey.Address,
			Password:  c.cfg.Valkey.Password,
			DB:        c.cfg.Valkey.DB,
			KeyPrefix: c.cfg.Valkey.KeyPrefix,
		})
		if err == nil {
			logrus.Infof("[VALKEY] Connected to %s, server %s", c.cfg.Valkey.Address, c.serverID)
			c.vk = vk
			c.watcher = valkey.NewJobSignals(vk)
			c.waker = valkey.NewSweepSignal(vk)
			return
		}
		logrus.WithError(err).Warn("[VALKEY] Unavailable, falling back to in-process signals")
	}
	local := application.NewLocalSignals()
	c.watcher = local
	c.waker = local
}

// healthChecks are the dependencies reported by GET /api/health.
func (c *container) healthChecks() map[string]rest.Pinger {
	checks := map[string]rest.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := c.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if c.vk != nil {
		checks["valkey"] = c.vk.Ping
	}
	return checks
}

// Close stops background work and releases connections. Jobs already handed
// to the pool finish first.
func (c *container) Close() {
	c.reconciler.Close()
	c.pool.Stop()
	c.jobs.Drain()
	if c.vk != nil {
		c.vk.Close()
	}
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logrus.Info("[APP] Application stopped cleanly.")
}
