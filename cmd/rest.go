package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AzielCF/az-publish/ui/rest"
	"github.com/AzielCF/az-publish/ui/rest/middleware"
	"github.com/AzielCF/az-publish/ui/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the publish API over http and websocket",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logrus.Fatalln("[CONFIG] ", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := newContainer(ctx, cfg)
	if err != nil {
		logrus.Fatalln("[APP] Failed to initialize: ", err.Error())
	}

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		Network:                 "tcp",
		AppName:                 "Az-Publish",
		ServerHeader:            "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)

	app.Use(requestid.New())

	origins := strings.Join(cfg.App.CorsAllowedOrigins, ", ")
	if cfg.App.BaseUrl != "" && !strings.Contains(origins, cfg.App.BaseUrl) {
		if origins != "" {
			origins += ", "
		}
		origins += cfg.App.BaseUrl
	}
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            31536000,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	router := app.Group(cfg.App.BasePath)
	rest.Mount(router, rest.Routes{
		Tokens:   c.tokens,
		Settings: cfg.Settings(),
		Publish: rest.Publish{
			Jobs:        c.jobs,
			Sweeper:     c.sweeper,
			PreviewWait: cfg.Publishing.PreviewWait,
		},
		Tasks: rest.Tasks{
			Reconciler:     c.reconciler,
			CallbackSecret: cfg.Auth.CallbackSecret,
		},
		Health: rest.Health{
			ServerID: c.serverID,
			Version:  cfg.App.Version,
			Checks:   c.healthChecks(),
		},
		WorkerPool: rest.WorkerPool{Pool: c.pool},
		Relay:      websocket.RelayHandler(c.relay),
	})

	// 404 only for the API so unknown paths never look like success
	router.All("/api/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"ok":    false,
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	c.sweeper.Start(ctx)
	if _, err := c.reconciler.ResumePending(ctx); err != nil {
		logrus.WithError(err).Error("[RECONCILER] Failed to resume pending tasks")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	logrus.Infof("[REST] Server %s listening on :%s", c.serverID, cfg.App.Port)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Errorln("[REST] Failed to start: ", err.Error())
	}
	cancel()
	c.Close()
}
