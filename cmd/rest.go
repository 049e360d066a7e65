package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	coreconfig "github.com/AzielCF/az-mediacache/core/config"
	"github.com/AzielCF/az-mediacache/ui/rest"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Run the admin REST API",
	RunE:  restServer,
}

func init() {
	restCmd.Flags().StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	restCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) error {
	cfg := coreconfig.Global
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.App.Port = port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if len(cfg.App.BasicAuth) == 0 {
		logrus.Warn("[REST] APP_BASIC_AUTH is empty, the admin API is unauthenticated")
	}

	app, err := rest.NewServer(
		rest.ServerConfig{
			BasePath:  cfg.App.BasePath,
			BasicAuth: cfg.App.BasicAuth,
			BodyLimit: int(cfg.Fetch.MaxBytes) * 2,
		},
		rest.Cache{Service: rt.cache, Rehydrator: rt.rehydrator, Settings: rt.settings, Base: rt.base},
		rest.Rehydrate{Service: rt.rehydrator, Session: rt.session},
	)
	if err != nil {
		return err
	}

	rt.cache.StartBackgroundCleanup(ctx, cfg.Cache.CleanupInterval)

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Shutting down...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("[REST] Shutdown failed")
		}
	}()

	logrus.Infof("[REST] Listening on :%s%s/api (store: %s)", cfg.App.Port, cfg.App.BasePath, cfg.Cache.Store)
	return app.Listen(":" + cfg.App.Port)
}
