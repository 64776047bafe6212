// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/glidein/glidein-controller/internal/auth"
	"github.com/glidein/glidein-controller/internal/batchadapter"
	"github.com/glidein/glidein-controller/internal/config"
	"github.com/glidein/glidein-controller/internal/httpserver"
	"github.com/glidein/glidein-controller/internal/jobqueue"
	"github.com/glidein/glidein-controller/internal/logging"
	"github.com/glidein/glidein-controller/internal/metrics"
	"github.com/glidein/glidein-controller/internal/registry"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = ""
	Commit    = ""

	rootCmd = &cobra.Command{
		Use:     "glidein-controller",
		Short:   "Pilot-job matching controller for batch-system glideins",
		Long:    `glidein-controller tracks batch-system job demand and registered site capacity, and tells each site how many additional pilots to request.`,
		Version: Version,
	}
)

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("glidein-controller version %s\n", Version)
		if BuildTime != "" {
			fmt.Printf("Build Time: %s\n", BuildTime)
		}
		if Commit != "" {
			fmt.Printf("Commit:     %s\n", Commit)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller's HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg := config.NewDefault()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := logging.DefaultConfig()
	if cfg.Debug {
		logCfg.Level = slog.LevelDebug
	}
	logger := logging.NewLogger(logCfg)

	var adapter batchadapter.Adapter
	if cfg.CollectorQueryCmd != "" {
		adapter = batchadapter.NewCollectorAdapter(cfg.CollectorAddr, cfg.CollectorQueryCmd, cfg.TokenFetchCmd)
	} else {
		logger.Warn("no collector query command configured, serving an empty job snapshot")
		adapter = &batchadapter.StaticAdapter{}
	}

	collector := metrics.NewInMemoryCollector()

	cache := jobqueue.NewSnapshotCache(adapter, cfg.CacheTimeout, logger)
	cache.SetMetrics(collector)
	reg := registry.New(cfg.ClientIdleTTL)
	provider := auth.NewProvider(cfg.AuthSecret, cfg.AuthTokenExpiration)

	srv := httpserver.New(&httpserver.Server{
		Registry: reg,
		Cache:    cache,
		Adapter:  adapter,
		Auth:     provider,
		Logger:   logger,
		Metrics:  collector,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Info("starting glidein-controller", "addr", addr, "auth_enabled", provider.Enabled())

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpSrv.ListenAndServe()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
