// Copyright 2025 Edgewatt Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// The zeppelin binary runs the configured message pipelines and reloads them
// when the configuration files change on disk.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/pipeline"
)

// Exit codes: configuration, pipeline construction, pipeline start.
const (
	exitConfig = 1
	exitInit   = 2
	exitStart  = 3
)

const configPollInterval = 10 * time.Second

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func main() {
	a := kingpin.New("zeppelin", "IoT message normalization pipelines")
	a.HelpFlag.Short('h')

	var (
		configFile = a.Flag("config.file", "Pipeline configuration file.").
				Default(envOr("CONFIG_FILENAME", "/config/zeppelin.json")).String()
		listenAddress = a.Flag("web.listen-address", "Address to expose metrics on.").
				Default(":" + envOr("PROMETHEUS_PORT", "8000")).String()
		logLevel = a.Flag("log.level", "Log level (debug, info, warn, error).").
				Default(envOr("LOGGING_LEVEL", "info")).Enum("debug", "info", "warn", "error")
	)
	if _, err := a.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "parsing commandline arguments:", err)
		a.Usage(os.Args[1:])
		os.Exit(exitConfig)
	}

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue)))

	cfg, err := config.Load(*configFile)
	if err != nil {
		_ = level.Error(logger).Log("msg", "loading configuration failed", "file", *configFile, "err", err)
		os.Exit(exitConfig)
	}
	_ = level.Info(logger).Log("msg", "configuration loaded", "file", *configFile, "version", cfg.Version, "pipelines", len(cfg.Pipelines))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.SetVersion(cfg.Version, cfg.VersionDate, "zeppelin")

	manager, err := pipeline.NewManager(logger, cfg, m)
	if err != nil {
		_ = level.Error(logger).Log("msg", "building pipelines failed", "err", err)
		os.Exit(exitInit)
	}
	if err := manager.Start(); err != nil {
		_ = level.Error(logger).Log("msg", "starting pipelines failed", "err", err)
		os.Exit(exitStart)
	}

	var g run.Group
	{
		// Termination handler.
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		g.Add(
			func() error {
				select {
				case <-term:
					_ = level.Info(logger).Log("msg", "received SIGTERM, exiting gracefully...")
				case <-cancel:
				}
				return nil
			},
			func(error) {
				close(cancel)
			},
		)
	}
	{
		// Metrics server.
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		server := &http.Server{Addr: *listenAddress, Handler: mux}
		g.Add(func() error {
			_ = level.Info(logger).Log("msg", "serving metrics", "address", *listenAddress)
			return server.ListenAndServe()
		}, func(error) {
			_ = server.Close()
		})
	}
	{
		// Configuration supervisor: poll the watched files and rebuild all
		// pipelines when any of them changes.
		cancel := make(chan struct{})
		g.Add(func() error {
			watcher := config.NewWatcher(cfg.WatchedFiles(*configFile)...)
			ticker := time.NewTicker(configPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-cancel:
					return nil
				case <-ticker.C:
					if !watcher.IsModified() {
						continue
					}
					_ = level.Info(logger).Log("msg", "configuration changed, restarting pipelines")
					manager.Stop()
					newCfg, err := config.Load(*configFile)
					if err != nil {
						return fmt.Errorf("reloading configuration: %w", err)
					}
					newManager, err := pipeline.NewManager(logger, newCfg, m)
					if err != nil {
						return fmt.Errorf("rebuilding pipelines: %w", err)
					}
					if err := newManager.Start(); err != nil {
						return err
					}
					manager = newManager
					m.SetVersion(newCfg.Version, newCfg.VersionDate, "zeppelin")
					watcher = config.NewWatcher(newCfg.WatchedFiles(*configFile)...)
					_ = level.Info(logger).Log("msg", "pipelines restarted", "version", newCfg.Version, "pipelines", len(newCfg.Pipelines))
				}
			}
		}, func(error) {
			close(cancel)
		})
	}

	if err := g.Run(); err != nil {
		_ = level.Error(logger).Log("msg", "exiting with error", "err", err)
		manager.Stop()
		os.Exit(exitConfig)
	}
	manager.Stop()
	_ = level.Info(logger).Log("msg", "exiting")
}
