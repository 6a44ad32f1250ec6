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

// The synciot binary mirrors device-to-cloud events from an IoT hub into a
// PostgreSQL database and serves a small status page.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"

	"github.com/edgewatt/zeppelin/pkg/hub"
	"github.com/edgewatt/zeppelin/pkg/synciot"
)

const version = "1.3.0"

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func main() {
	a := kingpin.New("synciot", "Mirrors IoT hub events into PostgreSQL")
	a.HelpFlag.Short('h')

	var (
		configFile = a.Flag("config.file", "Route configuration file.").
				Default(envOr("SYNCIOT_CONFIG_FILENAME", "./config/synciot.json")).String()
		listenAddress = a.Flag("web.listen-address", "Address to serve the status page on.").
				Default(":" + envOr("STATUS_PORT", "8080")).String()
		cloudHosted = a.Flag("db.cloud-hosted", "Use the cloud-hosted database section of the configuration.").
				Bool()
		logLevel = a.Flag("log.level", "Log level (debug, info, warn, error).").
				Default(envOr("LOGGING_LEVEL", "info")).Enum("debug", "info", "warn", "error")
	)
	if _, err := a.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "parsing commandline arguments:", err)
		a.Usage(os.Args[1:])
		os.Exit(1)
	}

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))

	_ = level.Info(logger).Log("msg", "starting synciot", "version", version)

	cfg, err := synciot.Load(*configFile, *cloudHosted)
	if err != nil {
		_ = level.Error(logger).Log("msg", "loading configuration failed", "file", *configFile, "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := synciot.NewStore(ctx, cfg.PG)
	if err != nil {
		_ = level.Error(logger).Log("msg", "connecting to database failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := synciot.NewService(logger, cfg, store)

	position, err := svc.StartPosition(ctx)
	if err != nil {
		_ = level.Error(logger).Log("msg", "reading checkpoint failed", "err", err)
		os.Exit(1)
	}
	_ = level.Info(logger).Log("msg", "resuming event stream", "position", position)

	listener, err := hub.NewListener(logger, cfg.IoTHub.ConnectionString, svc.HandleEvent)
	if err != nil {
		_ = level.Error(logger).Log("msg", "connecting to hub failed", "err", err)
		os.Exit(1)
	}
	defer listener.Close()

	var g run.Group
	{
		// Termination handler.
		term := make(chan os.Signal, 1)
		done := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		g.Add(
			func() error {
				select {
				case <-term:
					_ = level.Info(logger).Log("msg", "received SIGTERM, exiting gracefully...")
				case <-done:
				}
				return nil
			},
			func(error) {
				close(done)
			},
		)
	}
	{
		// Hub event subscription.
		g.Add(func() error {
			return listener.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		// Event processing and checkpointing.
		g.Add(func() error {
			return svc.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		// Status page.
		server := &http.Server{Addr: *listenAddress, Handler: synciot.NewStatusHandler(svc, version)}
		g.Add(func() error {
			_ = level.Info(logger).Log("msg", "serving status page", "address", *listenAddress)
			return server.ListenAndServe()
		}, func(error) {
			_ = server.Close()
		})
	}

	if err := g.Run(); err != nil && ctx.Err() == nil {
		_ = level.Error(logger).Log("msg", "exiting with error", "err", err)
		os.Exit(1)
	}
	_ = level.Info(logger).Log("msg", "exiting")
}
