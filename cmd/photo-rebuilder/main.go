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

// The photo-rebuilder binary reassembles block-streamed camera images from
// IoT hub events and persists them to blob storage and Azure Data Explorer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"

	"github.com/edgewatt/zeppelin/pkg/hub"
	"github.com/edgewatt/zeppelin/pkg/photo"
	"github.com/edgewatt/zeppelin/pkg/storage"
)

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func main() {
	a := kingpin.New("photo-rebuilder", "Reassembles block-streamed camera images")
	a.HelpFlag.Short('h')

	var (
		timeoutMinutes = a.Flag("photo.timeout-minutes", "Minutes to keep an incomplete photo before discarding it.").
				Default(envOr("PHOTO_TIMEOUT_MINUTES", "2")).Int()
		blobContainer = a.Flag("blob.container", "Blob container for completed photos.").
				Default(envOr("BLOB_CONTAINER_NAME", "photos")).String()
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

	blobConnString := os.Getenv("BLOB_STORAGE_CONNECTION_STRING")
	if blobConnString == "" {
		_ = level.Error(logger).Log("msg", "BLOB_STORAGE_CONNECTION_STRING is not set")
		os.Exit(1)
	}
	hubConnString := os.Getenv("IOTHUB_CONNECTION_STRING")
	if hubConnString == "" {
		_ = level.Error(logger).Log("msg", "IOTHUB_CONNECTION_STRING is not set")
		os.Exit(1)
	}
	kustoCfg := storage.KustoConfig{
		Endpoint: os.Getenv("ADX_CLUSTER_URI"),
		ClientID: os.Getenv("ADX_CLIENT_ID"),
		Secret:   os.Getenv("ADX_CLIENT_SECRET"),
		TenantID: os.Getenv("ADX_TENANT_ID"),
		Database: os.Getenv("ADX_DATABASE"),
		Table:    envOr("ADX_TABLE", "Photos"),
	}
	if kustoCfg.Endpoint == "" || kustoCfg.Database == "" || kustoCfg.ClientID == "" || kustoCfg.Secret == "" || kustoCfg.TenantID == "" {
		_ = level.Error(logger).Log("msg", "incomplete ADX configuration, set ADX_CLUSTER_URI, ADX_DATABASE, ADX_CLIENT_ID, ADX_CLIENT_SECRET and ADX_TENANT_ID")
		os.Exit(1)
	}

	objects, err := storage.NewBlobStore(logger, blobConnString, *blobContainer)
	if err != nil {
		_ = level.Error(logger).Log("msg", "creating blob store failed", "err", err)
		os.Exit(1)
	}
	analytics, err := storage.NewKustoStore(kustoCfg)
	if err != nil {
		_ = level.Error(logger).Log("msg", "creating analytics store failed", "err", err)
		os.Exit(1)
	}
	defer analytics.Close()
	if err := analytics.EnsureTable(context.Background()); err != nil {
		_ = level.Warn(logger).Log("msg", "ensuring analytics table failed", "err", err)
	}

	states := photo.NewStateManager(time.Duration(*timeoutMinutes) * time.Minute)
	rebuilder := photo.NewRebuilder(logger, states, objects, analytics)

	ctx, cancel := context.WithCancel(context.Background())
	listener, err := hub.NewListener(logger, hubConnString, func(ev hub.Event) {
		rebuilder.HandleEvent(ctx, ev)
	})
	if err != nil {
		cancel()
		_ = level.Error(logger).Log("msg", "connecting to hub failed", "err", err)
		os.Exit(1)
	}
	defer listener.Close()

	_ = level.Info(logger).Log("msg", "starting photo rebuilder", "timeout_minutes", strconv.Itoa(*timeoutMinutes), "container", *blobContainer)

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

	if err := g.Run(); err != nil && ctx.Err() == nil {
		_ = level.Error(logger).Log("msg", "exiting with error", "err", err)
		os.Exit(1)
	}
	_ = level.Info(logger).Log("msg", "exiting")
}
