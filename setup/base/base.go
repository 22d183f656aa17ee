// Copyright 2026 The Circles Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/kardianos/minwinsvc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/circles-chat/circles/internal"
	"github.com/circles-chat/circles/internal/caching"
	"github.com/circles-chat/circles/internal/httputil"
	"github.com/circles-chat/circles/session/matrix"
	"github.com/circles-chat/circles/session/storage"
	"github.com/circles-chat/circles/setup/config"
	"github.com/circles-chat/circles/setup/process"
)

// HTTPServerTimeout bounds writing a response. Pagination requests are cut
// short by their own timeout well before this.
const HTTPServerTimeout = time.Minute * 5

// BaseCircles is a base for the circles process: the configured session, its
// local database and the caches in front of the homeserver.
type BaseCircles struct {
	ProcessContext *process.ProcessContext
	Cfg            *config.Circles
	Caches         *caching.Caches
	Database       storage.Database
	Session        *matrix.Client
}

// NewBaseCircles sets up logging and error reporting, opens the database and
// connects to the homeserver. Anything going wrong here is fatal.
func NewBaseCircles(cfg *config.Circles, componentName string) *BaseCircles {
	platformSanityChecks()

	configErrors := &config.ConfigErrors{}
	cfg.Verify(configErrors)
	if len(*configErrors) > 0 {
		for _, err := range *configErrors {
			logrus.Errorf("Configuration error: %s", err)
		}
		logrus.Fatalf("Failed to start due to configuration errors")
	}

	internal.SetupStdLogging()
	internal.SetupHookLogging(cfg.Logging, componentName)

	logrus.Infof("Circles version %s", internal.VersionString())

	processCtx := process.NewProcessContext()

	if cfg.Global.Sentry.Enabled {
		logrus.Info("Setting up Sentry for debugging...")
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Global.Sentry.DSN,
			Environment:      cfg.Global.Sentry.Environment,
			Debug:            true,
			ServerName:       cfg.Session.UserID,
			Release:          "circles@" + internal.VersionString(),
			AttachStacktrace: true,
		})
		if err != nil {
			logrus.WithError(err).Panic("failed to start Sentry")
		}
	}

	caches, err := caching.NewRistrettoCache(
		caching.CacheSize(cfg.Global.Cache.EstimatedMaxSize), cfg.Global.Cache.MaxAge, cfg.Global.Cache.EnablePrometheus,
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create cache")
	}

	db, err := storage.NewDatabase(processCtx.Context(), &cfg.Global.DatabaseOptions)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to the session database")
	}

	session, err := matrix.NewClient(processCtx.Context(), &cfg.Session, db, caches)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create the homeserver client")
	}
	if err = session.CheckVersions(); err != nil {
		logrus.WithError(err).WithField("homeserver_url", cfg.Session.HomeserverURL).Fatal("Homeserver is not usable")
	}

	upCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "circles",
		Name:      "up",
		ConstLabels: map[string]string{
			"version": internal.VersionString(),
		},
	})
	upCounter.Add(1)
	prometheus.MustRegister(upCounter)

	return &BaseCircles{
		ProcessContext: processCtx,
		Cfg:            cfg,
		Caches:         caches,
		Database:       db,
		Session:        session,
	}
}

// Close closes the database.
func (b *BaseCircles) Close() error {
	return b.Database.Close()
}

// SetupAndServeHTTP serves the feed API router on the configured listen
// address, along with /health and, if enabled, /metrics. It blocks until the
// process shuts down.
func SetupAndServeHTTP(
	processCtx *process.ProcessContext,
	cfg *config.Circles,
	router *mux.Router,
	pingers ...httputil.Pinger,
) {
	externalRouter := mux.NewRouter().SkipClean(true).UseEncodedPath()

	serv := &http.Server{
		Addr:         string(cfg.FeedAPI.Listen),
		WriteTimeout: HTTPServerTimeout,
		Handler:      externalRouter,
		BaseContext: func(_ net.Listener) context.Context {
			return processCtx.Context()
		},
	}

	if cfg.Global.Metrics.Enabled {
		externalRouter.Handle("/metrics", httputil.WrapHandlerInBasicAuth(promhttp.Handler(), cfg.Global.Metrics.BasicAuth))
	}
	externalRouter.Handle("/health", httputil.HealthCheckHandler(processCtx.IsDegraded, pingers...))

	var feedHandler http.Handler = router
	if cfg.Global.Sentry.Enabled {
		sentryHandler := sentryhttp.New(sentryhttp.Options{
			Repanic: true,
		})
		feedHandler = sentryHandler.Handle(router)
	}
	externalRouter.PathPrefix("/_circles/").Handler(httputil.WrapHandlerInCORS(feedHandler))

	go func() {
		var shutdown atomic.Bool // RegisterOnShutdown can be called more than once
		logrus.Infof("Starting feed API listener on %s", serv.Addr)
		processCtx.ComponentStarted()
		serv.RegisterOnShutdown(func() {
			if shutdown.CompareAndSwap(false, true) {
				processCtx.ComponentFinished()
				logrus.Infof("Stopped feed API listener")
			}
		})
		if err := serv.ListenAndServe(); err != nil {
			if err != http.ErrServerClosed {
				logrus.WithError(err).Fatal("failed to serve HTTP")
			}
		}
	}()

	minwinsvc.SetOnExit(processCtx.Shutdown)
	<-processCtx.WaitForShutdown()

	logrus.Infof("Stopping HTTP listeners")
	_ = serv.Shutdown(context.Background())
	logrus.Infof("Stopped HTTP listeners")
}

// WaitForShutdown blocks until a signal arrives or the process is shut down
// some other way, then waits for every component to finish.
func WaitForShutdown(processCtx *process.ProcessContext, cfg *config.Circles) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
	case <-processCtx.WaitForShutdown():
	}
	signal.Reset(syscall.SIGINT, syscall.SIGTERM)

	logrus.Warnf("Shutdown signal received")

	processCtx.Shutdown()
	processCtx.WaitForComponentsToFinish()
	if cfg.Global.Sentry.Enabled {
		if !sentry.Flush(time.Second * 5) {
			logrus.Warnf("failed to flush all Sentry events!")
		}
	}

	logrus.Warnf("Circles is exiting now")
}
