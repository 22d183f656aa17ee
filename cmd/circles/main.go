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

package main

import (
	"context"
	"errors"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/circles-chat/circles/consumers"
	"github.com/circles-chat/circles/feedapi"
	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/setup"
	basepkg "github.com/circles-chat/circles/setup/base"
	"github.com/circles-chat/circles/spaces"
)

func main() {
	cfg := setup.ParseFlags()
	base := basepkg.NewBaseCircles(cfg, "circles")
	defer base.Close() // nolint: errcheck
	processCtx := base.ProcessContext
	ctx := processCtx.Context()

	registry := rooms.NewRegistry(base.Session, base.Database)
	consumer := consumers.NewRoomEventConsumer(registry)

	if primed, err := base.Session.PrimeStateCache(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to prime room state cache")
	} else if primed > 0 {
		logrus.WithField("rooms", primed).Info("Primed room state cache from previous sync")
	}

	stream, err := spaces.LoadSocialStream(ctx, base.Session, registry, cfg.Session.CirclesSpaceID)
	if err != nil {
		logrus.WithError(err).WithField("space_id", cfg.Session.CirclesSpaceID).Fatal("Failed to load circles space")
	}
	stream.MaxFutureSkew = cfg.Timeline.MaxFutureSkew
	stream.SweepConcurrency = cfg.Timeline.EmptyTimelineConcurrency
	consumer.SetStream(stream)
	logrus.WithFields(logrus.Fields{
		"space_id": stream.RoomID(),
		"circles":  len(stream.Circles()),
		"rooms":    len(stream.Rooms()),
	}).Info("Loaded circles")

	go func() {
		processCtx.ComponentStarted()
		defer processCtx.ComponentFinished()
		err := base.Session.Sync(ctx, consumer, cfg.Session.SyncBackoff)
		if err != nil && !errors.Is(err, context.Canceled) {
			processCtx.Degraded(err)
		}
		logrus.Info("Stopped syncing")
	}()

	// Fill empty timelines in the background so the feed isn't blank on
	// first start.
	go func() {
		if err := stream.PaginateEmptyTimelines(ctx, cfg.Timeline.PaginationLimit); err != nil {
			logrus.WithError(err).Warn("Failed to fill some empty timelines")
		}
	}()

	if cfg.FeedAPI.Enabled {
		router := mux.NewRouter().SkipClean(true).UseEncodedPath()
		feedapi.AddPublicRoutes(router, cfg, stream)
		go basepkg.SetupAndServeHTTP(processCtx, cfg, router, base.Database)
	}

	basepkg.WaitForShutdown(processCtx, cfg)
}
