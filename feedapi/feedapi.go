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

// Package feedapi serves the circles, their rooms and the unified feed over
// a local JSON API for a UI process to render.
package feedapi

import (
	"github.com/gorilla/mux"

	"github.com/circles-chat/circles/feedapi/routing"
	"github.com/circles-chat/circles/setup/config"
	"github.com/circles-chat/circles/spaces"
)

// AddPublicRoutes sets up and registers HTTP handlers for the feed API.
func AddPublicRoutes(router *mux.Router, cfg *config.Circles, stream *spaces.SocialStream) {
	routing.Setup(router, &cfg.Timeline, stream)
}
