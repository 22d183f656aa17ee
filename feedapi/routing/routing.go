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

package routing

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/circles-chat/circles/internal/httputil"
	"github.com/circles-chat/circles/setup/config"
	"github.com/circles-chat/circles/spaces"
)

const pathPrefixV1 = "/_circles/v1"

// space is what the stream and a circle have in common as far as the API is
// concerned.
type space interface {
	RoomID() string
	Name() string
	AddChildRoom(ctx context.Context, childID string) error
	RemoveChildRoom(ctx context.Context, childID string) error
	LeaveChildRoom(ctx context.Context, childID string) error
	CreateChildRoom(ctx context.Context, req *spaces.CreateChildRequest) (string, error)
	Subscribe() (<-chan spaces.ChildrenUpdate, func())
	CanPaginateRooms() bool
	PaginateRooms(ctx context.Context, limit int) error
	PaginateEmptyTimelines(ctx context.Context, limit int) error
}

var (
	_ space = &spaces.SocialStream{}
	_ space = &spaces.CircleSpace{}
)

// Setup registers the feed API handlers with the given router.
func Setup(router *mux.Router, cfg *config.Timeline, stream *spaces.SocialStream) {
	v1mux := router.PathPrefix(pathPrefixV1).Subrouter()

	withSpace := func(f func(*http.Request, space, map[string]string) util.JSONResponse) func(*http.Request) util.JSONResponse {
		return func(req *http.Request) util.JSONResponse {
			vars, err := httputil.URLDecodeMapValues(mux.Vars(req))
			if err != nil {
				return util.ErrorResponse(err)
			}
			s, resErr := resolveSpace(stream, vars["spaceID"])
			if resErr != nil {
				return *resErr
			}
			return f(req, s, vars)
		}
	}

	v1mux.Handle("/circles",
		httputil.MakeExternalAPI("circles", func(req *http.Request) util.JSONResponse {
			return GetCircles(req, stream)
		}),
	).Methods(http.MethodGet, http.MethodOptions)

	v1mux.Handle("/spaces/{spaceID}/children",
		httputil.MakeExternalAPI("space_children", withSpace(func(req *http.Request, s space, _ map[string]string) util.JSONResponse {
			return GetChildren(req, s)
		})),
	).Methods(http.MethodGet, http.MethodOptions)
	v1mux.Handle("/spaces/{spaceID}/children",
		httputil.MakeExternalAPI("space_create_child", withSpace(func(req *http.Request, s space, _ map[string]string) util.JSONResponse {
			return CreateChild(req, s)
		})),
	).Methods(http.MethodPost, http.MethodOptions)
	v1mux.Handle("/spaces/{spaceID}/children/{roomID}",
		httputil.MakeExternalAPI("space_add_child", withSpace(func(req *http.Request, s space, vars map[string]string) util.JSONResponse {
			return AddChild(req, s, vars["roomID"])
		})),
	).Methods(http.MethodPut, http.MethodOptions)
	v1mux.Handle("/spaces/{spaceID}/children/{roomID}",
		httputil.MakeExternalAPI("space_remove_child", withSpace(func(req *http.Request, s space, vars map[string]string) util.JSONResponse {
			return RemoveChild(req, s, vars["roomID"])
		})),
	).Methods(http.MethodDelete, http.MethodOptions)

	v1mux.Handle("/spaces/{spaceID}/timeline",
		httputil.MakeExternalAPI("space_timeline", withSpace(func(req *http.Request, s space, _ map[string]string) util.JSONResponse {
			return GetTimeline(req, s)
		})),
	).Methods(http.MethodGet, http.MethodOptions)
	v1mux.Handle("/spaces/{spaceID}/paginate",
		httputil.MakeExternalAPI("space_paginate", withSpace(func(req *http.Request, s space, _ map[string]string) util.JSONResponse {
			return Paginate(req, cfg, s)
		})),
	).Methods(http.MethodPost, http.MethodOptions)

	v1mux.Handle("/feed",
		httputil.MakeExternalAPI("feed", func(req *http.Request) util.JSONResponse {
			return GetTimeline(req, stream)
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v1mux.Handle("/feed/paginate",
		httputil.MakeExternalAPI("feed_paginate", func(req *http.Request) util.JSONResponse {
			return Paginate(req, cfg, stream)
		}),
	).Methods(http.MethodPost, http.MethodOptions)

	v1mux.Handle("/spaces/{spaceID}/events",
		httputil.MakeHTTPAPI("space_events", func(w http.ResponseWriter, req *http.Request) {
			vars, err := httputil.URLDecodeMapValues(mux.Vars(req))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s, resErr := resolveSpace(stream, vars["spaceID"])
			if resErr != nil {
				http.Error(w, http.StatusText(resErr.Code), resErr.Code)
				return
			}
			StreamChildrenUpdates(w, req, s)
		}),
	).Methods(http.MethodGet)
}

// resolveSpace returns the stream itself or one of its circles.
func resolveSpace(stream *spaces.SocialStream, spaceID string) (space, *util.JSONResponse) {
	if spaceID == stream.RoomID() {
		return stream, nil
	}
	if circle, ok := stream.Circle(spaceID); ok {
		return circle, nil
	}
	return nil, &util.JSONResponse{
		Code: http.StatusNotFound,
		JSON: spec.NotFound("unknown space " + spaceID),
	}
}
