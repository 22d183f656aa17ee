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
	"strconv"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/setup/config"
	"github.com/circles-chat/circles/spaces"
	"github.com/circles-chat/circles/timeline"
)

type timelineResponse struct {
	Chunk       []*rooms.Message `json:"chunk"`
	CanPaginate bool             `json:"can_paginate"`
}

type paginateResponse struct {
	CanPaginate bool `json:"can_paginate"`
}

// GetTimeline implements GET /feed and GET /spaces/{spaceID}/timeline. The
// stream serves the filtered unified feed, a circle the plain merge of its
// rooms. Either way the newest message comes first.
func GetTimeline(req *http.Request, s space) util.JSONResponse {
	since, resErr := parseSince(req)
	if resErr != nil {
		return *resErr
	}
	var msgs []*rooms.Message
	switch s := s.(type) {
	case *spaces.SocialStream:
		msgs = s.Feed(req.Context(), since)
	case *spaces.CircleSpace:
		msgs = s.GetCollatedTimeline(since, nil)
	}
	chunk := timeline.Reversed(msgs)
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: timelineResponse{
			Chunk:       chunk,
			CanPaginate: s.CanPaginateRooms(),
		},
	}
}

// Paginate implements POST /feed/paginate and POST /spaces/{spaceID}/paginate.
// By default the room whose oldest loaded message is newest is paginated;
// with empty=true every room without content is.
func Paginate(req *http.Request, cfg *config.Timeline, s space) util.JSONResponse {
	query := req.URL.Query()
	limit := cfg.PaginationLimit
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam("limit must be a positive integer"),
			}
		}
		limit = n
	}
	empty := false
	if v := query.Get("empty"); v != "" {
		var err error
		if empty, err = strconv.ParseBool(v); err != nil {
			return util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam("empty must be a boolean"),
			}
		}
	}

	ctx, cancel := context.WithTimeout(req.Context(), cfg.PaginationTimeout)
	defer cancel()
	var err error
	if empty {
		err = s.PaginateEmptyTimelines(ctx, limit)
	} else {
		err = s.PaginateRooms(ctx, limit)
	}
	if err != nil {
		return sessionError(req, err)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: paginateResponse{CanPaginate: s.CanPaginateRooms()},
	}
}

// parseSince reads the since query parameter, in milliseconds since the
// epoch. Without it the whole loaded timeline is returned.
func parseSince(req *http.Request) (time.Time, *util.JSONResponse) {
	v := req.URL.Query().Get("since")
	if v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, &util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.InvalidParam("since must be a timestamp in milliseconds"),
		}
	}
	return time.UnixMilli(ms), nil
}
