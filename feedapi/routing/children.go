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
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/spaces"
)

type childResponse struct {
	RoomID       string `json:"room_id"`
	Name         string `json:"name"`
	Creator      string `json:"creator"`
	ContentCount int    `json:"content_count"`
	CanPaginate  bool   `json:"can_paginate"`
}

type childrenResponse struct {
	SpaceID  string          `json:"space_id"`
	Children []childResponse `json:"children"`
}

// GetChildren implements GET /spaces/{spaceID}/children
func GetChildren(req *http.Request, s space) util.JSONResponse {
	res := childrenResponse{
		SpaceID:  s.RoomID(),
		Children: []childResponse{},
	}
	switch s := s.(type) {
	case *spaces.SocialStream:
		for _, circle := range s.Circles() {
			res.Children = append(res.Children, childResponse{
				RoomID:       circle.RoomID(),
				Name:         circle.Name(),
				Creator:      circle.Creator(),
				ContentCount: len(circle.Messages()),
				CanPaginate:  circle.CanPaginate(),
			})
		}
	case *spaces.CircleSpace:
		for _, room := range s.Children() {
			res.Children = append(res.Children, roomChild(room))
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: res,
	}
}

func roomChild(room *rooms.Room) childResponse {
	return childResponse{
		RoomID:       room.RoomID(),
		Name:         room.Name(),
		Creator:      room.Creator(),
		ContentCount: room.ContentCount(),
		CanPaginate:  room.CanPaginate(),
	}
}

type createChildAvatar struct {
	ContentType string `json:"content_type"`
	// Base64 encoded image.
	Data string `json:"data"`
}

type createChildRequest struct {
	Name      string             `json:"name"`
	Type      string             `json:"type"`
	Encrypted bool               `json:"encrypted"`
	Topic     string             `json:"topic"`
	Avatar    *createChildAvatar `json:"avatar,omitempty"`
}

// createChildError tells the caller which room was left behind when a step
// after creating it failed.
type createChildError struct {
	ErrCode string `json:"errcode"`
	Err     string `json:"error"`
	RoomID  string `json:"room_id,omitempty"`
}

// CreateChild implements POST /spaces/{spaceID}/children
func CreateChild(req *http.Request, s space) util.JSONResponse {
	var r createChildRequest
	if resErr := unmarshalJSONRequest(req, &r); resErr != nil {
		return *resErr
	}
	if r.Name == "" {
		return util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.MissingParam("name is required"),
		}
	}
	createReq := &spaces.CreateChildRequest{
		Name:      r.Name,
		Type:      r.Type,
		Encrypted: r.Encrypted,
		Topic:     r.Topic,
	}
	if r.Avatar != nil {
		data, err := base64.StdEncoding.DecodeString(r.Avatar.Data)
		if err != nil {
			return util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam("avatar.data is not valid base64"),
			}
		}
		createReq.Avatar = &api.Avatar{ContentType: r.Avatar.ContentType, Data: data}
	}

	roomID, err := s.CreateChildRoom(req.Context(), createReq)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).WithField("room_id", roomID).Error("Failed to create child room")
		merr := spec.Unknown(err.Error())
		return util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: createChildError{
				ErrCode: string(merr.ErrCode),
				Err:     merr.Err,
				RoomID:  roomID,
			},
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: map[string]string{"room_id": roomID},
	}
}

// AddChild implements PUT /spaces/{spaceID}/children/{roomID}
func AddChild(req *http.Request, s space, roomID string) util.JSONResponse {
	if err := s.AddChildRoom(req.Context(), roomID); err != nil {
		return sessionError(req, err)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}

// RemoveChild implements DELETE /spaces/{spaceID}/children/{roomID}. With
// leave=true the room is also left.
func RemoveChild(req *http.Request, s space, roomID string) util.JSONResponse {
	leave := false
	if v := req.URL.Query().Get("leave"); v != "" {
		var err error
		if leave, err = strconv.ParseBool(v); err != nil {
			return util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam("leave must be a boolean"),
			}
		}
	}
	var err error
	if leave {
		err = s.LeaveChildRoom(req.Context(), roomID)
	} else {
		err = s.RemoveChildRoom(req.Context(), roomID)
	}
	if err != nil {
		return sessionError(req, err)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}
