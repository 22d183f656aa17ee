package routing

import (
	"net/http"

	"github.com/matrix-org/util"

	"github.com/circles-chat/circles/spaces"
)

type circleResponse struct {
	RoomID    string   `json:"room_id"`
	Name      string   `json:"name"`
	Wall      string   `json:"wall,omitempty"`
	Following []string `json:"following"`
	Followers []string `json:"followers"`
	Unread    int      `json:"unread"`
}

type circlesResponse struct {
	StreamID string           `json:"stream_id"`
	Circles  []circleResponse `json:"circles"`
	Unread   int              `json:"unread"`
}

// GetCircles implements GET /circles
func GetCircles(req *http.Request, stream *spaces.SocialStream) util.JSONResponse {
	res := circlesResponse{
		StreamID: stream.RoomID(),
		Circles:  []circleResponse{},
		Unread:   stream.UnreadCount(),
	}
	for _, circle := range stream.Circles() {
		c := circleResponse{
			RoomID:    circle.RoomID(),
			Name:      circle.Name(),
			Following: circle.Following(),
			Followers: circle.Followers(),
			Unread:    circle.UnreadCount(),
		}
		if wall, ok := circle.Wall(); ok {
			c.Wall = wall.RoomID()
		}
		res.Circles = append(res.Circles, c)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: res,
	}
}
