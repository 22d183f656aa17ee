package routing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/circles-chat/circles/session/api"
)

// sessionError maps an error from the homeserver session to a response.
func sessionError(req *http.Request, err error) util.JSONResponse {
	switch {
	case errors.Is(err, api.ErrRoomNotFound):
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound(err.Error()),
		}
	case errors.Is(err, context.DeadlineExceeded):
		return util.JSONResponse{
			Code: http.StatusGatewayTimeout,
			JSON: spec.Unknown("timed out waiting for the homeserver"),
		}
	}
	util.GetLogger(req.Context()).WithError(err).Error("Homeserver request failed")
	return util.JSONResponse{
		Code: http.StatusInternalServerError,
		JSON: spec.Unknown(err.Error()),
	}
}

// unmarshalJSONRequest consumes the request body into iface.
func unmarshalJSONRequest(req *http.Request, iface interface{}) *util.JSONResponse {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("io.ReadAll failed")
		return &util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.InternalServerError{},
		}
	}
	if !utf8.Valid(body) {
		return &util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.NotJSON("Body contains invalid UTF-8"),
		}
	}
	if err := json.Unmarshal(body, iface); err != nil {
		return &util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.BadJSON("The request body could not be decoded into valid JSON. " + err.Error()),
		}
	}
	return nil
}
