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

package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// healthResponse is returned on requests to /health
type healthResponse struct {
	Code       int    `json:"code"`
	FirstError string `json:"error"`
	Degraded   bool   `json:"degraded"`
}

// Pinger is anything that can report whether it is reachable, e.g. *sql.DB.
type Pinger interface {
	Ping() error
}

// HealthCheckHandler reports 500 if any pinger fails. A degraded process is
// reported but still healthy.
func HealthCheckHandler(isDegraded func() bool, pingers ...Pinger) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		resp := &healthResponse{
			Code:     http.StatusOK,
			Degraded: isDegraded(),
		}
		for _, p := range pingers {
			if err := p.Ping(); err != nil {
				resp.Code = http.StatusInternalServerError
				resp.FirstError = err.Error()
				break
			}
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(resp.Code)
		if err := json.NewEncoder(rw).Encode(resp); err != nil {
			logrus.WithError(err).Error("unable to encode health response")
		}
	}
}
