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
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/matrix-org/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the ID every log line for a request is tagged with.
const RequestIDHeader = "X-Circles-Request-ID"

func init() {
	prometheus.MustRegister(requestCounter)
}

var requestCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "circles",
		Subsystem: "feedapi",
		Name:      "requests_total",
		Help:      "Total number of feed API requests, by handler and status code",
	},
	[]string{"handler", "code"},
)

type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MakeExternalAPI turns a JSON handler into an http.Handler that logs with a
// per-request ID, counts responses and reports server errors to Sentry.
func MakeExternalAPI(metricsName string, f func(*http.Request) util.JSONResponse) http.Handler {
	verbose := os.Getenv("CIRCLES_TRACE_HTTP") == "1"
	h := util.MakeJSONAPI(util.NewJSONRequestHandler(func(req *http.Request) util.JSONResponse {
		res := f(req)
		if res.Code >= 500 {
			if hub := sentry.GetHubFromContext(req.Context()); hub != nil {
				hub.Scope().SetExtra("response", res)
				hub.CaptureException(fmt.Errorf("%s returned HTTP %d", req.URL.Path, res.Code))
			}
		}
		return res
	}))
	withLogging := func(w http.ResponseWriter, req *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set(RequestIDHeader, requestID)
		logger := util.GetLogger(req.Context()).WithFields(logrus.Fields{
			"request_id": requestID,
			"handler":    metricsName,
		})
		req = req.WithContext(util.ContextWithLogger(req.Context(), logger))

		nextWriter := w
		if verbose {
			rec := httptest.NewRecorder()
			nextWriter = rec
			dumpRequest(logger, req)
			defer copyRecorded(logger, w, rec)
		}
		h.ServeHTTP(nextWriter, req)
	}
	return instrument(metricsName, http.HandlerFunc(withLogging))
}

// MakeHTTPAPI wraps a raw handler, e.g. a websocket upgrade, with the same
// logging and metrics as MakeExternalAPI.
func MakeHTTPAPI(metricsName string, f func(http.ResponseWriter, *http.Request)) http.Handler {
	withLogging := func(w http.ResponseWriter, req *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set(RequestIDHeader, requestID)
		logger := util.GetLogger(req.Context()).WithFields(logrus.Fields{
			"request_id": requestID,
			"handler":    metricsName,
		})
		f(w, req.WithContext(util.ContextWithLogger(req.Context(), logger)))
	}
	return instrument(metricsName, http.HandlerFunc(withLogging))
}

func instrument(metricsName string, h http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(
		requestCounter.MustCurryWith(prometheus.Labels{"handler": metricsName}), h,
	)
}

func dumpRequest(logger *logrus.Entry, req *http.Request) {
	dump, err := httputil.DumpRequest(req, true)
	if err != nil {
		logger.Debugf("Failed to dump incoming request: %s", err)
		return
	}
	for _, s := range strings.Split(string(dump), "\n") {
		logger.Debug(s)
	}
}

func copyRecorded(logger *logrus.Entry, w http.ResponseWriter, rec *httptest.ResponseRecorder) {
	resp := rec.Result()
	dump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		logger.Debugf("Failed to dump outgoing response: %s", err)
	} else {
		for _, s := range strings.Split(string(dump), "\n") {
			logger.Debug(s)
		}
	}
	for hdr, vals := range resp.Header {
		for _, val := range vals {
			w.Header().Add(hdr, val)
		}
	}
	w.WriteHeader(resp.StatusCode)
	// discard errors as this is for debugging
	_, _ = io.Copy(w, resp.Body)
	_ = resp.Body.Close()
}

func WrapHandlerInBasicAuth(h http.Handler, b BasicAuth) http.HandlerFunc {
	if b.Username == "" || b.Password == "" {
		logrus.Warn("Metrics are exposed without protection. Make sure you set up protection at proxy level.")
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Serve without authorization if either Username or Password is unset
		if b.Username == "" || b.Password == "" {
			h.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()

		if !ok || user != b.Username || pass != b.Password {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		h.ServeHTTP(w, r)
	}
}

func WrapHandlerInCORS(h http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusOK)
		} else {
			h.ServeHTTP(w, r)
		}
	})
}
