package matrix

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(syncResponses, syncFailures, syncRoomUpdates)
}

var syncResponses = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "circles",
		Subsystem: "session",
		Name:      "sync_responses_total",
		Help:      "Number of /sync responses processed",
	},
)

var syncFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "circles",
		Subsystem: "session",
		Name:      "sync_failures_total",
		Help:      "Number of failed /sync requests, by whether sync was retried",
	},
	[]string{"retried"},
)

var syncRoomUpdates = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "circles",
		Subsystem: "session",
		Name:      "sync_room_updates_total",
		Help:      "Number of per-room updates handed to the sync handler",
	},
	[]string{"membership"},
)
