package spaces

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(
		spaceChildren, paginationRequests, collatedTimelineSize,
	)
}

var spaceChildren = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "circles",
		Subsystem: "spaces",
		Name:      "children",
		Help:      "How many child rooms each loaded space has",
	},
	[]string{"space_id"},
)

var paginationRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "circles",
		Subsystem: "spaces",
		Name:      "pagination_requests_total",
		Help:      "Backwards pagination requests made on behalf of spaces, by outcome",
	},
	[]string{"outcome"},
)

var collatedTimelineSize = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "circles",
		Subsystem: "spaces",
		Name:      "collated_timeline_size",
		Help:      "Number of messages in each collated timeline",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	},
)

func observePagination(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	paginationRequests.With(prometheus.Labels{"outcome": outcome}).Inc()
}
