package sql

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vestvault/go-vestvault/metrics"
)

const namespace = "database"

// connWaitLatency in seconds.
var connWaitLatency = metrics.NewSimpleHistogram(
	"conn_wait_seconds",
	namespace,
	"Time waiting for a pooled connection in seconds",
	prometheus.ExponentialBuckets(0.00001, 2, 20),
)
