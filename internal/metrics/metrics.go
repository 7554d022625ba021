// Package metrics holds the prometheus instruments for the TNS integration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TNSRequests counts outbound TNS calls by endpoint path and HTTP status.
var TNSRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "broker_tns_requests_total",
	Help: "Outbound TNS API requests by endpoint and status code.",
}, []string{"endpoint", "status"})

// TNSRateLimitRetries counts sleeps taken after a TNS 429 response.
var TNSRateLimitRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "broker_tns_rate_limit_retries_total",
	Help: "Retries performed after TNS rate-limit responses.",
})

// TasksStarted counts detached tasks accepted onto the queue, by task name.
var TasksStarted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "broker_tasks_started_total",
	Help: "Detached background tasks started, by name.",
}, []string{"name"})

// TasksFailed counts detached tasks that returned an error, by task name.
var TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "broker_tasks_failed_total",
	Help: "Detached background tasks that failed, by name.",
}, []string{"name"})
