/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counters for the operations worth alerting on: submissions, approval
  decisions, and scheduled accrual runs. Exposed at GET /metrics via
  promhttp.

SEE ALSO:
  - server.go: mounts the /metrics endpoint
  - handlers.go, scheduler.go: increment sites
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_submissions_total",
		Help: "Leave applications submitted, by outcome.",
	}, []string{"outcome"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_decisions_total",
		Help: "Approval decisions processed, by status.",
	}, []string{"status"})

	accrualRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_accrual_runs_total",
		Help: "Scheduled accrual and carry-forward runs, by kind and outcome.",
	}, []string{"kind", "outcome"})
)
