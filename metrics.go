// This file contains the prometheus metrics of cluster cursors.

package clustercursor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cursorsOpenedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clustercursor",
		Subsystem: "cursor",
		Name:      "opened_total",
		Help:      "number of cluster client cursors created",
	}, []string{"tailable_mode"})

	getMoreCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clustercursor",
		Subsystem: "remote",
		Name:      "get_more_total",
		Help:      "number of getMore round-trips to remote cursors",
	}, []string{"outcome"})

	killCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clustercursor",
		Subsystem: "remote",
		Name:      "kill_total",
		Help:      "number of kill requests sent to remote cursors",
	}, []string{"outcome"})

	partialResultsCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clustercursor",
		Subsystem: "remote",
		Name:      "partial_results_total",
		Help:      "number of failed remotes dropped because partial results were allowed",
	})
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)
