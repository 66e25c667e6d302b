// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability holds the Prometheus instruments for the QA
// pipeline. Instruments are registered once at process start via the
// default registry and exposed on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRunsTotal counts completed pipeline runs by terminal status
	// ("ok" or "error").
	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Completed pipeline runs by terminal status.",
	}, []string{"status"})

	// StageDurationSeconds observes wall-clock time per stage.
	StageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of each pipeline stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// StageErrorsTotal counts stage failures by stage name.
	StageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "pipeline",
		Name:      "stage_errors_total",
		Help:      "Stage failures by stage name.",
	}, []string{"stage"})

	// ActiveRuns tracks pipeline runs currently in flight.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aleutian",
		Subsystem: "pipeline",
		Name:      "active_runs",
		Help:      "Pipeline runs currently in flight.",
	})

	// RetrievedChunks observes how many guidance passages each run
	// retrieved, which makes silently-empty indexes visible.
	RetrievedChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "pipeline",
		Name:      "retrieved_chunks",
		Help:      "Guidance passages retrieved per run.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 6},
	})
)
