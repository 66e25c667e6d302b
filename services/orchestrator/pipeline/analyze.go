// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"math"
)

// outlierSigma is the z-score band for anomaly flags. Values strictly
// outside mean±2.5σ are flagged; values exactly on the boundary are not.
const outlierSigma = 2.5

// AnalyzeMetricsStage computes per-kind aggregates and z-score outlier
// flags from the fetched metric points.
type AnalyzeMetricsStage struct{}

func NewAnalyzeMetricsStage() *AnalyzeMetricsStage { return &AnalyzeMetricsStage{} }

func (s *AnalyzeMetricsStage) Name() string { return "analyze_metrics" }

// Run groups points by kind in first-appearance order, computes the mean
// and population standard deviation per kind, and emits one anomaly flag
// per kind that has values beyond ±2.5σ. Kinds with zero spread (including
// single-point kinds, whose stdev is defined as 0) can never flag.
func (s *AnalyzeMetricsStage) Run(_ context.Context, state *State) (*Update, error) {
	byKind := make(map[string][]float64)
	order := kindOrder(state.Metrics)
	for _, p := range state.Metrics {
		byKind[p.Kind] = append(byKind[p.Kind], p.Value)
	}

	stats := make(map[string]KindStats, len(byKind))
	var flags []string
	for _, k := range order {
		vals := byKind[k]
		mu, sd := meanStdev(vals)
		stats[k] = KindStats{Mean: mu, Stdev: sd, Count: len(vals)}
		if sd <= 0 {
			continue
		}
		lo, hi := mu-outlierSigma*sd, mu+outlierSigma*sd
		outliers := 0
		for _, v := range vals {
			if v < lo || v > hi {
				outliers++
			}
		}
		if outliers > 0 {
			flags = append(flags, fmt.Sprintf("%s: %d outlier(s) beyond ±2.5σ", k, outliers))
		}
	}

	return &Update{Stats: stats, Anomalies: flags}, nil
}

// meanStdev returns the mean and the population standard deviation
// (divisor n). A single value has stdev 0 by definition.
func meanStdev(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mu := sum / float64(len(vals))
	if len(vals) == 1 {
		return mu, 0
	}
	ss := 0.0
	for _, v := range vals {
		d := v - mu
		ss += d * d
	}
	return mu, math.Sqrt(ss / float64(len(vals)))
}

// kindOrder returns the distinct metric kinds in order of first
// appearance, which keeps stats and summaries deterministic.
func kindOrder(points []MetricPoint) []string {
	seen := make(map[string]bool, 8)
	var order []string
	for _, p := range points {
		if !seen[p.Kind] {
			seen[p.Kind] = true
			order = append(order, p.Kind)
		}
	}
	return order
}
