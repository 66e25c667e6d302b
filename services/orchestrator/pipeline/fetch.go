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
	"log/slog"
	"math"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

// MetricsStore fetches a user's biometric points for a time window,
// optionally restricted to specific kinds. An empty kinds slice means all
// kinds the store holds for that user.
type MetricsStore interface {
	FetchMetrics(ctx context.Context, userId string, tf datatypes.Timeframe, kinds []string) ([]MetricPoint, error)
}

// PullMetricsStage loads the user's metric points for the requested
// timeframe and kinds. A missing user id or timeframe yields an empty
// metric set rather than an error; the pipeline still answers, it just
// cannot personalize.
type PullMetricsStage struct {
	store MetricsStore
}

func NewPullMetricsStage(store MetricsStore) *PullMetricsStage {
	return &PullMetricsStage{store: store}
}

func (s *PullMetricsStage) Name() string { return "pull_metrics" }

func (s *PullMetricsStage) Run(ctx context.Context, state *State) (*Update, error) {
	if state.UserId == "" || state.Timeframe == nil {
		slog.Debug("Skipping metrics fetch, no user scope", "user_id", state.UserId)
		return &Update{}, nil
	}

	points, err := s.store.FetchMetrics(ctx, state.UserId, *state.Timeframe, state.MetricKinds)
	if err != nil {
		return nil, err
	}

	// Non-finite values cannot contribute to aggregates and would poison
	// the mean, so they are dropped here regardless of the store backend.
	cleaned := make([]MetricPoint, 0, len(points))
	for _, p := range points {
		if p.Kind == "" || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return &Update{Metrics: cleaned}, nil
}
