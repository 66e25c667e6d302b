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
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.ai/orchestrator/pipeline")

// Stage is one step of the QA pipeline. Run reads the state and returns a
// partial update; it must not mutate the state directly, so the reducer
// table in Merge remains the single write path.
type Stage interface {
	Name() string
	Run(ctx context.Context, s *State) (*Update, error)
}

// Progress is invoked after each stage's update has been merged, with the
// names of the state fields that stage changed. It is used to drive SSE
// stage events; a nil Progress is valid.
type Progress func(stage string, updatedFields []string)

// Pipeline runs a fixed stage sequence over a per-request State.
type Pipeline struct {
	stages []Stage
}

// New builds a pipeline from an explicit stage list.
//
// # Description
//
//	The six-stage QA sequence is assembled in main from the collaborator
//	adapters; tests assemble shorter sequences with fakes.
//
// # Inputs
//   - stages: stages in execution order.
//
// # Outputs
//   - *Pipeline ready for Run.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes every stage in order against the given state.
//
// # Description
//
//	Each stage gets its own child span and duration observation. A stage
//	error aborts the run immediately; the state keeps everything merged
//	so far, which lets the HTTP layer report partial progress.
//
// # Inputs
//   - ctx: request context; checked between stages so a cancelled client
//     does not pay for the remaining stages.
//   - s: the per-request state. Exclusively owned by this run.
//   - progress: optional per-stage callback, may be nil.
//
// # Outputs
//   - error: nil on success, otherwise the failing stage's error wrapped
//     with the stage name.
func (p *Pipeline) Run(ctx context.Context, s *State, progress Progress) error {
	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.Int("pipeline.stages", len(p.stages))))
	defer span.End()

	observability.ActiveRuns.Inc()
	defer observability.ActiveRuns.Dec()

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			observability.PipelineRunsTotal.WithLabelValues("error").Inc()
			span.SetStatus(codes.Error, "context cancelled")
			return fmt.Errorf("pipeline cancelled before stage %s: %w", stage.Name(), err)
		}

		updated, err := p.runStage(ctx, stage, s)
		if err != nil {
			observability.StageErrorsTotal.WithLabelValues(stage.Name()).Inc()
			observability.PipelineRunsTotal.WithLabelValues("error").Inc()
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		if progress != nil {
			progress(stage.Name(), updated)
		}
	}

	observability.PipelineRunsTotal.WithLabelValues("ok").Inc()
	observability.RetrievedChunks.Observe(float64(len(s.RelevantChunks)))
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, s *State) ([]string, error) {
	ctx, span := tracer.Start(ctx, "pipeline.stage."+stage.Name())
	defer span.End()

	start := time.Now()
	update, err := stage.Run(ctx, s)
	observability.StageDurationSeconds.WithLabelValues(stage.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	updated := Merge(s, update)
	span.SetAttributes(attribute.StringSlice("pipeline.updated_fields", updated))
	slog.Debug("Pipeline stage complete",
		"stage", stage.Name(),
		"updated_fields", updated,
		"duration_ms", time.Since(start).Milliseconds())
	return updated, nil
}
