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
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Runner Mocks
// =============================================================================

type recordingStage struct {
	name   string
	update *Update
	err    error
	log    *[]string
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) Run(_ context.Context, _ *State) (*Update, error) {
	*s.log = append(*s.log, s.name)
	return s.update, s.err
}

// staticMetrics satisfies MetricsStore for full-pipeline tests.
type staticMetrics struct {
	points []MetricPoint
	err    error
}

func (m *staticMetrics) FetchMetrics(_ context.Context, _ string, _ datatypes.Timeframe, _ []string) ([]MetricPoint, error) {
	return m.points, m.err
}

// =============================================================================
// Runner Tests
// =============================================================================

func TestRun_ExecutesStagesInOrder(t *testing.T) {
	var log []string
	p := New(
		&recordingStage{name: "a", log: &log},
		&recordingStage{name: "b", log: &log},
		&recordingStage{name: "c", log: &log},
	)

	err := p.Run(context.Background(), &State{}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, log)
}

func TestRun_StageErrorAbortsRemainingStages(t *testing.T) {
	var log []string
	p := New(
		&recordingStage{name: "a", log: &log},
		&recordingStage{name: "b", log: &log, err: errors.New("boom")},
		&recordingStage{name: "c", log: &log},
	)

	err := p.Run(context.Background(), &State{}, nil)

	require.Error(t, err)
	assert.ErrorContains(t, err, "stage b")
	assert.Equal(t, []string{"a", "b"}, log, "stage c must not run after b fails")
}

func TestRun_ProgressReportsUpdatedFields(t *testing.T) {
	var log []string
	q := "hello"
	p := New(
		&recordingStage{name: "first", log: &log, update: &Update{Question: &q, ResetAccumulators: true}},
		&recordingStage{name: "second", log: &log, update: &Update{Anomalies: []string{"x"}}},
	)

	type event struct {
		stage  string
		fields []string
	}
	var events []event
	err := p.Run(context.Background(), &State{}, func(stage string, fields []string) {
		events = append(events, event{stage, fields})
	})

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].stage)
	assert.Contains(t, events[0].fields, "question")
	assert.Contains(t, events[0].fields, "metrics")
	assert.Equal(t, "second", events[1].stage)
	assert.Equal(t, []string{"anomalies"}, events[1].fields)
}

func TestRun_CancelledContextStopsBetweenStages(t *testing.T) {
	var log []string
	ctx, cancel := context.WithCancel(context.Background())
	p := New(
		&recordingStage{name: "a", log: &log},
		&recordingStage{name: "b", log: &log},
	)

	cancel()
	err := p.Run(ctx, &State{}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log)
}

// =============================================================================
// End-to-End Pipeline Tests
// =============================================================================

// fullPipeline wires all six stages with fakes for the collaborators.
func fullPipeline(metrics MetricsStore, emb Embedder, idx GuidanceIndex, model ChatModel) *Pipeline {
	return New(
		NewParseUserStage(),
		NewPullMetricsStage(metrics),
		NewAnalyzeMetricsStage(),
		NewRetrieveGuidanceStage(emb, idx),
		NewSafetyStage(),
		NewAnswerStage(model),
	)
}

func TestPipeline_HappyPath(t *testing.T) {
	tf := datatypes.DefaultTimeframe(7)
	model := &MockChatModel{Reply: "Your resting heart rate trend looks stable [1]."}
	p := fullPipeline(
		&staticMetrics{points: []MetricPoint{
			{Kind: "hr", Value: 60}, {Kind: "hr", Value: 64},
			{Kind: "sleep", Value: 7.2},
		}},
		&MockEmbedder{Vector: []float32{0.5}},
		&MockIndex{Hits: []SearchHit{
			{Payload: map[string]any{"text": "HR context.", "source": "hr.md", "id": "1"}, Score: 0.9},
		}},
		model,
	)

	s := &State{
		Conversation: []datatypes.Message{{Role: "user", Content: "is my heart rate ok?"}},
		UserId:       "u-1",
		Timeframe:    &tf,
		MetricKinds:  []string{"hr", "sleep"},
	}
	require.NoError(t, p.Run(context.Background(), s, nil))

	assert.Equal(t, "is my heart rate ok?", s.Question)
	assert.Len(t, s.Metrics, 3)
	assert.Equal(t, 2, s.Stats["hr"].Count)
	require.Len(t, s.RelevantChunks, 1)
	require.Len(t, s.Citations, 1)
	assert.Contains(t, s.Answer, "Your resting heart rate trend looks stable [1].")
	assert.Contains(t, s.Answer, "not medical advice")
	// The assistant turn lands in the conversation for history persistence.
	require.Len(t, s.Conversation, 2)
	assert.Equal(t, "assistant", s.Conversation[1].Role)
}

func TestPipeline_NoUserScopeStillAnswers(t *testing.T) {
	model := &MockChatModel{Reply: "General guidance only."}
	p := fullPipeline(
		&staticMetrics{err: errors.New("must not be called")},
		&MockEmbedder{Vector: []float32{0.5}},
		&MockIndex{},
		model,
	)

	s := &State{Conversation: []datatypes.Message{{Role: "user", Content: "how much sleep do I need?"}}}
	require.NoError(t, p.Run(context.Background(), s, nil))

	assert.Empty(t, s.Metrics)
	assert.Contains(t, model.LastMessages[1].Content, "No recent metrics available for the requested window.")
	assert.Contains(t, s.Answer, "General guidance only.")
}

func TestPipeline_EmergencyQuestionCarriesSafetyWarning(t *testing.T) {
	model := &MockChatModel{Reply: "Seek urgent care."}
	p := fullPipeline(&staticMetrics{}, &MockEmbedder{Vector: []float32{1}}, &MockIndex{}, model)

	tf := datatypeTimeframe(t)
	s := &State{
		Conversation: []datatypes.Message{{Role: "user", Content: "I have crushing chest pain, what now?"}},
		UserId:       "u-2",
		Timeframe:    &tf,
	}
	require.NoError(t, p.Run(context.Background(), s, nil))

	require.Len(t, s.SafetyWarnings, 1)
	assert.Contains(t, model.LastMessages[1].Content, "Safety considerations:\n- Possible emergency symptoms")
}

func TestPipeline_StateDoesNotLeakAcrossRuns(t *testing.T) {
	model := &MockChatModel{Reply: "ok"}
	p := fullPipeline(
		&staticMetrics{points: []MetricPoint{{Kind: "hr", Value: 60}}},
		&MockEmbedder{Vector: []float32{1}},
		&MockIndex{Hits: []SearchHit{{Payload: map[string]any{"text": "t", "source": "s"}, Score: 0.5}}},
		model,
	)

	tf := datatypeTimeframe(t)
	s := &State{
		Conversation: []datatypes.Message{{Role: "user", Content: "first?"}},
		UserId:       "u-3",
		Timeframe:    &tf,
	}
	require.NoError(t, p.Run(context.Background(), s, nil))
	require.Len(t, s.Metrics, 1)
	require.Len(t, s.RelevantChunks, 1)

	// Reusing the state for a follow-up turn must not double the
	// accumulated lists: the first stage clears them.
	s.Conversation = append(s.Conversation, datatypes.Message{Role: "user", Content: "second?"})
	require.NoError(t, p.Run(context.Background(), s, nil))

	assert.Equal(t, "second?", s.Question)
	assert.Len(t, s.Metrics, 1)
	assert.Len(t, s.RelevantChunks, 1)
	assert.Len(t, s.Citations, 1)
}

func datatypeTimeframe(t *testing.T) datatypes.Timeframe {
	t.Helper()
	return datatypes.DefaultTimeframe(7)
}
