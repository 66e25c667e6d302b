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
	"strings"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

// retrievalLimit is the number of guidance passages requested per run.
const retrievalLimit = 6

// enrichmentKinds are the stat kinds folded into the retrieval query, in
// this order, when present.
var enrichmentKinds = [...]string{"hr", "hrv", "sleep", "steps"}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchHit is one raw vector-index result. Payload keys vary across
// ingestion pipelines, so the stage resolves them through alias chains.
type SearchHit struct {
	Payload map[string]any
	Score   float64
}

// GuidanceIndex performs similarity search over the guidance corpus.
type GuidanceIndex interface {
	Search(ctx context.Context, vector []float32, limit int) ([]SearchHit, error)
}

// RetrieveGuidanceStage embeds a metrics-enriched form of the question
// and pulls the closest guidance passages, producing parallel chunk and
// citation lists.
type RetrieveGuidanceStage struct {
	embedder Embedder
	index    GuidanceIndex
}

func NewRetrieveGuidanceStage(embedder Embedder, index GuidanceIndex) *RetrieveGuidanceStage {
	return &RetrieveGuidanceStage{embedder: embedder, index: index}
}

func (s *RetrieveGuidanceStage) Name() string { return "retrieve_guidance" }

// Run skips retrieval entirely when there is no question. Otherwise it
// enriches the query with per-kind means ("hr mean 61.0; ..."), embeds
// it, and maps each hit's payload into a normalized chunk plus a citation
// at the same rank, so Citations[i] always describes RelevantChunks[i].
func (s *RetrieveGuidanceStage) Run(ctx context.Context, state *State) (*Update, error) {
	q := strings.TrimSpace(state.Question)
	if q == "" {
		return &Update{}, nil
	}

	vector, err := s.embedder.Embed(ctx, enrichQuery(q, state.Stats))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.index.Search(ctx, vector, retrievalLimit)
	if err != nil {
		return nil, fmt.Errorf("guidance search: %w", err)
	}

	update := &Update{}
	for _, hit := range hits {
		meta := ChunkMetadata{
			Id:     firstString(hit.Payload, "id", "doc_id"),
			Source: firstString(hit.Payload, "source", "url", "path"),
			Title:  firstString(hit.Payload, "title"),
			Chunk:  firstString(hit.Payload, "chunk", "chunk_id"),
		}
		update.RelevantChunks = append(update.RelevantChunks, Chunk{
			Text:     firstString(hit.Payload, "text", "page_content"),
			Score:    hit.Score,
			Metadata: meta,
		})
		update.Citations = append(update.Citations, datatypes.Citation{
			Id:     meta.Id,
			Source: meta.Source,
			Score:  hit.Score,
		})
	}
	return update, nil
}

// enrichQuery appends available per-kind means to the question:
//
//	"why is my hr high | hr mean 61.0; sleep mean 6.9"
//
// Only the four enrichment kinds participate, and the bare question is
// returned when none of them have stats.
func enrichQuery(question string, stats map[string]KindStats) string {
	var fragments []string
	for _, k := range enrichmentKinds {
		if st, ok := stats[k]; ok {
			fragments = append(fragments, fmt.Sprintf("%s mean %.1f", k, st.Mean))
		}
	}
	if len(fragments) == 0 {
		return question
	}
	return question + " | " + strings.Join(fragments, "; ")
}

// firstString returns the first alias key whose payload value is a
// non-empty string.
func firstString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
