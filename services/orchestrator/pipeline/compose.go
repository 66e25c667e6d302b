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
	"unicode/utf8"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

// contextBudgetChars bounds the verbatim excerpt section of the prompt.
// Blocks are admitted whole, in rank order, until the next block would
// exceed the budget.
const contextBudgetChars = 4000

const systemInstructions = "You are a careful health information assistant. " +
	"Personalize using the user's metrics and ONLY the retrieved context. " +
	"Use bracketed citations like [1], [2]. " +
	"Do not provide diagnosis or dosing; be concise and structured."

const disclaimer = "Note: This is general information based on your data and referenced materials, " +
	"not medical advice. For diagnosis, dosing, or urgent issues, consult a clinician " +
	"or seek in-person care."

// ChatModel generates a completion for a message sequence.
type ChatModel interface {
	Complete(ctx context.Context, messages []datatypes.Message) (string, error)
}

// AnswerStage composes the grounded final answer: a structured prompt
// over the question, metric summary, anomalies, retrieved context, safety
// warnings and sources, sent to the chat model, with the standing
// disclaimer appended to whatever the model returns.
type AnswerStage struct {
	model ChatModel
}

func NewAnswerStage(model ChatModel) *AnswerStage {
	return &AnswerStage{model: model}
}

func (s *AnswerStage) Name() string { return "answer" }

func (s *AnswerStage) Run(ctx context.Context, state *State) (*Update, error) {
	prompt := buildPrompt(state)

	reply, err := s.model.Complete(ctx, []datatypes.Message{
		{Role: "system", Content: systemInstructions},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("answer completion: %w", err)
	}

	answer := strings.TrimSpace(reply) + "\n\n" + disclaimer
	return &Update{
		Answer:       &answer,
		Conversation: []datatypes.Message{{Role: "assistant", Content: answer}},
	}, nil
}

func buildPrompt(state *State) string {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(state.Question)
	b.WriteString("\n\n")
	b.WriteString("Your recent metrics (summary):\n")
	b.WriteString(metricsSummary(state))
	b.WriteString("\n")

	if len(state.Anomalies) > 0 {
		b.WriteString("\nDetected anomalies:\n- ")
		b.WriteString(strings.Join(state.Anomalies, "\n- "))
		b.WriteString("\n")
	}

	b.WriteString("\nContext (verbatim excerpts):\n")
	b.WriteString(formatContext(state.RelevantChunks, contextBudgetChars))
	b.WriteString("\n\n")
	b.WriteString("Instructions:\n" +
		"- Personalize using the user's metrics.\n" +
		"- Use ONLY the provided context for claims; add bracketed citations.\n" +
		"- If context is insufficient, say so and suggest what data or timeframe would help.\n" +
		"- Keep the answer under ~180 words.\n")

	if len(state.SafetyWarnings) > 0 {
		b.WriteString("\nSafety considerations:\n- ")
		b.WriteString(strings.Join(state.SafetyWarnings, "\n- "))
		b.WriteString("\n")
	}

	if cites := citationBlock(state.Citations); cites != "" {
		b.WriteString("\nSources:\n")
		b.WriteString(cites)
		b.WriteString("\n")
	}
	return b.String()
}

// metricsSummary renders one line per kind, in first-appearance order of
// the underlying points, or a fixed fallback when no stats exist.
func metricsSummary(state *State) string {
	var lines []string
	for _, k := range kindOrder(state.Metrics) {
		st, ok := state.Stats[k]
		if !ok || st.Count == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: mean %.1f, σ %.1f over %d pts",
			strings.ToUpper(k), st.Mean, st.Stdev, st.Count))
	}
	if len(lines) == 0 {
		return "No recent metrics available for the requested window."
	}
	return strings.Join(lines, "\n")
}

// formatContext concatenates source-attributed blocks in rank order.
// Admission stops at the first block that would push the running rune
// count past the budget, so blocks are never truncated mid-text. The
// budget counts block runes only; the newline separators Join inserts
// between admitted blocks are not charged, so the assembled context
// can run over maxChars by up to len(blocks)-1 runes.
func formatContext(chunks []Chunk, maxChars int) string {
	var pieces []string
	used := 0
	for _, c := range chunks {
		src := c.Metadata.Source
		if src == "" {
			src = c.Metadata.Id
		}
		if src == "" {
			src = "unknown"
		}
		part := fmt.Sprintf("[SOURCE: %s]\n%s\n", src, c.Text)
		if used+utf8.RuneCountInString(part) > maxChars {
			break
		}
		pieces = append(pieces, part)
		used += utf8.RuneCountInString(part)
	}
	return strings.Join(pieces, "\n")
}

// citationBlock renders the numbered source list shown to the model.
func citationBlock(citations []datatypes.Citation) string {
	var lines []string
	for i, c := range citations {
		src := c.Source
		if src == "" {
			src = "unknown"
		}
		lines = append(lines, fmt.Sprintf("[%d] %s (sim %.3f)", i+1, src, c.Score))
	}
	return strings.Join(lines, "\n")
}
