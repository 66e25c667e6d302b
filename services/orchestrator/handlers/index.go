// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/pipeline"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/vectorindex"
)

const (
	chunkSize    = 1000
	chunkOverlap = chunkSize / 10
)

// defaultSearchK is used when a search request omits or zeroes K.
const defaultSearchK = 6

// Indexer is the vector index surface the index handlers need. It is
// satisfied by *vectorindex.Index; tests substitute an in-memory fake.
type Indexer interface {
	Upsert(ctx context.Context, objects []vectorindex.Object) ([]string, error)
	SearchFiltered(ctx context.Context, vector []float32, k int, where *vectorindex.Filter) ([]pipeline.SearchHit, error)
	Delete(ctx context.Context, ids []string) error
}

// HandleIndexUpsert ingests guidance documents into the vector index.
//
// # Description
//
//	Splits each item's text into overlapping chunks, embeds every chunk,
//	and batch-writes them with deterministic ids. Re-upserting the same
//	item overwrites its chunks instead of duplicating them.
//
// # Inputs
//   - JSON body: datatypes.UpsertRequest with at least one item.
//
// # Outputs
//   - 200: datatypes.UpsertResponse with the stored object ids
//   - 400: empty item list or item without text
//   - 500: embedding or index failure
func HandleIndexUpsert(index Indexer, embedder pipeline.Embedder) gin.HandlerFunc {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.HandleIndexUpsert")
		defer span.End()

		var req datatypes.UpsertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if len(req.Items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one item is required"})
			return
		}

		var objects []vectorindex.Object
		for i, item := range req.Items {
			if item.Text == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("item %d has no text", i)})
				return
			}

			chunks, err := splitter.SplitText(item.Text)
			if err != nil {
				slog.Error("Failed to split item text", "item", i, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to split content"})
				return
			}

			for j, chunk := range chunks {
				vector, err := embedder.Embed(ctx, chunk)
				if err != nil {
					slog.Error("Failed to embed chunk", "item", i, "chunk", j, "error", err)
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Embedding failed"})
					return
				}

				id := item.Id
				if id != "" && len(chunks) > 1 {
					id = fmt.Sprintf("%s_part_%d", item.Id, j+1)
				}
				metadata := make(map[string]string, len(item.Metadata)+1)
				for k, v := range item.Metadata {
					metadata[k] = v
				}
				if len(chunks) > 1 {
					metadata["chunk"] = fmt.Sprintf("%d", j+1)
				}

				objects = append(objects, vectorindex.Object{
					Id:       id,
					Text:     chunk,
					Vector:   vector,
					Metadata: metadata,
				})
			}
		}

		ids, err := index.Upsert(ctx, objects)
		if err != nil {
			slog.Error("Failed to upsert guidance chunks", "objects", len(objects), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store documents"})
			return
		}

		slog.Info("Upserted guidance chunks", "items", len(req.Items), "chunks", len(ids))
		c.JSON(http.StatusOK, datatypes.UpsertResponse{Status: "ok", Ids: ids})
	}
}

// HandleIndexSearch runs an ad-hoc similarity search over the guidance
// index, outside any chat pipeline. Intended for corpus inspection.
func HandleIndexSearch(index Indexer, embedder pipeline.Embedder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.HandleIndexSearch")
		defer span.End()

		var req datatypes.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if req.Query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
			return
		}
		k := req.K
		if k <= 0 {
			k = defaultSearchK
		}

		vector, err := embedder.Embed(ctx, req.Query)
		if err != nil {
			slog.Error("Failed to embed search query", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Embedding failed"})
			return
		}

		var filter *vectorindex.Filter
		if req.Where != nil {
			filter = &vectorindex.Filter{Key: req.Where.Key, Value: req.Where.Value}
		}

		hits, err := index.SearchFiltered(ctx, vector, k, filter)
		if err != nil {
			slog.Error("Guidance search failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
			return
		}

		results := make([]datatypes.SearchResultItem, 0, len(hits))
		for _, hit := range hits {
			metadata := make(map[string]string, len(hit.Payload))
			text := ""
			for key, value := range hit.Payload {
				str, ok := value.(string)
				if !ok || str == "" {
					continue
				}
				if key == "text" || key == "page_content" {
					if text == "" || key == "text" {
						text = str
					}
					continue
				}
				metadata[key] = str
			}
			results = append(results, datatypes.SearchResultItem{
				Text:     text,
				Score:    hit.Score,
				Metadata: metadata,
			})
		}

		c.JSON(http.StatusOK, datatypes.SearchResponse{Results: results})
	}
}

// HandleIndexDelete removes stored chunks by the ids returned from
// upsert.
func HandleIndexDelete(index Indexer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.HandleIndexDelete")
		defer span.End()

		var req datatypes.DeleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if len(req.Ids) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one id is required"})
			return
		}

		if err := index.Delete(ctx, req.Ids); err != nil {
			slog.Error("Failed to delete guidance chunks", "ids", len(req.Ids), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete documents"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted": len(req.Ids)})
	}
}
