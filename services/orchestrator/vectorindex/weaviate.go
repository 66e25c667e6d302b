// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorindex stores and searches guidance passages in Weaviate.
//
// The GuidanceChunk class is vectorizer-free: embeddings are produced by
// the orchestrator and attached to every object, so the index works the
// same regardless of which embedding model is configured. Property names
// deliberately include the alias keys used by common ingestion pipelines
// (page_content, url, doc_id, chunk_id) so externally ingested corpora
// search cleanly without a migration.
package vectorindex

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/pipeline"
)

var tracer = otel.Tracer("aleutian.ai/orchestrator/vectorindex")

// ClassName is the Weaviate class holding guidance passages.
const ClassName = "GuidanceChunk"

// payloadProperties are every text property stored per chunk, canonical
// keys first, alias keys after. "id" is reserved by Weaviate, so caller
// ids are stored under doc_id.
var payloadProperties = []string{
	"text", "page_content",
	"source", "url", "path",
	"title",
	"chunk", "chunk_id",
	"doc_id",
}

// Index wraps a Weaviate client for guidance storage and retrieval.
type Index struct {
	client *weaviate.Client
}

// New wraps an existing client. Call EnsureClass once before first use.
func New(client *weaviate.Client) *Index {
	return &Index{client: client}
}

// GuidanceClass returns the schema for the guidance passage class.
func GuidanceClass() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	properties := make([]*models.Property, 0, len(payloadProperties))
	for _, name := range payloadProperties {
		prop := &models.Property{
			Name:         name,
			DataType:     []string{"text"},
			Tokenization: "word",
		}
		if name != "text" && name != "page_content" {
			prop.IndexFilterable = indexFilterable
			prop.Tokenization = "field"
		}
		properties = append(properties, prop)
	}

	return &models.Class{
		Class:       ClassName,
		Description: "A guidance passage with its source attribution.",
		Vectorizer:  "none",
		Properties:  properties,
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
	}
}

// EnsureClass creates the guidance class if it does not already exist.
func (x *Index) EnsureClass(ctx context.Context) error {
	exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("checking class %s: %w", ClassName, err)
	}
	if exists {
		return nil
	}

	if err := x.client.Schema().ClassCreator().WithClass(GuidanceClass()).Do(ctx); err != nil {
		return fmt.Errorf("creating class %s: %w", ClassName, err)
	}
	slog.Info("Created Weaviate class", "class", ClassName)
	return nil
}

// Search implements the pipeline's GuidanceIndex with no metadata filter.
func (x *Index) Search(ctx context.Context, vector []float32, limit int) ([]pipeline.SearchHit, error) {
	return x.SearchFiltered(ctx, vector, limit, nil)
}

// SearchFiltered runs a nearVector query, optionally restricted to
// objects whose filterKey equals filterValue.
//
// # Outputs
//   - []pipeline.SearchHit in similarity-rank order. Score is the
//     Weaviate certainty in [0,1]; when the server omits certainty the
//     distance is converted via 1-distance.
func (x *Index) SearchFiltered(ctx context.Context, vector []float32, limit int, where *Filter) ([]pipeline.SearchHit, error) {
	ctx, span := tracer.Start(ctx, "vectorindex.SearchFiltered")
	defer span.End()

	fields := make([]graphql.Field, 0, len(payloadProperties)+1)
	for _, name := range payloadProperties {
		fields = append(fields, graphql.Field{Name: name})
	}
	fields = append(fields, graphql.Field{Name: "_additional", Fields: []graphql.Field{
		{Name: "certainty"},
		{Name: "distance"},
	}})

	nearVector := x.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	query := x.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit)

	if where != nil {
		query = query.WithWhere(filters.Where().
			WithPath([]string{where.Key}).
			WithOperator(filters.Equal).
			WithValueString(where.Value))
	}

	result, err := query.Do(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		msg := result.Errors[0].Message
		span.SetStatus(codes.Error, msg)
		return nil, fmt.Errorf("weaviate graphql error: %s", msg)
	}

	return parseHits(result)
}

// Filter restricts a search to objects with an exact property value.
type Filter struct {
	Key   string
	Value string
}

// Object is one passage to upsert, with its precomputed vector.
type Object struct {
	Id       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Upsert writes objects in one batch. Object UUIDs derive from the
// caller id (or the text when no id is given), so re-upserting the same
// content overwrites in place instead of duplicating.
func (x *Index) Upsert(ctx context.Context, objects []Object) ([]string, error) {
	ctx, span := tracer.Start(ctx, "vectorindex.Upsert")
	defer span.End()

	if len(objects) == 0 {
		return nil, nil
	}

	batch := make([]*models.Object, len(objects))
	ids := make([]string, len(objects))
	for i, obj := range objects {
		seed := obj.Id
		if seed == "" {
			seed = obj.Text
		}
		ids[i] = deterministicId(seed)

		properties := map[string]interface{}{"text": obj.Text}
		if obj.Id != "" {
			properties["doc_id"] = obj.Id
		}
		for k, v := range obj.Metadata {
			if v == "" {
				continue
			}
			if isPayloadProperty(k) {
				properties[k] = v
			}
		}

		batch[i] = &models.Object{
			Class:      ClassName,
			ID:         strfmt.UUID(ids[i]),
			Vector:     obj.Vector,
			Properties: properties,
		}
	}

	resp, err := x.client.Batch().ObjectsBatcher().WithObjects(batch...).Do(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("weaviate batch upsert failed: %w", err)
	}

	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Weaviate batch item failed", "error", errItem.Message)
			}
			return nil, fmt.Errorf("weaviate rejected one or more objects")
		}
	}
	return ids, nil
}

// Delete removes objects by their deterministic UUIDs.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "vectorindex.Delete")
	defer span.End()

	for _, id := range ids {
		err := x.client.Data().Deleter().
			WithClassName(ClassName).
			WithID(id).
			Do(ctx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("deleting object %s: %w", id, err)
		}
	}
	return nil
}

// parseHits flattens the GraphQL response into payload/score pairs. All
// stored properties land in the payload map, so the retrieval stage's
// alias resolution sees exactly what was ingested.
func parseHits(result *models.GraphQLResponse) ([]pipeline.SearchHit, error) {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected graphql response shape: missing Get")
	}
	rows, ok := get[ClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	hits := make([]pipeline.SearchHit, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]interface{})
		if !ok {
			continue
		}

		payload := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != "_additional" {
				payload[k] = v
			}
		}

		score := 0.0
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				score = certainty
			} else if distance, ok := additional["distance"].(float64); ok {
				score = 1 - distance
			}
		}

		hits = append(hits, pipeline.SearchHit{Payload: payload, Score: score})
	}
	return hits, nil
}

// deterministicId folds a seed into a stable UUID so repeated upserts of
// the same document overwrite rather than duplicate.
func deterministicId(seed string) string {
	hash := sha256.Sum256([]byte(seed))
	objUUID, _ := uuid.FromBytes(hash[:16])
	return objUUID.String()
}

func isPayloadProperty(name string) bool {
	for _, p := range payloadProperties {
		if p == name {
			return true
		}
	}
	return false
}
