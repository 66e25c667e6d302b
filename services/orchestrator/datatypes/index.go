// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// UpsertItem is one text to be indexed, with optional metadata and an
// optional caller-supplied id. When Id is empty the index assigns a
// deterministic id derived from the content.
type UpsertItem struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Id       string            `json:"id,omitempty"`
}

// UpsertRequest is the body for POST /v1/index/upsert.
type UpsertRequest struct {
	Items []UpsertItem `json:"items"`
}

// UpsertResponse carries the ids assigned to each upserted item, in
// input order. Items split into multiple chunks contribute one id per
// chunk.
type UpsertResponse struct {
	Status string   `json:"status"`
	Ids    []string `json:"ids"`
}

// MetadataFilter is an equality filter on a single payload field,
// e.g. {"key": "source", "value": "who_guidelines.md"}.
type MetadataFilter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SearchRequest is the body for POST /v1/index/search.
type SearchRequest struct {
	Query string          `json:"query"`
	K     int             `json:"k,omitempty"`
	Where *MetadataFilter `json:"where,omitempty"`
}

// SearchResultItem is one search hit with its resolved text and the raw
// payload metadata.
type SearchResultItem struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the body returned by POST /v1/index/search.
type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
}

// DeleteRequest is the body for POST /v1/index/delete.
type DeleteRequest struct {
	Ids []string `json:"ids"`
}

// AddMetricRequest is the body for POST /v1/metrics. It seeds a single
// measurement point, primarily for development and testing.
type AddMetricRequest struct {
	UserId    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MetricConfigResponse is returned by GET and POST /v1/config/metrics.
type MetricConfigResponse struct {
	Version              int64    `json:"version"`
	DefaultMetricKinds   []string `json:"default_metric_kinds"`
	AvailableMetricKinds []string `json:"available_metric_kinds"`
}

// MetricConfigUpdateRequest is the body for POST /v1/config/metrics.
// ExpectedVersion, when non-zero, makes the update conditional on the
// current configuration version (compare-and-swap).
type MetricConfigUpdateRequest struct {
	ExpectedVersion      int64    `json:"expected_version,omitempty"`
	DefaultMetricKinds   []string `json:"default_metric_kinds,omitempty"`
	AvailableMetricKinds []string `json:"available_metric_kinds,omitempty"`
}
