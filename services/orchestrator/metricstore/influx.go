// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metricstore persists and queries per-user biometric points in
// InfluxDB. Points live in one measurement ("biometrics") tagged by
// user_id, kind, and unit, with a single "value" field.
package metricstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianVitals/pkg/validation"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/pipeline"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const measurement = "biometrics"

// DefaultServerKindLimit caps how many kinds are filtered inside the
// Flux query. Larger kind lists fall back to a client-side filter so the
// query string stays bounded.
const DefaultServerKindLimit = 10

// InfluxStore implements the pipeline's MetricsStore over InfluxDB v2.
type InfluxStore struct {
	client          influxdb2.Client
	queryAPI        api.QueryAPI
	writeAPI        api.WriteAPIBlocking
	bucket          string
	serverKindLimit int
}

// NewInfluxStore connects to InfluxDB. kindLimit <= 0 selects the
// default server-side kind filter limit.
func NewInfluxStore(url, token, org, bucket string, kindLimit int) (*InfluxStore, error) {
	if url == "" || token == "" || org == "" || bucket == "" {
		return nil, fmt.Errorf("influxdb configuration incomplete (url/token/org/bucket required)")
	}
	if kindLimit <= 0 {
		kindLimit = DefaultServerKindLimit
	}

	client := influxdb2.NewClient(url, token)
	return &InfluxStore{
		client:          client,
		queryAPI:        client.QueryAPI(org),
		writeAPI:        client.WriteAPIBlocking(org, bucket),
		bucket:          bucket,
		serverKindLimit: kindLimit,
	}, nil
}

// Close releases the underlying HTTP client.
func (s *InfluxStore) Close() {
	s.client.Close()
}

// FetchMetrics returns the user's points inside the timeframe, ascending
// by time. When the kind list fits the server limit it is pushed into
// the Flux query via contains(); otherwise all kinds are fetched and
// filtered here.
//
// # Limitations
//   - user_id and kinds are validated, then interpolated; Flux has no
//     parameter binding on the OSS query API.
func (s *InfluxStore) FetchMetrics(ctx context.Context, userId string, tf datatypes.Timeframe, kinds []string) ([]pipeline.MetricPoint, error) {
	if err := validation.ValidateUserId(userId); err != nil {
		return nil, err
	}
	if err := validation.ValidateMetricKinds(kinds); err != nil {
		return nil, err
	}

	kindFilter, clientFilter := kindFilterClause(kinds, s.serverKindLimit)
	if clientFilter {
		slog.Debug("Kind list exceeds server filter limit, filtering client-side",
			"kinds", len(kinds), "limit", s.serverKindLimit)
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.user_id == "%s")
		  |> filter(fn: (r) => r._field == "value")
		  %s
		  |> sort(columns: ["_time"], desc: false)
	`, s.bucket, tf.Start.UTC().Format(time.RFC3339), tf.End.UTC().Format(time.RFC3339),
		measurement, userId, kindFilter)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("influxdb query failed: %w", err)
	}

	wanted := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	var points []pipeline.MetricPoint
	for result.Next() {
		record := result.Record()
		kind, _ := record.ValueByKey("kind").(string)
		if kind == "" {
			continue
		}
		if clientFilter && !wanted[kind] {
			continue
		}
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}
		unit, _ := record.ValueByKey("unit").(string)
		points = append(points, pipeline.MetricPoint{
			Kind:      kind,
			Timestamp: record.Time(),
			Value:     value,
			Unit:      unit,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influxdb result error: %w", result.Err())
	}

	return points, nil
}

// kindFilterClause builds the server-side kind filter. It returns an
// empty clause and clientSide=true when the kind list is too long to
// interpolate, in which case the caller filters rows itself.
func kindFilterClause(kinds []string, limit int) (clause string, clientSide bool) {
	switch {
	case len(kinds) == 0:
		return "", false
	case len(kinds) <= limit:
		quoted := make([]string, len(kinds))
		for i, k := range kinds {
			quoted[i] = fmt.Sprintf("%q", k)
		}
		return fmt.Sprintf(`|> filter(fn: (r) => contains(value: r.kind, set: [%s]))`, strings.Join(quoted, ", ")), false
	default:
		return "", true
	}
}

// AddPoint writes one biometric measurement.
func (s *InfluxStore) AddPoint(ctx context.Context, userId, kind string, value float64, unit string, ts time.Time) error {
	if err := validation.ValidateUserId(userId); err != nil {
		return err
	}
	if err := validation.ValidateMetricKind(kind); err != nil {
		return err
	}

	tags := map[string]string{"user_id": userId, "kind": kind}
	if unit != "" {
		tags["unit"] = unit
	}
	point := influxdb2.NewPoint(measurement, tags, map[string]interface{}{"value": value}, ts)

	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influxdb write failed: %w", err)
	}
	return nil
}
