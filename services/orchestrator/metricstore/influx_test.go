// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metricstore

import (
	"context"
	"testing"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFilterClause_EmptyKinds(t *testing.T) {
	clause, clientSide := kindFilterClause(nil, DefaultServerKindLimit)
	assert.Empty(t, clause)
	assert.False(t, clientSide)
}

func TestKindFilterClause_WithinLimit(t *testing.T) {
	clause, clientSide := kindFilterClause([]string{"hr", "sleep"}, DefaultServerKindLimit)
	assert.Equal(t, `|> filter(fn: (r) => contains(value: r.kind, set: ["hr", "sleep"]))`, clause)
	assert.False(t, clientSide)
}

func TestKindFilterClause_OverLimitFallsBackToClientSide(t *testing.T) {
	kinds := []string{"a", "b", "c", "d"}
	clause, clientSide := kindFilterClause(kinds, 3)
	assert.Empty(t, clause)
	assert.True(t, clientSide)
}

func TestNewInfluxStore_RequiresConfiguration(t *testing.T) {
	_, err := NewInfluxStore("", "token", "org", "bucket", 0)
	assert.Error(t, err)

	_, err = NewInfluxStore("http://localhost:8086", "", "org", "bucket", 0)
	assert.Error(t, err)
}

func TestFetchMetrics_RejectsInjectableIdentifiers(t *testing.T) {
	store, err := NewInfluxStore("http://localhost:8086", "token", "org", "bucket", 0)
	require.NoError(t, err)
	defer store.Close()

	tf := datatypes.DefaultTimeframe(7)

	// Neither call may reach the query API; validation fails first.
	_, err = store.FetchMetrics(context.Background(), `u") |> drop()`, tf, nil)
	assert.Error(t, err)

	_, err = store.FetchMetrics(context.Background(), "u-1", tf, []string{`hr") |> yield()`})
	assert.Error(t, err)
}

func TestAddPoint_RejectsInvalidKind(t *testing.T) {
	store, err := NewInfluxStore("http://localhost:8086", "token", "org", "bucket", 0)
	require.NoError(t, err)
	defer store.Close()

	err = store.AddPoint(context.Background(), "u-1", "NOT VALID", 1.0, "", datatypes.DefaultTimeframe(1).End)
	assert.Error(t, err)
}
