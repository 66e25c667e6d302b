// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the orchestrator's runtime-tunable metric
// configuration as immutable, versioned snapshots.
//
// Readers always get a consistent snapshot: the default kind list can
// never be observed mid-update against a mismatched availability list.
// Writers update through compare-and-swap on the snapshot version, so
// two concurrent admin updates cannot silently overwrite each other.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Settings is one immutable configuration snapshot. Callers must not
// mutate the slices.
type Settings struct {
	Version              int64
	DefaultMetricKinds   []string
	AvailableMetricKinds []string
}

var (
	// ErrDefaultsNotAvailable means a proposed default kind list includes
	// kinds missing from the availability list.
	ErrDefaultsNotAvailable = errors.New("default metric kinds must be a subset of available metric kinds")

	// ErrVersionConflict means the caller's expected version no longer
	// matches the current snapshot; re-read and retry.
	ErrVersionConflict = errors.New("configuration version conflict")
)

// Store serves and swaps configuration snapshots.
type Store struct {
	mu      sync.RWMutex
	current Settings
}

// defaultKinds are served until configuration is changed at runtime.
var defaultKinds = []string{"hr", "hrv", "steps", "sleep"}

// availableKinds is the full metric vocabulary the stack understands.
var availableKinds = []string{
	"hr", "hrv", "steps", "sleep",
	"weight", "blood_pressure", "temperature", "glucose", "oxygen_saturation",
}

// NewStore builds a store with the built-in defaults at version 1.
func NewStore() *Store {
	return &Store{current: Settings{
		Version:              1,
		DefaultMetricKinds:   cloneKinds(defaultKinds),
		AvailableMetricKinds: cloneKinds(availableKinds),
	}}
}

// NewStoreFromEnv builds a store, letting the environment override the
// built-in kind lists:
//
//	METRIC_DEFAULT_KINDS   comma-separated, e.g. "hr,sleep"
//	METRIC_AVAILABLE_KINDS comma-separated superset of the defaults
//
// Invalid overrides are logged and ignored rather than failing startup.
func NewStoreFromEnv() *Store {
	store := NewStore()

	available := splitKinds(os.Getenv("METRIC_AVAILABLE_KINDS"))
	defaults := splitKinds(os.Getenv("METRIC_DEFAULT_KINDS"))
	if available == nil && defaults == nil {
		return store
	}

	proposed := store.Current()
	if available != nil {
		proposed.AvailableMetricKinds = available
	}
	if defaults != nil {
		proposed.DefaultMetricKinds = defaults
	}

	_, err := store.Update(proposed.Version, proposed.DefaultMetricKinds, proposed.AvailableMetricKinds)
	if err != nil {
		slog.Warn("Ignoring invalid metric kind overrides from environment", "error", err)
		return store
	}
	slog.Info("Applied metric kind overrides from environment",
		"default_kinds", proposed.DefaultMetricKinds,
		"available_kinds", proposed.AvailableMetricKinds)
	return store
}

// Current returns the live snapshot.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update installs a new snapshot if expectedVersion still matches the
// live one, returning the new snapshot. The new default list must be a
// subset of the new availability list.
func (s *Store) Update(expectedVersion int64, defaults, available []string) (Settings, error) {
	if err := validateSubset(defaults, available); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Version != expectedVersion {
		return Settings{}, fmt.Errorf("%w: expected %d, current %d",
			ErrVersionConflict, expectedVersion, s.current.Version)
	}

	s.current = Settings{
		Version:              s.current.Version + 1,
		DefaultMetricKinds:   cloneKinds(defaults),
		AvailableMetricKinds: cloneKinds(available),
	}
	return s.current, nil
}

// IsVersionConflict reports whether err is a stale-version rejection.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

func validateSubset(defaults, available []string) error {
	availableSet := make(map[string]bool, len(available))
	for _, k := range available {
		availableSet[k] = true
	}

	var missing []string
	for _, k := range defaults {
		if !availableSet[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v not available", ErrDefaultsNotAvailable, missing)
	}
	return nil
}

func cloneKinds(kinds []string) []string {
	out := make([]string, len(kinds))
	copy(out, kinds)
	return out
}

func splitKinds(raw string) []string {
	if raw == "" {
		return nil
	}
	var kinds []string
	for _, part := range strings.Split(raw, ",") {
		if k := strings.TrimSpace(part); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
