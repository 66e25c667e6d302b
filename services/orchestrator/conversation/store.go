// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation persists per-user chat history in BadgerDB.
//
// BadgerDB gives low-latency embedded storage with no external service,
// which fits conversation history: small values, strictly per-user key
// ranges, read on every chat turn. Keys are ordered
//
//	conv/<user_id>/<unix_nanos>
//
// so a prefix iteration returns a user's turns in chronological order.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

const keyPrefix = "conv/"

// Store is a BadgerDB-backed conversation history store.
// The underlying *badger.DB is safe for concurrent use.
type Store struct {
	db *badger.DB
}

type storedTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Ts      int64  `json:"ts"`
}

// Open opens a persistent store at the given directory, creating it if
// needed. Badger's internal logging is routed to slog at debug level.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("path is required for persistent conversation store")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create conversation store directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: slog.Default()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store with no disk persistence, for testing.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory conversation store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one conversation turn for the user at the current time.
func (s *Store) Append(userId string, msg datatypes.Message) error {
	return s.AppendAt(userId, msg, time.Now())
}

// AppendAt stores a turn with an explicit timestamp. Exposed for tests
// and backfills; normal callers use Append.
func (s *Store) AppendAt(userId string, msg datatypes.Message, at time.Time) error {
	if userId == "" {
		return errors.New("user id is required")
	}

	value, err := json.Marshal(storedTurn{Role: msg.Role, Content: msg.Content, Ts: at.UnixNano()})
	if err != nil {
		return fmt.Errorf("encode conversation turn: %w", err)
	}

	key := fmt.Sprintf("%s%s/%020d", keyPrefix, userId, at.UnixNano())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("store conversation turn: %w", err)
	}
	return nil
}

// FetchRecent returns the user's last limit turns in chronological
// order. limit <= 0 returns all turns.
func (s *Store) FetchRecent(userId string, limit int) ([]datatypes.Message, error) {
	if userId == "" {
		return nil, errors.New("user id is required")
	}

	prefix := []byte(keyPrefix + userId + "/")
	var turns []datatypes.Message

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var turn storedTurn
				if err := json.Unmarshal(val, &turn); err != nil {
					return fmt.Errorf("decode conversation turn: %w", err)
				}
				turns = append(turns, datatypes.Message{Role: turn.Role, Content: turn.Content})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// badgerLogger adapts slog to Badger's Logger interface. Badger is
// chatty at info level, so everything lands at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
