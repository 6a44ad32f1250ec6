// Copyright 2025 Edgewatt Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package synciot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store writes events and the checkpoint to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, cfg *PGConfig) (*Store, error) {
	connString := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode)
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return &Store{pool: pool}, nil
}

// InsertEvent stores one raw event. Duplicate event ids are silently skipped.
func (s *Store) InsertEvent(ctx context.Context, table, device, id string, epoch int64, raw []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s ("device", "uuid", "timestamp", "data") VALUES ($1, $2, TO_TIMESTAMP($3), $4) ON CONFLICT ("uuid") DO NOTHING`, table)
	if _, err := s.pool.Exec(ctx, query, device, id, epoch, raw); err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

type checkpointData struct {
	Timestamp int64 `json:"timestamp"`
}

// ReadCheckpoint returns the stored resume epoch, or zero when no checkpoint
// exists yet.
func (s *Store) ReadCheckpoint(ctx context.Context, table, key string) (int64, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE key = $1`, table)
	var raw []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading checkpoint from %s: %w", table, err)
	}
	var data checkpointData
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return data.Timestamp, nil
}

// SaveCheckpoint upserts the resume epoch.
func (s *Store) SaveCheckpoint(ctx context.Context, table, key string, epoch int64) error {
	raw, err := json.Marshal(checkpointData{Timestamp: epoch})
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (key, data) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`, table)
	if _, err := s.pool.Exec(ctx, query, key, raw); err != nil {
		return fmt.Errorf("saving checkpoint to %s: %w", table, err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}
