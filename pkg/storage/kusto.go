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

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-kusto-go/kusto"
	"github.com/Azure/azure-kusto-go/kusto/ingest"
	"github.com/Azure/azure-kusto-go/kusto/kql"
)

// KustoConfig carries the Azure Data Explorer connection settings.
type KustoConfig struct {
	Endpoint string
	ClientID string
	Secret   string
	TenantID string
	Database string
	Table    string
}

// KustoStore ingests photo rows into an Azure Data Explorer table.
type KustoStore struct {
	client   *kusto.Client
	ingestor *ingest.Ingestion
	database string
	table    string
}

func NewKustoStore(cfg KustoConfig) (*KustoStore, error) {
	kcsb := kusto.NewConnectionStringBuilder(cfg.Endpoint).WithAadAppKey(cfg.ClientID, cfg.Secret, cfg.TenantID)
	client, err := kusto.New(kcsb)
	if err != nil {
		return nil, fmt.Errorf("creating kusto client: %w", err)
	}
	ingestor, err := ingest.New(client, cfg.Database, cfg.Table)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating ingestor for %s.%s: %w", cfg.Database, cfg.Table, err)
	}
	return &KustoStore{client: client, ingestor: ingestor, database: cfg.Database, table: cfg.Table}, nil
}

// EnsureTable creates the photo table when it does not exist yet.
func (s *KustoStore) EnsureTable(ctx context.Context) error {
	stmt := kql.New(".create-merge table ").AddTable(s.table).AddLiteral(
		" (DeviceId: string, CameraType: string, Timestamp: datetime, BlobUrl: string, TotalBlocks: int, FileSize: long, IngestionTime: datetime)")
	rows, err := s.client.Mgmt(ctx, s.database, stmt)
	if err != nil {
		return fmt.Errorf("creating table %s.%s: %w", s.database, s.table, err)
	}
	rows.Stop()
	return nil
}

func (s *KustoStore) InsertRow(ctx context.Context, row PhotoRow) error {
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if _, err := s.ingestor.FromReader(ctx, bytes.NewReader(b), ingest.FileFormat(ingest.MultiJSON)); err != nil {
		return fmt.Errorf("ingesting photo row: %w", err)
	}
	return nil
}

// Close releases the ingestor and the underlying client.
func (s *KustoStore) Close() error {
	if err := s.ingestor.Close(); err != nil {
		return err
	}
	return s.client.Close()
}
