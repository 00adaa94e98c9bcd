package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RawPayload represents a stored API response payload.
type RawPayload struct {
	ID                int64
	IngestRunID       sql.NullInt64
	FetchedAt         time.Time
	Source            string
	Endpoint          string
	LocationID        sql.NullInt64
	PayloadCompressed []byte
	PayloadHash       string
	SchemaVersion     int
}

// PayloadHash is the archive key of an uncompressed payload: hex SHA-256.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// StoreRawPayload stores a compressed API response payload.
// Returns the payload ID, or 0 if the payload was a duplicate (same hash).
func (s *Store) StoreRawPayload(ctx context.Context, runID *int64, source, endpoint string,
	locationID int64, payload []byte) (int64, error) {

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}
	compressed := buf.Bytes()

	hashHex := PayloadHash(payload)

	var ingestRunID sql.NullInt64
	if runID != nil {
		ingestRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}

	locationIDNull := sql.NullInt64{Int64: locationID, Valid: locationID > 0}

	var id int64
	err := s.withRetry(ctx, "store_raw_payload", func() error {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO raw_payloads
			(ingest_run_id, fetched_at, source, endpoint, location_id,
			 payload_compressed, payload_hash, schema_version)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(payload_hash) DO NOTHING
		`, ingestRunID, time.Now().UTC(), source, endpoint, locationIDNull, compressed, hashHex)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil || n == 0 {
			id = 0
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}
	return id, nil
}

// GetRawPayload returns the decompressed body of payload id.
func (s *Store) GetRawPayload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := s.withRetry(ctx, "get_raw_payload", func() error {
		return s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).
			Scan(&compressed)
	})
	if err != nil {
		return nil, err
	}
	return gunzip(compressed)
}

func gunzip(compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// GetRawPayloadByHash looks a payload up by the SHA-256 of its uncompressed
// body. It returns nil when nothing matches.
func (s *Store) GetRawPayloadByHash(ctx context.Context, hash string) (*RawPayload, error) {
	var p RawPayload
	err := s.withRetry(ctx, "raw_payload_by_hash", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, ingest_run_id, fetched_at, source, endpoint, location_id,
			       payload_compressed, payload_hash, schema_version
			FROM raw_payloads WHERE payload_hash = ?
		`, hash).Scan(&p.ID, &p.IngestRunID, &p.FetchedAt, &p.Source, &p.Endpoint,
			&p.LocationID, &p.PayloadCompressed, &p.PayloadHash, &p.SchemaVersion)
	})
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type RawPayloadStats struct {
	TotalCount      int
	TotalSizeBytes  int64 // compressed
	OldestFetchedAt time.Time
	NewestFetchedAt time.Time
	CountBySource   map[string]int
	SizeBySource    map[string]int64
}

// GetRawPayloadStats reports how much the archive holds, overall and per
// source. Bounds are zero when the archive is empty.
func (s *Store) GetRawPayloadStats(ctx context.Context) (*RawPayloadStats, error) {
	var stats *RawPayloadStats
	err := s.withRetry(ctx, "raw_payload_stats", func() error {
		stats = &RawPayloadStats{
			CountBySource: make(map[string]int),
			SizeBySource:  make(map[string]int64),
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT source, COUNT(*), SUM(LENGTH(payload_compressed))
			FROM raw_payloads
			GROUP BY source
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var source string
			var count int
			var size int64
			if err := rows.Scan(&source, &count, &size); err != nil {
				return err
			}
			stats.CountBySource[source] = count
			stats.SizeBySource[source] = size
			stats.TotalCount += count
			stats.TotalSizeBytes += size
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if stats.TotalCount == 0 {
			return nil
		}

		// Aggregates lose the DATETIME column type, so read the bounds as rows.
		if err := s.db.QueryRowContext(ctx, `SELECT fetched_at FROM raw_payloads ORDER BY fetched_at LIMIT 1`).
			Scan(&stats.OldestFetchedAt); err != nil {
			return err
		}
		return s.db.QueryRowContext(ctx, `SELECT fetched_at FROM raw_payloads ORDER BY fetched_at DESC LIMIT 1`).
			Scan(&stats.NewestFetchedAt)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// CleanupOldRawPayloads deletes payloads fetched more than retentionDays
// ago and returns how many went.
func (s *Store) CleanupOldRawPayloads(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	var removed int64
	err := s.withRetry(ctx, "cleanup_raw_payloads", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff)
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	return removed, err
}
