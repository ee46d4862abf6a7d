package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/approach.warning/internal/radar"
)

// RecordHandshake stores one configuration, restart or reset attempt.
func (db *DB) RecordHandshake(rec radar.HandshakeRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO handshakes (handshake_id, op, started_at, duration_ms, params_json, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Op, unixNanos(rec.StartedAt),
		float64(rec.Duration)/float64(time.Millisecond), string(params), rec.Err,
	)
	if err != nil {
		return fmt.Errorf("failed to record handshake: %w", err)
	}
	return nil
}

// RecentHandshakes returns up to limit handshake records, newest first.
func (db *DB) RecentHandshakes(limit int) ([]radar.HandshakeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT handshake_id, op, started_at, duration_ms, params_json, error
		FROM handshakes ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []radar.HandshakeRecord
	for rows.Next() {
		var (
			rec        radar.HandshakeRecord
			started    int64
			durationMs float64
			params     string
		)
		if err := rows.Scan(&rec.ID, &rec.Op, &started, &durationMs, &params, &rec.Err); err != nil {
			return nil, err
		}
		rec.StartedAt = fromUnixNanos(started)
		rec.Duration = time.Duration(durationMs * float64(time.Millisecond))
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("handshake %s: bad params: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
