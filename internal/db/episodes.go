package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/approach.warning/internal/radar"
)

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordEpisode inserts ep or updates the row with the same ID.
func (db *DB) RecordEpisode(ep radar.Episode) error {
	_, err := db.Exec(`
		INSERT INTO episodes (
			episode_id, started_at, ended_at, lingered, frames, max_targets,
			approaching_frames, closest_distance_m, mean_speed_kmh,
			speed_stddev_kmh, max_speed_kmh
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (episode_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			lingered = excluded.lingered,
			frames = excluded.frames,
			max_targets = excluded.max_targets,
			approaching_frames = excluded.approaching_frames,
			closest_distance_m = excluded.closest_distance_m,
			mean_speed_kmh = excluded.mean_speed_kmh,
			speed_stddev_kmh = excluded.speed_stddev_kmh,
			max_speed_kmh = excluded.max_speed_kmh`,
		ep.ID, unixNanos(ep.StartedAt), unixNanos(ep.EndedAt), boolInt(ep.Lingered),
		ep.Frames, ep.MaxTargets, ep.ApproachingFrames, ep.ClosestDistance,
		ep.MeanSpeed, ep.SpeedStdDev, ep.MaxSpeed,
	)
	if err != nil {
		return fmt.Errorf("failed to record episode: %w", err)
	}
	return nil
}

// RecordObservations inserts obs in a single transaction.
func (db *DB) RecordObservations(obs []radar.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO observations (
			episode_id, observed_at, slot, slot_epoch, angle_deg, distance_m,
			smoothed_distance_m, speed_kmh, approaching, snr
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(
			o.EpisodeID, unixNanos(o.At), o.Slot, o.Epoch, o.Angle, o.Distance,
			o.SmoothedDistance, o.Speed, boolInt(o.Approaching), o.SNR,
		); err != nil {
			return fmt.Errorf("failed to record observation: %w", err)
		}
	}
	return tx.Commit()
}

const episodeColumns = `episode_id, started_at, ended_at, lingered, frames, max_targets,
	approaching_frames, closest_distance_m, mean_speed_kmh, speed_stddev_kmh, max_speed_kmh`

func scanEpisode(row interface{ Scan(...any) error }) (radar.Episode, error) {
	var (
		ep                radar.Episode
		started, ended    int64
		lingered          int
		closest, mean, sd sql.NullFloat64
		maxSpeed          sql.NullFloat64
	)
	if err := row.Scan(&ep.ID, &started, &ended, &lingered, &ep.Frames, &ep.MaxTargets,
		&ep.ApproachingFrames, &closest, &mean, &sd, &maxSpeed); err != nil {
		return ep, err
	}
	ep.StartedAt = fromUnixNanos(started)
	ep.EndedAt = fromUnixNanos(ended)
	ep.Lingered = lingered != 0
	ep.ClosestDistance = closest.Float64
	ep.MeanSpeed = mean.Float64
	ep.SpeedStdDev = sd.Float64
	ep.MaxSpeed = maxSpeed.Float64
	return ep, nil
}

// RecentEpisodes returns up to limit episodes, newest first.
func (db *DB) RecentEpisodes(limit int) ([]radar.Episode, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+episodeColumns+` FROM episodes ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []radar.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// Episode returns the episode with the given ID.
func (db *DB) Episode(id string) (radar.Episode, error) {
	return scanEpisode(db.QueryRow(`SELECT `+episodeColumns+` FROM episodes WHERE episode_id = ?`, id))
}

func scanObservations(rows *sql.Rows) ([]radar.Observation, error) {
	defer rows.Close()
	var out []radar.Observation
	for rows.Next() {
		var (
			o           radar.Observation
			at          int64
			approaching int
		)
		if err := rows.Scan(&o.EpisodeID, &at, &o.Slot, &o.Epoch, &o.Angle, &o.Distance,
			&o.SmoothedDistance, &o.Speed, &approaching, &o.SNR); err != nil {
			return nil, err
		}
		o.At = fromUnixNanos(at)
		o.Approaching = approaching != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

const observationColumns = `episode_id, observed_at, slot, slot_epoch, angle_deg, distance_m,
	smoothed_distance_m, speed_kmh, approaching, snr`

// EpisodeObservations returns the observations of one episode in time order.
func (db *DB) EpisodeObservations(id string) ([]radar.Observation, error) {
	rows, err := db.Query(`SELECT `+observationColumns+` FROM observations
		WHERE episode_id = ? ORDER BY observed_at, slot`, id)
	if err != nil {
		return nil, err
	}
	return scanObservations(rows)
}

// ObservationsSince returns observations at or after since, oldest first,
// capped at limit rows.
func (db *DB) ObservationsSince(since time.Time, limit int) ([]radar.Observation, error) {
	if limit <= 0 {
		limit = 5000
	}
	rows, err := db.Query(`SELECT `+observationColumns+` FROM observations
		WHERE observed_at >= ? ORDER BY observed_at, slot LIMIT ?`, unixNanos(since), limit)
	if err != nil {
		return nil, err
	}
	return scanObservations(rows)
}

// PruneBefore deletes episodes that started before cutoff along with their
// observations, returning the number of episodes removed.
func (db *DB) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM episodes WHERE started_at < ? AND ended_at != 0`, unixNanos(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
