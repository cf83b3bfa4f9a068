package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/model"
)

// GetEvent retrieves a single catalog row by event ID.
func (s *SQLiteStorage) GetEvent(ctx context.Context, eventID string) (*model.CanonicalEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(eventID, "eventID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, patient_id, event_name, is_rejected, start_sample, ecg_path
		FROM events
		WHERE event_id = ?`, eventID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", eventID, err)
	}
	return event, nil
}

// ListEvents returns every catalog row ordered by event ID.
func (s *SQLiteStorage) ListEvents(ctx context.Context) ([]model.CanonicalEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, patient_id, event_name, is_rejected, start_sample, ecg_path
		FROM events
		ORDER BY event_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.CanonicalEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// ListPatients returns each patient with the number of cataloged episodes.
func (s *SQLiteStorage) ListPatients(ctx context.Context) ([]model.PatientSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT patient_id, COUNT(*)
		FROM events
		GROUP BY patient_id
		ORDER BY patient_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patients []model.PatientSummary
	for rows.Next() {
		var p model.PatientSummary
		var patientID sql.NullString
		if err := rows.Scan(&patientID, &p.EpisodeCount); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		p.PatientID = patientID.String
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// ListEpisodes returns the episodes recorded for one patient.
func (s *SQLiteStorage) ListEpisodes(ctx context.Context, patientID string) ([]model.Episode, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(patientID, "patientID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_name, is_rejected, start_sample
		FROM events
		WHERE patient_id = ?
		ORDER BY event_id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var episodes []model.Episode
	for rows.Next() {
		var ep model.Episode
		var eventName sql.NullString
		var rejected, start sql.NullInt64
		if err := rows.Scan(&ep.EventID, &eventName, &rejected, &start); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		ep.EventName = eventName.String
		ep.IsRejected = rejected.Int64 != 0
		ep.StartSample = int(start.Int64)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent tolerates NULL columns, which rows written by older tooling may carry.
func scanEvent(row rowScanner) (*model.CanonicalEvent, error) {
	var event model.CanonicalEvent
	var patientID, eventName, ecgPath sql.NullString
	var rejected, start sql.NullInt64

	if err := row.Scan(&event.EventID, &patientID, &eventName, &rejected, &start, &ecgPath); err != nil {
		return nil, err
	}

	event.PatientID = patientID.String
	event.EventName = eventName.String
	event.IsRejected = rejected.Int64 != 0
	event.StartSample = int(start.Int64)
	event.ECGPath = ecgPath.String
	return &event, nil
}
