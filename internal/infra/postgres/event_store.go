package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logger"
)

// EventStore is the append-only log for quiz session events. There are no
// update paths; the only delete is the administrative cascade in DeleteSession.
type EventStore struct {
	db  *bun.DB
	log *logger.Logger
}

func NewEventStore(db *bun.DB, log *logger.Logger) *EventStore {
	return &EventStore{db: db, log: log}
}

// Append inserts one row per event inside the caller's transaction. A primary
// key collision means another writer already advanced this session to that
// exact (version, sequence) and is reported as a conflict; it is logged at
// warn only since it is an expected, recoverable race, not a defect.
func (s *EventStore) Append(ctx context.Context, idb bun.IDB, sessionID string, events []domain.Event) error {
	rows := make([]SessionEventRow, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return &domain.StorageError{Op: "append", Err: err}
		}
		meta := e.Meta()
		rows = append(rows, SessionEventRow{
			SessionID:     meta.SessionID,
			Version:       meta.Version,
			EventSequence: meta.Sequence,
			EventType:     string(e.Type()),
			Payload:       payload,
			OccurredAt:    meta.OccurredAt,
		})
	}

	if _, err := idb.NewInsert().Model(&rows).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			s.log.Warn("concurrent write lost the version race",
				"sessionId", sessionID, "version", rows[0].Version)
			return &domain.ConflictError{SessionID: sessionID, Err: err}
		}
		s.log.Error("event append failed", "sessionId", sessionID, "error", err)
		return &domain.StorageError{Op: "append", Err: err}
	}
	return nil
}

// Load returns all rows for the session ordered by (version, event_sequence).
// Zero rows means the session does not exist; that is not an error.
func (s *EventStore) Load(ctx context.Context, sessionID string) ([]SessionEventRow, error) {
	var rows []SessionEventRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		Order("version ASC", "event_sequence ASC").
		Scan(ctx)
	if err != nil {
		s.log.Error("event load failed", "sessionId", sessionID, "error", err)
		return nil, &domain.StorageError{Op: "load", Err: err}
	}
	return rows, nil
}

// DeleteSession removes the session's event rows and snapshot row in one
// transaction. Administrative only; normal write flow never deletes events.
func (s *EventStore) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*SessionSnapshotRow)(nil)).
			Where("session_id = ?", sessionID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*SessionEventRow)(nil)).
			Where("session_id = ?", sessionID).
			Exec(ctx)
		return err
	})
	if err != nil {
		s.log.Error("cascade delete failed", "sessionId", sessionID, "error", err)
		return &domain.StorageError{Op: "delete", Err: err}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLSTATE 23505 from Postgres.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
