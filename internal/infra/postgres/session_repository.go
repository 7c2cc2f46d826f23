package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logger"
)

// SessionRepository persists quiz sessions as an event log plus a best-effort
// snapshot. The log is authoritative; every read path that returns a session
// rehydrates it by full replay, the snapshot only serves as an index and as
// the backing table for aggregate/listing queries.
type SessionRepository struct {
	db        *bun.DB
	store     *EventStore
	projector *Projector
	questions app.QuestionDetailsRepository
	log       *logger.Logger
}

var _ app.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(db *bun.DB, store *EventStore, projector *Projector, questions app.QuestionDetailsRepository, log *logger.Logger) *SessionRepository {
	return &SessionRepository{
		db:        db,
		store:     store,
		projector: projector,
		questions: questions,
		log:       log,
	}
}

// Save appends the session's staged events and upserts its snapshot in one
// transaction. The append is mandatory: any failure aborts the transaction.
// The projection is advisory: its failure is rolled back to a savepoint and
// logged, and the append still commits, because the log is the source of
// truth and the snapshot is rebuildable. The projection gap is visible as
// ProjectedVersion < Version in the result.
func (r *SessionRepository) Save(ctx context.Context, session *domain.Session) (app.SaveResult, error) {
	events := session.UncommittedEvents()
	version := session.Version()
	if len(events) == 0 {
		return app.SaveResult{Version: version, ProjectedVersion: version}, nil
	}

	projected := events[0].Meta().Version - 1
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.store.Append(ctx, tx, session.ID(), events); err != nil {
			return err
		}

		// A failed statement poisons the surrounding Postgres transaction,
		// so the projection runs under a savepoint to keep the append alive.
		if _, err := tx.ExecContext(ctx, "SAVEPOINT project_snapshot"); err != nil {
			r.log.Error("snapshot savepoint failed", "sessionId", session.ID(), "error", err)
			return nil
		}
		if err := r.projector.Project(ctx, tx, session); err != nil {
			_, _ = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT project_snapshot")
			r.log.Error("snapshot projection failed",
				"sessionId", session.ID(), "version", version, "error", err)
			return nil
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT project_snapshot"); err != nil {
			r.log.Error("snapshot savepoint release failed", "sessionId", session.ID(), "error", err)
			return nil
		}
		projected = version
		return nil
	})
	if err != nil {
		return app.SaveResult{}, err
	}

	session.MarkCommitted(version)
	return app.SaveResult{Version: version, ProjectedVersion: projected}, nil
}

// FindByID rehydrates a session by replaying its full event history. A nil
// session means not found.
func (r *SessionRepository) FindByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	rows, err := r.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	events, err := MapRows(sessionID, rows)
	if err != nil {
		return nil, err
	}
	return domain.NewSessionFromHistory(events)
}

// FindActiveByUser returns the owner's in-progress session, fully rehydrated.
// The snapshot only locates the id; replay decides the truth, so a lagging
// snapshot can never hand out a session that already finished.
func (r *SessionRepository) FindActiveByUser(ctx context.Context, ownerID string) (*domain.Session, error) {
	var sessionID string
	err := r.db.NewSelect().
		Model((*SessionSnapshotRow)(nil)).
		Column("session_id").
		Where("owner_id = ?", ownerID).
		Where("state = ?", string(domain.StateInProgress)).
		Limit(1).
		Scan(ctx, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "find active session", Err: err}
	}

	session, err := r.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.State() != domain.StateInProgress {
		return nil, nil
	}
	return session, nil
}

// FindExpiredSessions returns up to limit in-progress sessions whose deadline
// passed, each fully rehydrated by replay. Ids whose log disappeared are
// skipped.
func (r *SessionRepository) FindExpiredSessions(ctx context.Context, now time.Time, limit int) ([]*domain.Session, error) {
	var sessionIDs []string
	err := r.db.NewSelect().
		Model((*SessionSnapshotRow)(nil)).
		Column("session_id").
		Where("state = ?", string(domain.StateInProgress)).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", now).
		OrderExpr("expires_at ASC").
		Limit(limit).
		Scan(ctx, &sessionIDs)
	if err != nil {
		return nil, &domain.StorageError{Op: "find expired sessions", Err: err}
	}

	sessions := make([]*domain.Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		session, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if session == nil {
			r.log.Debug("expired snapshot without event log, skipping", "sessionId", id)
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// DeleteSession removes a session's events and snapshot. Administrative only.
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return r.store.DeleteSession(ctx, sessionID)
}
