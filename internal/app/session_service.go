package app

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logger"
)

// ErrSessionNotFound is returned by service commands targeting a session that
// has no events. The repositories themselves report absence as a nil result;
// the sentinel exists so command callers get a single obvious failure.
var ErrSessionNotFound = errors.New("quiz session not found")

// SaveResult reports the outcome of one save: Version is the durably appended
// aggregate version, ProjectedVersion the version the snapshot reflects. A
// ProjectedVersion behind Version means the projection is stale (the append
// still stands; the snapshot is rebuildable).
type SaveResult struct {
	Version          int64
	ProjectedVersion int64
}

// SessionRepository is the event-sourced persistence contract. Finders report
// "not found" as a nil session, never as an error.
type SessionRepository interface {
	Save(ctx context.Context, session *domain.Session) (SaveResult, error)
	FindByID(ctx context.Context, sessionID string) (*domain.Session, error)
	FindActiveByUser(ctx context.Context, ownerID string) (*domain.Session, error)
	FindExpiredSessions(ctx context.Context, now time.Time, limit int) ([]*domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	AverageScore(ctx context.Context) (domain.AverageScore, error)
	ListSessions(ctx context.Context, filter domain.ListFilter) (domain.SessionPage, error)
}

// QuestionDetailsRepository resolves correct-option sets for scoring.
type QuestionDetailsRepository interface {
	GetQuestionDetails(ctx context.Context, questionID string) (domain.QuestionDetails, error)
	GetMultipleQuestionDetails(ctx context.Context, questionIDs []string) (map[string]domain.QuestionDetails, error)
}

// SessionService contains the quiz session use cases on top of the
// event-sourced repository. Retrying after a concurrency conflict is left to
// callers: the conflict is surfaced as-is so they can reload and retry.
type SessionService struct {
	sessions SessionRepository
	log      *logger.Logger
	now      func() time.Time
	rnd      *rand.Rand
}

func NewSessionService(sessions SessionRepository, log *logger.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		log:      log,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// StartSession opens a new session for owner. At most one session per owner
// may be in progress; the check here is advisory, the partial unique index on
// the snapshot table enforces it across writers.
func (s *SessionService) StartSession(ctx context.Context, ownerID string, questionIDs []string, cfg domain.SessionConfig) (*domain.Session, error) {
	active, err := s.sessions.FindActiveByUser(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrActiveSessionExists
	}

	order := append([]string(nil), questionIDs...)
	if cfg.ShuffleQuestions {
		s.rnd.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	session, err := domain.StartQuiz(uuid.NewString(), ownerID, order, cfg, s.now())
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	s.log.Info("quiz session started",
		"sessionId", session.ID(), "ownerId", ownerID, "questions", len(order))
	return session, nil
}

// SubmitAnswer records one answer. Answering the final question completes the
// session within the same save.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID, questionID string, selectedOptionIDs []string) (*domain.Session, domain.Answer, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, domain.Answer{}, err
	}
	if session == nil {
		return nil, domain.Answer{}, ErrSessionNotFound
	}
	answer, err := session.SubmitAnswer(questionID, selectedOptionIDs, s.now())
	if err != nil {
		return nil, domain.Answer{}, err
	}
	if _, err := s.sessions.Save(ctx, session); err != nil {
		return nil, domain.Answer{}, err
	}
	return session, answer, nil
}

// CompleteSession closes a session early, before every question is answered.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.transition(ctx, sessionID, func(session *domain.Session) error {
		return session.Complete(s.now())
	})
}

// ExpireSession moves a session to EXPIRED.
func (s *SessionService) ExpireSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.transition(ctx, sessionID, func(session *domain.Session) error {
		return session.Expire(s.now())
	})
}

func (s *SessionService) transition(ctx context.Context, sessionID string, cmd func(*domain.Session) error) (*domain.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if err := cmd(session); err != nil {
		return nil, err
	}
	if _, err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession rehydrates a session from its event history. A nil session
// means not found.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.FindByID(ctx, sessionID)
}

// ActiveSession returns the owner's in-progress session, if any.
func (s *SessionService) ActiveSession(ctx context.Context, ownerID string) (*domain.Session, error) {
	return s.sessions.FindActiveByUser(ctx, ownerID)
}

// AverageScore returns the aggregated score over completed sessions.
func (s *SessionService) AverageScore(ctx context.Context) (domain.AverageScore, error) {
	return s.sessions.AverageScore(ctx)
}

// ListSessions returns one page of the admin listing.
func (s *SessionService) ListSessions(ctx context.Context, filter domain.ListFilter) (domain.SessionPage, error) {
	return s.sessions.ListSessions(ctx, filter)
}

// DeleteSession removes a session's events and snapshot. Administrative only.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.DeleteSession(ctx, sessionID)
}

// SweepExpired expires every in-progress session whose deadline passed,
// bounded by limit. Each candidate is fully rehydrated before the transition,
// so a snapshot that lagged behind the log cannot expire a session that
// already completed. Conflicts mean another writer got there first and are
// skipped, not failed.
func (s *SessionService) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	candidates, err := s.sessions.FindExpiredSessions(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, session := range candidates {
		if err := session.Expire(now); err != nil {
			// Replay says the session is no longer in progress; the
			// snapshot index was stale. Nothing to do.
			continue
		}
		if _, err := s.sessions.Save(ctx, session); err != nil {
			if domain.IsConflict(err) {
				s.log.Warn("expiry lost race, skipping", "sessionId", session.ID())
				continue
			}
			s.log.Error("expiry save failed", "sessionId", session.ID(), "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}
