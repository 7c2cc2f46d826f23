package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logger"
)

// Projector maintains the denormalized snapshot row for a session, including
// the write-time score precomputation. It returns errors to its caller; the
// repository decides that they are advisory.
type Projector struct {
	questions     app.QuestionDetailsRepository
	fallbackLimit time.Duration
	log           *logger.Logger
	now           func() time.Time
}

func NewProjector(questions app.QuestionDetailsRepository, fallbackLimit time.Duration, log *logger.Logger) *Projector {
	return &Projector{
		questions:     questions,
		fallbackLimit: fallbackLimit,
		log:           log,
		now:           time.Now,
	}
}

// Project upserts the session's snapshot inside the given transaction.
func (p *Projector) Project(ctx context.Context, idb bun.IDB, session *domain.Session) error {
	row := p.BuildSnapshot(ctx, session)
	_, err := idb.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("owner_id = EXCLUDED.owner_id").
		Set("state = EXCLUDED.state").
		Set("question_count = EXCLUDED.question_count").
		Set("current_question_index = EXCLUDED.current_question_index").
		Set("started_at = EXCLUDED.started_at").
		Set("expires_at = EXCLUDED.expires_at").
		Set("completed_at = EXCLUDED.completed_at").
		Set("version = EXCLUDED.version").
		Set("config = EXCLUDED.config").
		Set("question_order = EXCLUDED.question_order").
		Set("answers = EXCLUDED.answers").
		Set("correct_answers = EXCLUDED.correct_answers").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// BuildSnapshot derives the read row from the aggregate.
func (p *Projector) BuildSnapshot(ctx context.Context, session *domain.Session) *SessionSnapshotRow {
	answers := session.Answers()

	// current_question_index is the count of submitted answers, clamped to
	// stay within [0, questionCount).
	index := len(answers)
	if count := session.QuestionCount(); index >= count && count > 0 {
		index = count - 1
	}

	row := &SessionSnapshotRow{
		SessionID:            session.ID(),
		OwnerID:              session.OwnerID(),
		State:                string(session.State()),
		QuestionCount:        session.QuestionCount(),
		CurrentQuestionIndex: index,
		StartedAt:            session.StartedAt(),
		CompletedAt:          session.CompletedAt(),
		Version:              session.Version(),
		Config:               session.Config(),
		QuestionOrder:        session.QuestionIDs(),
		Answers:              answers,
		UpdatedAt:            p.now(),
	}
	if at, ok := session.ExpiresAt(p.fallbackLimit); ok {
		row.ExpiresAt = &at
	}
	if session.State() == domain.StateCompleted && len(answers) > 0 {
		row.CorrectAnswers = p.precomputeScore(ctx, session.ID(), answers)
	}
	return row
}

// precomputeScore resolves all involved questions in one batched call and
// counts exact matches. Any lookup failure yields nil: the score can be
// backfilled lazily on read instead of blocking the write.
func (p *Projector) precomputeScore(ctx context.Context, sessionID string, answers []domain.Answer) *int {
	ids := answeredQuestionIDs(answers)
	details, err := p.questions.GetMultipleQuestionDetails(ctx, ids)
	if err != nil {
		p.log.Warn("score precompute skipped, question details unavailable",
			"sessionId", sessionID, "error", err)
		return nil
	}
	for _, id := range ids {
		if _, ok := details[id]; !ok {
			p.log.Warn("score precompute skipped, question missing",
				"sessionId", sessionID, "questionId", id)
			return nil
		}
	}
	score := domain.CountCorrectAnswers(answers, details)
	return &score
}

func answeredQuestionIDs(answers []domain.Answer) []string {
	seen := make(map[string]struct{}, len(answers))
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		if _, ok := seen[a.QuestionID]; ok {
			continue
		}
		seen[a.QuestionID] = struct{}{}
		ids = append(ids, a.QuestionID)
	}
	return ids
}
