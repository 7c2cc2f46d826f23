package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/domain"
)

// AverageScore computes the average completion score in a single round trip,
// pushed down to Postgres. Pulling rows into the application would mean
// unbounded memory and per-row rescoring work the projector already paid for
// at write time. An empty qualifying set yields 0, not an error.
func (r *SessionRepository) AverageScore(ctx context.Context) (domain.AverageScore, error) {
	var result domain.AverageScore
	err := r.db.NewSelect().
		Model((*SessionSnapshotRow)(nil)).
		ColumnExpr("COALESCE(ROUND(AVG(correct_answers::numeric / NULLIF(question_count, 0) * 100)), 0)::int").
		ColumnExpr("COUNT(*) FILTER (WHERE correct_answers IS NOT NULL)::int").
		ColumnExpr("COUNT(*)::int").
		Where("state = ?", string(domain.StateCompleted)).
		Scan(ctx, &result.Percent, &result.ScoredCount, &result.CompletedCount)
	if err != nil {
		return domain.AverageScore{}, &domain.StorageError{Op: "average score", Err: err}
	}
	return result, nil
}

// sessionListRow is the snapshot joined with owner identity for the listing.
type sessionListRow struct {
	bun.BaseModel `bun:"table:quiz_session_snapshots,alias:snap"`

	SessionID      string          `bun:"session_id"`
	OwnerID        string          `bun:"owner_id"`
	OwnerName      sql.NullString  `bun:"owner_name"`
	State          string          `bun:"state"`
	QuestionCount  int             `bun:"question_count"`
	CorrectAnswers *int            `bun:"correct_answers"`
	Answers        []domain.Answer `bun:"answers,type:jsonb"`
	StartedAt      time.Time       `bun:"started_at"`
	CompletedAt    *time.Time      `bun:"completed_at"`
	ExpiresAt      *time.Time      `bun:"expires_at"`
	Version        int64           `bun:"version"`
}

var listSortColumns = map[string]string{
	"started_at":   "snap.started_at",
	"completed_at": "snap.completed_at",
	"updated_at":   "snap.updated_at",
}

// ListSessions returns one offset/limit page of sessions for admin display.
// Scores use the precomputed column when present and are otherwise recomputed
// on the fly; a row whose question details are missing keeps a nil score and
// is logged, never failing the page.
//
// Offset pagination degrades at large offsets; good enough for the admin UI
// this serves.
func (r *SessionRepository) ListSessions(ctx context.Context, filter domain.ListFilter) (domain.SessionPage, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows []sessionListRow
	query := r.db.NewSelect().
		Model(&rows).
		ColumnExpr("snap.session_id, snap.owner_id, snap.state, snap.question_count").
		ColumnExpr("snap.correct_answers, snap.answers, snap.started_at").
		ColumnExpr("snap.completed_at, snap.expires_at, snap.version").
		ColumnExpr("usr.display_name AS owner_name").
		Join("LEFT JOIN quiz_users AS usr ON usr.id = snap.owner_id")

	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		query = query.Where("snap.state IN (?)", bun.In(states))
	}
	if filter.OwnerID != "" {
		query = query.Where("snap.owner_id = ?", filter.OwnerID)
	}
	if filter.StartedAfter != nil {
		query = query.Where("snap.started_at >= ?", *filter.StartedAfter)
	}
	if filter.StartedBefore != nil {
		query = query.Where("snap.started_at < ?", *filter.StartedBefore)
	}

	sortColumn, ok := listSortColumns[filter.SortBy]
	if !ok {
		sortColumn = "snap.started_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query = query.OrderExpr(sortColumn + " " + direction).
		Offset(filter.Offset).
		Limit(limit)

	total, err := query.ScanAndCount(ctx)
	if err != nil {
		return domain.SessionPage{}, &domain.StorageError{Op: "list sessions", Err: err}
	}

	items := make([]domain.SessionListItem, 0, len(rows))
	for _, row := range rows {
		item := domain.SessionListItem{
			SessionID:      row.SessionID,
			OwnerID:        row.OwnerID,
			State:          domain.State(row.State),
			QuestionCount:  row.QuestionCount,
			CorrectAnswers: row.CorrectAnswers,
			StartedAt:      row.StartedAt,
			CompletedAt:    row.CompletedAt,
			ExpiresAt:      row.ExpiresAt,
			Version:        row.Version,
		}
		if row.OwnerName.Valid {
			item.OwnerName = row.OwnerName.String
		}
		if item.CorrectAnswers == nil {
			item.CorrectAnswers = r.backfillScore(ctx, row)
		}
		items = append(items, item)
	}
	return domain.SessionPage{Items: items, Total: total}, nil
}

// backfillScore recomputes a missing precomputed score for one listing row
// using the same exact-match logic as the projector.
func (r *SessionRepository) backfillScore(ctx context.Context, row sessionListRow) *int {
	if domain.State(row.State) != domain.StateCompleted || len(row.Answers) == 0 {
		return nil
	}
	ids := answeredQuestionIDs(row.Answers)
	details, err := r.questions.GetMultipleQuestionDetails(ctx, ids)
	if err != nil {
		r.log.Warn("listing score backfill failed", "sessionId", row.SessionID, "error", err)
		return nil
	}
	for _, id := range ids {
		if _, ok := details[id]; !ok {
			r.log.Warn("listing score backfill missing question",
				"sessionId", row.SessionID, "questionId", id)
			return nil
		}
	}
	score := domain.CountCorrectAnswers(row.Answers, details)
	return &score
}
