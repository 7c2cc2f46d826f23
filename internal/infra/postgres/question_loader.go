package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// QuestionLoader loads question JSONB from Postgres. It is usually wrapped by
// the Redis cache; both sides of the pair implement the same lookup contract.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) GetQuestionDetails(ctx context.Context, questionID string) (domain.QuestionDetails, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quiz_questions WHERE id=$1`, questionID).Scan(&raw)
	if err != nil {
		return domain.QuestionDetails{}, fmt.Errorf("load question %s: %w", questionID, err)
	}
	var details domain.QuestionDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return domain.QuestionDetails{}, fmt.Errorf("unmarshal question %s: %w", questionID, err)
	}
	details.ID = questionID
	return details, nil
}

// GetMultipleQuestionDetails fetches all requested questions in one query.
// Questions that do not exist are simply absent from the result map.
func (l *QuestionLoader) GetMultipleQuestionDetails(ctx context.Context, questionIDs []string) (map[string]domain.QuestionDetails, error) {
	result := make(map[string]domain.QuestionDetails, len(questionIDs))
	if len(questionIDs) == 0 {
		return result, nil
	}

	rows, err := l.pool.Query(ctx, `SELECT id, data FROM quiz_questions WHERE id = ANY($1)`, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var details domain.QuestionDetails
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, fmt.Errorf("unmarshal question %s: %w", id, err)
		}
		details.ID = id
		result[id] = details
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return result, nil
}
