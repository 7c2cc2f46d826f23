package postgres

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/domain"
)

// SessionEventRow is one stored event. The composite primary key doubles as
// the optimistic concurrency control: two writers racing on the same
// (session_id, version, event_sequence) collide on insert and at most one wins.
type SessionEventRow struct {
	bun.BaseModel `bun:"table:quiz_session_events,alias:evt"`

	SessionID     string          `bun:"session_id,pk"`
	Version       int64           `bun:"version,pk"`
	EventSequence int             `bun:"event_sequence,pk"`
	EventType     string          `bun:"event_type,notnull"`
	Payload       json.RawMessage `bun:"payload,type:jsonb"`
	OccurredAt    time.Time       `bun:"occurred_at,notnull"`
}

// SessionSnapshotRow is the denormalized read row, keyed by session. It is a
// rebuildable cache of the event log, never the authoritative source.
type SessionSnapshotRow struct {
	bun.BaseModel `bun:"table:quiz_session_snapshots,alias:snap"`

	SessionID            string               `bun:"session_id,pk"`
	OwnerID              string               `bun:"owner_id,notnull"`
	State                string               `bun:"state,notnull"`
	QuestionCount        int                  `bun:"question_count,notnull"`
	CurrentQuestionIndex int                  `bun:"current_question_index,notnull"`
	StartedAt            time.Time            `bun:"started_at,notnull"`
	ExpiresAt            *time.Time           `bun:"expires_at"`
	CompletedAt          *time.Time           `bun:"completed_at"`
	Version              int64                `bun:"version,notnull"`
	Config               domain.SessionConfig `bun:"config,type:jsonb"`
	QuestionOrder        []string             `bun:"question_order,type:jsonb"`
	Answers              []domain.Answer      `bun:"answers,type:jsonb"`
	CorrectAnswers       *int                 `bun:"correct_answers"`
	UpdatedAt            time.Time            `bun:"updated_at,notnull"`
}

// UserRow is the identity data joined into the admin listing.
type UserRow struct {
	bun.BaseModel `bun:"table:quiz_users,alias:usr"`

	ID          string `bun:"id,pk"`
	DisplayName string `bun:"display_name,notnull"`
}
