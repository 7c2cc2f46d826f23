package domain

import "time"

// SessionConfig is the immutable configuration captured when a quiz starts.
// It is stored verbatim inside the QuizStarted payload and in the snapshot row.
type SessionConfig struct {
	TimeLimitSeconds int  `json:"timeLimitSeconds,omitempty"`
	ShuffleQuestions bool `json:"shuffleQuestions,omitempty"`
	PassThreshold    int  `json:"passThreshold,omitempty"`
}

// TimeLimit returns the configured limit, if any.
func (c SessionConfig) TimeLimit() (time.Duration, bool) {
	if c.TimeLimitSeconds <= 0 {
		return 0, false
	}
	return time.Duration(c.TimeLimitSeconds) * time.Second, true
}

// Answer is a submitted answer as derived from the event log.
type Answer struct {
	ID                string    `json:"id"`
	QuestionID        string    `json:"questionId"`
	SelectedOptionIDs []string  `json:"selectedOptionIds"`
	AnsweredAt        time.Time `json:"answeredAt"`
}

// QuestionDetails carries the correct-option set used for scoring.
type QuestionDetails struct {
	ID               string   `json:"id"`
	CorrectOptionIDs []string `json:"correctOptionIds"`
}

// AverageScore is the result of the pushed-down aggregation over completed sessions.
type AverageScore struct {
	Percent        int
	ScoredCount    int
	CompletedCount int
}

// SessionListItem is one row of the admin listing, joined with owner identity.
// CorrectAnswers stays nil when scoring was not possible for the row.
type SessionListItem struct {
	SessionID      string
	OwnerID        string
	OwnerName      string
	State          State
	QuestionCount  int
	CorrectAnswers *int
	StartedAt      time.Time
	CompletedAt    *time.Time
	ExpiresAt      *time.Time
	Version        int64
}

// ListFilter narrows and orders the admin listing.
type ListFilter struct {
	States        []State
	OwnerID       string
	StartedAfter  *time.Time
	StartedBefore *time.Time
	SortBy        string // started_at, completed_at or updated_at
	SortDesc      bool
	Offset        int
	Limit         int
}

// SessionPage is one page of the admin listing plus the unpaginated total.
type SessionPage struct {
	Items []SessionListItem
	Total int
}
