package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is the quiz session aggregate. All business state derives purely
// from its event history; commands stage new events in an uncommitted buffer
// that persistence drains via UncommittedEvents and acknowledges with
// MarkCommitted.
type Session struct {
	id          string
	ownerID     string
	state       State
	version     int64
	config      SessionConfig
	questionIDs []string
	answers     []Answer
	startedAt   time.Time
	completedAt *time.Time
	expiredAt   *time.Time

	uncommitted []Event
}

// StartQuiz creates a new session and stages its QuizStarted event at
// version 1, sequence 1.
func StartQuiz(sessionID, ownerID string, questionIDs []string, config SessionConfig, now time.Time) (*Session, error) {
	s := &Session{id: sessionID}
	e := QuizStarted{
		EventMeta: EventMeta{
			SessionID:  sessionID,
			Version:    1,
			Sequence:   1,
			OccurredAt: now,
		},
		OwnerID:       ownerID,
		QuestionCount: len(questionIDs),
		QuestionIDs:   append([]string(nil), questionIDs...),
		Config:        config,
	}
	if bad := e.Validate(); len(bad) > 0 {
		return nil, &InvalidPayloadError{SessionID: sessionID, EventType: e.Type(), Fields: bad}
	}
	s.record(e)
	return s, nil
}

// NewSessionFromHistory rehydrates a session by replaying its full event
// list. The caller is expected to pass events already ordered by
// (version, sequence); replay itself is a pure fold.
func NewSessionFromHistory(events []Event) (*Session, error) {
	if len(events) == 0 {
		return nil, ErrEmptyHistory
	}
	s := &Session{id: events[0].Meta().SessionID}
	for _, e := range events {
		s.apply(e)
	}
	return s, nil
}

// SubmitAnswer stages an AnswerSubmitted event. Valid only while the session
// is in progress, for a question that belongs to the session and has not been
// answered yet. The generated answer ID is captured in the payload so replay
// reproduces it.
func (s *Session) SubmitAnswer(questionID string, selectedOptionIDs []string, now time.Time) (Answer, error) {
	if s.state != StateInProgress {
		return Answer{}, ErrQuizNotInProgress
	}
	if !s.hasQuestion(questionID) {
		return Answer{}, ErrQuestionNotInQuiz
	}
	for _, a := range s.answers {
		if a.QuestionID == questionID {
			return Answer{}, ErrQuestionAlreadyAnswered
		}
	}
	e := AnswerSubmitted{
		EventMeta: EventMeta{
			SessionID:  s.id,
			Version:    s.version + 1,
			Sequence:   1,
			OccurredAt: now,
		},
		AnswerID:          uuid.NewString(),
		QuestionID:        questionID,
		SelectedOptionIDs: append([]string(nil), selectedOptionIDs...),
		AnsweredAt:        now,
	}
	if bad := e.Validate(); len(bad) > 0 {
		return Answer{}, &InvalidPayloadError{SessionID: s.id, EventType: e.Type(), Fields: bad}
	}
	s.record(e)
	answer := s.answers[len(s.answers)-1]

	// The final answer completes the quiz within the same command: both
	// events share a version and the sequence advances instead.
	if len(s.answers) == len(s.questionIDs) {
		s.record(QuizCompleted{
			EventMeta: EventMeta{
				SessionID:  s.id,
				Version:    e.Version,
				Sequence:   2,
				OccurredAt: now,
			},
			AnsweredCount: len(s.answers),
			TotalCount:    len(s.questionIDs),
		})
	}
	return answer, nil
}

// Complete stages a QuizCompleted event, moving the session to its terminal
// COMPLETED state.
func (s *Session) Complete(now time.Time) error {
	if !s.state.CanTransition(StateCompleted) {
		return ErrQuizNotInProgress
	}
	s.record(QuizCompleted{
		EventMeta: EventMeta{
			SessionID:  s.id,
			Version:    s.version + 1,
			Sequence:   1,
			OccurredAt: now,
		},
		AnsweredCount: len(s.answers),
		TotalCount:    len(s.questionIDs),
	})
	return nil
}

// Expire stages a QuizExpired event, moving the session to its terminal
// EXPIRED state.
func (s *Session) Expire(now time.Time) error {
	if !s.state.CanTransition(StateExpired) {
		return ErrQuizNotInProgress
	}
	s.record(QuizExpired{
		EventMeta: EventMeta{
			SessionID:  s.id,
			Version:    s.version + 1,
			Sequence:   1,
			OccurredAt: now,
		},
		ExpiredAt: now,
	})
	return nil
}

func (s *Session) record(e Event) {
	s.apply(e)
	s.uncommitted = append(s.uncommitted, e)
}

// apply folds one event into the derived state. Commands validated the event
// before it was ever recorded, so replay applies unconditionally.
func (s *Session) apply(e Event) {
	meta := e.Meta()
	if meta.Version > s.version {
		s.version = meta.Version
	}
	switch evt := e.(type) {
	case QuizStarted:
		s.ownerID = evt.OwnerID
		s.state = StateInProgress
		s.config = evt.Config
		s.questionIDs = append([]string(nil), evt.QuestionIDs...)
		s.startedAt = meta.OccurredAt
	case AnswerSubmitted:
		s.answers = append(s.answers, Answer{
			ID:                evt.AnswerID,
			QuestionID:        evt.QuestionID,
			SelectedOptionIDs: append([]string(nil), evt.SelectedOptionIDs...),
			AnsweredAt:        evt.AnsweredAt,
		})
	case QuizCompleted:
		s.state = StateCompleted
		at := meta.OccurredAt
		s.completedAt = &at
	case QuizExpired:
		s.state = StateExpired
		at := evt.ExpiredAt
		s.expiredAt = &at
	}
}

// UncommittedEvents returns a copy of the staged, not-yet-persisted events.
func (s *Session) UncommittedEvents() []Event {
	return append([]Event(nil), s.uncommitted...)
}

// MarkCommitted drains the staged buffer once persistence has durably written
// every event up to version.
func (s *Session) MarkCommitted(version int64) {
	remaining := s.uncommitted[:0]
	for _, e := range s.uncommitted {
		if e.Meta().Version > version {
			remaining = append(remaining, e)
		}
	}
	s.uncommitted = remaining
}

func (s *Session) hasQuestion(questionID string) bool {
	for _, id := range s.questionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// ExpiresAt derives the session deadline: the configured time limit when set,
// otherwise the fallback limit when positive, otherwise no deadline at all.
func (s *Session) ExpiresAt(fallback time.Duration) (time.Time, bool) {
	if limit, ok := s.config.TimeLimit(); ok {
		return s.startedAt.Add(limit), true
	}
	if fallback > 0 {
		return s.startedAt.Add(fallback), true
	}
	return time.Time{}, false
}

func (s *Session) ID() string             { return s.id }
func (s *Session) OwnerID() string        { return s.ownerID }
func (s *Session) State() State           { return s.state }
func (s *Session) Version() int64         { return s.version }
func (s *Session) Config() SessionConfig  { return s.config }
func (s *Session) StartedAt() time.Time   { return s.startedAt }
func (s *Session) CompletedAt() *time.Time { return s.completedAt }
func (s *Session) ExpiredAt() *time.Time  { return s.expiredAt }
func (s *Session) QuestionCount() int     { return len(s.questionIDs) }

// QuestionIDs returns the frozen question order.
func (s *Session) QuestionIDs() []string {
	return append([]string(nil), s.questionIDs...)
}

// Answers returns the submitted answers in submission order.
func (s *Session) Answers() []Answer {
	return append([]Answer(nil), s.answers...)
}
