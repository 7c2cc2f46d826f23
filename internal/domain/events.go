package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names one of the known quiz session events.
type EventType string

const (
	EventTypeQuizStarted     EventType = "quiz.started"
	EventTypeAnswerSubmitted EventType = "quiz.answer_submitted"
	EventTypeQuizCompleted   EventType = "quiz.completed"
	EventTypeQuizExpired     EventType = "quiz.expired"
)

// eventIDNamespace anchors the content-derived event identity. Changing it
// changes every derived ID, so it is fixed forever.
var eventIDNamespace = uuid.MustParse("9f2c8a46-3d1b-4a6e-8f0d-5b7c21d94e63")

// EventMeta is the ordering and identity metadata shared by every event.
// Version increases per accepted command; Sequence increases within a version
// for multi-event commands, starting at 1.
type EventMeta struct {
	SessionID  string
	Version    int64
	Sequence   int
	OccurredAt time.Time
}

// Meta returns the event metadata. Promoted onto every variant.
func (m EventMeta) Meta() EventMeta { return m }

// EventID derives a stable identity from (sessionID, version, sequence).
// Replaying the same stored row always yields the same ID.
func (m EventMeta) EventID() string {
	key := fmt.Sprintf("%s:%d:%d", m.SessionID, m.Version, m.Sequence)
	return uuid.NewSHA1(eventIDNamespace, []byte(key)).String()
}

func (EventMeta) isEvent() {}

// Event is the closed union of quiz session events. The only variants are
// QuizStarted, AnswerSubmitted, QuizCompleted and QuizExpired; consumers
// dispatch with an exhaustive type switch.
type Event interface {
	Meta() EventMeta
	Type() EventType
	isEvent()
}

// QuizStarted opens a session: the owner, the frozen question order and the
// configuration captured at start time.
type QuizStarted struct {
	EventMeta `json:"-"`

	OwnerID       string        `json:"ownerId"`
	QuestionCount int           `json:"questionCount"`
	QuestionIDs   []string      `json:"questionIds"`
	Config        SessionConfig `json:"config"`
}

func (QuizStarted) Type() EventType { return EventTypeQuizStarted }

// Validate returns the names of payload fields that fail schema checks.
func (e QuizStarted) Validate() []string {
	var bad []string
	if e.OwnerID == "" {
		bad = append(bad, "ownerId")
	}
	if e.QuestionCount <= 0 {
		bad = append(bad, "questionCount")
	}
	if len(e.QuestionIDs) == 0 || len(e.QuestionIDs) != e.QuestionCount {
		bad = append(bad, "questionIds")
	}
	return bad
}

// AnswerSubmitted records one answer to one question.
type AnswerSubmitted struct {
	EventMeta `json:"-"`

	AnswerID          string    `json:"answerId"`
	QuestionID        string    `json:"questionId"`
	SelectedOptionIDs []string  `json:"selectedOptionIds"`
	AnsweredAt        time.Time `json:"answeredAt"`
}

func (AnswerSubmitted) Type() EventType { return EventTypeAnswerSubmitted }

func (e AnswerSubmitted) Validate() []string {
	var bad []string
	if e.AnswerID == "" {
		bad = append(bad, "answerId")
	}
	if e.QuestionID == "" {
		bad = append(bad, "questionId")
	}
	if len(e.SelectedOptionIDs) == 0 {
		bad = append(bad, "selectedOptionIds")
	}
	if e.AnsweredAt.IsZero() {
		bad = append(bad, "answeredAt")
	}
	return bad
}

// QuizCompleted closes the session normally.
type QuizCompleted struct {
	EventMeta `json:"-"`

	AnsweredCount int `json:"answeredCount"`
	TotalCount    int `json:"totalCount"`
}

func (QuizCompleted) Type() EventType { return EventTypeQuizCompleted }

func (e QuizCompleted) Validate() []string {
	var bad []string
	if e.AnsweredCount < 0 {
		bad = append(bad, "answeredCount")
	}
	if e.TotalCount <= 0 {
		bad = append(bad, "totalCount")
	}
	return bad
}

// QuizExpired closes the session because its time limit ran out.
type QuizExpired struct {
	EventMeta `json:"-"`

	ExpiredAt time.Time `json:"expiredAt"`
}

func (QuizExpired) Type() EventType { return EventTypeQuizExpired }

func (e QuizExpired) Validate() []string {
	if e.ExpiredAt.IsZero() {
		return []string{"expiredAt"}
	}
	return nil
}
