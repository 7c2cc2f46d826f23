package domain

import (
	"testing"
	"time"
)

func TestEventIDIsDeterministic(t *testing.T) {
	meta := EventMeta{
		SessionID:  "session-1",
		Version:    3,
		Sequence:   2,
		OccurredAt: time.Now(),
	}
	if meta.EventID() != meta.EventID() {
		t.Fatalf("expected identical IDs for identical metadata")
	}

	// OccurredAt is not part of the identity; replay must reproduce the ID
	// even if clock precision differs.
	later := meta
	later.OccurredAt = meta.OccurredAt.Add(time.Hour)
	if meta.EventID() != later.EventID() {
		t.Fatalf("expected occurredAt to not affect identity")
	}

	other := meta
	other.Sequence = 3
	if meta.EventID() == other.EventID() {
		t.Fatalf("expected different sequence to produce a different ID")
	}
}

func TestQuizStartedValidation(t *testing.T) {
	e := QuizStarted{
		OwnerID:       "",
		QuestionCount: 2,
		QuestionIDs:   []string{"q1"},
	}
	bad := e.Validate()
	if len(bad) != 2 {
		t.Fatalf("expected 2 invalid fields, got %v", bad)
	}
	if bad[0] != "ownerId" || bad[1] != "questionIds" {
		t.Fatalf("unexpected diagnostics: %v", bad)
	}
}

func TestAnswerSubmittedValidation(t *testing.T) {
	e := AnswerSubmitted{
		AnswerID:          "a1",
		QuestionID:        "q1",
		SelectedOptionIDs: []string{"o1"},
		AnsweredAt:        time.Now(),
	}
	if bad := e.Validate(); len(bad) != 0 {
		t.Fatalf("expected valid payload, got %v", bad)
	}

	e.SelectedOptionIDs = nil
	e.AnsweredAt = time.Time{}
	bad := e.Validate()
	if len(bad) != 2 {
		t.Fatalf("expected 2 invalid fields, got %v", bad)
	}
}
