package postgres

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

var mapperStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func eventRow(t *testing.T, sessionID string, version int64, sequence int, eventType string, payload interface{}) SessionEventRow {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return SessionEventRow{
		SessionID:     sessionID,
		Version:       version,
		EventSequence: sequence,
		EventType:     eventType,
		Payload:       data,
		OccurredAt:    mapperStart.Add(time.Duration(version) * time.Minute),
	}
}

func sampleRows(t *testing.T) []SessionEventRow {
	t.Helper()
	return []SessionEventRow{
		eventRow(t, "s1", 1, 1, "quiz.started", domain.QuizStarted{
			OwnerID:       "owner-1",
			QuestionCount: 2,
			QuestionIDs:   []string{"q1", "q2"},
		}),
		eventRow(t, "s1", 2, 1, "quiz.answer_submitted", domain.AnswerSubmitted{
			AnswerID:          "a1",
			QuestionID:        "q1",
			SelectedOptionIDs: []string{"o2"},
			AnsweredAt:        mapperStart.Add(time.Minute),
		}),
		eventRow(t, "s1", 3, 1, "quiz.answer_submitted", domain.AnswerSubmitted{
			AnswerID:          "a2",
			QuestionID:        "q2",
			SelectedOptionIDs: []string{"o1"},
			AnsweredAt:        mapperStart.Add(2 * time.Minute),
		}),
		eventRow(t, "s1", 3, 2, "quiz.completed", domain.QuizCompleted{
			AnsweredCount: 2,
			TotalCount:    2,
		}),
	}
}

func TestMapRowsRestoresOrderingMetadata(t *testing.T) {
	events, err := MapRows("s1", sampleRows(t))
	if err != nil {
		t.Fatalf("map rows: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	// The stored payload carries no metadata at all; it must be restored
	// from the row columns.
	meta := events[3].Meta()
	if meta.SessionID != "s1" || meta.Version != 3 || meta.Sequence != 2 {
		t.Fatalf("metadata not restored: %+v", meta)
	}
}

func TestMapRowsSortsUnorderedInput(t *testing.T) {
	rows := sampleRows(t)
	shuffled := []SessionEventRow{rows[3], rows[1], rows[0], rows[2]}

	events, err := MapRows("s1", shuffled)
	if err != nil {
		t.Fatalf("map rows: %v", err)
	}
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1].Meta(), events[i].Meta()
		if prev.Version > cur.Version ||
			(prev.Version == cur.Version && prev.Sequence > cur.Sequence) {
			t.Fatalf("events not sorted at index %d: %+v then %+v", i, prev, cur)
		}
	}

	replayed, err := domain.NewSessionFromHistory(events)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.State() != domain.StateCompleted || replayed.Version() != 3 {
		t.Fatalf("unexpected terminal state %s version %d", replayed.State(), replayed.Version())
	}
}

func TestMapRowsUnknownEventTypeFailsBatch(t *testing.T) {
	rows := sampleRows(t)
	rows = append(rows, eventRow(t, "s1", 4, 1, "quiz.teleported", map[string]string{}))

	_, err := MapRows("s1", rows)
	var unknown *domain.UnknownEventTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEventTypeError, got %v", err)
	}
	if unknown.SessionID != "s1" || unknown.EventType != "quiz.teleported" {
		t.Fatalf("error missing context: %+v", unknown)
	}
	if !strings.Contains(err.Error(), "s1") || !strings.Contains(err.Error(), "quiz.teleported") {
		t.Fatalf("message should name session and type: %v", err)
	}
}

func TestMapRowsInvalidPayloadFailsBatch(t *testing.T) {
	rows := []SessionEventRow{
		// quiz.started missing its required fields
		eventRow(t, "s1", 1, 1, "quiz.started", map[string]interface{}{
			"questionCount": 2,
		}),
	}

	_, err := MapRows("s1", rows)
	var invalid *domain.InvalidPayloadError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPayloadError, got %v", err)
	}
	if invalid.EventType != domain.EventTypeQuizStarted {
		t.Fatalf("error should name the event type, got %s", invalid.EventType)
	}
	if len(invalid.Fields) == 0 {
		t.Fatalf("expected field-level diagnostics")
	}
}

func TestMapRowsMalformedJSONFailsBatch(t *testing.T) {
	rows := sampleRows(t)
	rows[1].Payload = []byte(`{not-json`)

	_, err := MapRows("s1", rows)
	var invalid *domain.InvalidPayloadError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPayloadError, got %v", err)
	}
}
