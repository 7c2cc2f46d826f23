package postgres

import (
	"encoding/json"
	"sort"

	"quiz-session-service/internal/domain"
)

// MapRows converts stored rows into typed, validated domain events. The
// contract is all-or-nothing: one unknown type or malformed payload fails the
// entire batch, because a partially reconstructed session is worse than none.
func MapRows(sessionID string, rows []SessionEventRow) ([]domain.Event, error) {
	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		event, err := mapRow(sessionID, row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	// The store returns pre-ordered rows, but replay correctness depends on
	// ordering, so re-sort as a safety net against upstream reordering.
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Meta(), events[j].Meta()
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.OccurredAt.Before(b.OccurredAt)
	})
	return events, nil
}

func mapRow(sessionID string, row SessionEventRow) (domain.Event, error) {
	// The metadata columns, not the payload, are the source of truth for
	// ordering; the true sequence is restored onto the event explicitly.
	meta := domain.EventMeta{
		SessionID:  row.SessionID,
		Version:    row.Version,
		Sequence:   row.EventSequence,
		OccurredAt: row.OccurredAt,
	}

	switch eventType := domain.EventType(row.EventType); eventType {
	case domain.EventTypeQuizStarted:
		var event domain.QuizStarted
		if err := unmarshalPayload(sessionID, eventType, row.Payload, &event); err != nil {
			return nil, err
		}
		event.EventMeta = meta
		if bad := event.Validate(); len(bad) > 0 {
			return nil, &domain.InvalidPayloadError{SessionID: sessionID, EventType: eventType, Fields: bad}
		}
		return event, nil

	case domain.EventTypeAnswerSubmitted:
		var event domain.AnswerSubmitted
		if err := unmarshalPayload(sessionID, eventType, row.Payload, &event); err != nil {
			return nil, err
		}
		event.EventMeta = meta
		if bad := event.Validate(); len(bad) > 0 {
			return nil, &domain.InvalidPayloadError{SessionID: sessionID, EventType: eventType, Fields: bad}
		}
		return event, nil

	case domain.EventTypeQuizCompleted:
		var event domain.QuizCompleted
		if err := unmarshalPayload(sessionID, eventType, row.Payload, &event); err != nil {
			return nil, err
		}
		event.EventMeta = meta
		if bad := event.Validate(); len(bad) > 0 {
			return nil, &domain.InvalidPayloadError{SessionID: sessionID, EventType: eventType, Fields: bad}
		}
		return event, nil

	case domain.EventTypeQuizExpired:
		var event domain.QuizExpired
		if err := unmarshalPayload(sessionID, eventType, row.Payload, &event); err != nil {
			return nil, err
		}
		event.EventMeta = meta
		if bad := event.Validate(); len(bad) > 0 {
			return nil, &domain.InvalidPayloadError{SessionID: sessionID, EventType: eventType, Fields: bad}
		}
		return event, nil

	default:
		return nil, &domain.UnknownEventTypeError{SessionID: sessionID, EventType: row.EventType}
	}
}

func unmarshalPayload(sessionID string, eventType domain.EventType, payload []byte, dst interface{}) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return &domain.InvalidPayloadError{SessionID: sessionID, EventType: eventType, Err: err}
	}
	return nil
}
