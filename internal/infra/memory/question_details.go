package memory

import (
	"context"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// StaticQuestionDetails is a map-backed question lookup (useful for tests/demos).
type StaticQuestionDetails struct {
	questions map[string]domain.QuestionDetails
}

var _ app.QuestionDetailsRepository = (*StaticQuestionDetails)(nil)

func NewStaticQuestionDetails(questions map[string]domain.QuestionDetails) *StaticQuestionDetails {
	return &StaticQuestionDetails{questions: questions}
}

func (s *StaticQuestionDetails) GetQuestionDetails(_ context.Context, questionID string) (domain.QuestionDetails, error) {
	if details, ok := s.questions[questionID]; ok {
		return details, nil
	}
	return domain.QuestionDetails{}, domain.ErrQuestionNotFound
}

func (s *StaticQuestionDetails) GetMultipleQuestionDetails(_ context.Context, questionIDs []string) (map[string]domain.QuestionDetails, error) {
	result := make(map[string]domain.QuestionDetails, len(questionIDs))
	for _, id := range questionIDs {
		if details, ok := s.questions[id]; ok {
			result[id] = details
		}
	}
	return result, nil
}
