package domain

import "testing"

func TestCountCorrectAnswers(t *testing.T) {
	details := map[string]QuestionDetails{
		"q1": {ID: "q1", CorrectOptionIDs: []string{"o2"}},
		"q2": {ID: "q2", CorrectOptionIDs: []string{"o1", "o3"}},
	}

	tests := []struct {
		name    string
		answers []Answer
		want    int
	}{
		{
			name: "all correct",
			answers: []Answer{
				{QuestionID: "q1", SelectedOptionIDs: []string{"o2"}},
				{QuestionID: "q2", SelectedOptionIDs: []string{"o3", "o1"}},
			},
			want: 2,
		},
		{
			name: "zero matches",
			answers: []Answer{
				{QuestionID: "q1", SelectedOptionIDs: []string{"o1"}},
				{QuestionID: "q2", SelectedOptionIDs: []string{"o1"}},
			},
			want: 0,
		},
		{
			name:    "no answers",
			answers: nil,
			want:    0,
		},
		{
			name: "partial selection is wrong",
			answers: []Answer{
				{QuestionID: "q2", SelectedOptionIDs: []string{"o1"}},
			},
			want: 0,
		},
		{
			name: "superset selection is wrong",
			answers: []Answer{
				{QuestionID: "q1", SelectedOptionIDs: []string{"o2", "o3"}},
			},
			want: 0,
		},
		{
			name: "duplicate selections do not double count",
			answers: []Answer{
				{QuestionID: "q2", SelectedOptionIDs: []string{"o1", "o1"}},
			},
			want: 0,
		},
		{
			name: "unknown question is skipped",
			answers: []Answer{
				{QuestionID: "q9", SelectedOptionIDs: []string{"o1"}},
				{QuestionID: "q1", SelectedOptionIDs: []string{"o2"}},
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountCorrectAnswers(tt.answers, details); got != tt.want {
				t.Fatalf("expected %d correct, got %d", tt.want, got)
			}
		})
	}
}
