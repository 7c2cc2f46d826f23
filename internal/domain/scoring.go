package domain

// CountCorrectAnswers counts answers whose selected options exactly match the
// question's correct-option set. Answers for questions missing from details
// simply do not count; callers decide whether a missing question is an error.
func CountCorrectAnswers(answers []Answer, details map[string]QuestionDetails) int {
	correct := 0
	for _, a := range answers {
		d, ok := details[a.QuestionID]
		if !ok {
			continue
		}
		if sameOptionSet(a.SelectedOptionIDs, d.CorrectOptionIDs) {
			correct++
		}
	}
	return correct
}

// sameOptionSet compares two option ID lists as sets.
func sameOptionSet(selected, correct []string) bool {
	if len(correct) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(correct))
	for _, id := range correct {
		set[id] = struct{}{}
	}
	if len(selected) != len(set) {
		return false
	}
	seen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
