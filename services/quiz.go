package services

import (
	"github.com/google/uuid"

	"github.com/vinakademin/vinakademin-backend/models"
)

// Answer is one submitted answer; SelectedOptionIDs may hold several ids
// for questions with more than one correct option.
type Answer struct {
	QuestionID        uuid.UUID   `json:"question_id" binding:"required"`
	SelectedOptionIDs []uuid.UUID `json:"option_ids"`
}

type QuestionResult struct {
	QuestionID       uuid.UUID   `json:"question_id"`
	Correct          bool        `json:"correct"`
	CorrectOptionIDs []uuid.UUID `json:"correct_option_ids"`
	Explanation      string      `json:"explanation,omitempty"`
}

type QuizResult struct {
	Score   int              `json:"score"`
	Total   int              `json:"total"`
	Percent int              `json:"percent"`
	Passed  bool             `json:"passed"`
	Results []QuestionResult `json:"results"`
}

// ScoreQuiz grades answers against the quiz's questions. A question counts
// as correct only when the selected set equals the set of correct options.
// Unanswered questions count as wrong; answers to unknown questions are ignored.
func ScoreQuiz(quiz *models.Quiz, answers []Answer) QuizResult {
	byQuestion := make(map[uuid.UUID][]uuid.UUID, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.SelectedOptionIDs
	}

	res := QuizResult{Total: len(quiz.Questions), Results: make([]QuestionResult, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		correct := make(map[uuid.UUID]bool)
		var correctIDs []uuid.UUID
		for _, o := range q.Options {
			if o.IsCorrect {
				correct[o.ID] = true
				correctIDs = append(correctIDs, o.ID)
			}
		}

		selected, answered := byQuestion[q.ID]
		ok := answered && len(correct) > 0
		seen := make(map[uuid.UUID]bool, len(selected))
		for _, id := range selected {
			if !correct[id] {
				ok = false
			}
			seen[id] = true
		}
		if len(seen) != len(correct) {
			ok = false
		}

		if ok {
			res.Score++
		}
		res.Results = append(res.Results, QuestionResult{
			QuestionID:       q.ID,
			Correct:          ok,
			CorrectOptionIDs: correctIDs,
			Explanation:      q.Explanation,
		})
	}

	if res.Total > 0 {
		res.Percent = res.Score * 100 / res.Total
	}
	pass := quiz.PassPercent
	if pass <= 0 {
		pass = 70
	}
	res.Passed = res.Total > 0 && res.Percent >= pass
	return res
}
