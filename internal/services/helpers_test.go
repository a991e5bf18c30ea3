package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"studymate-backend/internal/models"
	"studymate-backend/internal/repository"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []models.WSMessage
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, msg models.WSMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *recordingPublisher) ofType(t string) []models.WSMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.WSMessage
	for _, m := range p.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStudyRepo() *repository.StudyRepo {
	repo := repository.NewStudyRepo(repository.NewMemoryStore(), zap.NewNop())
	repo.SetClock(func() time.Time { return fixedNow })
	return repo
}

func seedQuiz(repo *repository.StudyRepo, userID string) models.Quiz {
	quiz := models.Quiz{
		ID:    "quiz-1",
		Title: "Quiz: Cats",
		Topic: "Cats",
		Questions: []models.Question{
			{ID: "q1", Type: models.QuestionMCQ, Question: "Sound?", Options: []string{"bark", "meow"}, CorrectAnswer: models.IndexAnswer(1), Points: models.MCQPoints},
			{ID: "q2", Type: models.QuestionSubjective, Question: "Baby cat?", CorrectAnswer: models.TextAnswer("Kitten"), Points: models.SubjectivePoints},
			{ID: "q3", Type: models.QuestionMCQ, Question: "Legs?", Options: []string{"2", "4", "6"}, CorrectAnswer: models.IndexAnswer(1), Points: models.MCQPoints},
		},
		Difficulty: models.DifficultyMedium,
		TimeLimit:  180,
		Language:   "english",
	}
	repo.SaveQuiz(context.Background(), userID, quiz)
	return quiz
}
