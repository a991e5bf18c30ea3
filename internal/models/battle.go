package models

import "time"

type BattleStatus string

const (
	BattleActive   BattleStatus = "active"
	BattleFinished BattleStatus = "finished"
)

type BattleRound struct {
	QuestionIndex   int  `json:"questionIndex"`
	PlayerCorrect   bool `json:"playerCorrect"`
	OpponentCorrect bool `json:"opponentCorrect"`
}

type Battle struct {
	ID            string        `json:"id"`
	QuizID        string        `json:"quizId"`
	Topic         string        `json:"topic"`
	Opponent      string        `json:"opponent"`
	Status        BattleStatus  `json:"status"`
	CurrentIndex  int           `json:"currentIndex"`
	TotalRounds   int           `json:"totalRounds"`
	PlayerScore   int           `json:"playerScore"`
	OpponentScore int           `json:"opponentScore"`
	Rounds        []BattleRound `json:"rounds"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
}

type BattleRecord struct {
	ID            string    `json:"id"`
	QuizID        string    `json:"quizId"`
	Topic         string    `json:"topic"`
	Opponent      string    `json:"opponent"`
	PlayerScore   int       `json:"playerScore"`
	OpponentScore int       `json:"opponentScore"`
	Won           bool      `json:"won"`
	FinishedAt    time.Time `json:"finishedAt"`
}

type StartBattleRequest struct {
	QuizID string `json:"quizId"`
}

type BattleAnswerRequest struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        Answer `json:"answer"`
}
