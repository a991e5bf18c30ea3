package models

import "time"

type UserProfile struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Points           int    `json:"points"`
	Level            int    `json:"level"`
	Streak           int    `json:"streak"`
	StudyTime        int    `json:"studyTime"`
	QuizzesTaken     int    `json:"quizzesTaken"`
	BattlesWon       int    `json:"battlesWon"`
	LastActivityDate string `json:"lastActivityDate,omitempty"`
}

type ActivityType string

const (
	ActivityStudy  ActivityType = "study"
	ActivityQuiz   ActivityType = "quiz"
	ActivityBattle ActivityType = "battle"
	ActivityLive   ActivityType = "live"
)

type Activity struct {
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Title     string       `json:"title"`
	Points    int          `json:"points"`
	Timestamp time.Time    `json:"timestamp"`
}

type QuizResult struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quizId"`
	Title       string    `json:"title"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"maxScore"`
	TimeTaken   int       `json:"timeTaken"`
	CompletedAt time.Time `json:"completedAt"`
}

type SubmitQuizResultRequest struct {
	Answers   []Answer `json:"answers"`
	TimeTaken int      `json:"timeTaken"`
}

type StudyTimeRequest struct {
	Minutes int `json:"minutes"`
}

type UserStats struct {
	Profile         UserProfile    `json:"profile"`
	TopicFrequency  map[string]int `json:"topicFrequency"`
	DailyStudyTimes map[string]int `json:"dailyStudyTimes"`
	Activities      []Activity     `json:"activities"`
}
