package models

import "time"

type TranscriptLine struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

type LiveState string

const (
	LivePlaying LiveState = "playing"
	LivePaused  LiveState = "paused"
	LiveStopped LiveState = "stopped"
)

// LiveSnapshot is the observable state of a live class at one tick.
type LiveSnapshot struct {
	ID              string           `json:"id"`
	VideoID         string           `json:"videoId"`
	State           LiveState        `json:"state"`
	Elapsed         int              `json:"elapsed"`
	VisibleLines    []TranscriptLine `json:"visibleLines"`
	CurrentQuestion *Question        `json:"currentQuestion,omitempty"`
	QuestionIndex   int              `json:"questionIndex"`
	StartedAt       time.Time        `json:"startedAt"`
}

type StartLiveRequest struct {
	VideoID       string `json:"videoId"`
	Context       string `json:"context"`
	QuestionCount int    `json:"questionCount"`
}

type ChatRequest struct {
	Question string `json:"question"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}
