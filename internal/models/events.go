package models

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	RequestID  string `json:"request_id"`
	Step       int    `json:"step"`
	StepName   string `json:"step_name"`
	TotalSteps int    `json:"total_steps"`
}

type CompletedEvent struct {
	RequestID     string `json:"request_id"`
	MaterialCount int    `json:"material_count"`
	HasQuiz       bool   `json:"has_quiz"`
}

type ErrorEvent struct {
	RequestID    string `json:"request_id"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
