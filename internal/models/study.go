package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type MaterialType string

const (
	MaterialSummary    MaterialType = "summary"
	MaterialMindMap    MaterialType = "mindmap"
	MaterialCheatsheet MaterialType = "cheatsheet"
	MaterialFlashcards MaterialType = "flashcards"
)

// StudyMaterial is one generated artifact for a topic/language pair.
// Content holds the type-dependent payload (SummaryContent, CheatsheetContent,
// FlashcardSet or a mind map object).
type StudyMaterial struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Type      MaterialType    `json:"type"`
	Content   json.RawMessage `json:"content"`
	Topic     string          `json:"topic"`
	CreatedAt time.Time       `json:"createdAt"`
	UserID    string          `json:"userId"`
	Language  string          `json:"language"`
}

type SummaryContent struct {
	Text      string   `json:"text"`
	KeyPoints []string `json:"keyPoints,omitempty"`
}

type CheatsheetSection struct {
	Heading string   `json:"heading"`
	Items   []string `json:"items"`
}

type CheatsheetContent struct {
	Sections []CheatsheetSection `json:"sections"`
}

type Flashcard struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty"`
}

type FlashcardSet struct {
	Cards []Flashcard `json:"cards"`
}

type MindMapNode struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Children []MindMapNode `json:"children,omitempty"`
}

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

var Difficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyHard}

type QuestionType string

const (
	QuestionMCQ        QuestionType = "mcq"
	QuestionSubjective QuestionType = "subjective"
)

const (
	MCQPoints        = 5
	SubjectivePoints = 10
)

type Quiz struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Topic      string     `json:"topic"`
	Questions  []Question `json:"questions"`
	Difficulty string     `json:"difficulty"`
	TimeLimit  int        `json:"timeLimit"`
	CreatedAt  time.Time  `json:"createdAt"`
	Language   string     `json:"language"`
}

type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer Answer       `json:"correctAnswer"`
	Explanation   string       `json:"explanation,omitempty"`
	Points        int          `json:"points"`
}

// Answer is an option index for mcq questions and free text for subjective
// ones. It marshals to a JSON number or a JSON string accordingly.
type Answer struct {
	Index  int
	Text   string
	IsText bool
}

func IndexAnswer(i int) Answer { return Answer{Index: i} }

func TextAnswer(s string) Answer { return Answer{Text: s, IsText: true} }

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsText {
		return json.Marshal(a.Text)
	}
	return json.Marshal(a.Index)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var idx int
	if err := json.Unmarshal(data, &idx); err == nil {
		*a = IndexAnswer(idx)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*a = TextAnswer(text)
		return nil
	}
	return fmt.Errorf("correctAnswer must be a number or a string, got %s", string(data))
}

// StudyResponse is the envelope returned by every generation path. For
// uploaded files OriginalInput.Content is a transient preview reference,
// never the stored file name.
type StudyResponse struct {
	Materials     []StudyMaterial `json:"materials"`
	Quiz          *Quiz           `json:"quiz"`
	OriginalInput InputContent    `json:"originalInput"`
}
