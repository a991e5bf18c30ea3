package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studymate-backend/internal/models"
	"studymate-backend/internal/random"
)

const (
	defaultGenerationError = "Failed to generate study materials"
	questionTimeLimit      = 60 // seconds per question
)

// GenerationMeta tags everything a single generation produces.
type GenerationMeta struct {
	Topic    string
	Language string
	UserID   string
}

// GenerationResult is the canonical output of every generation path.
type GenerationResult struct {
	Materials []models.StudyMaterial
	Quiz      *models.Quiz
}

// Normalizer turns content API responses into canonical materials and quizzes.
type Normalizer struct {
	rng random.Source
	log *zap.Logger
	now func() time.Time

	// StrictAnswers drops mcq questions whose answer matches no option
	// instead of defaulting to the first option.
	StrictAnswers bool
}

func NewNormalizer(rng random.Source, log *zap.Logger) *Normalizer {
	return &Normalizer{rng: rng, log: log, now: time.Now}
}

// apiEnvelope is the outer and the inner shape of every content API reply:
// {status_code, message, data: {success, message, data: {...}}}.
type apiEnvelope struct {
	StatusCode int             `json:"status_code"`
	Success    *bool           `json:"success"`
	Message    string          `json:"message"`
	Error      json.RawMessage `json:"error"`
	Data       json.RawMessage `json:"data"`
}

// unwrapEnvelope returns data.data after checking the nested success flag.
func unwrapEnvelope(body []byte) (json.RawMessage, error) {
	var outer apiEnvelope
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, &GenerationFailedError{Message: extractErrorMessage(body, defaultGenerationError)}
	}

	var inner apiEnvelope
	if !isObject(outer.Data) || json.Unmarshal(outer.Data, &inner) != nil {
		return nil, &GenerationFailedError{Message: extractErrorMessage(body, defaultGenerationError)}
	}
	if inner.Success == nil || !*inner.Success {
		return nil, &GenerationFailedError{Message: extractErrorMessage(body, defaultGenerationError)}
	}
	return inner.Data, nil
}

// Normalize converts a content-generation response body. A well-formed
// response without any usable part yields an empty result, not an error.
func (n *Normalizer) Normalize(body []byte, meta GenerationMeta) (*GenerationResult, error) {
	data, err := unwrapEnvelope(body)
	if err != nil {
		return nil, err
	}
	if !isObject(data) {
		return nil, &GenerationFailedError{Message: extractErrorMessage(body, defaultGenerationError)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &GenerationFailedError{Message: defaultGenerationError}
	}

	createdAt := n.now()
	result := &GenerationResult{Materials: []models.StudyMaterial{}}

	if raw, ok := fields["summary"]; ok {
		if m, ok := n.summaryMaterial(raw, meta, createdAt); ok {
			result.Materials = append(result.Materials, m)
		}
	}
	if raw, ok := fields["flashcards"]; ok {
		if m, ok := n.flashcardMaterial(raw, meta, createdAt); ok {
			result.Materials = append(result.Materials, m)
		}
	}
	if raw, ok := fields["mindmap"]; ok {
		if m, ok := n.mindMapMaterial(raw, meta, createdAt); ok {
			result.Materials = append(result.Materials, m)
		}
	}
	if raw, ok := fields["quiz"]; ok {
		result.Quiz = n.buildQuiz(n.NormalizeQuestions(quizEntries(raw, n.log)), meta, createdAt)
	}

	return result, nil
}

func (n *Normalizer) summaryMaterial(raw json.RawMessage, meta GenerationMeta, createdAt time.Time) (models.StudyMaterial, bool) {
	var content models.SummaryContent

	var text string
	if json.Unmarshal(raw, &text) == nil {
		content.Text = text
	} else {
		var obj map[string]json.RawMessage
		if json.Unmarshal(raw, &obj) != nil {
			n.log.Warn("summary is neither text nor an object, skipping")
			return models.StudyMaterial{}, false
		}
		json.Unmarshal(obj["text"], &content.Text)
		json.Unmarshal(obj["keyPoints"], &content.KeyPoints)
	}

	if strings.TrimSpace(content.Text) == "" {
		n.log.Warn("summary has no text, skipping")
		return models.StudyMaterial{}, false
	}

	return newMaterial(models.MaterialSummary, "Summary: "+meta.Topic, content, meta, createdAt), true
}

type rawFlashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// decodeFlashcards accepts an array of cards or a JSON string holding one.
// Anything else decodes to no cards.
func decodeFlashcards(raw json.RawMessage, log *zap.Logger) []rawFlashcard {
	var encoded string
	if json.Unmarshal(raw, &encoded) == nil {
		raw = json.RawMessage(encoded)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn("flashcards are not a list, treating as empty", zap.Error(err))
		return nil
	}

	cards := make([]rawFlashcard, 0, len(entries))
	for i, entry := range entries {
		var card rawFlashcard
		if err := json.Unmarshal(entry, &card); err != nil {
			log.Warn("skipping malformed flashcard", zap.Int("index", i), zap.Error(err))
			continue
		}
		cards = append(cards, card)
	}
	return cards
}

func (n *Normalizer) flashcardMaterial(raw json.RawMessage, meta GenerationMeta, createdAt time.Time) (models.StudyMaterial, bool) {
	cards := decodeFlashcards(raw, n.log)
	if len(cards) == 0 {
		return models.StudyMaterial{}, false
	}

	set := models.FlashcardSet{Cards: make([]models.Flashcard, 0, len(cards))}
	for _, c := range cards {
		set.Cards = append(set.Cards, models.Flashcard{
			ID:         uuid.New().String(),
			Question:   c.Question,
			Answer:     c.Answer,
			Difficulty: random.Pick(n.rng, models.Difficulties),
		})
	}

	return newMaterial(models.MaterialFlashcards, "Flashcards: "+meta.Topic, set, meta, createdAt), true
}

// mindMapMaterial passes the remote mind map through untouched when it is an
// object carrying an identifying field.
func (n *Normalizer) mindMapMaterial(raw json.RawMessage, meta GenerationMeta, createdAt time.Time) (models.StudyMaterial, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		n.log.Warn("mindmap is not an object, skipping")
		return models.StudyMaterial{}, false
	}

	identified := false
	for _, key := range []string{"id", "root", "title"} {
		if v, ok := obj[key]; ok && string(v) != "null" {
			identified = true
			break
		}
	}
	if !identified {
		n.log.Warn("mindmap has no identifying field, skipping")
		return models.StudyMaterial{}, false
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return models.StudyMaterial{}, false
	}

	return models.StudyMaterial{
		ID:        uuid.New().String(),
		Title:     "Mind Map: " + meta.Topic,
		Type:      models.MaterialMindMap,
		Content:   compact.Bytes(),
		Topic:     meta.Topic,
		CreatedAt: createdAt,
		UserID:    meta.UserID,
		Language:  meta.Language,
	}, true
}

// quizEntries accepts either a bare array or an object with a questions array.
func quizEntries(raw json.RawMessage, log *zap.Logger) []json.RawMessage {
	var entries []json.RawMessage
	if json.Unmarshal(raw, &entries) == nil {
		return entries
	}

	var wrapped struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && wrapped.Questions != nil {
		return wrapped.Questions
	}

	log.Warn("quiz is not a list, skipping")
	return nil
}

type rawQuestion struct {
	Type        string          `json:"type"`
	Question    *string         `json:"question"`
	Options     []string        `json:"options"`
	Answer      json.RawMessage `json:"answer"`
	Explanation string          `json:"explanation"`
}

// answerText renders the raw answer as the string it will be compared with.
func answerText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// NormalizeQuestions converts raw quiz entries. Entries without a question,
// and mcq entries without options, are skipped with a warning.
func (n *Normalizer) NormalizeQuestions(entries []json.RawMessage) []models.Question {
	questions := make([]models.Question, 0, len(entries))

	for i, entry := range entries {
		var rq rawQuestion
		if err := json.Unmarshal(entry, &rq); err != nil {
			n.log.Warn("skipping malformed quiz entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		if rq.Question == nil || strings.TrimSpace(*rq.Question) == "" {
			n.log.Warn("skipping quiz entry without question", zap.Int("index", i))
			continue
		}

		answer := answerText(rq.Answer)
		q := models.Question{
			ID:          uuid.New().String(),
			Question:    *rq.Question,
			Explanation: rq.Explanation,
		}

		if strings.EqualFold(rq.Type, string(models.QuestionMCQ)) {
			if len(rq.Options) == 0 {
				n.log.Warn("skipping mcq without options", zap.Int("index", i))
				continue
			}
			idx := indexOf(rq.Options, answer)
			if idx < 0 {
				if n.StrictAnswers {
					n.log.Warn("skipping mcq whose answer matches no option",
						zap.Int("index", i), zap.String("answer", answer))
					continue
				}
				n.log.Warn("mcq answer matches no option, defaulting to first option",
					zap.Int("index", i), zap.String("answer", answer))
				idx = 0
			}
			q.Type = models.QuestionMCQ
			q.Options = rq.Options
			q.CorrectAnswer = models.IndexAnswer(idx)
			q.Points = models.MCQPoints
		} else {
			q.Type = models.QuestionSubjective
			q.CorrectAnswer = models.TextAnswer(answer)
			q.Points = models.SubjectivePoints
		}

		questions = append(questions, q)
	}

	return questions
}

func (n *Normalizer) buildQuiz(questions []models.Question, meta GenerationMeta, createdAt time.Time) *models.Quiz {
	if len(questions) == 0 {
		return nil
	}
	return &models.Quiz{
		ID:         uuid.New().String(),
		Title:      "Quiz: " + meta.Topic,
		Topic:      meta.Topic,
		Questions:  questions,
		Difficulty: models.DifficultyMedium,
		TimeLimit:  len(questions) * questionTimeLimit,
		CreatedAt:  createdAt,
		Language:   meta.Language,
	}
}

func indexOf(options []string, answer string) int {
	for i, opt := range options {
		if opt == answer {
			return i
		}
	}
	return -1
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func newMaterial(t models.MaterialType, title string, content interface{}, meta GenerationMeta, createdAt time.Time) models.StudyMaterial {
	data, _ := json.Marshal(content)
	return models.StudyMaterial{
		ID:        uuid.New().String(),
		Title:     title,
		Type:      t,
		Content:   data,
		Topic:     meta.Topic,
		CreatedAt: createdAt,
		UserID:    meta.UserID,
		Language:  meta.Language,
	}
}

// extractErrorMessage digs the most specific message out of an error reply,
// nested fields first.
func extractErrorMessage(body []byte, fallback string) string {
	var outer apiEnvelope
	if err := json.Unmarshal(body, &outer); err != nil {
		return fallback
	}

	var candidates []string
	if isObject(outer.Data) {
		var inner apiEnvelope
		if json.Unmarshal(outer.Data, &inner) == nil {
			candidates = append(candidates, errorText(inner.Error), inner.Message)
		}
	}
	candidates = append(candidates, errorText(outer.Error), outer.Message)

	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return fallback
}

// errorText reads an error field that may be a string or {message}.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}

func describeStatus(code int) string {
	return fmt.Sprintf("content API returned status %d", code)
}
