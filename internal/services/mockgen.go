package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studymate-backend/internal/models"
	"studymate-backend/internal/random"
)

const (
	mockQuizLength  = 5
	mockOptionCount = 4
	mockCardCount   = 5
)

// SourceInput is what a MaterialSource needs to produce a generation.
type SourceInput struct {
	ContentType string
	Content     string
	File        []byte
	FileName    string
	Meta        GenerationMeta
}

// MaterialSource is implemented by the remote content API path and by the
// local mock generator. Callers cannot tell them apart.
type MaterialSource interface {
	Generate(ctx context.Context, in SourceInput) (*GenerationResult, error)
}

type phraseTable struct {
	summary          string
	keyPoint         string
	headings         [2]string
	term             string
	tip              string
	cardQuestion     string
	cardAnswer       string
	subjective       string
	subjectiveAnswer string
	mcq              string
	correctOption    string
	wrongOption      string
	branches         [3]string
}

var phrases = map[string]phraseTable{
	"english": {
		summary:          "This summary covers the essentials of %s.",
		keyPoint:         "Key idea %d about %s",
		headings:         [2]string{"Key terms", "Remember"},
		term:             "Term %d of %s",
		tip:              "Review %s regularly",
		cardQuestion:     "What is fact %d about %s?",
		cardAnswer:       "Fact %d explains a core part of %s.",
		subjective:       "Explain concept %d of %s in your own words.",
		subjectiveAnswer: "Concept %d of %s",
		mcq:              "Which statement about %s is correct? (%d)",
		correctOption:    "A correct statement about %s",
		wrongOption:      "An incorrect statement about %s (%d)",
		branches:         [3]string{"Basics", "Details", "Applications"},
	},
	"spanish": {
		summary:          "Este resumen cubre lo esencial de %s.",
		keyPoint:         "Idea clave %d sobre %s",
		headings:         [2]string{"Términos clave", "Recuerda"},
		term:             "Término %d de %s",
		tip:              "Repasa %s con frecuencia",
		cardQuestion:     "¿Cuál es el dato %d sobre %s?",
		cardAnswer:       "El dato %d explica una parte central de %s.",
		subjective:       "Explica el concepto %d de %s con tus palabras.",
		subjectiveAnswer: "Concepto %d de %s",
		mcq:              "¿Qué afirmación sobre %s es correcta? (%d)",
		correctOption:    "Una afirmación correcta sobre %s",
		wrongOption:      "Una afirmación incorrecta sobre %s (%d)",
		branches:         [3]string{"Fundamentos", "Detalles", "Aplicaciones"},
	},
	"french": {
		summary:          "Ce résumé couvre l'essentiel de %s.",
		keyPoint:         "Idée clé %d sur %s",
		headings:         [2]string{"Termes clés", "À retenir"},
		term:             "Terme %d de %s",
		tip:              "Révisez %s régulièrement",
		cardQuestion:     "Quel est le fait %d sur %s ?",
		cardAnswer:       "Le fait %d explique une partie essentielle de %s.",
		subjective:       "Expliquez le concept %d de %s avec vos mots.",
		subjectiveAnswer: "Concept %d de %s",
		mcq:              "Quelle affirmation sur %s est correcte ? (%d)",
		correctOption:    "Une affirmation correcte sur %s",
		wrongOption:      "Une affirmation incorrecte sur %s (%d)",
		branches:         [3]string{"Bases", "Détails", "Applications"},
	},
	"german": {
		summary:          "Diese Zusammenfassung behandelt das Wichtigste zu %s.",
		keyPoint:         "Kernidee %d zu %s",
		headings:         [2]string{"Schlüsselbegriffe", "Merken"},
		term:             "Begriff %d zu %s",
		tip:              "Wiederhole %s regelmäßig",
		cardQuestion:     "Was ist Fakt %d über %s?",
		cardAnswer:       "Fakt %d erklärt einen Kernteil von %s.",
		subjective:       "Erkläre Konzept %d von %s in eigenen Worten.",
		subjectiveAnswer: "Konzept %d von %s",
		mcq:              "Welche Aussage über %s ist richtig? (%d)",
		correctOption:    "Eine richtige Aussage über %s",
		wrongOption:      "Eine falsche Aussage über %s (%d)",
		branches:         [3]string{"Grundlagen", "Details", "Anwendungen"},
	},
	"hindi": {
		summary:          "यह सारांश %s की मुख्य बातें बताता है।",
		keyPoint:         "मुख्य विचार %d: %s",
		headings:         [2]string{"मुख्य शब्द", "याद रखें"},
		term:             "शब्द %d: %s",
		tip:              "%s को नियमित रूप से दोहराएँ",
		cardQuestion:     "तथ्य %d: %s के बारे में क्या है?",
		cardAnswer:       "तथ्य %d %s का एक मुख्य भाग समझाता है।",
		subjective:       "अवधारणा %d (%s) को अपने शब्दों में समझाइए।",
		subjectiveAnswer: "अवधारणा %d: %s",
		mcq:              "%s के बारे में कौन सा कथन सही है? (%d)",
		correctOption:    "%s के बारे में सही कथन",
		wrongOption:      "%s के बारे में गलत कथन (%d)",
		branches:         [3]string{"मूल बातें", "विवरण", "उपयोग"},
	},
}

func phrasesFor(language string) phraseTable {
	if p, ok := phrases[strings.ToLower(strings.TrimSpace(language))]; ok {
		return p
	}
	return phrases["english"]
}

// MockGenerator synthesizes materials and quizzes locally. The shape of the
// output is fixed; only cosmetic values come from the random source.
type MockGenerator struct {
	rng random.Source
	now func() time.Time
}

func NewMockGenerator(rng random.Source) *MockGenerator {
	return &MockGenerator{rng: rng, now: time.Now}
}

func (g *MockGenerator) Generate(_ context.Context, in SourceInput) (*GenerationResult, error) {
	quiz := g.GenerateQuiz(in.Content, in.Meta)
	return &GenerationResult{
		Materials: g.GenerateMaterials(in.Content, in.Meta),
		Quiz:      &quiz,
	}, nil
}

// GenerateMaterials returns one summary, cheatsheet, flashcard set and mind
// map, in that order.
func (g *MockGenerator) GenerateMaterials(content string, meta GenerationMeta) []models.StudyMaterial {
	p := phrasesFor(meta.Language)
	topic := meta.Topic
	createdAt := g.now()

	summary := models.SummaryContent{Text: fmt.Sprintf(p.summary, topic)}
	if excerpt := excerptOf(content, 200); excerpt != "" {
		summary.Text += " " + excerpt
	}
	for i := 1; i <= 3; i++ {
		summary.KeyPoints = append(summary.KeyPoints, fmt.Sprintf(p.keyPoint, i, topic))
	}

	cheatsheet := models.CheatsheetContent{Sections: []models.CheatsheetSection{
		{Heading: p.headings[0], Items: []string{fmt.Sprintf(p.term, 1, topic), fmt.Sprintf(p.term, 2, topic)}},
		{Heading: p.headings[1], Items: []string{fmt.Sprintf(p.tip, topic)}},
	}}

	cards := models.FlashcardSet{}
	for i := 1; i <= mockCardCount; i++ {
		cards.Cards = append(cards.Cards, models.Flashcard{
			ID:         uuid.New().String(),
			Question:   fmt.Sprintf(p.cardQuestion, i, topic),
			Answer:     fmt.Sprintf(p.cardAnswer, i, topic),
			Difficulty: random.Pick(g.rng, models.Difficulties),
		})
	}

	root := models.MindMapNode{ID: "root", Label: topic}
	for i, branch := range p.branches {
		root.Children = append(root.Children, models.MindMapNode{
			ID:    fmt.Sprintf("node-%d", i+1),
			Label: branch,
		})
	}

	return []models.StudyMaterial{
		newMaterial(models.MaterialSummary, "Summary: "+topic, summary, meta, createdAt),
		newMaterial(models.MaterialCheatsheet, "Cheatsheet: "+topic, cheatsheet, meta, createdAt),
		newMaterial(models.MaterialFlashcards, "Flashcards: "+topic, cards, meta, createdAt),
		newMaterial(models.MaterialMindMap, "Mind Map: "+topic, root, meta, createdAt),
	}
}

// GenerateQuiz returns a fixed-length quiz alternating subjective (even
// positions) and mcq (odd positions) questions.
func (g *MockGenerator) GenerateQuiz(content string, meta GenerationMeta) models.Quiz {
	p := phrasesFor(meta.Language)
	topic := meta.Topic

	questions := make([]models.Question, 0, mockQuizLength)
	for i := 0; i < mockQuizLength; i++ {
		n := i + 1
		if i%2 == 0 {
			questions = append(questions, models.Question{
				ID:            uuid.New().String(),
				Type:          models.QuestionSubjective,
				Question:      fmt.Sprintf(p.subjective, n, topic),
				CorrectAnswer: models.TextAnswer(fmt.Sprintf(p.subjectiveAnswer, n, topic)),
				Points:        models.SubjectivePoints,
			})
			continue
		}

		correct := g.rng.Intn(mockOptionCount)
		options := make([]string, mockOptionCount)
		for j := range options {
			if j == correct {
				options[j] = fmt.Sprintf(p.correctOption, topic)
			} else {
				options[j] = fmt.Sprintf(p.wrongOption, topic, j+1)
			}
		}
		questions = append(questions, models.Question{
			ID:            uuid.New().String(),
			Type:          models.QuestionMCQ,
			Question:      fmt.Sprintf(p.mcq, topic, n),
			Options:       options,
			CorrectAnswer: models.IndexAnswer(correct),
			Points:        models.MCQPoints,
		})
	}

	return models.Quiz{
		ID:         uuid.New().String(),
		Title:      "Quiz: " + topic,
		Topic:      topic,
		Questions:  questions,
		Difficulty: models.DifficultyMedium,
		TimeLimit:  mockQuizLength * questionTimeLimit,
		CreatedAt:  g.now(),
		Language:   meta.Language,
	}
}

func excerptOf(content string, limit int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
