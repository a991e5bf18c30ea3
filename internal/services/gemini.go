package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiService answers live-class chat questions and writes live-class
// questions when the hosted endpoints are not configured.
type GeminiService struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	jsonModel *genai.GenerativeModel
	log       *zap.Logger
	rateChan  chan struct{} // Token bucket
}

func NewGeminiService(apiKey, modelName string, concurrentReqs int, log *zap.Logger) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	jsonModel := client.GenerativeModel(modelName)
	jsonModel.SetTemperature(0.3)
	jsonModel.ResponseMIMEType = "application/json"

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:    client,
		model:     model,
		jsonModel: jsonModel,
		log:       log,
		rateChan:  rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *GeminiService) ChatAnswer(ctx context.Context, liveContext, question, chatID string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := s.model.GenerateContent(ctx, genai.Text(buildChatPrompt(liveContext, question)))
	if err != nil {
		return "", &UpstreamError{Endpoint: "gemini", Message: "chat answer failed", Err: err}
	}

	answer := strings.TrimSpace(extractText(resp))
	if answer == "" {
		return "", &UpstreamError{Endpoint: "gemini", Message: "empty answer"}
	}
	s.log.Debug("gemini chat answered", zap.String("chat_id", chatID), zap.Int("chars", len(answer)))
	return answer, nil
}

// LiveQuestions asks for quiz entries in the same raw shape the hosted
// live-questions endpoint returns.
func (s *GeminiService) LiveQuestions(ctx context.Context, liveContext string, count int) ([]json.RawMessage, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	resp, err := s.jsonModel.GenerateContent(ctx, genai.Text(buildLiveQuestionsPrompt(liveContext, count)))
	if err != nil {
		return nil, &UpstreamError{Endpoint: "gemini", Message: "question generation failed", Err: err}
	}

	text := cleanJSONResponse(extractText(resp))
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return nil, &UpstreamError{Endpoint: "gemini", Message: "questions are not a JSON list", Err: err}
	}
	return entries, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// cleanJSONResponse strips a markdown code fence around a JSON reply.
func cleanJSONResponse(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func buildChatPrompt(liveContext, question string) string {
	return fmt.Sprintf(`You are a teaching assistant in a live class.
Answer the student's question in at most three short sentences, using the class context when it helps.

CLASS CONTEXT:
%s

QUESTION:
%s`, liveContext, question)
}

func buildLiveQuestionsPrompt(liveContext string, count int) string {
	return fmt.Sprintf(`Write %d quiz questions about the class below.
Return ONLY a JSON array. Each element is either
{"type":"mcq","question":"...","options":["...","...","...","..."],"answer":"<exact text of the correct option>"}
or
{"type":"one-word","question":"...","answer":"<single word>"}

CLASS CONTEXT:
%s`, count, liveContext)
}
