package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"studymate-backend/internal/models"
)

const maxResponseBytes = 20 * 1024 * 1024

type ContentAPIConfig struct {
	GenerateURL      string
	LiveQuestionsURL string
	ChatAnswerURL    string
	ChannelVideosURL string
	LatestLiveURL    string
	Timeout          time.Duration
}

// ContentAPIClient talks to the hosted content endpoints. Every JSON reply
// uses the {status_code, message, data: {success, message, data}} envelope.
type ContentAPIClient struct {
	cfg        ContentAPIConfig
	httpClient *http.Client
	log        *zap.Logger
}

func NewContentAPIClient(cfg ContentAPIConfig, log *zap.Logger) *ContentAPIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ContentAPIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *ContentAPIClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *ContentAPIClient) postJSON(ctx context.Context, endpoint string, payload interface{}) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// GenerateContent posts one generation request as a multipart form and
// returns the raw reply body. When file is non-empty it is sent as the
// content part instead of the text.
func (c *ContentAPIClient) GenerateContent(ctx context.Context, in SourceInput) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("contentType", in.ContentType)
	_ = writer.WriteField("topic", in.Meta.Topic)
	_ = writer.WriteField("language", in.Meta.Language)

	if len(in.File) > 0 {
		part, err := writer.CreateFormFile("content", in.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(in.File); err != nil {
			return nil, fmt.Errorf("failed to write file part: %w", err)
		}
	} else {
		_ = writer.WriteField("content", in.Content)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GenerateURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	body, status, err := c.do(req)
	if err != nil {
		return nil, &UpstreamError{Endpoint: "generate", Message: "request failed", Err: err}
	}
	c.log.Debug("content API replied",
		zap.String("content_type", in.ContentType),
		zap.Int("status", status),
		zap.Duration("took", time.Since(start)))

	if status < 200 || status >= 300 {
		return nil, &GenerationFailedError{Message: extractErrorMessage(body, describeStatus(status))}
	}
	return body, nil
}

// LiveQuestions fetches raw quiz entries for a live class context.
func (c *ContentAPIClient) LiveQuestions(ctx context.Context, liveContext string, count int) ([]json.RawMessage, error) {
	body, status, err := c.postJSON(ctx, c.cfg.LiveQuestionsURL, map[string]interface{}{
		"context": liveContext,
		"count":   count,
	})
	if err != nil {
		return nil, &UpstreamError{Endpoint: "live-questions", Message: "request failed", Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &UpstreamError{Endpoint: "live-questions", Message: extractErrorMessage(body, describeStatus(status))}
	}

	data, err := unwrapEnvelope(body)
	if err != nil {
		return nil, &UpstreamError{Endpoint: "live-questions", Message: err.Error()}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &UpstreamError{Endpoint: "live-questions", Message: "questions are not a list"}
	}
	return entries, nil
}

// ChatAnswer asks the hosted chat endpoint a question about a live class.
func (c *ContentAPIClient) ChatAnswer(ctx context.Context, liveContext, question, chatID string) (string, error) {
	body, status, err := c.postJSON(ctx, c.cfg.ChatAnswerURL, map[string]string{
		"context":  liveContext,
		"question": question,
		"chatId":   chatID,
	})
	if err != nil {
		return "", &UpstreamError{Endpoint: "chat", Message: "request failed", Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &UpstreamError{Endpoint: "chat", Message: extractErrorMessage(body, describeStatus(status))}
	}

	data, err := unwrapEnvelope(body)
	if err != nil {
		return "", &UpstreamError{Endpoint: "chat", Message: err.Error()}
	}
	var answer string
	if err := json.Unmarshal(data, &answer); err != nil {
		return "", &UpstreamError{Endpoint: "chat", Message: "answer is not text"}
	}
	return answer, nil
}

// ChannelVideos returns one page of the channel listing.
func (c *ContentAPIClient) ChannelVideos(ctx context.Context, pageToken string) (*models.VideoPage, error) {
	body, err := c.get(ctx, "channel-videos", c.cfg.ChannelVideosURL, pageToken)
	if err != nil {
		return nil, err
	}
	page, err := decodeVideoPage(body)
	if err != nil {
		return nil, &UpstreamError{Endpoint: "channel-videos", Message: err.Error()}
	}
	return page, nil
}

// LatestLiveVideo returns the most recent live video of the channel.
func (c *ContentAPIClient) LatestLiveVideo(ctx context.Context) (*models.Video, error) {
	body, err := c.get(ctx, "latest-live", c.cfg.LatestLiveURL, "")
	if err != nil {
		return nil, err
	}
	page, err := decodeVideoPage(body)
	if err != nil {
		return nil, &UpstreamError{Endpoint: "latest-live", Message: err.Error()}
	}
	if len(page.Items) == 0 {
		return nil, &NotFoundError{Message: "No live video found"}
	}
	return &page.Items[0], nil
}

func (c *ContentAPIClient) get(ctx context.Context, endpoint, rawURL, pageToken string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &UpstreamError{Endpoint: endpoint, Message: "invalid endpoint URL", Err: err}
	}
	if pageToken != "" {
		q := u.Query()
		q.Set("pageToken", pageToken)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	body, status, err := c.do(req)
	if err != nil {
		return nil, &UpstreamError{Endpoint: endpoint, Message: "request failed", Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &UpstreamError{Endpoint: endpoint, Message: extractErrorMessage(body, describeStatus(status))}
	}
	return body, nil
}

type rawVideo struct {
	ID      json.RawMessage `json:"id"`
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		PublishedAt string `json:"publishedAt"`
		Thumbnails  map[string]struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"snippet"`
}

type rawVideoPage struct {
	Items         []rawVideo `json:"items"`
	NextPageToken string     `json:"nextPageToken"`
}

// decodeVideoPage accepts a bare listing or one wrapped in the usual envelope.
func decodeVideoPage(body []byte) (*models.VideoPage, error) {
	var raw rawVideoPage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("listing is not JSON: %w", err)
	}
	if raw.Items == nil {
		if data, err := unwrapEnvelope(body); err == nil {
			json.Unmarshal(data, &raw)
		}
	}

	page := &models.VideoPage{Items: make([]models.Video, 0, len(raw.Items)), NextPageToken: raw.NextPageToken}
	for _, item := range raw.Items {
		id := videoIDOf(item.ID)
		if id == "" {
			continue
		}
		page.Items = append(page.Items, models.Video{
			ID:          id,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			Thumbnail:   bestThumbnail(item.Snippet.Thumbnails),
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	return page, nil
}

// videoIDOf reads an id that is either a string or {videoId}.
func videoIDOf(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		VideoID string `json:"videoId"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return strings.TrimSpace(obj.VideoID)
	}
	return ""
}

func bestThumbnail(thumbs map[string]struct {
	URL string `json:"url"`
}) string {
	for _, key := range []string{"maxres", "high", "medium", "default"} {
		if t, ok := thumbs[key]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}

// ContentAPISource is the remote MaterialSource: generation through the
// content API, normalized into the canonical model.
type ContentAPISource struct {
	client     *ContentAPIClient
	normalizer *Normalizer
}

func NewContentAPISource(client *ContentAPIClient, normalizer *Normalizer) *ContentAPISource {
	return &ContentAPISource{client: client, normalizer: normalizer}
}

func (s *ContentAPISource) Generate(ctx context.Context, in SourceInput) (*GenerationResult, error) {
	body, err := s.client.GenerateContent(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.normalizer.Normalize(body, in.Meta)
}
