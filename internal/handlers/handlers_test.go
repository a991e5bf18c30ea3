package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"studymate-backend/internal/middleware"
	"studymate-backend/internal/models"
	"studymate-backend/internal/random"
	"studymate-backend/internal/repository"
	"studymate-backend/internal/scheduler"
	"studymate-backend/internal/services"
)

type stubInspector struct{}

func (stubInspector) ExtractVideoID(input string) (string, error) {
	if strings.Contains(input, "youtu") {
		return "dQw4w9WgXcQ", nil
	}
	return "", errors.New("not a youtube link")
}

func (stubInspector) GetVideoMetadata(context.Context, string) (*models.YouTubeMetadata, error) {
	return &models.YouTubeMetadata{Title: "Lecture"}, nil
}

type stubTranscripts struct{}

func (stubTranscripts) Transcript(context.Context, string) ([]models.TranscriptLine, error) {
	return []models.TranscriptLine{{Start: 0, Text: "Hello class."}}, nil
}

type testEnv struct {
	router http.Handler
	sched  *scheduler.Fake
}

// newTestEnv mounts the handlers on the production paths with a fixed
// user injected in place of token verification.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	repo := repository.NewStudyRepo(repository.NewMemoryStore(), log)
	sched := scheduler.NewFake()
	pub := services.NopPublisher{}
	rng := random.New(7)
	normalizer := services.NewNormalizer(rng, log)

	study := services.NewStudyService(repo, nil, services.NewMockGenerator(rng), stubInspector{}, services.NewFileExtractService(), pub, sched, log)
	battles := services.NewBattleService(repo, rng, sched, pub, log)
	live := services.NewLiveClassService(stubTranscripts{}, nil, nil, normalizer, repo, sched, pub, log)
	t.Cleanup(func() {
		battles.Close()
		live.Close()
	})

	sh := NewStudyHandler(study)
	bh := NewBattleHandler(battles)
	lh := NewLiveHandler(live, nil)
	ch := NewCommunityHandler(services.NewCommunityService(repo))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), "user-1")))
		})
	})
	r.Post("/study/generate", sh.Generate)
	r.Get("/study/materials", sh.Materials)
	r.Delete("/study/materials/{id}", sh.DeleteMaterial)
	r.Get("/study/quizzes", sh.Quizzes)
	r.Post("/study/quizzes/{id}/results", sh.SubmitQuizResult)
	r.Get("/study/history", sh.History)
	r.Get("/study/stats", sh.Stats)
	r.Post("/study/time", sh.AddStudyTime)
	r.Delete("/study/data", sh.ClearData)
	r.Post("/battles", bh.Start)
	r.Get("/battles", bh.History)
	r.Get("/battles/{id}", bh.Get)
	r.Post("/battles/{id}/answers", bh.Answer)
	r.Post("/live/sessions", lh.Start)
	r.Post("/live/sessions/{id}/play", lh.Play)
	r.Post("/live/sessions/{id}/chat", lh.Chat)
	r.Get("/videos", lh.Videos)
	r.Get("/community/posts", ch.List)
	r.Post("/community/posts", ch.Create)
	r.Post("/community/posts/{id}/like", ch.Like)

	return &testEnv{router: r, sched: sched}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	decode(t, rr, &resp)
	return resp.Error
}

func TestGenerate_TextThenLibrary(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/study/generate", map[string]string{
		"type": "text", "content": "Cats are small carnivorous mammals.", "topic": "Cats",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp models.StudyResponse
	decode(t, rr, &resp)
	if len(resp.Materials) != 4 || resp.Quiz == nil {
		t.Fatalf("expected 4 materials and a quiz, got %d and %v", len(resp.Materials), resp.Quiz)
	}
	if resp.OriginalInput.Metadata.OutputLanguage != "english" {
		t.Errorf("expected default language, got %q", resp.OriginalInput.Metadata.OutputLanguage)
	}

	rr = env.do(t, http.MethodGet, "/study/materials?topic=Cats", nil)
	var materials struct {
		Materials []models.StudyMaterial `json:"materials"`
	}
	decode(t, rr, &materials)
	if len(materials.Materials) != 4 {
		t.Fatalf("expected 4 stored materials, got %d", len(materials.Materials))
	}

	rr = env.do(t, http.MethodGet, "/study/stats", nil)
	var stats models.UserStats
	decode(t, rr, &stats)
	if stats.Profile.Points != services.StudyRewardPoints || stats.TopicFrequency["Cats"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	answers := make([]models.Answer, len(resp.Quiz.Questions))
	rr = env.do(t, http.MethodPost, "/study/quizzes/"+resp.Quiz.ID+"/results", map[string]interface{}{
		"answers": answers, "timeTaken": 42,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var result models.QuizResult
	decode(t, rr, &result)
	if result.MaxScore != 40 || result.TimeTaken != 42 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGenerate_Validation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/study/generate", map[string]string{"type": "text", "content": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	apiErr := errorCode(t, rr)
	if apiErr.Code != "VALIDATION_ERROR" || apiErr.Fields["topic"] == "" {
		t.Fatalf("expected topic field error, got %+v", apiErr)
	}

	rr = env.do(t, http.MethodPost, "/study/generate", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/study/generate", map[string]string{"type": "youtube", "content": "not a link", "topic": "Music"})
	if apiErr := errorCode(t, rr); apiErr.Fields["content"] != "Invalid YouTube link" {
		t.Fatalf("expected youtube link error, got %+v", apiErr)
	}
}

func TestGenerate_MultipartDocument(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("type", "document")
	w.WriteField("topic", "Biology")
	w.WriteField("outputLanguage", "Spanish")
	part, _ := w.CreateFormFile("file", "notes.txt")
	part.Write([]byte("cells divide by mitosis"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/study/generate", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp models.StudyResponse
	decode(t, rr, &resp)
	in := resp.OriginalInput
	if !strings.HasPrefix(in.Content, "preview://") || in.Metadata.FileName != "notes.txt" {
		t.Fatalf("unexpected original input %+v", in)
	}
	if in.Metadata.DocumentType != "txt" || in.Metadata.WordCount != 4 || in.Metadata.OutputLanguage != "spanish" {
		t.Fatalf("unexpected metadata %+v", in.Metadata)
	}

	rr = env.do(t, http.MethodGet, "/study/history", nil)
	var history struct {
		Inputs []models.InputHistoryEntry `json:"inputs"`
	}
	decode(t, rr, &history)
	if len(history.Inputs) != 1 || history.Inputs[0].Content != "notes.txt" {
		t.Fatalf("history must keep the file name, got %+v", history.Inputs)
	}
}

func TestStudyRoutes_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"delete unknown material", http.MethodDelete, "/study/materials/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"results for unknown quiz", http.MethodPost, "/study/quizzes/nope/results", map[string]interface{}{"answers": []int{}}, http.StatusNotFound, "NOT_FOUND"},
		{"zero study minutes", http.MethodPost, "/study/time", map[string]int{"minutes": 0}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"battle on unknown quiz", http.MethodPost, "/battles", map[string]string{"quizId": "nope"}, http.StatusNotFound, "NOT_FOUND"},
		{"videos without endpoint", http.MethodGet, "/videos", nil, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"empty community post", http.MethodPost, "/community/posts", map[string]string{"content": " "}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"like unknown post", http.MethodPost, "/community/posts/nope/like", nil, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if code := errorCode(t, rr).Code; code != tt.wantCode {
				t.Fatalf("expected %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestBattleRoutes(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/study/generate", map[string]string{"type": "text", "content": "Orbits", "topic": "Space"})
	var resp models.StudyResponse
	decode(t, rr, &resp)

	rr = env.do(t, http.MethodPost, "/battles", map[string]string{"quizId": resp.Quiz.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var battle models.Battle
	decode(t, rr, &battle)

	rr = env.do(t, http.MethodPost, "/battles/"+battle.ID+"/answers", map[string]interface{}{"questionIndex": 0, "answer": "anything"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/battles/"+battle.ID+"/answers", map[string]interface{}{"questionIndex": 0, "answer": "again"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while the round resolves, got %d", rr.Code)
	}
}

func TestLiveAndCommunityRoutes(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/live/sessions", map[string]string{"videoId": "vid"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var snap models.LiveSnapshot
	decode(t, rr, &snap)

	rr = env.do(t, http.MethodPost, "/live/sessions/"+snap.ID+"/play", nil)
	decode(t, rr, &snap)
	if snap.State != models.LivePlaying {
		t.Fatalf("expected playing, got %s", snap.State)
	}

	rr = env.do(t, http.MethodPost, "/live/sessions/"+snap.ID+"/chat", map[string]string{"question": "Why?"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("chat without an answerer must be 502, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/community/posts", map[string]string{"topic": "Space", "content": "Mars has two moons"})
	var post models.CommunityPost
	decode(t, rr, &post)
	rr = env.do(t, http.MethodPost, "/community/posts/"+post.ID+"/like", nil)
	decode(t, rr, &post)
	if post.Likes != 1 {
		t.Fatalf("expected one like, got %d", post.Likes)
	}
}
