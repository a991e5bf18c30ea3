package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studymate-backend/internal/metrics"
	"studymate-backend/internal/models"
	"studymate-backend/internal/repository"
	"studymate-backend/internal/scheduler"
)

const (
	StudyRewardPoints = 50
	MaxUploadBytes    = 100 * 1024 * 1024
	DefaultLanguage   = "english"
)

const (
	pathRemote   = "remote"
	pathMock     = "mock"
	pathComplete = "complete"
)

// apiContentTypes maps the input types served by the content API to the
// content type token it expects.
var apiContentTypes = map[models.InputType]string{
	models.InputText:     "text",
	models.InputYouTube:  "ytVideo",
	models.InputAudio:    "audio",
	models.InputDocument: "doc",
}

// VideoInspector resolves YouTube links.
type VideoInspector interface {
	ExtractVideoID(input string) (string, error)
	GetVideoMetadata(ctx context.Context, videoID string) (*models.YouTubeMetadata, error)
}

type GenerateRequest struct {
	Type           models.InputType
	Content        string
	Topic          string
	OutputLanguage string
	Title          string
	AIPrompt       string
	// LocalOnly routes pasted text to local generation instead of the API.
	LocalOnly bool

	File     io.Reader
	FileName string
	FileSize int64

	RequestID string
}

type StudyService struct {
	repo    *repository.StudyRepo
	remote  MaterialSource
	mock    *MockGenerator
	youtube VideoInspector
	files   *FileExtractService
	pub     Publisher
	sched   scheduler.Scheduler
	log     *zap.Logger
	now     func() time.Time

	inflight sync.Map // userID -> requestID
}

// NewStudyService wires the generation pipeline. remote may be nil, in
// which case API-backed input types are generated locally.
func NewStudyService(
	repo *repository.StudyRepo,
	remote MaterialSource,
	mock *MockGenerator,
	youtube VideoInspector,
	files *FileExtractService,
	pub Publisher,
	sched scheduler.Scheduler,
	log *zap.Logger,
) *StudyService {
	return &StudyService{
		repo:    repo,
		remote:  remote,
		mock:    mock,
		youtube: youtube,
		files:   files,
		pub:     pub,
		sched:   sched,
		log:     log,
		now:     time.Now,
	}
}

// Generate validates the request, runs the matching generation path and,
// only once a full response exists, persists it and credits the user.
func (s *StudyService) Generate(ctx context.Context, userID string, req GenerateRequest) (*models.StudyResponse, error) {
	if err := validateGenerateRequest(&req); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	if _, busy := s.inflight.LoadOrStore(userID, req.RequestID); busy {
		return nil, &ConflictError{Message: "A generation is already in progress"}
	}
	defer s.inflight.Delete(userID)

	var file []byte
	if req.Type.FileBearing() {
		data, err := readUpload(req.File)
		if err != nil {
			return nil, err
		}
		file = data
	}

	input := models.InputContent{
		Type:    req.Type,
		Content: req.Content,
		Metadata: models.InputMetadata{
			OutputLanguage: req.OutputLanguage,
			Title:          req.Title,
			AIPrompt:       req.AIPrompt,
		},
	}
	historyContent := req.Content

	switch {
	case req.Type == models.InputYouTube:
		videoID, err := s.youtube.ExtractVideoID(req.Content)
		if err != nil {
			return nil, &ValidationError{Fields: map[string]string{"content": "Invalid YouTube link"}}
		}
		input.Metadata.VideoID = videoID
		if input.Metadata.Title == "" {
			if meta, err := s.youtube.GetVideoMetadata(ctx, videoID); err != nil {
				s.log.Warn("youtube metadata unavailable", zap.String("video_id", videoID), zap.Error(err))
			} else {
				input.Metadata.Title = meta.Title
			}
		}
	case req.Type.FileBearing():
		input.Metadata.FileName = req.FileName
		input.Metadata.FileSize = int64(len(file))
		input.Content = previewRef(req.FileName)
		historyContent = req.FileName
		if req.Type == models.InputDocument {
			info, err := s.files.Inspect(req.FileName, file)
			if err != nil {
				s.log.Warn("document text extraction failed", zap.String("file", req.FileName), zap.Error(err))
			}
			input.Metadata.DocumentType = info.DocumentType
			input.Metadata.WordCount = info.WordCount
		}
	}

	meta := GenerationMeta{Topic: req.Topic, Language: req.OutputLanguage, UserID: userID}
	path, source := s.route(req)

	progress := StartProgress(s.sched, s.pub, userID, req.RequestID)
	start := time.Now()
	result, err := source.Generate(ctx, SourceInput{
		ContentType: apiContentTypes[req.Type],
		Content:     req.Content,
		File:        file,
		FileName:    req.FileName,
		Meta:        meta,
	})
	progress.Stop()

	if err != nil {
		metrics.ObserveGeneration(path, "error", time.Since(start))
		s.log.Warn("generation failed",
			zap.String("user_id", userID),
			zap.String("request_id", req.RequestID),
			zap.String("path", path),
			zap.Error(err))
		s.pub.Publish(ctx, userID, models.WSMessage{
			Type: "error",
			Payload: models.ErrorEvent{
				RequestID:    req.RequestID,
				ErrorCode:    "GENERATION_FAILED",
				ErrorMessage: err.Error(),
			},
		})
		return nil, err
	}
	metrics.ObserveGeneration(path, "ok", time.Since(start))

	resp := &models.StudyResponse{
		Materials:     result.Materials,
		Quiz:          result.Quiz,
		OriginalInput: input,
	}
	if err := s.persist(ctx, userID, req, historyContent, resp); err != nil {
		return nil, err
	}

	s.log.Info("generation completed",
		zap.String("user_id", userID),
		zap.String("request_id", req.RequestID),
		zap.String("path", path),
		zap.Int("materials", len(resp.Materials)),
		zap.Bool("quiz", resp.Quiz != nil))

	s.pub.Publish(ctx, userID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			RequestID:     req.RequestID,
			MaterialCount: len(resp.Materials),
			HasQuiz:       resp.Quiz != nil,
		},
	})
	return resp, nil
}

func (s *StudyService) route(req GenerateRequest) (string, MaterialSource) {
	if req.Type == models.InputText && req.LocalOnly {
		return pathComplete, completeSource{s}
	}
	if _, ok := apiContentTypes[req.Type]; ok {
		if s.remote != nil {
			return pathRemote, s.remote
		}
		s.log.Warn("content API not configured, generating locally", zap.String("type", string(req.Type)))
	}
	return pathMock, s.mock
}

// completeSource runs the composite local path through the MaterialSource
// contract.
type completeSource struct{ s *StudyService }

func (c completeSource) Generate(_ context.Context, in SourceInput) (*GenerationResult, error) {
	materials, quiz := c.s.completeResult(in.Content, in.Meta)
	return &GenerationResult{Materials: materials, Quiz: &quiz}, nil
}

func (s *StudyService) completeResult(content string, meta GenerationMeta) ([]models.StudyMaterial, models.Quiz) {
	return s.mock.GenerateMaterials(content, meta), s.mock.GenerateQuiz(content, meta)
}

// GenerateCompleteStudyResponse builds materials and a separate quiz
// locally. Nothing is persisted.
func (s *StudyService) GenerateCompleteStudyResponse(ctx context.Context, content string, inputType models.InputType, topic, outputLanguage string) (*models.StudyResponse, error) {
	if outputLanguage == "" {
		outputLanguage = DefaultLanguage
	}
	materials, quiz := s.completeResult(content, GenerationMeta{Topic: topic, Language: outputLanguage})
	return &models.StudyResponse{
		Materials: materials,
		Quiz:      &quiz,
		OriginalInput: models.InputContent{
			Type:     inputType,
			Content:  content,
			Metadata: models.InputMetadata{OutputLanguage: outputLanguage},
		},
	}, nil
}

// persist stores the generated content first and then the bookkeeping.
// A content write failure fails the request with nothing credited. Once
// the content is stored, a failed bookkeeping step is logged and the
// remaining steps still run, so the response matches what was saved.
func (s *StudyService) persist(ctx context.Context, userID string, req GenerateRequest, historyContent string, resp *models.StudyResponse) error {
	for _, m := range resp.Materials {
		if err := s.repo.SaveMaterial(ctx, userID, m); err != nil {
			return fmt.Errorf("failed to save material: %w", err)
		}
	}
	if resp.Quiz != nil {
		if err := s.repo.SaveQuiz(ctx, userID, *resp.Quiz); err != nil {
			return fmt.Errorf("failed to save quiz: %w", err)
		}
	}

	now := s.now()
	steps := []struct {
		name string
		run  func() error
	}{
		{"input history", func() error {
			return s.repo.AddInputHistory(ctx, userID, models.InputHistoryEntry{
				ID:        uuid.New().String(),
				Type:      req.Type,
				Content:   historyContent,
				Topic:     req.Topic,
				Language:  req.OutputLanguage,
				Timestamp: now,
			})
		}},
		{"topic frequency", func() error { return s.repo.IncrementTopic(ctx, userID, req.Topic) }},
		{"activity", func() error {
			return s.repo.AddActivity(ctx, userID, models.Activity{
				ID:        uuid.New().String(),
				Type:      models.ActivityStudy,
				Title:     "Generated study materials for " + req.Topic,
				Points:    StudyRewardPoints,
				Timestamp: now,
			})
		}},
		{"user stats", func() error {
			_, err := s.repo.UpdateUserStats(ctx, userID, models.ActivityStudy, StudyRewardPoints)
			return err
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			s.log.Warn("generation bookkeeping failed",
				zap.String("user_id", userID),
				zap.String("step", step.name),
				zap.Error(err))
		}
	}
	return nil
}

func validateGenerateRequest(req *GenerateRequest) error {
	fields := map[string]string{}

	req.Topic = strings.TrimSpace(req.Topic)
	req.Content = strings.TrimSpace(req.Content)
	req.OutputLanguage = strings.ToLower(strings.TrimSpace(req.OutputLanguage))
	if req.OutputLanguage == "" {
		req.OutputLanguage = DefaultLanguage
	}

	if !req.Type.Valid() {
		fields["type"] = "Unsupported input type"
	}
	if req.Topic == "" {
		fields["topic"] = "Topic is required"
	}

	switch {
	case req.Type.FileBearing():
		if req.File == nil || req.FileName == "" {
			fields["file"] = "No file selected"
		}
		if req.FileSize > MaxUploadBytes {
			fields["file"] = "File exceeds 100 MB limit"
		}
	case req.Type == models.InputVideoLecture:
		if req.Content == "" {
			fields["content"] = "No video chosen"
		}
	case req.Type == models.InputImage:
		if req.Content == "" && req.File == nil {
			fields["content"] = "No image provided"
		}
	case req.Type.Valid():
		if req.Content == "" {
			fields["content"] = "Content is required"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func readUpload(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, &ValidationError{Fields: map[string]string{"file": "File exceeds 100 MB limit"}}
	}
	if len(data) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"file": "File is empty"}}
	}
	return data, nil
}

// previewRef names an uploaded file for immediate display. It is never
// stored and does not resolve to the file after the request ends.
func previewRef(fileName string) string {
	return "preview://" + uuid.New().String() + "/" + url.PathEscape(fileName)
}

// ──── Library ────

func (s *StudyService) Materials(ctx context.Context, userID, topic string) []models.StudyMaterial {
	if strings.TrimSpace(topic) == "" {
		return s.repo.GetMaterials(ctx, userID)
	}
	return s.repo.MaterialsByTopic(ctx, userID, topic)
}

func (s *StudyService) DeleteMaterial(ctx context.Context, userID, id string) error {
	found, err := s.repo.DeleteMaterial(ctx, userID, id)
	if err != nil {
		return err
	}
	if !found {
		return &NotFoundError{Message: "Material not found"}
	}
	return nil
}

func (s *StudyService) Quizzes(ctx context.Context, userID, topic string) []models.Quiz {
	if strings.TrimSpace(topic) == "" {
		return s.repo.GetQuizzes(ctx, userID)
	}
	return s.repo.QuizzesByTopic(ctx, userID, topic)
}

// IsCorrect scores one answer. Mcq answers compare by option index,
// subjective ones by trimmed case-insensitive text.
func IsCorrect(q models.Question, a models.Answer) bool {
	if q.Type == models.QuestionMCQ {
		return !a.IsText && a.Index == q.CorrectAnswer.Index
	}
	return strings.EqualFold(strings.TrimSpace(a.Text), strings.TrimSpace(q.CorrectAnswer.Text))
}

// SubmitQuizResult scores a completed quiz and credits the earned points.
func (s *StudyService) SubmitQuizResult(ctx context.Context, userID, quizID string, req models.SubmitQuizResultRequest) (*models.QuizResult, error) {
	quiz, ok := s.repo.GetQuiz(ctx, userID, quizID)
	if !ok {
		return nil, &NotFoundError{Message: "Quiz not found"}
	}
	if len(req.Answers) != len(quiz.Questions) {
		return nil, &ValidationError{Fields: map[string]string{
			"answers": fmt.Sprintf("Expected %d answers", len(quiz.Questions)),
		}}
	}

	result := models.QuizResult{
		ID:          uuid.New().String(),
		QuizID:      quiz.ID,
		Title:       quiz.Title,
		TimeTaken:   req.TimeTaken,
		CompletedAt: s.now(),
	}
	for i, q := range quiz.Questions {
		result.MaxScore += q.Points
		if IsCorrect(q, req.Answers[i]) {
			result.Score += q.Points
		}
	}

	if err := s.repo.AddQuizResult(ctx, userID, result); err != nil {
		return nil, err
	}
	if err := s.repo.AddActivity(ctx, userID, models.Activity{
		ID:        uuid.New().String(),
		Type:      models.ActivityQuiz,
		Title:     "Completed " + quiz.Title,
		Points:    result.Score,
		Timestamp: result.CompletedAt,
	}); err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateUserStats(ctx, userID, models.ActivityQuiz, result.Score); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *StudyService) QuizHistory(ctx context.Context, userID string) []models.QuizResult {
	return s.repo.GetQuizHistory(ctx, userID)
}

func (s *StudyService) InputHistory(ctx context.Context, userID string) []models.InputHistoryEntry {
	return s.repo.GetInputHistory(ctx, userID)
}

func (s *StudyService) Stats(ctx context.Context, userID string) models.UserStats {
	return models.UserStats{
		Profile:         s.repo.GetUser(ctx, userID),
		TopicFrequency:  s.repo.GetTopicFrequency(ctx, userID),
		DailyStudyTimes: s.repo.GetDailyStudyTimes(ctx, userID),
		Activities:      s.repo.GetActivities(ctx, userID),
	}
}

func (s *StudyService) AddStudyTime(ctx context.Context, userID string, minutes int) (map[string]int, error) {
	if minutes <= 0 || minutes > 24*60 {
		return nil, &ValidationError{Fields: map[string]string{"minutes": "Must be between 1 and 1440"}}
	}
	return s.repo.AddStudyTime(ctx, userID, minutes)
}

func (s *StudyService) ClearAllData(ctx context.Context, userID string) (models.UserProfile, error) {
	return s.repo.ClearAllData(ctx, userID)
}
