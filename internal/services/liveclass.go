package services

import (
	"context"
	"encoding/json"
	"regexp"
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
	liveTick             = time.Second
	questionEveryTicks   = 30
	defaultLiveQuestions = 5
	maxLiveQuestions     = 20
	visibleWindow        = 8
	maxContextChars      = 4000
	liveIdleTTL          = time.Hour
	LivePoints           = 20
)

type TranscriptSource interface {
	Transcript(ctx context.Context, videoID string) ([]models.TranscriptLine, error)
}

type QuestionSource interface {
	LiveQuestions(ctx context.Context, liveContext string, count int) ([]json.RawMessage, error)
}

type ChatAnswerer interface {
	ChatAnswer(ctx context.Context, liveContext, question, chatID string) (string, error)
}

type liveSession struct {
	mu sync.Mutex

	id        string
	userID    string
	videoID   string
	context   string
	startedAt time.Time

	state     models.LiveState
	elapsed   int
	lines     []models.TranscriptLine
	cursor    int
	questions []models.Question
	qIndex    int
	sinceQ    int
	timers    *scheduler.Group
	idle      scheduler.Handle
}

func (s *liveSession) snapshot() models.LiveSnapshot {
	from := s.cursor - visibleWindow
	if from < 0 {
		from = 0
	}
	visible := make([]models.TranscriptLine, s.cursor-from)
	copy(visible, s.lines[from:s.cursor])

	snap := models.LiveSnapshot{
		ID:            s.id,
		VideoID:       s.videoID,
		State:         s.state,
		Elapsed:       s.elapsed,
		VisibleLines:  visible,
		QuestionIndex: s.qIndex,
		StartedAt:     s.startedAt,
	}
	if s.qIndex >= 0 {
		q := s.questions[s.qIndex]
		snap.CurrentQuestion = &q
	}
	return snap
}

// LiveClassService simulates a live class: a transcript revealed in step
// with playback and questions rotated on a fixed cadence.
type LiveClassService struct {
	transcripts TranscriptSource
	questions   QuestionSource
	chat        ChatAnswerer
	normalizer  *Normalizer
	repo        *repository.StudyRepo
	sched       scheduler.Scheduler
	pub         Publisher
	log         *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// NewLiveClassService builds the live class feature. questions and chat may
// be nil when no endpoint or model is configured.
func NewLiveClassService(
	transcripts TranscriptSource,
	questions QuestionSource,
	chat ChatAnswerer,
	normalizer *Normalizer,
	repo *repository.StudyRepo,
	sched scheduler.Scheduler,
	pub Publisher,
	log *zap.Logger,
) *LiveClassService {
	return &LiveClassService{
		transcripts: transcripts,
		questions:   questions,
		chat:        chat,
		normalizer:  normalizer,
		repo:        repo,
		sched:       sched,
		pub:         pub,
		log:         log,
		now:         time.Now,
		sessions:    make(map[string]*liveSession),
	}
}

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// linesFromText paces plain text as transcript lines, one sentence each.
func linesFromText(text string) []models.TranscriptLine {
	var lines []models.TranscriptLine
	for _, sentence := range sentenceEnd.Split(strings.TrimSpace(text), -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lines = append(lines, models.TranscriptLine{Start: float64(len(lines)) * captionLineSeconds, Text: sentence})
	}
	return lines
}

func transcriptText(lines []models.TranscriptLine) string {
	var b strings.Builder
	for _, l := range lines {
		if b.Len()+len(l.Text) > maxContextChars {
			break
		}
		b.WriteString(l.Text)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

// Start prepares a paused session for a video.
func (s *LiveClassService) Start(ctx context.Context, userID string, req models.StartLiveRequest) (*models.LiveSnapshot, error) {
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.VideoID == "" {
		return nil, &ValidationError{Fields: map[string]string{"videoId": "No video chosen"}}
	}
	count := req.QuestionCount
	if count <= 0 {
		count = defaultLiveQuestions
	}
	if count > maxLiveQuestions {
		count = maxLiveQuestions
	}

	lines, err := s.transcripts.Transcript(ctx, req.VideoID)
	if err != nil {
		s.log.Warn("transcript unavailable, pacing context instead", zap.String("video_id", req.VideoID), zap.Error(err))
		lines = linesFromText(req.Context)
	}
	if len(lines) == 0 {
		return nil, &UpstreamError{Endpoint: "transcript", Message: "no transcript available for this video", Err: err}
	}

	liveContext := strings.TrimSpace(req.Context)
	if liveContext == "" {
		liveContext = transcriptText(lines)
	}

	var questions []models.Question
	if s.questions != nil {
		entries, err := s.questions.LiveQuestions(ctx, liveContext, count)
		if err != nil {
			s.log.Warn("live questions unavailable", zap.String("video_id", req.VideoID), zap.Error(err))
		} else {
			questions = s.normalizer.NormalizeQuestions(entries)
		}
	}

	sess := &liveSession{
		id:        uuid.New().String(),
		userID:    userID,
		videoID:   req.VideoID,
		context:   liveContext,
		startedAt: s.now(),
		state:     models.LivePaused,
		lines:     lines,
		questions: questions,
		qIndex:    -1,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	metrics.ActiveLiveSessions.Inc()

	sess.mu.Lock()
	s.touch(sess)
	sess.mu.Unlock()

	s.log.Info("live class prepared",
		zap.String("user_id", userID),
		zap.String("session_id", sess.id),
		zap.Int("lines", len(lines)),
		zap.Int("questions", len(questions)))

	snap := sess.snapshot()
	return &snap, nil
}

func (s *LiveClassService) session(userID, id string) (*liveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.userID != userID {
		return nil, &NotFoundError{Message: "Live session not found"}
	}
	return sess, nil
}

// take removes the session from the registry. Only one caller can win it.
func (s *LiveClassService) take(userID, id string) (*liveSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || (userID != "" && sess.userID != userID) {
		return nil, false
	}
	delete(s.sessions, id)
	metrics.ActiveLiveSessions.Dec()
	return sess, true
}

// touch re-arms the idle expiry. Callers hold sess.mu.
func (s *LiveClassService) touch(sess *liveSession) {
	if sess.idle != nil {
		sess.idle.Stop()
	}
	id := sess.id
	sess.idle = s.sched.After(liveIdleTTL, func() { s.expire(id) })
}

// teardown stops every timer of the session. Callers hold sess.mu.
func (sess *liveSession) teardown() {
	if sess.timers != nil {
		sess.timers.Stop()
	}
	if sess.idle != nil {
		sess.idle.Stop()
	}
}

// expire drops a session nobody has acted on for liveIdleTTL. Abandoned
// sessions earn no credit.
func (s *LiveClassService) expire(id string) {
	sess, ok := s.take("", id)
	if !ok {
		return
	}
	sess.mu.Lock()
	sess.state = models.LiveStopped
	sess.teardown()
	sess.mu.Unlock()
	s.log.Info("idle live session expired", zap.String("user_id", sess.userID), zap.String("session_id", id))
}

func (s *LiveClassService) Get(userID, id string) (*models.LiveSnapshot, error) {
	sess, err := s.session(userID, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.touch(sess)
	snap := sess.snapshot()
	return &snap, nil
}

// Play starts the transcript and question timers. Both belong to one group
// so pausing or stopping tears them down together.
func (s *LiveClassService) Play(userID, id string) (*models.LiveSnapshot, error) {
	sess, err := s.session(userID, id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.touch(sess)
	if sess.state == models.LivePlaying {
		snap := sess.snapshot()
		return &snap, nil
	}

	sess.state = models.LivePlaying
	sess.timers = &scheduler.Group{}
	sess.timers.Add(s.sched.Every(liveTick, func() { s.transcriptTick(sess) }))
	sess.timers.Add(s.sched.Every(liveTick, func() { s.questionTick(sess) }))

	snap := sess.snapshot()
	return &snap, nil
}

func (s *LiveClassService) Pause(userID, id string) (*models.LiveSnapshot, error) {
	sess, err := s.session(userID, id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.touch(sess)
	sess.state = models.LivePaused
	if sess.timers != nil {
		sess.timers.Stop()
	}
	snap := sess.snapshot()
	return &snap, nil
}

// Stop ends the session and credits the watched time.
func (s *LiveClassService) Stop(ctx context.Context, userID, id string) (*models.LiveSnapshot, error) {
	sess, ok := s.take(userID, id)
	if !ok {
		return nil, &NotFoundError{Message: "Live session not found"}
	}

	sess.mu.Lock()
	sess.state = models.LiveStopped
	sess.teardown()
	snap := sess.snapshot()
	sess.mu.Unlock()

	if snap.Elapsed > 0 {
		if err := s.repo.AddActivity(ctx, userID, models.Activity{
			ID:        uuid.New().String(),
			Type:      models.ActivityLive,
			Title:     "Attended live class " + snap.VideoID,
			Points:    LivePoints,
			Timestamp: s.now(),
		}); err != nil {
			return nil, err
		}
		if _, err := s.repo.UpdateUserStats(ctx, userID, models.ActivityLive, LivePoints); err != nil {
			return nil, err
		}
		if minutes := snap.Elapsed / 60; minutes > 0 {
			if _, err := s.repo.AddStudyTime(ctx, userID, minutes); err != nil {
				return nil, err
			}
		}
	}
	return &snap, nil
}

func (s *LiveClassService) transcriptTick(sess *liveSession) {
	sess.mu.Lock()
	if sess.state != models.LivePlaying {
		sess.mu.Unlock()
		return
	}
	sess.elapsed++
	advanced := false
	for sess.cursor < len(sess.lines) && sess.lines[sess.cursor].Start <= float64(sess.elapsed) {
		sess.cursor++
		advanced = true
	}
	snap := sess.snapshot()
	sess.mu.Unlock()

	if advanced {
		s.pub.Publish(context.Background(), sess.userID, models.WSMessage{Type: "live_transcript", Payload: snap})
	}
}

func (s *LiveClassService) questionTick(sess *liveSession) {
	sess.mu.Lock()
	if sess.state != models.LivePlaying || len(sess.questions) == 0 {
		sess.mu.Unlock()
		return
	}
	sess.sinceQ++
	if sess.sinceQ < questionEveryTicks {
		sess.mu.Unlock()
		return
	}
	sess.sinceQ = 0
	sess.qIndex = (sess.qIndex + 1) % len(sess.questions)
	snap := sess.snapshot()
	sess.mu.Unlock()

	s.pub.Publish(context.Background(), sess.userID, models.WSMessage{Type: "live_question", Payload: snap})
}

// Ask forwards a chat question about the session to the configured answerer.
func (s *LiveClassService) Ask(ctx context.Context, userID, id, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", &ValidationError{Fields: map[string]string{"question": "Question is required"}}
	}
	sess, err := s.session(userID, id)
	if err != nil {
		return "", err
	}
	if s.chat == nil {
		return "", &UpstreamError{Endpoint: "chat", Message: "chat is not configured"}
	}

	sess.mu.Lock()
	s.touch(sess)
	liveContext := sess.context
	sess.mu.Unlock()

	return s.chat.ChatAnswer(ctx, liveContext, question, sess.id)
}

// Close stops the timers of every session.
func (s *LiveClassService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		sess.teardown()
		sess.mu.Unlock()
	}
}
