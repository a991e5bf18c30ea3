package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studymate-backend/internal/metrics"
	"studymate-backend/internal/models"
	"studymate-backend/internal/random"
	"studymate-backend/internal/repository"
	"studymate-backend/internal/scheduler"
)

const (
	opponentAccuracy    = 0.65
	opponentMinDelay    = 500 * time.Millisecond
	opponentDelaySpread = 1000 // ms, inclusive
	finishedBattleTTL   = 5 * time.Minute
	idleBattleTTL       = 15 * time.Minute
)

var opponentNames = []string{"QuizWhiz", "BrainStorm", "NeoLearner", "Professor Owl", "SparkMind"}

type battleState struct {
	userID    string
	battle    models.Battle
	quiz      models.Quiz
	resolving bool
	pending   scheduler.Handle
	idle      scheduler.Handle
}

// BattleService runs quiz battles against a simulated opponent. The
// opponent answers each round after a random delay; the player cannot
// answer again until that round resolves.
type BattleService struct {
	repo  *repository.StudyRepo
	rng   random.Source
	sched scheduler.Scheduler
	pub   Publisher
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	battles map[string]*battleState
}

func NewBattleService(repo *repository.StudyRepo, rng random.Source, sched scheduler.Scheduler, pub Publisher, log *zap.Logger) *BattleService {
	return &BattleService{
		repo:    repo,
		rng:     rng,
		sched:   sched,
		pub:     pub,
		log:     log,
		now:     time.Now,
		battles: make(map[string]*battleState),
	}
}

func (s *BattleService) StartBattle(ctx context.Context, userID, quizID string) (*models.Battle, error) {
	quiz, ok := s.repo.GetQuiz(ctx, userID, quizID)
	if !ok {
		return nil, &NotFoundError{Message: "Quiz not found"}
	}
	if len(quiz.Questions) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"quizId": "Quiz has no questions"}}
	}

	battle := models.Battle{
		ID:          uuid.New().String(),
		QuizID:      quiz.ID,
		Topic:       quiz.Topic,
		Opponent:    random.Pick(s.rng, opponentNames),
		Status:      models.BattleActive,
		TotalRounds: len(quiz.Questions),
		Rounds:      []models.BattleRound{},
		StartedAt:   s.now(),
	}
	if err := s.repo.SaveActiveBattle(ctx, userID, battle); err != nil {
		return nil, fmt.Errorf("failed to save battle: %w", err)
	}

	st := &battleState{userID: userID, battle: battle, quiz: *quiz}
	s.mu.Lock()
	s.battles[battle.ID] = st
	s.touch(st)
	s.mu.Unlock()

	s.log.Info("battle started",
		zap.String("user_id", userID),
		zap.String("battle_id", battle.ID),
		zap.String("opponent", battle.Opponent))
	return &battle, nil
}

func (s *BattleService) GetBattle(ctx context.Context, userID, battleID string) (*models.Battle, error) {
	s.mu.Lock()
	st, ok := s.battles[battleID]
	if ok && st.userID == userID {
		b := st.battle
		s.mu.Unlock()
		return &b, nil
	}
	s.mu.Unlock()

	for _, b := range s.repo.GetActiveBattles(ctx, userID) {
		if b.ID == battleID {
			battle := b
			return &battle, nil
		}
	}
	return nil, &NotFoundError{Message: "Battle not found"}
}

// SubmitAnswer records the player's answer for the current round and lets
// the opponent answer after a delay of 0.5 to 1.5 seconds.
func (s *BattleService) SubmitAnswer(ctx context.Context, userID, battleID string, req models.BattleAnswerRequest) (*models.Battle, error) {
	s.mu.Lock()
	st, ok := s.battles[battleID]
	if !ok || st.userID != userID {
		s.mu.Unlock()
		return nil, &NotFoundError{Message: "Battle not found"}
	}
	if st.battle.Status != models.BattleActive {
		s.mu.Unlock()
		return nil, &ConflictError{Message: "Battle is already finished"}
	}
	if st.resolving {
		s.mu.Unlock()
		return nil, &ConflictError{Message: "Waiting for the opponent to answer"}
	}
	if req.QuestionIndex != st.battle.CurrentIndex {
		s.mu.Unlock()
		return nil, &ValidationError{Fields: map[string]string{
			"questionIndex": fmt.Sprintf("Current question is %d", st.battle.CurrentIndex),
		}}
	}

	playerCorrect := IsCorrect(st.quiz.Questions[req.QuestionIndex], req.Answer)
	s.touch(st)
	st.resolving = true
	delay := opponentMinDelay + time.Duration(s.rng.Intn(opponentDelaySpread+1))*time.Millisecond
	st.pending = s.sched.After(delay, func() { s.resolveRound(battleID, playerCorrect) })
	snapshot := st.battle
	s.mu.Unlock()

	return &snapshot, nil
}

func (s *BattleService) resolveRound(battleID string, playerCorrect bool) {
	ctx := context.Background()

	s.mu.Lock()
	st, ok := s.battles[battleID]
	if !ok || !st.resolving {
		s.mu.Unlock()
		return
	}

	b := &st.battle
	q := st.quiz.Questions[b.CurrentIndex]
	opponentCorrect := s.rng.Float64() < opponentAccuracy

	b.Rounds = append(b.Rounds, models.BattleRound{
		QuestionIndex:   b.CurrentIndex,
		PlayerCorrect:   playerCorrect,
		OpponentCorrect: opponentCorrect,
	})
	if playerCorrect {
		b.PlayerScore += q.Points
	}
	if opponentCorrect {
		b.OpponentScore += q.Points
	}
	b.CurrentIndex++
	st.resolving = false
	st.pending = nil

	finished := b.CurrentIndex >= b.TotalRounds
	if finished {
		if st.idle != nil {
			st.idle.Stop()
		}
		now := s.now()
		b.Status = models.BattleFinished
		b.FinishedAt = &now
	}
	snapshot := st.battle
	userID := st.userID
	s.mu.Unlock()

	s.pub.Publish(ctx, userID, models.WSMessage{Type: "battle_round", Payload: snapshot})

	if !finished {
		if err := s.repo.SaveActiveBattle(ctx, userID, snapshot); err != nil {
			s.log.Warn("failed to save battle progress", zap.String("battle_id", battleID), zap.Error(err))
		}
		return
	}
	s.finish(ctx, userID, snapshot)
}

func (s *BattleService) finish(ctx context.Context, userID string, b models.Battle) {
	won := b.PlayerScore > b.OpponentScore
	result := "lost"
	switch {
	case won:
		result = "won"
	case b.PlayerScore == b.OpponentScore:
		result = "draw"
	}
	metrics.BattlesFinished.WithLabelValues(result).Inc()

	if err := s.repo.RemoveActiveBattle(ctx, userID, b.ID); err != nil {
		s.log.Warn("failed to remove active battle", zap.String("battle_id", b.ID), zap.Error(err))
	}
	if err := s.repo.AddBattleRecord(ctx, userID, models.BattleRecord{
		ID:            b.ID,
		QuizID:        b.QuizID,
		Topic:         b.Topic,
		Opponent:      b.Opponent,
		PlayerScore:   b.PlayerScore,
		OpponentScore: b.OpponentScore,
		Won:           won,
		FinishedAt:    *b.FinishedAt,
	}); err != nil {
		s.log.Warn("failed to record battle", zap.String("battle_id", b.ID), zap.Error(err))
	}
	if won {
		if err := s.repo.RecordBattleWin(ctx, userID); err != nil {
			s.log.Warn("failed to record battle win", zap.String("battle_id", b.ID), zap.Error(err))
		}
	}
	if err := s.repo.AddActivity(ctx, userID, models.Activity{
		ID:        uuid.New().String(),
		Type:      models.ActivityBattle,
		Title:     fmt.Sprintf("Battle vs %s (%s)", b.Opponent, result),
		Points:    b.PlayerScore,
		Timestamp: *b.FinishedAt,
	}); err != nil {
		s.log.Warn("failed to record battle activity", zap.String("battle_id", b.ID), zap.Error(err))
	}
	if _, err := s.repo.UpdateUserStats(ctx, userID, models.ActivityBattle, b.PlayerScore); err != nil {
		s.log.Warn("failed to credit battle points", zap.String("battle_id", b.ID), zap.Error(err))
	}

	s.pub.Publish(ctx, userID, models.WSMessage{Type: "battle_finished", Payload: b})
	s.log.Info("battle finished",
		zap.String("user_id", userID),
		zap.String("battle_id", b.ID),
		zap.String("result", result),
		zap.Int("player_score", b.PlayerScore),
		zap.Int("opponent_score", b.OpponentScore))

	s.sched.After(finishedBattleTTL, func() {
		s.mu.Lock()
		delete(s.battles, b.ID)
		s.mu.Unlock()
	})
}

// touch re-arms the idle expiry of an active battle. Callers hold s.mu.
func (s *BattleService) touch(st *battleState) {
	if st.idle != nil {
		st.idle.Stop()
	}
	id := st.battle.ID
	st.idle = s.sched.After(idleBattleTTL, func() { s.expire(id) })
}

// expire abandons a battle the player stopped answering. It leaves the
// active list without a history record or points.
func (s *BattleService) expire(battleID string) {
	s.mu.Lock()
	st, ok := s.battles[battleID]
	if !ok || st.battle.Status != models.BattleActive {
		s.mu.Unlock()
		return
	}
	if st.pending != nil {
		st.pending.Stop()
	}
	delete(s.battles, battleID)
	userID := st.userID
	s.mu.Unlock()

	if err := s.repo.RemoveActiveBattle(context.Background(), userID, battleID); err != nil {
		s.log.Warn("failed to remove abandoned battle", zap.String("battle_id", battleID), zap.Error(err))
	}
	s.log.Info("idle battle expired", zap.String("user_id", userID), zap.String("battle_id", battleID))
}

func (s *BattleService) History(ctx context.Context, userID string) []models.BattleRecord {
	return s.repo.GetBattleHistory(ctx, userID)
}

// Close cancels every pending opponent answer.
func (s *BattleService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.battles {
		if st.pending != nil {
			st.pending.Stop()
		}
		if st.idle != nil {
			st.idle.Stop()
		}
	}
}
