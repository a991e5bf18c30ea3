package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"studymate-backend/internal/models"
	"studymate-backend/internal/scheduler"
)

// scriptedSource replays fixed values; once exhausted it keeps returning
// the last one.
type scriptedSource struct {
	ints   []int
	floats []float64
}

func (s *scriptedSource) Intn(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	if len(s.ints) > 1 {
		s.ints = s.ints[1:]
	}
	return v % n
}

func (s *scriptedSource) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	if len(s.floats) > 1 {
		s.floats = s.floats[1:]
	}
	return v
}

type battleFixture struct {
	svc   *BattleService
	sched *scheduler.Fake
	pub   *recordingPublisher
	quiz  models.Quiz
}

func newBattleFixture(src *scriptedSource) *battleFixture {
	repo := newTestStudyRepo()
	quiz := seedQuiz(repo, "u1")
	sched := scheduler.NewFake()
	pub := &recordingPublisher{}
	svc := NewBattleService(repo, src, sched, pub, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return &battleFixture{svc: svc, sched: sched, pub: pub, quiz: quiz}
}

func TestBattle_FullMatch(t *testing.T) {
	// opponent: correct, wrong, correct
	f := newBattleFixture(&scriptedSource{ints: []int{0}, floats: []float64{0.1, 0.9, 0.3}})
	ctx := context.Background()

	battle, err := f.svc.StartBattle(ctx, "u1", f.quiz.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if battle.Opponent != opponentNames[0] || battle.TotalRounds != 3 {
		t.Fatalf("unexpected battle %+v", battle)
	}

	answers := []models.Answer{models.IndexAnswer(1), models.TextAnswer("kitten"), models.IndexAnswer(1)}
	for i, a := range answers {
		if _, err := f.svc.SubmitAnswer(ctx, "u1", battle.ID, models.BattleAnswerRequest{QuestionIndex: i, Answer: a}); err != nil {
			t.Fatalf("round %d: unexpected error: %v", i, err)
		}
		f.sched.Advance(1500 * time.Millisecond)
	}

	got, err := f.svc.GetBattle(ctx, "u1", battle.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != models.BattleFinished || got.FinishedAt == nil {
		t.Fatalf("expected finished battle, got %+v", got)
	}
	if got.PlayerScore != 20 || got.OpponentScore != 10 {
		t.Fatalf("expected 20-10, got %d-%d", got.PlayerScore, got.OpponentScore)
	}

	history := f.svc.History(ctx, "u1")
	if len(history) != 1 || !history[0].Won {
		t.Fatalf("expected one won record, got %+v", history)
	}
	user := f.svc.repo.GetUser(ctx, "u1")
	if user.BattlesWon != 1 || user.Points != 20 {
		t.Fatalf("unexpected user %+v", user)
	}
	if len(f.svc.repo.GetActiveBattles(ctx, "u1")) != 0 {
		t.Fatalf("finished battle must leave the active list")
	}
	if len(f.pub.ofType("battle_round")) != 3 || len(f.pub.ofType("battle_finished")) != 1 {
		t.Fatalf("unexpected events %+v", f.pub.msgs)
	}
}

func TestBattle_DoubleSubmissionIsRejected(t *testing.T) {
	f := newBattleFixture(&scriptedSource{ints: []int{0, 1000}})
	ctx := context.Background()
	battle, _ := f.svc.StartBattle(ctx, "u1", f.quiz.ID)

	req := models.BattleAnswerRequest{QuestionIndex: 0, Answer: models.IndexAnswer(1)}
	if _, err := f.svc.SubmitAnswer(ctx, "u1", battle.ID, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.svc.SubmitAnswer(ctx, "u1", battle.ID, req)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError while the round resolves, got %v", err)
	}

	// delay was 1.5s: not resolved at 1.4s
	f.sched.Advance(1400 * time.Millisecond)
	got, _ := f.svc.GetBattle(ctx, "u1", battle.ID)
	if got.CurrentIndex != 0 {
		t.Fatalf("round resolved too early")
	}

	f.sched.Advance(100 * time.Millisecond)
	got, _ = f.svc.GetBattle(ctx, "u1", battle.ID)
	if got.CurrentIndex != 1 || len(got.Rounds) != 1 {
		t.Fatalf("expected round to resolve at 1.5s, got %+v", got)
	}

	if _, err := f.svc.SubmitAnswer(ctx, "u1", battle.ID, models.BattleAnswerRequest{QuestionIndex: 1, Answer: models.TextAnswer("kitten")}); err != nil {
		t.Fatalf("next round must accept an answer: %v", err)
	}
}

func TestBattle_Errors(t *testing.T) {
	f := newBattleFixture(&scriptedSource{})
	ctx := context.Background()

	_, err := f.svc.StartBattle(ctx, "u1", "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for unknown quiz, got %v", err)
	}

	battle, _ := f.svc.StartBattle(ctx, "u1", f.quiz.ID)

	_, err = f.svc.SubmitAnswer(ctx, "u2", battle.ID, models.BattleAnswerRequest{})
	if !errors.As(err, &nf) {
		t.Fatalf("other users must not see the battle, got %v", err)
	}

	_, err = f.svc.SubmitAnswer(ctx, "u1", battle.ID, models.BattleAnswerRequest{QuestionIndex: 2})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for wrong round, got %v", err)
	}
}

func TestBattle_CloseCancelsPendingOpponent(t *testing.T) {
	f := newBattleFixture(&scriptedSource{})
	ctx := context.Background()
	battle, _ := f.svc.StartBattle(ctx, "u1", f.quiz.ID)

	f.svc.SubmitAnswer(ctx, "u1", battle.ID, models.BattleAnswerRequest{QuestionIndex: 0, Answer: models.IndexAnswer(1)})
	f.svc.Close()
	f.sched.Advance(2 * time.Second)

	got, _ := f.svc.GetBattle(ctx, "u1", battle.ID)
	if len(got.Rounds) != 0 {
		t.Fatalf("no round may resolve after Close")
	}
}

func TestBattle_AbandonedBattleExpires(t *testing.T) {
	f := newBattleFixture(&scriptedSource{})
	ctx := context.Background()
	battle, _ := f.svc.StartBattle(ctx, "u1", f.quiz.ID)

	f.sched.Advance(idleBattleTTL - time.Minute)
	if _, err := f.svc.SubmitAnswer(ctx, "u1", battle.ID, models.BattleAnswerRequest{QuestionIndex: 0, Answer: models.IndexAnswer(1)}); err != nil {
		t.Fatalf("battle must still accept answers: %v", err)
	}

	// the answer re-armed the expiry
	f.sched.Advance(idleBattleTTL - time.Second)
	if _, err := f.svc.GetBattle(ctx, "u1", battle.ID); err != nil {
		t.Fatalf("battle expired too early: %v", err)
	}

	f.sched.Advance(time.Second)
	_, err := f.svc.GetBattle(ctx, "u1", battle.ID)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("abandoned battle must be dropped, got %v", err)
	}
	if f.sched.Pending() != 0 {
		t.Fatalf("expired battle left %d timers", f.sched.Pending())
	}
	if len(f.svc.History(ctx, "u1")) != 0 {
		t.Fatalf("abandoned battle must not be recorded")
	}
}
