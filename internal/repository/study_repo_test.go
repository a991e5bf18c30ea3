package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"studymate-backend/internal/models"
)

func newTestRepo(now time.Time) (*StudyRepo, *MemoryStore) {
	store := NewMemoryStore()
	repo := NewStudyRepo(store, zap.NewNop())
	repo.SetClock(func() time.Time { return now })
	return repo, store
}

func material(id, topic string) models.StudyMaterial {
	content, _ := json.Marshal(models.SummaryContent{Text: "about " + topic})
	return models.StudyMaterial{
		ID:       id,
		Title:    "Summary: " + topic,
		Type:     models.MaterialSummary,
		Content:  content,
		Topic:    topic,
		UserID:   "u1",
		Language: "english",
	}
}

func TestSaveMaterial_RoundTripByTopic(t *testing.T) {
	repo, _ := newTestRepo(time.Now())
	ctx := context.Background()

	m := material("m1", "Cats")
	if err := repo.SaveMaterial(ctx, "u1", m); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.SaveMaterial(ctx, "u1", material("m2", "Dogs")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got := repo.MaterialsByTopic(ctx, "u1", "cats")
	if len(got) != 1 {
		t.Fatalf("expected 1 material for topic, got %d", len(got))
	}
	if got[0].ID != m.ID {
		t.Fatalf("expected id %q, got %q", m.ID, got[0].ID)
	}
	if string(got[0].Content) != string(m.Content) {
		t.Fatalf("content changed: %s vs %s", got[0].Content, m.Content)
	}
}

func TestSaveMaterial_UpsertIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(time.Now())
	ctx := context.Background()
	m := material("m1", "Cats")

	repo.SaveMaterial(ctx, "u1", m)
	once := len(repo.GetMaterials(ctx, "u1"))
	repo.SaveMaterial(ctx, "u1", m)
	twice := len(repo.GetMaterials(ctx, "u1"))

	if once != twice {
		t.Fatalf("expected same length after repeated upsert, got %d and %d", once, twice)
	}
}

func TestSaveMaterial_UpsertReplacesInPlace(t *testing.T) {
	repo, _ := newTestRepo(time.Now())
	ctx := context.Background()

	repo.SaveMaterial(ctx, "u1", material("m1", "Cats"))
	repo.SaveMaterial(ctx, "u1", material("m2", "Dogs"))

	updated := material("m1", "Cats")
	updated.Title = "Renamed"
	repo.SaveMaterial(ctx, "u1", updated)

	items := repo.GetMaterials(ctx, "u1")
	if len(items) != 2 {
		t.Fatalf("expected 2 materials, got %d", len(items))
	}
	if items[0].ID != "m1" || items[0].Title != "Renamed" {
		t.Fatalf("expected m1 replaced at index 0, got %+v", items[0])
	}
}

func TestReads_DefaultToEmptyOnCorruptValue(t *testing.T) {
	repo, store := newTestRepo(time.Now())
	ctx := context.Background()

	store.Set(ctx, scopedKey("u1", KeyStudyMaterials), []byte("{not json"))

	items := repo.GetMaterials(ctx, "u1")
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
	if got := repo.GetQuizzes(ctx, "u1"); len(got) != 0 {
		t.Fatalf("expected empty quizzes for absent key")
	}
	if freq := repo.GetTopicFrequency(ctx, "u1"); len(freq) != 0 {
		t.Fatalf("expected empty topic frequency")
	}
}

func TestReads_DefaultOnTypeMismatch(t *testing.T) {
	repo, store := newTestRepo(time.Now())
	ctx := context.Background()

	store.Set(ctx, scopedKey("u1", KeyStudyMaterials), []byte(`[{"id":"m1","title":5}]`))
	store.Set(ctx, scopedKey("u1", KeyTopicFrequency), []byte(`{"Cats":2,"Dogs":"many"}`))
	store.Set(ctx, scopedKey("u1", KeyUser), []byte(`{"id":"u1","name":"Ada","points":"lots"}`))

	if items := repo.GetMaterials(ctx, "u1"); len(items) != 0 {
		t.Fatalf("expected no partially decoded materials, got %+v", items)
	}
	if freq := repo.GetTopicFrequency(ctx, "u1"); len(freq) != 0 {
		t.Fatalf("expected no partially decoded counts, got %+v", freq)
	}
	user := repo.GetUser(ctx, "u1")
	if user.Name != "" || user.ID != "u1" || user.Level != 1 {
		t.Fatalf("expected a default profile, got %+v", user)
	}

	if err := repo.SaveMaterial(ctx, "u1", material("m2", "Cats")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items := repo.GetMaterials(ctx, "u1"); len(items) != 1 || items[0].ID != "m2" {
		t.Fatalf("expected the corrupt list to be replaced, got %+v", items)
	}
}

// flakyStore fails every Get once broken is set.
type flakyStore struct {
	*MemoryStore
	broken bool
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.broken {
		return nil, false, errors.New("connection reset")
	}
	return s.MemoryStore.Get(ctx, key)
}

func TestWrites_DoNotOverwriteWhenReadFails(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	repo := NewStudyRepo(store, zap.NewNop())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := repo.SaveMaterial(ctx, "u1", material(fmt.Sprintf("m%d", i), "Cats")); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	repo.AddActivity(ctx, "u1", models.Activity{ID: "a1"})
	repo.IncrementTopic(ctx, "u1", "Cats")
	repo.SaveUser(ctx, models.UserProfile{ID: "u1", Points: 700, Level: 1})

	store.broken = true
	writes := []struct {
		name string
		fn   func() error
	}{
		{"SaveMaterial", func() error { return repo.SaveMaterial(ctx, "u1", material("m4", "Cats")) }},
		{"DeleteMaterial", func() error { _, err := repo.DeleteMaterial(ctx, "u1", "m1"); return err }},
		{"AddActivity", func() error { return repo.AddActivity(ctx, "u1", models.Activity{ID: "a2"}) }},
		{"IncrementTopic", func() error { return repo.IncrementTopic(ctx, "u1", "Cats") }},
		{"UpdateUserStats", func() error {
			_, err := repo.UpdateUserStats(ctx, "u1", models.ActivityStudy, 50)
			return err
		}},
		{"AddStudyTime", func() error { _, err := repo.AddStudyTime(ctx, "u1", 5); return err }},
		{"ClearAllData", func() error { _, err := repo.ClearAllData(ctx, "u1"); return err }},
	}
	for _, w := range writes {
		if err := w.fn(); err == nil {
			t.Errorf("%s: expected the read failure to be returned", w.name)
		}
	}

	store.broken = false
	if n := len(repo.GetMaterials(ctx, "u1")); n != 3 {
		t.Fatalf("expected 3 materials to survive, got %d", n)
	}
	if n := len(repo.GetActivities(ctx, "u1")); n != 1 {
		t.Fatalf("expected 1 activity to survive, got %d", n)
	}
	if freq := repo.GetTopicFrequency(ctx, "u1"); freq["Cats"] != 1 {
		t.Fatalf("expected topic count 1, got %d", freq["Cats"])
	}
	if user := repo.GetUser(ctx, "u1"); user.Points != 700 {
		t.Fatalf("expected profile untouched, got %+v", user)
	}
}

func TestActivities_BoundedAndMostRecentFirst(t *testing.T) {
	repo, _ := newTestRepo(time.Now())
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		repo.AddActivity(ctx, "u1", models.Activity{ID: fmt.Sprintf("a%d", i), Type: models.ActivityStudy})
	}

	items := repo.GetActivities(ctx, "u1")
	if len(items) != MaxActivities {
		t.Fatalf("expected %d activities, got %d", MaxActivities, len(items))
	}
	if items[0].ID != "a59" {
		t.Fatalf("expected most recent first, got %s", items[0].ID)
	}
	if items[len(items)-1].ID != "a10" {
		t.Fatalf("expected oldest retained to be a10, got %s", items[len(items)-1].ID)
	}
}

func TestActivities_UnderCapKeepsAll(t *testing.T) {
	repo, _ := newTestRepo(time.Now())
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		repo.AddActivity(ctx, "u1", models.Activity{ID: fmt.Sprintf("a%d", i)})
	}

	items := repo.GetActivities(ctx, "u1")
	if len(items) != 25 {
		t.Fatalf("expected 25 activities, got %d", len(items))
	}
	for i, a := range items {
		want := fmt.Sprintf("a%d", 24-i)
		if a.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, a.ID)
		}
	}
}

func TestInputHistory_KeepsMostRecent20(t *testing.T) {
	repo, _ := newTestRepo(time.Now())
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		repo.AddInputHistory(ctx, "u1", models.InputHistoryEntry{ID: fmt.Sprintf("h%d", i)})
	}

	items := repo.GetInputHistory(ctx, "u1")
	if len(items) != MaxInputHistory {
		t.Fatalf("expected %d entries, got %d", MaxInputHistory, len(items))
	}
	if items[0].ID != "h24" || items[19].ID != "h5" {
		t.Fatalf("unexpected retained window: first=%s last=%s", items[0].ID, items[19].ID)
	}
}

func TestUpdateUserStats_Streak(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		lastDate   string
		startCount int
		wantStreak int
	}{
		{"yesterday increments", "2026-03-09", 4, 5},
		{"two days ago resets", "2026-03-08", 4, 1},
		{"same day unchanged", "2026-03-10", 4, 4},
		{"no history starts at one", "", 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, _ := newTestRepo(now)
			ctx := context.Background()

			repo.SaveUser(ctx, models.UserProfile{ID: "u1", Level: 1, Streak: tc.startCount})
			if tc.lastDate != "" {
				repo.write(ctx, "u1", KeyLastActivityDate, tc.lastDate)
			}

			user, err := repo.UpdateUserStats(ctx, "u1", models.ActivityStudy, 50)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user.Streak != tc.wantStreak {
				t.Fatalf("expected streak %d, got %d", tc.wantStreak, user.Streak)
			}
		})
	}
}

func TestUpdateUserStats_StreakOncePerDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo, _ := newTestRepo(now)
	ctx := context.Background()

	repo.SaveUser(ctx, models.UserProfile{ID: "u1", Level: 1, Streak: 2})
	repo.write(ctx, "u1", KeyLastActivityDate, "2026-03-09")

	repo.UpdateUserStats(ctx, "u1", models.ActivityStudy, 10)
	user, _ := repo.UpdateUserStats(ctx, "u1", models.ActivityStudy, 10)

	if user.Streak != 3 {
		t.Fatalf("expected streak to advance once, got %d", user.Streak)
	}
}

func TestUpdateUserStats_PointsAndLevel(t *testing.T) {
	repo, _ := newTestRepo(time.Now())
	ctx := context.Background()

	repo.SaveUser(ctx, models.UserProfile{ID: "u1", Points: 980, Level: 1})
	user, err := repo.UpdateUserStats(ctx, "u1", models.ActivityQuiz, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Points != 1030 || user.Level != 2 {
		t.Fatalf("expected 1030 points at level 2, got %d at %d", user.Points, user.Level)
	}
	if user.QuizzesTaken != 1 {
		t.Fatalf("expected quiz counter to increase")
	}
}

func TestLevelForPoints(t *testing.T) {
	cases := map[int]int{0: 1, 999: 1, 1000: 2, 2500: 3}
	for points, want := range cases {
		if got := LevelForPoints(points); got != want {
			t.Errorf("LevelForPoints(%d) = %d, want %d", points, got, want)
		}
	}
}

func TestClearAllData_SoftReset(t *testing.T) {
	repo, store := newTestRepo(time.Now())
	ctx := context.Background()

	repo.SaveUser(ctx, models.UserProfile{ID: "u1", Name: "Ada", Points: 3200, Level: 4, Streak: 7, QuizzesTaken: 3})
	repo.SaveMaterial(ctx, "u1", material("m1", "Cats"))
	repo.AddActivity(ctx, "u1", models.Activity{ID: "a1"})
	repo.IncrementTopic(ctx, "u1", "Cats")
	repo.SaveMaterial(ctx, "u2", material("m9", "Cats"))

	user, err := repo.ClearAllData(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.Name != "Ada" || user.Points != 0 || user.Level != 1 || user.Streak != 0 {
		t.Fatalf("unexpected profile after reset: %+v", user)
	}
	if len(repo.GetMaterials(ctx, "u1")) != 0 || len(repo.GetActivities(ctx, "u1")) != 0 {
		t.Fatalf("expected collections cleared")
	}
	if _, ok, _ := store.Get(ctx, scopedKey("u1", KeyUser)); !ok {
		t.Fatalf("expected user key to be kept")
	}
	if len(repo.GetMaterials(ctx, "u2")) != 1 {
		t.Fatalf("other users must not be affected")
	}
}

func TestAddStudyTime_AccumulatesPerDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo, _ := newTestRepo(now)
	ctx := context.Background()

	repo.AddStudyTime(ctx, "u1", 15)
	daily, err := repo.AddStudyTime(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if daily["2026-03-10"] != 25 {
		t.Fatalf("expected 25 minutes today, got %d", daily["2026-03-10"])
	}
	if repo.GetUser(ctx, "u1").StudyTime != 25 {
		t.Fatalf("expected profile study time 25")
	}
}

func TestCommunityPosts_NewestFirstAndLike(t *testing.T) {
	repo, _ := newTestRepo(time.Now())
	ctx := context.Background()

	repo.AddCommunityPost(ctx, "u1", models.CommunityPost{ID: "p1"})
	repo.AddCommunityPost(ctx, "u1", models.CommunityPost{ID: "p2"})

	posts := repo.GetCommunityPosts(ctx, "u1")
	if len(posts) != 2 || posts[0].ID != "p2" {
		t.Fatalf("expected newest post first, got %+v", posts)
	}

	liked, err := repo.LikeCommunityPost(ctx, "u1", "p1")
	if err != nil || liked == nil || liked.Likes != 1 {
		t.Fatalf("expected like to be recorded, got %+v err=%v", liked, err)
	}
	missing, _ := repo.LikeCommunityPost(ctx, "u1", "nope")
	if missing != nil {
		t.Fatalf("expected nil for unknown post")
	}
}
