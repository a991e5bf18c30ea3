package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"studymate-backend/internal/models"
)

// Collection keys. Every key is scoped to a user id.
const (
	KeyUser             = "user"
	KeyStudyMaterials   = "studyMaterials"
	KeyAvailableQuizzes = "availableQuizzes"
	KeyQuizHistory      = "quizHistory"
	KeyActiveBattles    = "activeBattles"
	KeyBattleHistory    = "battleHistoryGlobal"
	KeyCommunityPosts   = "communityPosts"
	KeyActivities       = "activities"
	KeyTopicFrequency   = "topicFrequency"
	KeyInputHistory     = "inputHistory"
	KeyDailyStudyTimes  = "dailyStudyTimes"
	KeyLastActivityDate = "lastActivityDate"
)

var trackedKeys = []string{
	KeyStudyMaterials,
	KeyAvailableQuizzes,
	KeyQuizHistory,
	KeyActiveBattles,
	KeyBattleHistory,
	KeyCommunityPosts,
	KeyActivities,
	KeyTopicFrequency,
	KeyInputHistory,
	KeyDailyStudyTimes,
	KeyLastActivityDate,
}

const (
	MaxQuizHistory   = 50
	MaxBattleHistory = 50
	MaxActivities    = 50
	MaxInputHistory  = 20
)

const dateLayout = "2006-01-02"

type StudyRepo struct {
	store Store
	log   *zap.Logger
	now   func() time.Time

	locks sync.Map // userID -> *sync.Mutex
}

func NewStudyRepo(store Store, log *zap.Logger) *StudyRepo {
	return &StudyRepo{store: store, log: log, now: time.Now}
}

// SetClock replaces the clock used for streak and daily study time dates.
func (r *StudyRepo) SetClock(now func() time.Time) {
	r.now = now
}

func scopedKey(userID, key string) string {
	return "user:" + userID + ":" + key
}

func (r *StudyRepo) lock(userID string) func() {
	m, _ := r.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// load decodes the document stored at key into a fresh T. Absent keys and
// undecodable values yield def; only store failures are returned, so that
// read-modify-write callers never overwrite data they could not read.
func load[T any](ctx context.Context, r *StudyRepo, userID, key string, def T) (T, error) {
	raw, ok, err := r.store.Get(ctx, scopedKey(userID, key))
	if err != nil {
		return def, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return def, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		r.log.Warn("kv value does not decode, using default", zap.String("user_id", userID), zap.String("key", key), zap.Error(err))
		return def, nil
	}
	return v, nil
}

func (r *StudyRepo) write(ctx context.Context, userID, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.store.Set(ctx, scopedKey(userID, key), data); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func loadList[T any](ctx context.Context, r *StudyRepo, userID, key string) ([]T, error) {
	items, err := load[[]T](ctx, r, userID, key, nil)
	if items == nil {
		items = []T{}
	}
	return items, err
}

// readList is the tolerant reader behind the public getters: store
// failures are logged and read as an empty collection.
func readList[T any](ctx context.Context, r *StudyRepo, userID, key string) []T {
	items, err := loadList[T](ctx, r, userID, key)
	if err != nil {
		r.log.Warn("kv read failed", zap.String("user_id", userID), zap.String("key", key), zap.Error(err))
		return []T{}
	}
	return items
}

func loadCounts(ctx context.Context, r *StudyRepo, userID, key string) (map[string]int, error) {
	counts, err := load[map[string]int](ctx, r, userID, key, nil)
	if counts == nil {
		counts = map[string]int{}
	}
	return counts, err
}

func readCounts(ctx context.Context, r *StudyRepo, userID, key string) map[string]int {
	counts, err := loadCounts(ctx, r, userID, key)
	if err != nil {
		r.log.Warn("kv read failed", zap.String("user_id", userID), zap.String("key", key), zap.Error(err))
		return map[string]int{}
	}
	return counts
}

// prependBounded inserts item at the head and drops the oldest entries
// beyond limit.
func prependBounded[T any](items []T, item T, limit int) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, item)
	out = append(out, items...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func upsertByID[T any](items []T, item T, id func(T) string) []T {
	for i := range items {
		if id(items[i]) == id(item) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func sameTopic(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ──── Materials ────

func (r *StudyRepo) GetMaterials(ctx context.Context, userID string) []models.StudyMaterial {
	return readList[models.StudyMaterial](ctx, r, userID, KeyStudyMaterials)
}

func (r *StudyRepo) MaterialsByTopic(ctx context.Context, userID, topic string) []models.StudyMaterial {
	out := []models.StudyMaterial{}
	for _, m := range r.GetMaterials(ctx, userID) {
		if sameTopic(m.Topic, topic) {
			out = append(out, m)
		}
	}
	return out
}

func (r *StudyRepo) SaveMaterial(ctx context.Context, userID string, m models.StudyMaterial) error {
	defer r.lock(userID)()
	items, err := loadList[models.StudyMaterial](ctx, r, userID, KeyStudyMaterials)
	if err != nil {
		return err
	}
	items = upsertByID(items, m, func(x models.StudyMaterial) string { return x.ID })
	return r.write(ctx, userID, KeyStudyMaterials, items)
}

func (r *StudyRepo) DeleteMaterial(ctx context.Context, userID, id string) (bool, error) {
	defer r.lock(userID)()
	items, err := loadList[models.StudyMaterial](ctx, r, userID, KeyStudyMaterials)
	if err != nil {
		return false, err
	}
	kept := items[:0]
	for _, m := range items {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(items) {
		return false, nil
	}
	return true, r.write(ctx, userID, KeyStudyMaterials, kept)
}

// ──── Quizzes ────

func (r *StudyRepo) GetQuizzes(ctx context.Context, userID string) []models.Quiz {
	return readList[models.Quiz](ctx, r, userID, KeyAvailableQuizzes)
}

func (r *StudyRepo) QuizzesByTopic(ctx context.Context, userID, topic string) []models.Quiz {
	out := []models.Quiz{}
	for _, q := range r.GetQuizzes(ctx, userID) {
		if sameTopic(q.Topic, topic) {
			out = append(out, q)
		}
	}
	return out
}

func (r *StudyRepo) GetQuiz(ctx context.Context, userID, id string) (*models.Quiz, bool) {
	for _, q := range r.GetQuizzes(ctx, userID) {
		if q.ID == id {
			quiz := q
			return &quiz, true
		}
	}
	return nil, false
}

func (r *StudyRepo) SaveQuiz(ctx context.Context, userID string, q models.Quiz) error {
	defer r.lock(userID)()
	items, err := loadList[models.Quiz](ctx, r, userID, KeyAvailableQuizzes)
	if err != nil {
		return err
	}
	items = upsertByID(items, q, func(x models.Quiz) string { return x.ID })
	return r.write(ctx, userID, KeyAvailableQuizzes, items)
}

func (r *StudyRepo) AddQuizResult(ctx context.Context, userID string, res models.QuizResult) error {
	defer r.lock(userID)()
	items, err := loadList[models.QuizResult](ctx, r, userID, KeyQuizHistory)
	if err != nil {
		return err
	}
	return r.write(ctx, userID, KeyQuizHistory, prependBounded(items, res, MaxQuizHistory))
}

func (r *StudyRepo) GetQuizHistory(ctx context.Context, userID string) []models.QuizResult {
	return readList[models.QuizResult](ctx, r, userID, KeyQuizHistory)
}

// ──── Battles ────

func (r *StudyRepo) SaveActiveBattle(ctx context.Context, userID string, b models.Battle) error {
	defer r.lock(userID)()
	items, err := loadList[models.Battle](ctx, r, userID, KeyActiveBattles)
	if err != nil {
		return err
	}
	items = upsertByID(items, b, func(x models.Battle) string { return x.ID })
	return r.write(ctx, userID, KeyActiveBattles, items)
}

func (r *StudyRepo) GetActiveBattles(ctx context.Context, userID string) []models.Battle {
	return readList[models.Battle](ctx, r, userID, KeyActiveBattles)
}

func (r *StudyRepo) RemoveActiveBattle(ctx context.Context, userID, id string) error {
	defer r.lock(userID)()
	items, err := loadList[models.Battle](ctx, r, userID, KeyActiveBattles)
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, b := range items {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	return r.write(ctx, userID, KeyActiveBattles, kept)
}

func (r *StudyRepo) AddBattleRecord(ctx context.Context, userID string, rec models.BattleRecord) error {
	defer r.lock(userID)()
	items, err := loadList[models.BattleRecord](ctx, r, userID, KeyBattleHistory)
	if err != nil {
		return err
	}
	return r.write(ctx, userID, KeyBattleHistory, prependBounded(items, rec, MaxBattleHistory))
}

func (r *StudyRepo) GetBattleHistory(ctx context.Context, userID string) []models.BattleRecord {
	return readList[models.BattleRecord](ctx, r, userID, KeyBattleHistory)
}

// ──── Community ────

func (r *StudyRepo) GetCommunityPosts(ctx context.Context, userID string) []models.CommunityPost {
	return readList[models.CommunityPost](ctx, r, userID, KeyCommunityPosts)
}

func (r *StudyRepo) AddCommunityPost(ctx context.Context, userID string, p models.CommunityPost) error {
	defer r.lock(userID)()
	items, err := loadList[models.CommunityPost](ctx, r, userID, KeyCommunityPosts)
	if err != nil {
		return err
	}
	return r.write(ctx, userID, KeyCommunityPosts, prependBounded(items, p, 0))
}

func (r *StudyRepo) LikeCommunityPost(ctx context.Context, userID, id string) (*models.CommunityPost, error) {
	defer r.lock(userID)()
	items, err := loadList[models.CommunityPost](ctx, r, userID, KeyCommunityPosts)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			items[i].Likes++
			post := items[i]
			return &post, r.write(ctx, userID, KeyCommunityPosts, items)
		}
	}
	return nil, nil
}

// ──── Activity & history ────

func (r *StudyRepo) AddActivity(ctx context.Context, userID string, a models.Activity) error {
	defer r.lock(userID)()
	items, err := loadList[models.Activity](ctx, r, userID, KeyActivities)
	if err != nil {
		return err
	}
	return r.write(ctx, userID, KeyActivities, prependBounded(items, a, MaxActivities))
}

func (r *StudyRepo) GetActivities(ctx context.Context, userID string) []models.Activity {
	return readList[models.Activity](ctx, r, userID, KeyActivities)
}

func (r *StudyRepo) AddInputHistory(ctx context.Context, userID string, e models.InputHistoryEntry) error {
	defer r.lock(userID)()
	items, err := loadList[models.InputHistoryEntry](ctx, r, userID, KeyInputHistory)
	if err != nil {
		return err
	}
	return r.write(ctx, userID, KeyInputHistory, prependBounded(items, e, MaxInputHistory))
}

func (r *StudyRepo) GetInputHistory(ctx context.Context, userID string) []models.InputHistoryEntry {
	return readList[models.InputHistoryEntry](ctx, r, userID, KeyInputHistory)
}

func (r *StudyRepo) IncrementTopic(ctx context.Context, userID, topic string) error {
	defer r.lock(userID)()
	freq, err := loadCounts(ctx, r, userID, KeyTopicFrequency)
	if err != nil {
		return err
	}
	freq[topic]++
	return r.write(ctx, userID, KeyTopicFrequency, freq)
}

func (r *StudyRepo) GetTopicFrequency(ctx context.Context, userID string) map[string]int {
	return readCounts(ctx, r, userID, KeyTopicFrequency)
}

// AddStudyTime adds minutes to today's entry of the daily study-time map
// and to the profile's cumulative study time.
func (r *StudyRepo) AddStudyTime(ctx context.Context, userID string, minutes int) (map[string]int, error) {
	defer r.lock(userID)()
	daily, err := loadCounts(ctx, r, userID, KeyDailyStudyTimes)
	if err != nil {
		return nil, err
	}
	user, err := r.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	daily[r.now().Format(dateLayout)] += minutes
	if err := r.write(ctx, userID, KeyDailyStudyTimes, daily); err != nil {
		return nil, err
	}
	user.StudyTime += minutes
	if err := r.write(ctx, userID, KeyUser, user); err != nil {
		return nil, err
	}
	return daily, nil
}

func (r *StudyRepo) GetDailyStudyTimes(ctx context.Context, userID string) map[string]int {
	return readCounts(ctx, r, userID, KeyDailyStudyTimes)
}

// ──── User profile ────

func (r *StudyRepo) GetUser(ctx context.Context, userID string) models.UserProfile {
	user, err := r.loadUser(ctx, userID)
	if err != nil {
		r.log.Warn("kv read failed", zap.String("user_id", userID), zap.String("key", KeyUser), zap.Error(err))
		return models.UserProfile{ID: userID, Level: 1}
	}
	return user
}

func (r *StudyRepo) loadUser(ctx context.Context, userID string) (models.UserProfile, error) {
	user, err := load(ctx, r, userID, KeyUser, models.UserProfile{})
	if user.ID == "" {
		user.ID = userID
	}
	if user.Level < 1 {
		user.Level = 1
	}
	return user, err
}

func (r *StudyRepo) SaveUser(ctx context.Context, user models.UserProfile) error {
	defer r.lock(user.ID)()
	return r.write(ctx, user.ID, KeyUser, user)
}

// LevelForPoints returns the level reached with the given cumulative points.
func LevelForPoints(points int) int {
	return points/1000 + 1
}

// UpdateUserStats credits points for an activity, recomputes the level and
// advances the daily streak at most once per calendar day.
func (r *StudyRepo) UpdateUserStats(ctx context.Context, userID string, activity models.ActivityType, points int) (models.UserProfile, error) {
	defer r.lock(userID)()

	user, err := r.loadUser(ctx, userID)
	if err != nil {
		return user, err
	}
	last, err := load(ctx, r, userID, KeyLastActivityDate, "")
	if err != nil {
		return user, err
	}

	user.Points += points
	user.Level = LevelForPoints(user.Points)

	switch activity {
	case models.ActivityQuiz:
		user.QuizzesTaken++
	}

	now := r.now()
	today := now.Format(dateLayout)

	if last != today {
		yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
		if last == yesterday {
			user.Streak++
		} else {
			user.Streak = 1
		}
		if err := r.write(ctx, userID, KeyLastActivityDate, today); err != nil {
			return user, err
		}
	}
	user.LastActivityDate = today

	if err := r.write(ctx, userID, KeyUser, user); err != nil {
		return user, err
	}
	return user, nil
}

func (r *StudyRepo) RecordBattleWin(ctx context.Context, userID string) error {
	defer r.lock(userID)()
	user, err := r.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	user.BattlesWon++
	return r.write(ctx, userID, KeyUser, user)
}

// ClearAllData removes every tracked collection but keeps the user profile,
// whose progress is reset.
func (r *StudyRepo) ClearAllData(ctx context.Context, userID string) (models.UserProfile, error) {
	defer r.lock(userID)()

	user, err := r.loadUser(ctx, userID)
	if err != nil {
		return user, err
	}

	keys := make([]string, len(trackedKeys))
	for i, k := range trackedKeys {
		keys[i] = scopedKey(userID, k)
	}
	if err := r.store.Delete(ctx, keys...); err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to clear data: %w", err)
	}

	user.Points = 0
	user.Level = 1
	user.Streak = 0
	user.LastActivityDate = ""
	if err := r.write(ctx, userID, KeyUser, user); err != nil {
		return user, err
	}
	return user, nil
}
