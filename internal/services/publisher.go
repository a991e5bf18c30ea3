package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studymate-backend/internal/models"
	"studymate-backend/internal/scheduler"
)

// Publisher delivers an event to every live connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, msg models.WSMessage)
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user_updates:%s", userID)
}

// RedisPublisher fans events out through Redis pub/sub so any API instance
// holding the user's socket can deliver them.
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, UserChannel(userID), string(data)).Err(); err != nil {
		p.log.Warn("publish failed", zap.String("user_id", userID), zap.String("type", msg.Type), zap.Error(err))
	}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, models.WSMessage) {}

// generationSteps are the cosmetic stages shown while a generation runs.
var generationSteps = []string{
	"Reading your content",
	"Extracting key concepts",
	"Writing summary",
	"Building flashcards",
	"Drawing mind map",
	"Preparing quiz",
}

const progressInterval = 2 * time.Second

// ProgressReporter publishes step-indexed progress on a fixed interval. The
// steps are not tied to real request progress and stop at the last one.
type ProgressReporter struct {
	pub       Publisher
	userID    string
	requestID string

	mu     sync.Mutex
	step   int
	handle scheduler.Handle
}

func StartProgress(sched scheduler.Scheduler, pub Publisher, userID, requestID string) *ProgressReporter {
	p := &ProgressReporter{pub: pub, userID: userID, requestID: requestID}
	p.publish(1)
	p.handle = sched.Every(progressInterval, p.advance)
	return p
}

func (p *ProgressReporter) advance() {
	p.mu.Lock()
	if p.step >= len(generationSteps) {
		p.mu.Unlock()
		return
	}
	next := p.step + 1
	p.mu.Unlock()
	p.publish(next)
}

func (p *ProgressReporter) publish(step int) {
	p.mu.Lock()
	p.step = step
	p.mu.Unlock()

	p.pub.Publish(context.Background(), p.userID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			RequestID:  p.requestID,
			Step:       step,
			StepName:   generationSteps[step-1],
			TotalSteps: len(generationSteps),
		},
	})
}

// Step returns the last published step.
func (p *ProgressReporter) Step() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step
}

func (p *ProgressReporter) Stop() {
	p.handle.Stop()
}
