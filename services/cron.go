package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"therapy-room-backend/internal/logger"
)

// RetentionService prunes old chat history on a schedule.
type RetentionService struct {
	scheduler     *gocron.Scheduler
	messages      *mongo.Collection
	retentionDays int
}

func NewRetentionService(messages *mongo.Collection, retentionDays int) *RetentionService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &RetentionService{
		scheduler:     s,
		messages:      messages,
		retentionDays: retentionDays,
	}
}

// Start schedules the daily prune job and starts the scheduler.
func (r *RetentionService) Start() error {
	_, err := r.scheduler.Every(24 * time.Hour).Tag("chat-retention").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := r.Prune(ctx); err != nil {
			logger.Error("Chat retention prune failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	return nil
}

func (r *RetentionService) Stop() {
	r.scheduler.Stop()
}

// Prune deletes messages older than the retention window.
func (r *RetentionService) Prune(ctx context.Context) error {
	if r.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)
	result, err := r.messages.DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return err
	}

	if result.DeletedCount > 0 {
		logger.Info("Chat retention pruned old messages", "deleted", result.DeletedCount, "cutoff", cutoff.Format("2006-01-02"))
	}
	return nil
}
