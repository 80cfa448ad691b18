package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MoodEntry records the mood a user picked for a calendar day. One entry
// per date; saving again for the same date overwrites the mood.
type MoodEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Date      string             `bson:"date" json:"date"` // YYYY-MM-DD
	Mood      string             `bson:"mood" json:"mood"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

type SaveMoodRequest struct {
	Mood string `json:"mood" binding:"required"`
	Date string `json:"date" binding:"required"`
}

type MoodTodayResponse struct {
	HasSelectedToday bool   `json:"hasSelectedToday"`
	Today            string `json:"today"`
}
