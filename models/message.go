package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one chat exchange (user query plus assistant answer).
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id,omitempty" json:"session_id,omitempty"`
	User      string             `bson:"user" json:"user"`
	Assistant string             `bson:"assistant" json:"assistant"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

type ChatRequest struct {
	Query     string        `json:"query" binding:"required,min=1,max=4000"`
	SessionID string        `json:"session_id,omitempty"`
	Messages  []ChatHistory `json:"messages,omitempty"`
}

// ChatHistory is one prior turn supplied by the client.
type ChatHistory struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Answer       string    `json:"answer"`
	ContextUsed  int       `json:"context_used"`
	PersonalInfo bool      `json:"personal_info_query"`
	Timestamp    time.Time `json:"timestamp"`
}
