package domain

import "time"

// ChatMessage belongs to one event. Messages are append-only and kept in arrival order.
type ChatMessage struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"eventId"`
	Text      string    `json:"text"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Lang      string    `json:"lang,omitempty"`
}

// ChatDraft is what a sender provides. Everything else is filled on append.
type ChatDraft struct {
	Text      string    `json:"text" validate:"required,trimmed_min=1"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}
