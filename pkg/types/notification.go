package types

import "time"

// Notification is a single in-app notification for a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// UnreadSummary is the derived view behind the notification badge.
type UnreadSummary struct {
	Count  int           `json:"count"`
	Latest *Notification `json:"latest,omitempty"`
}
