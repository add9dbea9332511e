package model

import "time"

// Notification is a locally stored reminder shown to the user when the
// SMS channel is disabled or fails.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// EventID links this notification to the fired occurrence.
	EventID int64 `json:"event_id"`

	// Title is the short heading, e.g. "Event Today".
	Title string `json:"title"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at"`
}
