package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event names published on user lifecycle transitions.
const (
	UserCreated     = "user.created"
	UserUpdated     = "user.updated"
	UserDeleted     = "user.deleted"
	UserDeactivated = "user.deactivated"
)

// Event is the envelope published to the broker for a user mutation.
type Event struct {
	Name       string    `json:"event"`
	UserID     int       `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers user lifecycle events to a broker backend.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewEvent stamps an envelope with the current time.
func NewEvent(name string, userID int, email string) Event {
	return Event{
		Name:       name,
		UserID:     userID,
		Email:      email,
		OccurredAt: time.Now(),
	}
}

func (e Event) encode() ([]byte, map[string]string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, nil, err
	}
	attrs := map[string]string{"event": e.Name}
	return body, attrs, nil
}
