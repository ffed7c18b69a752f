package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	UserRegistered         = "user.registered"
	UserUpdated            = "user.updated"
	UserCredentialsRotated = "user.credentials_rotated"
	UserLoggedOut          = "user.logged_out"
)

// Stream names
const (
	UserEventsStream = "user.events"
)

// Base event structure
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", e.Type, err)
	}
	return nil
}

type UserRegisteredEvent struct {
	UserID      int64  `json:"userId"`
	UserAccount string `json:"userAccount,omitempty"`
	Email       string `json:"email,omitempty"`
}

type UserUpdatedEvent struct {
	UserID    int64  `json:"userId"`
	UpdatedBy int64  `json:"updatedBy"`
	UserName  string `json:"userName"`
}

// UserCredentialsRotatedEvent carries the retired access key so that
// consumers caching key lookups can evict it.
type UserCredentialsRotatedEvent struct {
	UserID       int64  `json:"userId"`
	OldAccessKey string `json:"oldAccessKey"`
}

type UserLoggedOutEvent struct {
	UserID int64 `json:"userId"`
}
