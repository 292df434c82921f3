package events

import (
	"context"

	"github.com/google/uuid"
)

// Event types
const (
	EventChangeSubmitted   = "change_submitted"
	EventChangeApproved    = "change_approved"
	EventChangeRejected    = "change_rejected"
	EventChangeApplyFailed = "change_apply_failed"
)

// StreamModeration carries every moderation notification.
const StreamModeration = "events:moderation"

// RecipientAdmins addresses the moderation team as a whole.
const RecipientAdmins = "admins"

func UserRecipient(id uuid.UUID) string {
	return "user:" + id.String()
}

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
