package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Change record statuses
const (
	ChangeStatusPending  = "pending"
	ChangeStatusApproved = "approved"
	ChangeStatusRejected = "rejected"
)

// Valid state transitions: from -> []to
var ValidChangeTransitions = map[string][]string{
	ChangeStatusPending:  {ChangeStatusApproved, ChangeStatusRejected},
	ChangeStatusApproved: {},
	ChangeStatusRejected: {},
}

func IsValidChangeTransition(from, to string) bool {
	allowed, ok := ValidChangeTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ChangeRecord is a proposed edit to a company that waits for moderation.
// Applied is tracked by AppliedAt, not by a separate status.
type ChangeRecord struct {
	ID              uuid.UUID       `json:"id"`
	Seq             int64           `json:"-"` // submission order
	CompanyID       uuid.UUID       `json:"company_id"`
	SubmitterID     *uuid.UUID      `json:"submitter_id,omitempty"`
	ChangeType      ChangeType      `json:"change_type"`
	Payload         json.RawMessage `json:"payload"`
	Status          string          `json:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	ApproverID      *uuid.UUID      `json:"approver_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	AppliedAt       *time.Time      `json:"applied_at,omitempty"`

	// Set while an applier holds the record.
	ApplyClaimedUntil *time.Time `json:"apply_claimed_until,omitempty"`
}

// IsStuck reports an approved record whose mutation never completed.
func (r *ChangeRecord) IsStuck() bool {
	return r.Status == ChangeStatusApproved && r.AppliedAt == nil
}

// Decode parses the payload into its typed variant.
func (r *ChangeRecord) Decode() (Change, error) {
	return DecodeChange(r.ChangeType, r.Payload)
}
