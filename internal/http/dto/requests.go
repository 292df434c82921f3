package dto

import "encoding/json"

type SubmitChangeRequest struct {
	ChangeType string          `json:"change_type"`
	Payload    json.RawMessage `json:"payload"`
}

// AdminCreateChangeRequest creates a change on behalf of a company. The
// record still goes through moderation.
type AdminCreateChangeRequest struct {
	CompanyID   string          `json:"company_id"`
	SubmitterID *string         `json:"submitter_id,omitempty"`
	ChangeType  string          `json:"change_type"`
	Payload     json.RawMessage `json:"payload"`
}

type RejectChangeRequest struct {
	Reason string `json:"reason"`
}

type BatchApproveRequest struct {
	IDs []string `json:"ids"`
}

type BatchRejectRequest struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason"`
}
