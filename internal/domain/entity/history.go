package entity

import "time"

// HistoryEntry is one immutable record of an applied transition.
// OldStatus is nil for the entry written when a draft is created.
type HistoryEntry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	OldStatus *string   `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Comment   *string   `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
	// Sequence is assigned by the ledger and breaks timestamp ties
	Sequence int64 `json:"sequence"`
}

// Contact is the notification-facing view of a user
type Contact struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	LarkOpenID string `json:"lark_open_id,omitempty"`
	ManagerID  string `json:"manager_id,omitempty"`
}
