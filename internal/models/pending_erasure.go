package models

import "time"

// PendingErasure is an amnesia request waiting for its confirmation.
// There is at most one per requester.
type PendingErasure struct {
	RequesterID    string    `json:"requester_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExpiresAt returns when the request stops being confirmable.
func (p *PendingErasure) ExpiresAt(timeout time.Duration) time.Time {
	return p.CreatedAt.Add(timeout)
}

// Expired reports whether the confirmation window has closed at now.
func (p *PendingErasure) Expired(now time.Time, timeout time.Duration) bool {
	return !now.Before(p.ExpiresAt(timeout))
}
