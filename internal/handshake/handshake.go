// Package handshake gates the full erasure behind a request/confirm exchange.
//
// A requester first asks for the erasure, which parks a PendingErasure in the
// Store. The same requester then confirms from the same conversation before the
// timeout. Confirmation consumes the entry through Store.Delete, so of two
// concurrent confirmations only the one whose delete removed the entry wins.
package handshake

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"

	"tg-amnesia/internal/models"
)

var (
	ErrNoPendingRequest  = errors.New("no pending erasure request")
	ErrExpired           = errors.New("pending erasure request expired")
	ErrWrongConversation = errors.New("confirmation from a different conversation")
	ErrAlreadyPending    = errors.New("erasure request already pending")
)

// PendingError is returned by Request while an unexpired request exists.
type PendingError struct {
	Remaining time.Duration
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("erasure request already pending, %s left", e.Remaining.Round(time.Second))
}

func (e *PendingError) Is(target error) bool { return target == ErrAlreadyPending }

// Store keeps at most one PendingErasure per requester.
type Store interface {
	// Get returns nil, nil when the requester has nothing pending.
	Get(ctx context.Context, requesterID string) (*models.PendingErasure, error)
	// Create stores p unless the requester already has an entry.
	Create(ctx context.Context, p *models.PendingErasure) (bool, error)
	// Delete reports whether this call removed the entry.
	Delete(ctx context.Context, requesterID string) (bool, error)
	// Sweep drops entries created before cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

type Handshake struct {
	store   Store
	clock   clockwork.Clock
	timeout time.Duration
}

func New(store Store, clock clockwork.Clock, timeout time.Duration) *Handshake {
	return &Handshake{store: store, clock: clock, timeout: timeout}
}

func (h *Handshake) Timeout() time.Duration { return h.timeout }

// Request opens a confirmation window for requesterID in conversationID.
// A stale entry is replaced; a live one yields a *PendingError.
func (h *Handshake) Request(ctx context.Context, requesterID, conversationID string) (*models.PendingErasure, error) {
	now := h.clock.Now()

	existing, err := h.store.Get(ctx, requesterID)
	if err != nil {
		return nil, errors.Wrap(err, "load pending erasure")
	}
	if existing != nil {
		if !existing.Expired(now, h.timeout) {
			return nil, &PendingError{Remaining: existing.ExpiresAt(h.timeout).Sub(now)}
		}
		if _, err := h.store.Delete(ctx, requesterID); err != nil {
			return nil, errors.Wrap(err, "drop stale erasure request")
		}
	}

	p := &models.PendingErasure{RequesterID: requesterID, ConversationID: conversationID, CreatedAt: now}
	created, err := h.store.Create(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "store pending erasure")
	}
	if !created {
		// another handler created one between Get and Create
		return nil, &PendingError{Remaining: h.timeout}
	}
	return p, nil
}

// Confirm consumes the pending request of requesterID. On ErrExpired the entry
// is dropped; on ErrWrongConversation it is left for a correct confirmation.
func (h *Handshake) Confirm(ctx context.Context, requesterID, conversationID string) (*models.PendingErasure, error) {
	p, err := h.store.Get(ctx, requesterID)
	if err != nil {
		return nil, errors.Wrap(err, "load pending erasure")
	}
	if p == nil {
		return nil, ErrNoPendingRequest
	}

	if p.Expired(h.clock.Now(), h.timeout) {
		if _, err := h.store.Delete(ctx, requesterID); err != nil {
			return nil, errors.Wrap(err, "drop expired erasure request")
		}
		return nil, ErrExpired
	}

	if p.ConversationID != conversationID {
		return nil, ErrWrongConversation
	}

	removed, err := h.store.Delete(ctx, requesterID)
	if err != nil {
		return nil, errors.Wrap(err, "consume pending erasure")
	}
	if !removed {
		return nil, ErrNoPendingRequest
	}
	return p, nil
}

// Has reports whether requesterID holds a request, expired or not. Confirm
// decides what an expired one means.
func (h *Handshake) Has(ctx context.Context, requesterID string) (bool, error) {
	p, err := h.store.Get(ctx, requesterID)
	if err != nil {
		return false, errors.Wrap(err, "load pending erasure")
	}
	return p != nil, nil
}

// Sweep removes entries older than retention.
func (h *Handshake) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	return h.store.Sweep(ctx, h.clock.Now().Add(-retention))
}
