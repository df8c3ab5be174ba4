package service

import "context"

// Conversation is the slice of an inbound message the clear commands need.
type Conversation interface {
	RequesterID() string
	// ConversationID identifies the stream the message belongs to; empty if unknown.
	ConversationID() string
	MessageID() string
	Text() string
	// Reply sends text into the same conversation and returns the new message id.
	Reply(ctx context.Context, text string) (string, error)
}
