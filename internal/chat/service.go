// Package chat wraps the chat service's REST API. The client logs in as
// the technical account and keeps its session for the whole run; the
// repair engine uses it to join, delete and leave rooms and to remove
// orphaned accounts.
package chat

import (
	"context"
	"errors"
	"fmt"
)

// Member is a chat room member.
type Member struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Service is the slice of the chat API the reconciliation needs.
type Service interface {
	// Login authenticates the technical account.
	Login(ctx context.Context) error

	// Logout ends the technical account's session.
	Logout(ctx context.Context) error

	// UserID returns the technical account's chat user id. Empty before
	// Login.
	UserID() string

	// InviteToRoom adds a user to a private room.
	InviteToRoom(ctx context.Context, roomID, userID string) error

	// LeaveRoom removes the technical account from a room.
	LeaveRoom(ctx context.Context, roomID string) error

	// RoomMembers lists a room's members. The technical account must be
	// a member to see a private room.
	RoomMembers(ctx context.Context, roomID string) ([]Member, error)

	// EraseRoom deletes a private room and all its messages.
	EraseRoom(ctx context.Context, roomID string) error

	// DeleteUser removes a chat account.
	DeleteUser(ctx context.Context, userID string) error
}

// APIError is a structured chat API failure. ErrorType carries the
// service's machine-readable error identifier when one was returned.
type APIError struct {
	StatusCode int
	ErrorType  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("chat api error %d (%s): %s", e.StatusCode, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("chat api error %d: %s", e.StatusCode, e.Message)
}

// ErrTypeRoomNotFound is returned by the chat service when a room id
// does not resolve, typically because the room was already removed.
const ErrTypeRoomNotFound = "error-room-not-found"

// IsRoomNotFound reports whether err is the chat service's
// room-not-found error.
func IsRoomNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorType == ErrTypeRoomNotFound
}
