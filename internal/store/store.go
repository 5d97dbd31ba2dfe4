// Package store provides the read models over the two databases the
// reconciliation needs: the relational service database (agencies,
// sessions) and the chat service's document database (users,
// subscriptions, statistics events).
package store

import (
	"context"
	"time"
)

// AgencyBacklog is one agency's stale-session aggregate.
type AgencyBacklog struct {
	AgencyID   int64
	AgencyName string
	Unanswered int
	SessionIDs []int64
	RoomIDs    []string
}

// Agency is a plain agency record.
type Agency struct {
	ID   int64
	Name string
}

// Relational is the slice of the service database the checks and the
// repair engine read. All queries are read-only.
type Relational interface {
	// StaleSessionBacklogs returns, per agency that is not offline, the
	// open or pending sessions created before the cutoff, grouped by
	// agency.
	StaleSessionBacklogs(ctx context.Context, cutoff time.Time) ([]AgencyBacklog, error)

	// TeamFlaggedAgencies returns agencies carrying the team flag.
	TeamFlaggedAgencies(ctx context.Context) ([]Agency, error)

	// RoomReferenceCount returns how many live session or chat rows
	// still reference the room id, in either the primary or the
	// feedback room column.
	RoomReferenceCount(ctx context.Context, roomID string) (int, error)
}

// ChatUser is a chat-database user record.
type ChatUser struct {
	ID              string
	Username        string
	HasExternalLink bool
}

// Subscription is one user's membership in a chat room.
type Subscription struct {
	RoomID string
	UserID string
	Roles  []string
}

// Owner reports whether the subscription carries the owner role.
func (s Subscription) Owner() bool {
	for _, r := range s.Roles {
		if r == "owner" {
			return true
		}
	}
	return false
}

// tallySubscriptions counts a user's subscriptions and how many of them
// carry the owner role.
func tallySubscriptions(subs []Subscription) (total, owned int) {
	for _, s := range subs {
		total++
		if s.Owner() {
			owned++
		}
	}
	return total, owned
}

// Documents is the slice of the chat document database the checks and
// the repair engine read. Deletions go through the chat service API, not
// through this store.
type Documents interface {
	// CountUsers counts chat users; linkedOnly restricts the count to
	// users carrying the external-identity link flag.
	CountUsers(ctx context.Context, linkedOnly bool) (int, error)

	// ListUsersPage returns one page of chat users in a stable order.
	ListUsersPage(ctx context.Context, linkedOnly bool, limit, skip int) ([]ChatUser, error)

	// CountUsersByUsername counts chat users with the exact username.
	CountUsersByUsername(ctx context.Context, username string) (int, error)

	// SubscriptionCounts returns a user's room subscription count and
	// how many of those the user owns.
	SubscriptionCounts(ctx context.Context, userID string) (total, owned int, err error)

	// UserSubscriptions returns all room subscriptions of a user.
	UserSubscriptions(ctx context.Context, userID string) ([]Subscription, error)

	// RoomMemberIDs returns the user ids subscribed to a room.
	RoomMemberIDs(ctx context.Context, roomID string) ([]string, error)

	// CountEvents counts statistics events of one kind in [from, to].
	CountEvents(ctx context.Context, kind string, from, to time.Time) (int, error)
}
