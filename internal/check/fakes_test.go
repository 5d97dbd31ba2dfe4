package check

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/logging"
	"github.com/counselops/reconcile/internal/store"
)

func quietLogger() *logging.Logger {
	return logging.New(0, io.Discard)
}

// fakeIdentity serves a fixed identity-provider user set.
type fakeIdentity struct {
	users []identity.User
}

func (f *fakeIdentity) Count(ctx context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeIdentity) ListPage(ctx context.Context, first, max int) ([]identity.User, error) {
	if first >= len(f.users) {
		return nil, nil
	}
	end := first + max
	if end > len(f.users) {
		end = len(f.users)
	}
	return f.users[first:end], nil
}

func (f *fakeIdentity) FindByUsername(ctx context.Context, username string) ([]identity.User, error) {
	var out []identity.User
	for _, u := range f.users {
		if u.Username == username {
			out = append(out, u)
		}
	}
	return out, nil
}

// fakeDocs serves a fixed chat-database state.
type fakeDocs struct {
	users         []store.ChatUser
	subscriptions []store.Subscription
	eventCounts   map[string]int
}

func (f *fakeDocs) linked(linkedOnly bool) []store.ChatUser {
	if !linkedOnly {
		return f.users
	}
	var out []store.ChatUser
	for _, u := range f.users {
		if u.HasExternalLink {
			out = append(out, u)
		}
	}
	return out
}

func (f *fakeDocs) CountUsers(ctx context.Context, linkedOnly bool) (int, error) {
	return len(f.linked(linkedOnly)), nil
}

func (f *fakeDocs) ListUsersPage(ctx context.Context, linkedOnly bool, limit, skip int) ([]store.ChatUser, error) {
	users := append([]store.ChatUser(nil), f.linked(linkedOnly)...)
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	if skip >= len(users) {
		return nil, nil
	}
	end := skip + limit
	if end > len(users) {
		end = len(users)
	}
	return users[skip:end], nil
}

func (f *fakeDocs) CountUsersByUsername(ctx context.Context, username string) (int, error) {
	n := 0
	for _, u := range f.users {
		if u.Username == username {
			n++
		}
	}
	return n, nil
}

func (f *fakeDocs) SubscriptionCounts(ctx context.Context, userID string) (int, int, error) {
	total, owned := 0, 0
	for _, s := range f.subscriptions {
		if s.UserID != userID {
			continue
		}
		total++
		if s.Owner() {
			owned++
		}
	}
	return total, owned, nil
}

func (f *fakeDocs) UserSubscriptions(ctx context.Context, userID string) ([]store.Subscription, error) {
	var out []store.Subscription
	for _, s := range f.subscriptions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeDocs) RoomMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	var out []string
	for _, s := range f.subscriptions {
		if s.RoomID == roomID {
			out = append(out, s.UserID)
		}
	}
	return out, nil
}

func (f *fakeDocs) CountEvents(ctx context.Context, kind string, from, to time.Time) (int, error) {
	return f.eventCounts[kind], nil
}

// fakeRelational serves fixed service-database rows.
type fakeRelational struct {
	backlogs []store.AgencyBacklog
	agencies []store.Agency
	roomRefs map[string]int
}

func (f *fakeRelational) StaleSessionBacklogs(ctx context.Context, cutoff time.Time) ([]store.AgencyBacklog, error) {
	return f.backlogs, nil
}

func (f *fakeRelational) TeamFlaggedAgencies(ctx context.Context) ([]store.Agency, error) {
	return f.agencies, nil
}

func (f *fakeRelational) RoomReferenceCount(ctx context.Context, roomID string) (int, error) {
	return f.roomRefs[roomID], nil
}

// fakeRepairer records whether it was invoked. With clear set it empties
// the result list, like the real engine after repairing every orphan.
type fakeRepairer struct {
	invoked bool
	clear   bool
	err     error
}

func (f *fakeRepairer) Repair(ctx context.Context, results *ResultList) error {
	f.invoked = true
	if f.clear {
		results.RemoveWhere(func(Result) bool { return true })
	}
	return f.err
}
