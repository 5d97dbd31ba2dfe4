package check

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/store"
)

func chatToIdentityDeps() (*Deps, *fakeIdentity, *fakeDocs) {
	idp := &fakeIdentity{users: []identity.User{
		{ID: "kc-1", Username: "alice"},
		{ID: "kc-2", Username: "bob"},
	}}
	docs := &fakeDocs{users: []store.ChatUser{
		{ID: "rc-1", Username: "alice", HasExternalLink: true},
		{ID: "rc-2", Username: "bob", HasExternalLink: true},
	}}
	return &Deps{Identity: idp, Docs: docs, Log: quietLogger()}, idp, docs
}

func TestChatToIdentityAllConsistent(t *testing.T) {
	deps, _, _ := chatToIdentityDeps()
	c := NewChatToIdentity(deps)

	ok, err := c.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, c.Results())
}

func TestChatToIdentityClassification(t *testing.T) {
	deps, idp, docs := chatToIdentityDeps()
	// ghost has no identity record; twin has two.
	docs.users = append(docs.users,
		store.ChatUser{ID: "rc-3", Username: "ghost", HasExternalLink: true},
		store.ChatUser{ID: "rc-4", Username: "twin", HasExternalLink: true},
	)
	idp.users = append(idp.users,
		identity.User{ID: "kc-3", Username: "twin"},
		identity.User{ID: "kc-4", Username: "twin"},
	)
	docs.subscriptions = []store.Subscription{
		{RoomID: "room-1", UserID: "rc-3", Roles: []string{"owner"}},
		{RoomID: "room-2", UserID: "rc-3"},
	}

	c := NewChatToIdentity(deps)
	ok, err := c.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, ok)

	results := c.Results()
	require.Len(t, results, 2)

	byUser := map[string]Result{}
	for _, r := range results {
		byUser[r.Payload.(*OrphanedUser).Username] = r
	}

	ghost := byUser["ghost"]
	assert.Equal(t, KindNotFound, ghost.Kind)
	payload := ghost.Payload.(*OrphanedUser)
	assert.Equal(t, "rc-3", payload.UserID)
	assert.Equal(t, 2, payload.Subscriptions)
	assert.Equal(t, 1, payload.OwnedRooms)

	twin := byUser["twin"]
	assert.Equal(t, KindMultipleFound, twin.Kind)

	assert.Contains(t, c.Summary(), "Missing users: 1")
	assert.Contains(t, c.Summary(), "Non unique users: 1")
}

func TestChatToIdentityIgnoresUnlinkedUsers(t *testing.T) {
	deps, _, docs := chatToIdentityDeps()
	// Local-only account with no identity record, but also no link flag.
	docs.users = append(docs.users, store.ChatUser{ID: "rc-9", Username: "local-admin"})

	c := NewChatToIdentity(deps)
	ok, err := c.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChatToIdentityIdempotent(t *testing.T) {
	deps, _, docs := chatToIdentityDeps()
	docs.users = append(docs.users, store.ChatUser{ID: "rc-3", Username: "ghost", HasExternalLink: true})

	first := NewChatToIdentity(deps)
	_, err := first.Run(context.Background(), Options{})
	require.NoError(t, err)

	second := NewChatToIdentity(deps)
	_, err = second.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Results(), second.Results())
}

func TestChatToIdentityRepairInvocation(t *testing.T) {
	deps, _, docs := chatToIdentityDeps()
	docs.users = append(docs.users, store.ChatUser{ID: "rc-3", Username: "ghost", HasExternalLink: true})
	repairer := &fakeRepairer{}
	deps.Repairer = repairer

	c := NewChatToIdentity(deps)
	_, err := c.Run(context.Background(), Options{Repair: true})
	require.NoError(t, err)
	assert.True(t, repairer.invoked)
}

func TestChatToIdentityRepairKeepsScanOutcome(t *testing.T) {
	deps, _, docs := chatToIdentityDeps()
	docs.users = append(docs.users, store.ChatUser{ID: "rc-3", Username: "ghost", HasExternalLink: true})
	repairer := &fakeRepairer{clear: true}
	deps.Repairer = repairer

	c := NewChatToIdentity(deps)
	ok, err := c.Run(context.Background(), Options{Repair: true})
	require.NoError(t, err)
	require.True(t, repairer.invoked)
	// The run found an orphan, so it failed even though the repair
	// cleaned up every result.
	assert.False(t, ok)
	assert.Empty(t, c.Results())
}

func TestChatToIdentityNoRepairWithoutFlag(t *testing.T) {
	deps, _, docs := chatToIdentityDeps()
	docs.users = append(docs.users, store.ChatUser{ID: "rc-3", Username: "ghost", HasExternalLink: true})
	repairer := &fakeRepairer{}
	deps.Repairer = repairer

	c := NewChatToIdentity(deps)
	_, err := c.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, repairer.invoked)
}

func TestChatToIdentitySkipAndLimit(t *testing.T) {
	idp := &fakeIdentity{}
	var users []store.ChatUser
	for i := 0; i < 10; i++ {
		users = append(users, store.ChatUser{
			ID:              string(rune('a' + i)),
			Username:        "missing-" + string(rune('a'+i)),
			HasExternalLink: true,
		})
	}
	docs := &fakeDocs{users: users}
	deps := &Deps{Identity: idp, Docs: docs, Log: quietLogger(), Scan: ScanSettings{ChunkSize: 3, Parallelism: 2}}

	c := NewChatToIdentity(deps)
	ok, err := c.Run(context.Background(), Options{Skip: 2, Limit: 5})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, c.Results(), 5)
}

func TestClampTotal(t *testing.T) {
	assert.Equal(t, 10, clampTotal(10, Options{}))
	assert.Equal(t, 7, clampTotal(10, Options{Skip: 2, Limit: 5}))
	assert.Equal(t, 10, clampTotal(10, Options{Skip: 8, Limit: 5}))
	assert.Equal(t, 5, clampTotal(10, Options{Limit: 5}))
}
