package check

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/store"
)

func TestIdentityToChatClassification(t *testing.T) {
	idp := &fakeIdentity{users: []identity.User{
		{ID: "kc-1", Username: "alice"},
		{ID: "kc-2", Username: "ghost"},
		{ID: "kc-3", Username: "twin"},
		{ID: "kc-4", Username: ""}, // no username, skipped
	}}
	docs := &fakeDocs{users: []store.ChatUser{
		{ID: "rc-1", Username: "alice"},
		{ID: "rc-2", Username: "twin"},
		{ID: "rc-3", Username: "twin"},
	}}
	deps := &Deps{Identity: idp, Docs: docs, Log: quietLogger()}

	c := NewIdentityToChat(deps)
	ok, err := c.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, ok)

	results := c.Results()
	require.Len(t, results, 2)

	byUser := map[string]Result{}
	for _, r := range results {
		byUser[r.Payload.(*UnmatchedIdentity).Username] = r
	}
	assert.Equal(t, KindNotFound, byUser["ghost"].Kind)
	assert.Equal(t, KindMultipleFound, byUser["twin"].Kind)

	// The summary counts each kind with its own predicate.
	assert.Contains(t, c.Summary(), "Missing users: 1")
	assert.Contains(t, c.Summary(), "Non unique users: 1")
}

func TestIdentityToChatAllConsistent(t *testing.T) {
	idp := &fakeIdentity{users: []identity.User{{ID: "kc-1", Username: "alice"}}}
	docs := &fakeDocs{users: []store.ChatUser{{ID: "rc-1", Username: "alice"}}}
	deps := &Deps{Identity: idp, Docs: docs, Log: quietLogger()}

	c := NewIdentityToChat(deps)
	ok, err := c.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, c.Results())
}

func TestIdentityToChatRow(t *testing.T) {
	c := NewIdentityToChat(&Deps{Log: quietLogger()})
	r := Result{
		Kind:    KindNotFound,
		Message: "User not found in chat service: maria / enc.nvqxe2lb / kc-9",
		Payload: &UnmatchedIdentity{IdentityID: "kc-9", Username: "enc.nvqxe2lb", Decoded: "maria"},
	}
	assert.Equal(t, []string{
		"User not found in chat service: maria / enc.nvqxe2lb / kc-9",
		"not_found",
		"kc-9",
		"enc.nvqxe2lb",
		"maria",
	}, c.Row(r))
}
