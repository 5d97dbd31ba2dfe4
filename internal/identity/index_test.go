package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves a fixed user list page by page.
type fakeProvider struct {
	users   []User
	listErr error
}

func (f *fakeProvider) Count(ctx context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeProvider) ListPage(ctx context.Context, first, max int) ([]User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if first >= len(f.users) {
		return nil, nil
	}
	end := first + max
	if end > len(f.users) {
		end = len(f.users)
	}
	return f.users[first:end], nil
}

func (f *fakeProvider) FindByUsername(ctx context.Context, username string) ([]User, error) {
	var out []User
	for _, u := range f.users {
		if u.Username == username {
			out = append(out, u)
		}
	}
	return out, nil
}

func makeUsers(n int, dupes map[string]int) []User {
	var users []User
	for i := 0; i < n; i++ {
		users = append(users, User{ID: fmt.Sprintf("id-%d", i), Username: fmt.Sprintf("user-%d", i)})
	}
	for name, k := range dupes {
		for i := 0; i < k; i++ {
			users = append(users, User{ID: fmt.Sprintf("%s-dup-%d", name, i), Username: name})
		}
	}
	return users
}

func TestBuildIndexCountsMatchRegardlessOfChunking(t *testing.T) {
	dupes := map[string]int{"alice": 1, "bob": 2, "carol": 3}
	p := &fakeProvider{users: makeUsers(230, dupes)}

	configs := []IndexOptions{
		{PageSize: 100, Parallelism: 6},
		{PageSize: 7, Parallelism: 1},
		{PageSize: 1, Parallelism: 16},
		{PageSize: 500, Parallelism: 2},
	}
	for _, opts := range configs {
		t.Run(fmt.Sprintf("page=%d par=%d", opts.PageSize, opts.Parallelism), func(t *testing.T) {
			idx, err := BuildIndex(context.Background(), p, opts)
			require.NoError(t, err)

			for name, k := range dupes {
				assert.Equal(t, k, idx.Count(name), "username %s", name)
			}
			assert.Equal(t, 1, idx.Count("user-17"))
			assert.Equal(t, 0, idx.Count("nobody"))
			assert.Equal(t, len(p.users), idx.Total())
		})
	}
}

func TestBuildIndexSkipsEmptyUsernames(t *testing.T) {
	p := &fakeProvider{users: []User{
		{ID: "a", Username: "alice"},
		{ID: "ghost"},
		{ID: "b", Username: "bob"},
	}}
	idx, err := BuildIndex(context.Background(), p, IndexOptions{PageSize: 2, Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Size())
	assert.Equal(t, 3, idx.Total())
}

func TestBuildIndexPropagatesListErrors(t *testing.T) {
	boom := errors.New("provider down")
	p := &fakeProvider{users: makeUsers(10, nil), listErr: boom}
	_, err := BuildIndex(context.Background(), p, IndexOptions{PageSize: 5, Parallelism: 2})
	require.ErrorIs(t, err, boom)
}

func TestBuildIndexReportsProgress(t *testing.T) {
	p := &fakeProvider{users: makeUsers(42, nil)}
	var last int64
	_, err := BuildIndex(context.Background(), p, IndexOptions{
		PageSize:    10,
		Parallelism: 1,
		Progress:    func(done, total int64) { last = done },
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), last)
}
