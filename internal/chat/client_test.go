package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:  srv.URL,
		Username: "technical",
		Password: "secret",
	})
}

func loginHandler(t *testing.T, mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["user"] != "technical" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": "Unauthorized"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]string{"authToken": "tok-1", "userId": "tech-1"},
		})
	})
}

func TestLoginStoresSession(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(t, mux)
	c := newTestClient(t, mux)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, "tech-1", c.UserID())
}

func TestAuthenticatedRequestsCarrySessionHeaders(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(t, mux)
	var gotToken, gotUser string
	mux.HandleFunc("/api/v1/groups.invite", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Auth-Token")
		gotUser = r.Header.Get("X-User-Id")
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	c := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	require.NoError(t, c.InviteToRoom(ctx, "room-1", "tech-1"))
	assert.Equal(t, "tok-1", gotToken)
	assert.Equal(t, "tech-1", gotUser)
}

func TestRequestsCarryCSRFPair(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(t, mux)
	var gotHeader string
	var gotCookie *http.Cookie
	mux.HandleFunc("/api/v1/groups.invite", func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-CSRF-TOKEN")
		gotCookie, _ = r.Cookie("CSRF-TOKEN")
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	c := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	require.NoError(t, c.InviteToRoom(ctx, "room-1", "tech-1"))
	assert.Equal(t, "test", gotHeader)
	require.NotNil(t, gotCookie)
	assert.Equal(t, "test", gotCookie.Value)
}

func TestStructuredAPIError(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(t, mux)
	mux.HandleFunc("/api/v1/groups.invite", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"success":   false,
			"error":     "The required \"roomId\" param provided does not match any group",
			"errorType": "error-room-not-found",
		})
	})
	c := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	err := c.InviteToRoom(ctx, "gone", "tech-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, ErrTypeRoomNotFound, apiErr.ErrorType)
	assert.True(t, IsRoomNotFound(err))
}

func TestSuccessFalseWithHTTPOK(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(t, mux)
	mux.HandleFunc("/api/v1/users.delete", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "not allowed"})
	})
	c := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	err := c.DeleteUser(ctx, "u-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not allowed", apiErr.Message)
	assert.False(t, IsRoomNotFound(err))
}

func TestRoomMembers(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(t, mux)
	mux.HandleFunc("/api/v1/groups.members", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "room-1", r.URL.Query().Get("roomId"))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"members": []Member{{ID: "u-1", Username: "alice"}, {ID: "u-2", Username: "bob"}},
		})
	})
	c := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	members, err := c.RoomMembers(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Username)
}

func TestLogoutClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(t, mux)
	mux.HandleFunc("/api/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	})
	c := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.UserID())

	// Logging out twice is a no-op.
	require.NoError(t, c.Logout(ctx))
}
