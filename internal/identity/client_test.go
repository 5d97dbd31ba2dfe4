package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUsername(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain username untouched", "consultant42", "consultant42"},
		{"encoded name decoded", "enc.jjqw4zjnmrrhu", "Jane-dbz"},
		{"encoded name without padding need", "enc.nvqxe2lb", "maria"},
		{"invalid base32 returned as is", "enc.!!!", "enc.!!!"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeUsername(tt.in))
		})
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("grant_type") {
		case "password":
			if r.Form.Get("username") != "admin" || r.Form.Get("password") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		case "refresh_token":
			if r.Form.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "token-1",
			"refresh_token": "refresh-1",
		})
	})
	mux.HandleFunc("/admin/realms/counseling/users/count", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "1234")
	})
	mux.HandleFunc("/admin/realms/counseling/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("exact") == "true" {
			if q.Get("username") == "alice" {
				json.NewEncoder(w).Encode([]User{{ID: "u1", Username: "alice"}})
				return
			}
			json.NewEncoder(w).Encode([]User{})
			return
		}
		assert.Equal(t, "true", q.Get("briefRepresentation"))
		json.NewEncoder(w).Encode([]User{
			{ID: "u1", Username: "alice"},
			{ID: "u2", Username: "bob"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{
		BaseURL:  srv.URL,
		Realm:    "counseling",
		Username: "admin",
		Password: "secret",
	})
	return srv, client
}

func TestClientLoginAndLookups(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx))

	count, err := client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1234, count)

	users, err := client.ListPage(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	found, err := client.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u1", found[0].ID)

	missing, err := client.FindByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestClientRefreshUsesRefreshToken(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx))
	require.NoError(t, client.Refresh(ctx))
}

func TestClientLoginFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Realm: "counseling", Username: "admin", Password: "wrong"})
	err := client.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin token request failed")
}
