package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoginSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "alice", body["username"])

		json.NewEncoder(w).Encode(Grant{
			Success:      true,
			UserID:       "u-alice",
			AccessToken:  "acc",
			RefreshToken: "ref",
			AccessExp:    time.Now().Add(time.Hour).Unix(),
			RefreshExp:   time.Now().Add(24 * time.Hour).Unix(),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	grant, err := client.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, "u-alice", grant.UserID)
	require.Equal(t, "acc", grant.AccessToken)
}

func TestLoginProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "invalid credentials"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.Login(context.Background(), "alice", "wrong")

	var provider *Error
	require.ErrorAs(t, err, &provider)
	require.Equal(t, http.StatusUnauthorized, provider.Status)
	require.Equal(t, "invalid credentials", provider.Detail)
}

func TestLoginSuccessFalseBody(t *testing.T) {
	// Some providers answer 200 with success=false instead of a 4xx.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Grant{Success: false})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.Login(context.Background(), "alice", "wrong")

	var provider *Error
	require.ErrorAs(t, err, &provider)
	require.Equal(t, http.StatusUnauthorized, provider.Status)
}

func TestRefreshSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/refresh", r.URL.Path)
		require.Equal(t, "Bearer ref-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Grant{Success: true, UserID: "u"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	grant, err := client.Refresh(context.Background(), "ref-token")
	require.NoError(t, err)
	require.Equal(t, "u", grant.UserID)
}

func TestLogout(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
	}{
		{name: "accepted", status: http.StatusOK},
		{name: "provider error", status: http.StatusBadGateway, wantStatus: http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/auth/logout", r.URL.Path)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, time.Second)
			err := client.Logout(context.Background(), "acc")

			if tc.wantStatus == 0 {
				require.NoError(t, err)
				return
			}
			var provider *Error
			require.ErrorAs(t, err, &provider)
			require.Equal(t, tc.wantStatus, provider.Status)
		})
	}
}

func TestUnreachableProvider(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := client.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, ErrUnreachable)
	require.False(t, errors.As(err, new(*Error)), "transport failure is not a provider error")
}
