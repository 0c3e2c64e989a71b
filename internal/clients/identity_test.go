package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semaphore/posts/internal/metrics"
	"semaphore/posts/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) *IdentityClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewIdentityClient(srv.URL, srv.URL, 2*time.Second, nil, metrics.New())
}

func TestVerifyToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body.Token {
		case "good":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "u1", "name": "Ada", "role": "teacher"})
		case "doc-id":
			_ = json.NewEncoder(w).Encode(map[string]string{"_id": "u2", "name": "Bob", "role": "student"})
		case "no-id":
			_ = json.NewEncoder(w).Encode(map[string]string{"name": "Ghost", "role": "student"})
		case "garbage":
			_, _ = w.Write([]byte("not json"))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
		}
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	identity, err := client.VerifyToken(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.ID)
	assert.Equal(t, "Ada", identity.Name)
	assert.Equal(t, model.RoleTeacher, identity.Role)

	identity, err = client.VerifyToken(ctx, "doc-id")
	require.NoError(t, err)
	assert.Equal(t, "u2", identity.ID)

	for _, token := range []string{"expired", "no-id", "garbage"} {
		_, err := client.VerifyToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestVerifyTokenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewIdentityClient(url, url, time.Second, nil, nil)
	_, err := client.VerifyToken(context.Background(), "any")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGetUserByID(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/api/users/u1":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "u1", "name": "Ada", "role": "teacher"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	user, err := client.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u1", Name: "Ada", Role: model.RoleTeacher}, user)

	_, err = client.GetUserByID(ctx, "a/b")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, "/api/users/a%2Fb", gotPath)
}

func TestCheckUserPermission(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/teacher":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "teacher", "role": "teacher"})
		case "/api/users/student":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "student", "role": "student"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	ctx := context.Background()

	assert.True(t, client.CheckUserPermission(ctx, "teacher"))
	assert.True(t, client.CheckUserPermission(ctx, "student"))
	assert.True(t, client.CheckUserPermission(ctx, "teacher", model.RoleTeacher))
	assert.False(t, client.CheckUserPermission(ctx, "student", model.RoleTeacher))
	assert.False(t, client.CheckUserPermission(ctx, "broken"))
}
