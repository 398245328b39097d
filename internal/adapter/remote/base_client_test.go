package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

func TestUserClient_FetchUserPreferences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/preference/user-42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"success": true,
			"message": "ok",
			"data": {"user_id":"user-42","email_opt_in":true,"push_opt_in":false,"daily_limit":10,"language":"en"}
		}`)
	}))
	defer server.Close()

	client := NewUserClient(server.URL, zap.NewNop())
	prefs, err := client.FetchUserPreferences(context.Background(), "user-42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", prefs.UserID)
	assert.True(t, prefs.EmailOptIn)
	assert.False(t, prefs.PushOptIn)
	assert.Equal(t, 10, prefs.DailyLimit)
}

func TestUserClient_NotFound_NoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"message":"not found","error":"user not found"}`)
	}))
	defer server.Close()

	client := NewUserClient(server.URL, zap.NewNop())
	_, err := client.FetchUserPreferences(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTemplateClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"success": true,
			"message": "ok",
			"data": {
				"id": "tpl-1",
				"name": "Welcome Email",
				"event": "user.registered",
				"channel": ["email"],
				"language": "en",
				"isActive": true,
				"versions": [{"version": 1, "subject": "Welcome!", "body": "Hello {{name}}"}]
			}
		}`)
	}))
	defer server.Close()

	client := NewTemplateClient(server.URL, zap.NewNop())
	tmpl, err := client.FetchTemplate(context.Background(), "welcome_email")
	require.NoError(t, err)
	assert.Equal(t, "tpl-1", tmpl.ID)
	assert.True(t, tmpl.IsActive)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestTemplateClient_MalformedPayload(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `not json at all`)
	}))
	defer server.Close()

	client := NewTemplateClient(server.URL, zap.NewNop())
	_, err := client.FetchTemplate(context.Background(), "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteMalformed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUserClient_NonConformingData(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"message":"ok","data":{"email_opt_in":"definitely"}}`)
	}))
	defer server.Close()

	client := NewUserClient(server.URL, zap.NewNop())
	_, err := client.FetchUserPreferences(context.Background(), "user-42")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteMalformed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUserClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewUserClient(server.URL, zap.NewNop())
	_, err := client.FetchUserPreferences(ctx, "user-42")
	require.Error(t, err)
}
