package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDeliversPayload(t *testing.T) {
	var got sendRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":1,"failure":0}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, ServerKey: "secret"})
	require.NoError(t, err)

	err = client.Send(context.Background(), Notification{
		Token:    "tok1",
		Title:    "JetPredict Alert",
		Body:     "Predicted 2.10x at 10:05",
		Icon:     "https://jetpredict.app/icon.png",
		Sound:    "default",
		Tag:      "10:05",
		Renotify: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "key=secret", gotAuth)
	assert.Equal(t, "tok1", got.To)
	assert.Equal(t, "JetPredict Alert", got.Notification.Title)
	assert.Equal(t, "10:05", got.Notification.Tag)
	assert.True(t, got.Notification.Renotify)
}

func TestSendRejectsGatewayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, ServerKey: "secret"})
	require.NoError(t, err)

	err = client.Send(context.Background(), Notification{Token: "tok1", Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotRegistered")
}

func TestSendRejectsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, ServerKey: "bad"})
	require.NoError(t, err)

	err = client.Send(context.Background(), Notification{Token: "tok1", Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSendRequiresToken(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "http://localhost:0", ServerKey: "secret"})
	require.NoError(t, err)

	err = client.Send(context.Background(), Notification{Title: "t", Body: "b"})
	assert.Error(t, err)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(Config{ServerKey: "secret"})
	assert.Error(t, err)

	_, err = NewClient(Config{Endpoint: "http://localhost"})
	assert.Error(t, err)
}
