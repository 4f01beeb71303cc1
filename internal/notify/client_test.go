package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hholt/choreboard/internal/config"
	"github.com/hholt/choreboard/pkg/logger"
)

func setupClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.NotifyConfig{
		Enabled:    true,
		WebhookURL: srv.URL,
		Channel:    "family",
		Username:   "Chore Board",
	}
	return NewClient(cfg, logger.New("debug", "text", "stdout"))
}

func TestSendSimpleMessage(t *testing.T) {
	var got Message
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	err := client.SendSimpleMessage("dishes are done")
	assert.NoError(t, err)
	assert.Equal(t, "dishes are done", got.Text)
	assert.Equal(t, "family", got.Channel)
	assert.Equal(t, "Chore Board", got.Username)
}

func TestSendMessage_KeepsExplicitChannel(t *testing.T) {
	var got Message
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	err := client.SendMessage(&Message{Channel: "parents", Text: "hi"})
	assert.NoError(t, err)
	assert.Equal(t, "parents", got.Channel)
}

func TestSendMessage_Disabled(t *testing.T) {
	requests := 0
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
	})
	client.enabled = false

	err := client.SendSimpleMessage("should not be sent")
	assert.NoError(t, err)
	assert.Equal(t, 0, requests)
}

func TestSendMessage_Non200(t *testing.T) {
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	err := client.SendSimpleMessage("hi")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSendSweepSummary(t *testing.T) {
	var got Message
	requests := 0
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	// An empty sweep stays quiet.
	assert.NoError(t, client.SendSweepSummary(0, false))
	assert.Equal(t, 0, requests)

	assert.NoError(t, client.SendSweepSummary(3, true))
	assert.Equal(t, 1, requests)
	assert.Contains(t, got.Text, "**3**")
	assert.Contains(t, got.Text, "spend counter was reset")
}
