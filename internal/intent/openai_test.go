package intent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/interview-scheduler/internal/negotiation"
)

func completionServer(t *testing.T, content string, seen *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			*seen = string(body)
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestChatClassifier(t *testing.T) {
	ctx := context.Background()

	t.Run("parses conversational answers", func(t *testing.T) {
		var body string
		srv := completionServer(t, `Sure: {"intent":"request_reschedule","confidence":0.82}`, &body)
		defer srv.Close()

		c := NewChatClassifier(ChatConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "test-model"})
		got, err := c.Classify(ctx, "can we do thursday instead", Hints{Purpose: PurposeConversation, Party: negotiation.PartyCandidate, State: negotiation.SlotProposed})
		require.NoError(t, err)
		assert.Equal(t, "request_reschedule", got.Label)
		assert.InDelta(t, 0.82, got.Confidence, 1e-9)
		assert.Contains(t, body, "can we do thursday instead")
		assert.Contains(t, body, "slot_proposed")
	})

	t.Run("parses feedback answers", func(t *testing.T) {
		srv := completionServer(t, `{"recommendation":"hold","summary":"Good coder, weak comms."}`, nil)
		defer srv.Close()

		c := NewChatClassifier(ChatConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "test-model"})
		got, err := c.Classify(ctx, "...", Hints{Purpose: PurposeFeedback})
		require.NoError(t, err)
		assert.Equal(t, "hold", got.Outcome)
		assert.Equal(t, "Good coder, weak comms.", got.Summary)
		assert.Equal(t, 1.0, got.Confidence)
	})

	t.Run("rejects answers without JSON", func(t *testing.T) {
		srv := completionServer(t, "I think they said yes", nil)
		defer srv.Close()

		c := NewChatClassifier(ChatConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "test-model"})
		_, err := c.Classify(ctx, "yes", Hints{Purpose: PurposeConversation})
		assert.ErrorIs(t, err, ErrNoClassification)
	})
}
