package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stipend-works/stipend/internal/domain"
)

// chatServer fakes an OpenAI-compatible endpoint that always replies
// with the given message content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("got %d messages, want system + user", len(req.Messages))
		}

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testTask() *domain.Task {
	return &domain.Task{
		ID:         1,
		Category:   domain.CatCodeReview,
		MaxPayment: 5,
		Deadline:   time.Now().Add(time.Hour),
		ResultHash: "abc123",
	}
}

func TestChatClient_Assess(t *testing.T) {
	srv := chatServer(t, `{"confidence": 0.85, "recommendation": true}`)
	c := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})

	got, err := c.Assess(context.Background(), testTask())
	if err != nil {
		t.Fatalf("Assess() error: %v", err)
	}
	if got.Confidence != 0.85 || !got.Recommendation {
		t.Errorf("Assess() = %+v, want confidence 0.85 and recommendation true", got)
	}
}

func TestChatClient_AssessClampsConfidence(t *testing.T) {
	srv := chatServer(t, `{"confidence": 3.5, "recommendation": false}`)
	c := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})

	got, err := c.Assess(context.Background(), testTask())
	if err != nil {
		t.Fatalf("Assess() error: %v", err)
	}
	if got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want clamped 1.0", got.Confidence)
	}
}

func TestChatClient_ScoreParsesProseWrappedJSON(t *testing.T) {
	srv := chatServer(t, "Sure, here is my rating:\n```json\n{\"score\": 0.72}\n```\nHope that helps!")
	c := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})

	got, err := c.Score(context.Background(), testTask(), "w1", WorkerHistory{TotalTasks: 3, SuccessRate: 0.66, Reliability: 0.6})
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if got != 0.72 {
		t.Errorf("Score() = %v, want 0.72", got)
	}
}

func TestChatClient_ErrorOnNonJSONReply(t *testing.T) {
	srv := chatServer(t, "I cannot answer that.")
	c := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})

	if _, err := c.Assess(context.Background(), testTask()); err == nil {
		t.Error("Assess() with non-JSON reply should fail")
	}
}

func TestChatClient_ErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	c := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})

	if _, err := c.Assess(context.Background(), testTask()); err == nil {
		t.Error("Assess() on HTTP 429 should fail")
	}
}

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"bare object", `{"score": 0.5}`, false},
		{"fenced object", "```json\n{\"score\": 0.5}\n```", false},
		{"prose around object", `The answer is {"score": 0.5} as requested.`, false},
		{"no object", "just words", true},
		{"malformed object", `{"score": }`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Score float64 `json:"score"`
			}
			err := parseJSONObject(tt.text, &v)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseJSONObject(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}
