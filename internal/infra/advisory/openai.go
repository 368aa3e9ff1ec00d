package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stipend-works/stipend/internal/domain"
)

// ChatClient talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, xAI, or a local runtime exposing /v1/chat/completions). The
// model is asked to answer with a single JSON object, which is parsed
// out of the reply text.
type ChatClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// ChatConfig configures the advisory HTTP client.
type ChatConfig struct {
	BaseURL string        // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string        // e.g. gpt-4o-mini
	Timeout time.Duration // per-request bound, default 30s
}

// NewChatClient creates an advisor backed by a chat completions API.
func NewChatClient(cfg ChatConfig) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

// ─── Wire types (OpenAI chat completions format) ────────────────────────────

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ─── Advisor implementation ─────────────────────────────────────────────────

// Assess asks the model whether submitted work should be accepted.
func (c *ChatClient) Assess(ctx context.Context, task *domain.Task) (Assessment, error) {
	prompt := fmt.Sprintf(
		`A worker submitted results for a paid task. Judge whether the submission should be accepted.

Task category: %s
Verification rule: %q
Result fingerprint: %q
Deadline: %s
Submitted before deadline: %t

Answer with a single JSON object: {"confidence": <0..1>, "recommendation": <true|false>}`,
		task.Category, task.VerificationRule, task.ResultHash,
		task.Deadline.Format(time.RFC3339), !task.Expired(time.Now()),
	)

	var out Assessment
	if err := c.complete(ctx, prompt, &out); err != nil {
		return Assessment{}, err
	}
	out.Confidence = clamp01(out.Confidence)
	return out, nil
}

// Score asks the model to rate a worker's fit for a task.
func (c *ChatClient) Score(ctx context.Context, task *domain.Task, worker string, history WorkerHistory) (float64, error) {
	prompt := fmt.Sprintf(
		`Rate how well a worker fits a paid task, from 0.0 (poor) to 1.0 (excellent).

Task category: %s
Max payment: %.4f
Worker: %s
Worker history: %d tasks, %.0f%% success rate, %.0fs avg completion, reliability %.2f

Answer with a single JSON object: {"score": <0..1>}`,
		task.Category, task.MaxPayment, worker,
		history.TotalTasks, history.SuccessRate*100, history.AvgCompletionSecs, history.Reliability,
	)

	var out struct {
		Score float64 `json:"score"`
	}
	if err := c.complete(ctx, prompt, &out); err != nil {
		return 0, err
	}
	return clamp01(out.Score), nil
}

// complete runs one chat completion and unmarshals the JSON object
// embedded in the reply into v.
func (c *ChatClient) complete(ctx context.Context, prompt string, v any) error {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an assessor for a task marketplace. Reply with exactly one JSON object and nothing else."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("advisory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("advisory request: status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return fmt.Errorf("decode advisory response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return fmt.Errorf("advisory response has no choices")
	}

	return parseJSONObject(cr.Choices[0].Message.Content, v)
}

// parseJSONObject extracts the first {...} object from model output.
// Models often wrap JSON in prose or code fences.
func parseJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in advisory reply: %q", text)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("parse advisory reply: %w", err)
	}
	return nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
