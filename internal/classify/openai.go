package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/postwatch/postwatch/internal/model"

	"go.uber.org/zap"
)

// Config is the configuration for the chat-completions classifier
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Prompt is the decision prompt; PromptPlaceholder inside it is replaced
	// with the post text.
	Prompt string
}

// PromptPlaceholder marks where the post text goes in the prompt template.
const PromptPlaceholder = "<POST_CONTENT_HERE>"

const jsonInstruction = `

Respond with a JSON object in the following format:
{
    "decision": "TRUE" or "FALSE",
    "reasoning": "Brief explanation of your decision"
}

Respond only with the JSON object, no additional text.`

// LoadPrompt reads a prompt template from a file.
func LoadPrompt(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt template: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// chatClient is the chat-completions classifier
type chatClient struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

// NewChat creates a classifier over a chat-completions API
func NewChat(cfg Config, log *zap.Logger) Classifier {
	return &chatClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify submits one post and parses the decision JSON from the reply
func (c *chatClient) Classify(ctx context.Context, post model.Post) (Result, error) {
	prompt := strings.Replace(c.cfg.Prompt, PromptPlaceholder, post.Text, 1) + jsonInstruction

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a post classifier. Analyze posts and respond with valid JSON only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   300,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classify post %s: %w", post.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 16384))
		return Result{}, fmt.Errorf("classify post %s: unexpected status %d: %s", post.ID, resp.StatusCode, b)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Result{}, fmt.Errorf("classifier returned no choices for post %s", post.ID)
	}

	res, err := parseDecision(out.Choices[0].Message.Content)
	if err != nil {
		return Result{}, fmt.Errorf("parse decision for post %s: %w", post.ID, err)
	}
	c.log.Debug("classified post", zap.String("post_id", post.ID), zap.String("decision", res.Decision))
	return res, nil
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseDecision parses the decision JSON, tolerating markdown code fences
// around it.
func parseDecision(content string) (Result, error) {
	s := strings.TrimSpace(content)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	var res Result
	if err := json.Unmarshal([]byte(s), &res); err != nil {
		return Result{}, fmt.Errorf("invalid decision payload: %w", err)
	}
	if res.Decision == "" {
		return Result{}, fmt.Errorf("decision missing from payload")
	}
	return res, nil
}
