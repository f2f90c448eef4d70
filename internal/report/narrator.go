package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"classroom-sync-service/internal/config"
)

// Narrator turns structured student facts into free-text narrative. The
// generation capability is opaque; failures are isolated per student by
// the report service.
type Narrator interface {
	Compose(ctx context.Context, facts StudentFacts, schoolLevel string) (string, error)
}

// tone prompts keyed by school level; the tier selects register, the
// facts supply the content.
var tonePrompts = map[string]string{
	"primary":   "You are an expert academic report writer for primary school students. Write in a warm, encouraging tone suitable for young learners and their parents.",
	"secondary": "You are an expert academic report writer for secondary school students. Write in a professional, constructive tone with concrete guidance on improvement.",
}

// ChatNarrator calls a chat-completions endpoint.
type ChatNarrator struct {
	cfg        config.NarrativeConfig
	httpClient *http.Client
}

func NewChatNarrator(cfg config.NarrativeConfig) *ChatNarrator {
	return &ChatNarrator{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (n *ChatNarrator) Compose(ctx context.Context, facts StudentFacts, schoolLevel string) (string, error) {
	tone, ok := tonePrompts[schoolLevel]
	if !ok {
		tone = tonePrompts["primary"]
	}

	body, err := json.Marshal(chatRequest{
		Model: n.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: tone},
			{Role: "user", Content: buildPrompt(facts)},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := n.cfg.BaseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("narrative request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("narrative service returned status %d: %s", resp.StatusCode, string(msg))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("failed to decode narrative response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("narrative response contained no choices")
	}

	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}

// buildPrompt renders the facts as one line per course:
// "Mathematics: Quiz 1 (8 / 10), Essay (ungraded / 100)".
func buildPrompt(facts StudentFacts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Student: %s\nGrades:\n", facts.StudentID)
	for _, course := range facts.Courses {
		b.WriteString(course.Course)
		b.WriteString(": ")
		for i, a := range course.Assignments {
			if i > 0 {
				b.WriteString(", ")
			}
			if a.Score != nil {
				fmt.Fprintf(&b, "%s (%g / %g)", a.Title, *a.Score, a.MaxPoints)
			} else {
				fmt.Fprintf(&b, "%s (ungraded / %g)", a.Title, a.MaxPoints)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\nWrite a detailed academic performance report with constructive feedback and improvement suggestions.")
	return b.String()
}
