package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// OllamaGenerator talks to a local Ollama server's chat endpoint. Streaming
// reads newline-delimited JSON fragments; context cancellation is checked
// between fragments, which is the only mid-generation cancellation the
// system supports.
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaGenerator(model, baseURL string) *OllamaGenerator {
	if model == "" {
		model = DefaultOllamaModel
	}
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaGenerator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (g *OllamaGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	var sb strings.Builder
	err := g.GenerateStream(ctx, system, prompt, func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	return sb.String(), err
}

func (g *OllamaGenerator) GenerateStream(ctx context.Context, system, prompt string, onDelta func(string) error) error {
	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream: true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat request returned status %d: %s", resp.StatusCode, msg)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frag chatResponse
		if err := json.Unmarshal(line, &frag); err != nil {
			return fmt.Errorf("parse stream fragment: %w", err)
		}
		if frag.Message.Content != "" {
			if err := onDelta(frag.Message.Content); err != nil {
				return err
			}
		}
		if frag.Done {
			return nil
		}
	}

	return scanner.Err()
}

func (g *OllamaGenerator) ModelName() string { return g.model }
