package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"

	"github.com/pagesmith-dev/pagesmith/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Groq provides an implementation of the Provider interface for Groq's
// OpenAI-compatible chat completions endpoint.
type Groq struct {
	apiKey       string
	model        string
	systemPrompt string

	client *http.Client

	logger *slog.Logger
}

type groqChatRequest struct {
	Model    string        `json:"model"`
	Messages []groqMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqStreamingResponse struct {
	Choices []groqStreamingChoice `json:"choices"`
}

type groqStreamingChoice struct {
	Delta groqMessage `json:"delta"`
}

const groqAPIEndpoint = "https://api.groq.com/openai/v1"

// NewGroq creates a new Groq instance with the specified API key, model name,
// and system prompt.
func NewGroq(apiKey, model, systemPrompt string, logger *slog.Logger) Groq {
	return Groq{
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		client:       &http.Client{},
		logger:       logger.With(slog.String("module", "groq")),
	}
}

// Name implements the Provider interface.
func (g Groq) Name() string {
	return "groq"
}

// Generate streams a completion from the Groq API for the given transcript.
// The returned iterator yields text deltas and potential errors; the context
// can be used to cancel the ongoing request.
func (g Groq) Generate(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]groqMessage, len(messages))
		for i, msg := range messages {
			msgs[i] = groqMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}
		msgs = slices.Insert(msgs, 0, groqMessage{
			Role:    "system",
			Content: g.systemPrompt,
		})

		reqBody := groqChatRequest{
			Model:    g.model,
			Messages: msgs,
			Stream:   true,
		}

		g.logger.Debug("Starting chat stream",
			slog.String("model", g.model),
			slog.Int("messageCount", len(msgs)))

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			yield("", fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			groqAPIEndpoint+"/chat/completions", bytes.NewBuffer(jsonBody))
		if err != nil {
			yield("", fmt.Errorf("error creating request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.apiKey)

		resp, err := g.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			yield("", &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}

			if ev.Data == "[DONE]" {
				return
			}

			var res groqStreamingResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				yield("", fmt.Errorf("error unmarshaling response: %w", err))
				return
			}

			if len(res.Choices) == 0 {
				continue
			}

			if delta := res.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
	}
}
