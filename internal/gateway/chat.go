// internal/gateway/chat.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// snippetLimit bounds how much of a completion we keep for reporting.
const snippetLimit = 30

// ChatResult is the protocol-level result of one chat completion call.
// StatusCode is always set; Snippet is only meaningful on 200.
type ChatResult struct {
	StatusCode int
	Snippet    string
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

// Chat sends one non-streaming chat completion with the given bearer token.
// A transport failure is returned as an error; any HTTP response, success or
// not, is returned as a ChatResult for the caller to classify.
func (c *Client) Chat(ctx context.Context, token, model, content string) (ChatResult, error) {
	payload := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: content}},
		Stream:   false,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return ChatResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return ChatResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatResult{}, err
	}
	defer resp.Body.Close()

	result := ChatResult{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusOK {
		result.Snippet = extractSnippet(resp.Body)
	} else {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	}
	return result, nil
}

// extractSnippet pulls the first choice's message content out of a completion
// body. The body is parsed defensively: any missing or malformed field yields
// an empty snippet, never an error, because a 200 is a success regardless of
// what the upstream model put in it.
func extractSnippet(r io.Reader) string {
	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return ""
	}
	if len(body.Choices) == 0 {
		return ""
	}
	content := body.Choices[0].Message.Content
	if len(content) > snippetLimit {
		return content[:snippetLimit]
	}
	return content
}
