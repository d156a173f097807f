// Package backend holds the clients for the gateway's external
// collaborators: the retrieval+generation pipeline (HTTP, with an SSE
// streaming variant), the transcription backend (websocket), and the
// handoff notification webhook.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client talks to the retrieval and generation backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend client. A nil httpClient falls back to a
// default client; callers normally share the gateway's pooled client.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// GenerateRequest is the payload for both generation variants.
type GenerateRequest struct {
	Query   string    `json:"query"`
	History []Message `json:"history,omitempty"`
	Scope   string    `json:"scope"`
	Stream  bool      `json:"stream,omitempty"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	Scope string `json:"scope"`
	TopK  int    `json:"top_k"`
}

type retrieveResponse struct {
	Documents []Document `json:"documents"`
}

// Retrieve returns ranked documents for a query within a knowledge scope.
func (c *Client) Retrieve(ctx context.Context, query, scope string, topK int) ([]Document, error) {
	var out retrieveResponse
	if err := c.postJSON(ctx, "/v1/retrieve", retrieveRequest{Query: query, Scope: scope, TopK: topK}, &out); err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return out.Documents, nil
}

// Generate runs the blocking generation variant.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*Answer, error) {
	req.Stream = false
	var out Answer
	if err := c.postJSON(ctx, "/v1/generate", req, &out); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return &out, nil
}

// streamFrame is one SSE data payload from the streaming generation
// endpoint.
type streamFrame struct {
	Citations []Citation `json:"citations,omitempty"`
	Text      string     `json:"text,omitempty"`
	Decision  Decision   `json:"decision,omitempty"`
}

// GenerateStream runs the streaming generation variant. onRetrievalDone is
// invoked when the backend signals retrieval completion, onToken for each
// generated text fragment; both callbacks may be nil. The backend is
// expected to signal retrieval before or interleaved with tokens, but the
// caller must not rely on that (the orchestrator forces the ordering).
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, onRetrievalDone func([]Citation), onToken func(string)) (*Answer, error) {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generate stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp)
	}

	var final *Answer
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			var frame streamFrame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				continue
			}
			switch event {
			case "retrieval":
				if onRetrievalDone != nil {
					onRetrievalDone(frame.Citations)
				}
			case "token":
				if onToken != nil && frame.Text != "" {
					onToken(frame.Text)
				}
			case "final":
				final = &Answer{Decision: frame.Decision, Text: frame.Text, Citations: frame.Citations}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("generate stream read: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if final == nil {
		return nil, fmt.Errorf("generate stream: stream ended without final frame")
	}
	return final, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("backend status %d: %s", resp.StatusCode, msg)
}
