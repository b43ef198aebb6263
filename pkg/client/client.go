// Package client talks to the agent backend: REST endpoints for threads,
// messages, runs and projects, plus the SSE stream a run emits.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/agentdeck/agentdeck/pkg/api"
)

// Client is an HTTP client for the agent backend API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Option is a function for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout for non-streaming requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	client := &Client{
		baseURL: parsedURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// doRequest performs an HTTP request and handles common response patterns.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	u := *c.baseURL
	u.Path = path.Join(u.Path, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response: %w", err)
		}
	}

	return nil
}

// GetThread retrieves a thread by id.
func (c *Client) GetThread(ctx context.Context, threadID string) (*api.Thread, error) {
	var t api.Thread
	err := c.doRequest(ctx, "GET", "/api/threads/"+threadID, nil, &t)
	return &t, err
}

// GetMessages retrieves the full message snapshot for a thread.
func (c *Client) GetMessages(ctx context.Context, threadID string) ([]api.ThreadMessage, error) {
	var messages []api.ThreadMessage
	err := c.doRequest(ctx, "GET", "/api/threads/"+threadID+"/messages", nil, &messages)
	return messages, err
}

// GetAgentRuns retrieves the agent runs for a thread, newest first.
func (c *Client) GetAgentRuns(ctx context.Context, threadID string) ([]api.AgentRun, error) {
	var runs []api.AgentRun
	err := c.doRequest(ctx, "GET", "/api/threads/"+threadID+"/agent-runs", nil, &runs)
	return runs, err
}

// GetProject retrieves a project, including its sandbox configuration.
func (c *Client) GetProject(ctx context.Context, projectID string) (*api.Project, error) {
	var p api.Project
	err := c.doRequest(ctx, "GET", "/api/projects/"+projectID, nil, &p)
	return &p, err
}

// streamBufferSize is how many decoded events may queue ahead of the
// consumer before the decode goroutine blocks.
const streamBufferSize = 128

// StreamRun attaches to a run's live event stream and returns a channel of
// decoded events. The channel closes on EOF, stream error, or context
// cancellation.
func (c *Client) StreamRun(ctx context.Context, runID string) (<-chan Event, error) {
	u := *c.baseURL
	u.Path = path.Join(u.Path, "/api/agent-runs/"+runID+"/stream")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading error response body: %w", err)
		}

		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	eventChan := make(chan Event, streamBufferSize)

	go func() {
		defer close(eventChan)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()

			if line == "" || line[0] == ':' {
				continue
			}

			data, ok := cutDataPrefix(line)
			if !ok {
				continue
			}

			event, err := decodeEvent([]byte(data))
			if err != nil {
				slog.Debug("Skipping undecodable stream event", "error", err)
				continue
			}
			if event == nil {
				continue
			}

			select {
			case eventChan <- event:
			case <-ctx.Done():
				return
			}
		}

		// The consumer may be gone and the buffer full; never block on the
		// trailing sends.
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case eventChan <- Error(err.Error()):
			case <-ctx.Done():
				return
			}
		}
		select {
		case eventChan <- StreamClosed():
		case <-ctx.Done():
		}
	}()

	return eventChan, nil
}

func cutDataPrefix(line string) (string, bool) {
	const prefix = "data: "
	if len(line) > len(prefix) && line[:len(prefix)] == prefix {
		return line[len(prefix):], true
	}
	return "", false
}

// decodeEvent maps a raw stream payload to a typed event. Unknown types are
// skipped rather than treated as errors; the backend adds types over time.
func decodeEvent(data []byte) (Event, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "status":
		var e StatusEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "assistant":
		var e AssistantDeltaEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "tool_call", "partial_tool_call":
		var e ToolCallDeltaEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		e.Type = "tool_call"
		return &e, nil
	case "message":
		var e MessageEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "error":
		var e ErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	default:
		return nil, nil
	}
}
