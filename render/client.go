package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.render.com/v1"

type Config struct {
	BaseURL string
	Token   string
	OwnerID string
	Timeout time.Duration
}

// Client talks to the Render REST API with a bearer token.
type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    *url.URL

	Services *ServicesService
	Logs     *LogsService
}

func NewClient(config Config) (*Client, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("render: Token is required")
	}
	if config.OwnerID == "" {
		return nil, fmt.Errorf("render: OwnerID is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	baseURL, err := url.Parse(strings.TrimSuffix(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("render: invalid BaseURL: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}

	c.Services = &ServicesService{client: c}
	c.Logs = &LogsService{client: c}

	return c, nil
}

// Error is a non-2xx Render response. Body holds the payload verbatim.
type Error struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("render: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("render: request failed with status %d: %s", e.StatusCode, e.Body)
}

// Payload returns the response body as JSON, quoting it when it is not JSON.
func (e *Error) Payload() json.RawMessage {
	if json.Valid([]byte(e.Body)) {
		return json.RawMessage(e.Body)
	}
	quoted, _ := json.Marshal(e.Body)
	return quoted
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("render: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("render: failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: request failed: %w", err)
	}

	return resp, nil
}

// do performs the call and returns the raw 2xx body, decoding it into result when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) ([]byte, error) {
	resp, err := c.request(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("render: failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}

		var errResp struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Message != "" {
				apiErr.Message = errResp.Message
			} else if errResp.Error != "" {
				apiErr.Message = errResp.Error
			}
		}

		return nil, apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return respBody, fmt.Errorf("render: failed to decode response: %w", err)
		}
	}

	return respBody, nil
}
