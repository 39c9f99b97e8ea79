package render

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

type LogsService struct {
	client *Client
}

// LogsPage is one page of the /logs endpoint. Entries stay raw: callers
// forward them without interpreting their shape.
type LogsPage struct {
	HasMore       bool              `json:"hasMore"`
	NextStartTime string            `json:"nextStartTime,omitempty"`
	NextEndTime   string            `json:"nextEndTime,omitempty"`
	Logs          []json.RawMessage `json:"logs"`
}

// List fetches the most recent log entries for a resource, at most limit of them.
func (s *LogsService) List(ctx context.Context, resourceID string, limit int) (*LogsPage, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("render: resource id is required")
	}

	query := url.Values{}
	query.Set("ownerId", s.client.config.OwnerID)
	query.Set("resource", resourceID)
	query.Set("direction", "backward")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var page LogsPage
	if _, err := s.client.do(ctx, "GET", "/logs", query, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	if page.Logs == nil {
		page.Logs = []json.RawMessage{}
	}
	return &page, nil
}
