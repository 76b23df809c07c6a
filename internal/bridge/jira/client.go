// Package jira is the thin target-system client. It knows how to shape the
// four remote operations the executor needs and how to classify their
// failures; everything about when to call them lives in the executor.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"bugbridge/internal/platform/config"
)

// Client talks to a Jira-style REST API using basic auth.
type Client struct {
	baseURL string
	email   string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func New(cfg config.JiraConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		email:   cfg.Email,
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

// CreateIssue creates an issue in the project and returns its key.
func (c *Client) CreateIssue(ctx context.Context, project string, fields map[string]any) (string, error) {
	payload := map[string]any{"fields": issueFields(project, fields)}
	body, err := c.do(ctx, http.MethodPost, "/rest/api/2/issue", payload, "create issue")
	if err != nil {
		return "", err
	}
	var resp struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &RemoteError{Op: "create issue", Status: http.StatusOK, Body: "unparseable response"}
	}
	if resp.Key == "" {
		return "", &RemoteError{Op: "create issue", Status: http.StatusOK, Body: "response missing issue key"}
	}
	return resp.Key, nil
}

// UpdateFields overwrites the given fields on an existing issue.
func (c *Client) UpdateFields(ctx context.Context, key string, fields map[string]any) error {
	payload := map[string]any{"fields": issueFields("", fields)}
	_, err := c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+key, payload, "update fields")
	return err
}

// AddComment appends a comment to an existing issue.
func (c *Client) AddComment(ctx context.Context, key, text string) error {
	_, err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/comment",
		map[string]any{"body": text}, "add comment")
	return err
}

// TransitionStatus moves the issue to the named workflow status. Jira
// transitions are addressed by id, so the available transitions are listed
// first and matched by target status name.
func (c *Client) TransitionStatus(ctx context.Context, key, status string) error {
	body, err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key+"/transitions", nil, "list transitions")
	if err != nil {
		return err
	}
	var resp struct {
		Transitions []struct {
			ID string `json:"id"`
			To struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return &RemoteError{Op: "list transitions", Status: http.StatusOK, Body: "unparseable response"}
	}

	for _, t := range resp.Transitions {
		if strings.EqualFold(t.To.Name, status) {
			_, err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/transitions",
				map[string]any{"transition": map[string]string{"id": t.ID}}, "transition issue")
			return err
		}
	}
	return &RemoteError{
		Op:     "transition issue",
		Status: http.StatusBadRequest,
		Body:   fmt.Sprintf("no transition from current status to %q", status),
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any, op string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal payload: %w", op, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.email != "" {
		req.SetBasicAuth(c.email, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Debug("jira call failed",
			"op", op, "status", resp.StatusCode, "path", path)
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Body: truncateBody(body)}
	}
	return body, nil
}

// issueFields shapes the executor's flat field map into Jira's nested
// payload. project and issuetype become their reference objects; labels and
// everything else pass through.
func issueFields(project string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if k == "issuetype" {
			if name, ok := v.(string); ok {
				out[k] = map[string]string{"name": name}
				continue
			}
		}
		out[k] = v
	}
	if project != "" {
		out["project"] = map[string]string{"key": project}
	}
	return out
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
