package taskstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/planward/planward/internal/planning/domain"
)

const defaultDuration = 30 * time.Minute

// Client reads open tasks from the upstream task store over its JSON API.
// Requests carry the configured OAuth2 bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a task store client. The token is attached to every
// request via an oauth2 transport.
func NewClient(baseURL, token string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = 15 * time.Second

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type taskRecord struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Priority        string     `json:"priority"`
	Deadline        *time.Time `json:"deadline"`
	DurationMinutes int        `json:"duration_minutes"`
	Tags            []string   `json:"tags"`
	Status          string     `json:"status"`
}

// Tasks returns the open tasks from the store, normalized for planning.
func (c *Client) Tasks(ctx context.Context) ([]domain.ExternalTask, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks?status=open", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build task store request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task store request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &domain.AuthError{
			Source: domain.SourceTasks,
			Err:    fmt.Errorf("task store returned status %d", resp.StatusCode),
		}
	default:
		return nil, fmt.Errorf("task store returned status %d", resp.StatusCode)
	}

	var records []taskRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode task store response: %w", err)
	}

	tasks := make([]domain.ExternalTask, 0, len(records))
	for _, record := range records {
		if record.ID == "" || record.Title == "" {
			continue
		}

		priority, err := domain.ParsePriority(record.Priority)
		if err != nil {
			priority = domain.PriorityMedium
		}

		duration := time.Duration(record.DurationMinutes) * time.Minute
		if duration <= 0 {
			duration = defaultDuration
		}

		tasks = append(tasks, domain.ExternalTask{
			ID:          record.ID,
			Title:       record.Title,
			Description: record.Description,
			Priority:    priority,
			Deadline:    record.Deadline,
			Duration:    duration,
			Tags:        record.Tags,
		})
	}

	return tasks, nil
}

// UpsertTask pushes the local status of a task back to the store, so a task
// completed here shows as done upstream.
func (c *Client) UpsertTask(ctx context.Context, externalID string, status domain.Status) error {
	payload, err := json.Marshal(map[string]string{"status": externalStatus(status)})
	if err != nil {
		return fmt.Errorf("failed to encode task update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/tasks/"+externalID, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build task update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("task update request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return &domain.AuthError{
			Source: domain.SourceTasks,
			Err:    fmt.Errorf("task store returned status %d", resp.StatusCode),
		}
	default:
		return fmt.Errorf("task store returned status %d", resp.StatusCode)
	}
}

func externalStatus(status domain.Status) string {
	switch status {
	case domain.StatusCompleted:
		return "done"
	case domain.StatusCancelled:
		return "cancelled"
	case domain.StatusInProgress:
		return "in_progress"
	default:
		return "open"
	}
}
