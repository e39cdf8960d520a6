package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/planward/planward/internal/planning/domain"
)

// DefaultBaseURL is the Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Notifier delivers plan summaries and alerts through a Telegram bot.
type Notifier struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
}

// NewNotifier creates a Telegram notifier. An empty baseURL falls back to
// the public Bot API.
func NewNotifier(baseURL, token, chatID string, httpClient *http.Client) *Notifier {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		baseURL:    baseURL,
		token:      token,
		chatID:     chatID,
		httpClient: httpClient,
	}
}

// SendPlanSummary sends a readable rendering of the plan to the chat.
func (n *Notifier) SendPlanSummary(ctx context.Context, plan *domain.Plan) error {
	return n.sendMessage(ctx, FormatPlan(plan))
}

// SendAlert sends a free-form alert message to the chat.
func (n *Notifier) SendAlert(ctx context.Context, message string) error {
	return n.sendMessage(ctx, message)
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *Notifier) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram rejected message: %s", result.Description)
	}
	return nil
}

// FormatPlan renders a plan as a plain-text daily agenda.
func FormatPlan(plan *domain.Plan) string {
	var b strings.Builder

	window := plan.Window()
	fmt.Fprintf(&b, "Plan for %s\n", window.Start.Format("Mon, 02 Jan 2006"))

	assignments := plan.Assignments()
	if len(assignments) == 0 {
		b.WriteString("Nothing scheduled.\n")
	}
	for _, a := range assignments {
		fmt.Fprintf(&b, "%s - %s  %s\n",
			a.Slot.Start.Format("15:04"),
			a.Slot.End.Format("15:04"),
			a.Title,
		)
	}

	deferred := 0
	for _, c := range plan.Conflicts() {
		if c.Resolution == domain.ResolutionDeferred {
			deferred++
		}
	}
	if deferred > 0 {
		fmt.Fprintf(&b, "Deferred: %d task(s)\n", deferred)
	}

	return b.String()
}
