package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"referral-engine/internal/logging"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// Notifier tells referrers about commissions they just earned
type Notifier interface {
	NotifyCommissions(ctx context.Context, result *DistributionResult) error
}

// LogNotifier only writes the notification to the log
type LogNotifier struct{}

func (LogNotifier) NotifyCommissions(_ context.Context, result *DistributionResult) error {
	for _, e := range result.Entries {
		logging.Logger.Info("commission earned",
			zap.Uint("referrer_id", e.ReferrerID),
			zap.Int("level", e.Level),
			zap.String("amount", e.Amount.StringFixed(2)),
			zap.String("event_id", result.EventID))
	}
	return nil
}

// BrevoNotifier sends one transactional email per commission through Brevo
type BrevoNotifier struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	Endpoint    string
	client      *http.Client
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewNotifier returns a Brevo notifier when credentials are set, a log notifier otherwise
func NewNotifier(apiKey, senderEmail, senderName string) Notifier {
	if apiKey == "" || senderEmail == "" {
		logging.Logger.Info("email notifications disabled, BREVO_API_KEY or EMAIL_SENDER missing")
		return LogNotifier{}
	}
	return &BrevoNotifier{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		Endpoint:    brevoEndpoint,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *BrevoNotifier) NotifyCommissions(ctx context.Context, result *DistributionResult) error {
	var failed []string
	for _, e := range result.Entries {
		if e.ReferrerEmail == "" || !strings.Contains(e.ReferrerEmail, "@") {
			continue
		}
		subject := fmt.Sprintf("You earned $%s in referral commission", e.Amount.StringFixed(2))
		body := fmt.Sprintf(
			"<p>A member of your network (level %d) renewed a %s subscription.</p>"+
				"<p>Commission: <strong>$%s</strong>, available for payout from %s.</p>",
			e.Level, result.Plan, e.Amount.StringFixed(2), e.PayoutEligibleDate.Format("2006-01-02"))

		if err := n.send(ctx, e.ReferrerEmail, subject, body); err != nil {
			failed = append(failed, fmt.Sprintf("%d: %v", e.ReferrerID, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to notify %d referrer(s): %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

func (n *BrevoNotifier) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	payload := brevoPayload{
		Sender:      map[string]string{"name": n.SenderName, "email": n.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": toEmail[:strings.Index(toEmail, "@")]}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", n.APIKey)
	req.Header.Set("content-type", "application/json")

	client := n.client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("brevo returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
