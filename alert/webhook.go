package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"modsecmon/reputation"

	"github.com/goccy/go-json"
)

// DefaultWebhookTimeout bounds a webhook POST when none is configured.
const DefaultWebhookTimeout = 5 * time.Second

var providerTitles = map[string]string{
	reputation.VirusTotal: "VirusTotal",
	reputation.AlienVault: "AlienVault",
	reputation.AbuseIPDB:  "AbuseIPDB",
}

type slackMessage struct {
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// WebhookSink posts alerts as Slack-compatible incoming webhook messages.
type WebhookSink struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewWebhookSink creates a WebhookSink. client may be nil.
func NewWebhookSink(url string, timeout time.Duration, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookSink{url: url, client: client, timeout: timeout}
}

// Send posts the alert and fails on transport errors and non-2xx responses.
func (s *WebhookSink) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(newSlackMessage(a))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(ioutil.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func newSlackMessage(a Alert) slackMessage {
	title := "⚠️ IP Reputation Alert"
	errValue := "None"
	if a.Error != "" {
		title = "❌ API Error Alert"
		errValue = a.Error
	}

	fields := []slackField{{Title: "IP", Value: a.Address, Short: true}}
	for _, r := range a.Signals {
		t, ok := providerTitles[r.Provider]
		if !ok {
			t = r.Provider
		}
		fields = append(fields, slackField{Title: t, Value: strconv.Itoa(r.Count), Short: true})
	}
	if a.Country != "" {
		fields = append(fields, slackField{Title: "Country", Value: a.Country, Short: true})
	}
	fields = append(fields,
		slackField{Title: "Vendors Flagged", Value: strconv.Itoa(a.FlaggedVendors), Short: true},
		slackField{Title: "Total Flags", Value: strconv.Itoa(a.TotalFlags), Short: true},
		slackField{Title: "Error", Value: errValue, Short: false},
	)

	return slackMessage{
		Username:  "ModSecurity Monitor",
		IconEmoji: ":rotating_light:",
		Attachments: []slackAttachment{{
			Color:  a.Color(),
			Title:  title,
			Fields: fields,
			Footer: "ModSecurity Threat Monitor",
		}},
	}
}
