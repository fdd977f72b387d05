// Package notify delivers outbound webhook notifications through a FIFO
// in-memory queue with rate-limit aware backoff.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"marketradar/models"
)

// Embed colors for the two notification kinds.
const (
	colorNewMatch  = 0x00ff00
	colorPriceDrop = 0xffa500
)

// RateLimitError reports a 429 response and the provider-specified cooldown.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Sender delivers one webhook message.
type Sender interface {
	Send(ctx context.Context, n models.OutboundNotification) error
}

// WebhookClient posts embed-style messages to owner-configured webhook URLs.
type WebhookClient struct {
	client   *http.Client
	fallback time.Duration
}

// NewWebhookClient builds a client. fallback is the cooldown assumed when a
// 429 response omits Retry-After.
func NewWebhookClient(timeout, fallback time.Duration) *WebhookClient {
	return &WebhookClient{
		client:   &http.Client{Timeout: timeout},
		fallback: fallback,
	}
}

// WithTransport overrides the HTTP transport; used by tests.
func (c *WebhookClient) WithTransport(rt http.RoundTripper) *WebhookClient {
	c.client.Transport = rt
	return c
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Title     string       `json:"title"`
	URL       string       `json:"url"`
	Color     int          `json:"color"`
	Fields    []embedField `json:"fields"`
	Image     *embedImage  `json:"image,omitempty"`
	Timestamp string       `json:"timestamp"`
}

type webhookPayload struct {
	Content string  `json:"content"`
	Embeds  []embed `json:"embeds"`
}

// Send posts the message. A 429 response is returned as *RateLimitError;
// any other non-2xx status is a plain error.
func (c *WebhookClient) Send(ctx context.Context, n models.OutboundNotification) error {
	payload := buildPayload(n)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: c.retryAfter(resp)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (c *WebhookClient) retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return c.fallback
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return c.fallback
	}
	return time.Duration(seconds * float64(time.Second))
}

func buildPayload(n models.OutboundNotification) webhookPayload {
	content := "New item found!"
	color := colorNewMatch
	if n.Type == models.NotifyPriceDrop {
		content = "Price drop!"
		color = colorPriceDrop
	}

	fields := []embedField{
		{Name: "Price", Value: fmt.Sprintf("€%.2f", n.Price), Inline: true},
	}
	if n.Type == models.NotifyPriceDrop && n.OldPrice != nil {
		fields = append(fields, embedField{
			Name:   "Old Price",
			Value:  fmt.Sprintf("€%.2f", *n.OldPrice),
			Inline: true,
		})
	}
	if n.Condition != "" {
		fields = append(fields, embedField{Name: "Condition", Value: n.Condition, Inline: true})
	}
	if n.Size != "" {
		fields = append(fields, embedField{Name: "Size", Value: n.Size, Inline: true})
	}
	if n.Brand != "" {
		fields = append(fields, embedField{Name: "Brand", Value: n.Brand, Inline: true})
	}

	message := embed{
		Title:     n.Title,
		URL:       n.ProductURL,
		Color:     color,
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if n.ImageURL != "" {
		message.Image = &embedImage{URL: n.ImageURL}
	}

	return webhookPayload{Content: content, Embeds: []embed{message}}
}
