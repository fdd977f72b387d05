package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"marketradar/models"
)

const hookURL = "https://hooks.test/channel"

func newTestClient(transport *httpmock.MockTransport) *WebhookClient {
	return NewWebhookClient(5*time.Second, 10*time.Second).WithTransport(transport)
}

func TestSendBuildsNewMatchPayload(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var captured webhookPayload
	transport.RegisterResponder("POST", hookURL, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &captured); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(204, ""), nil
	})

	client := newTestClient(transport)
	err := client.Send(context.Background(), models.OutboundNotification{
		Type:       models.NotifyNewMatch,
		Title:      "Wool coat",
		Price:      25.5,
		ImageURL:   "https://img.test/1.jpg",
		ProductURL: "https://market.test/items/1",
		Condition:  "Muito bom",
		Brand:      "Zara",
		WebhookURL: hookURL,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if captured.Content != "New item found!" {
		t.Fatalf("content = %q", captured.Content)
	}
	if len(captured.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(captured.Embeds))
	}
	e := captured.Embeds[0]
	if e.Title != "Wool coat" || e.URL != "https://market.test/items/1" {
		t.Fatalf("embed header wrong: %+v", e)
	}
	if e.Color != colorNewMatch {
		t.Fatalf("color = %#x, want %#x", e.Color, colorNewMatch)
	}
	if e.Image == nil || e.Image.URL != "https://img.test/1.jpg" {
		t.Fatalf("image = %+v", e.Image)
	}

	fields := map[string]string{}
	for _, f := range e.Fields {
		fields[f.Name] = f.Value
	}
	if fields["Price"] != "€25.50" {
		t.Fatalf("price field = %q", fields["Price"])
	}
	if fields["Condition"] != "Muito bom" || fields["Brand"] != "Zara" {
		t.Fatalf("optional fields = %v", fields)
	}
	if _, present := fields["Old Price"]; present {
		t.Fatalf("new match must not carry an old price field")
	}
}

func TestSendBuildsPriceDropPayload(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var captured webhookPayload
	transport.RegisterResponder("POST", hookURL, func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		json.Unmarshal(body, &captured)
		return httpmock.NewStringResponse(200, "ok"), nil
	})

	oldPrice := 100.0
	client := newTestClient(transport)
	err := client.Send(context.Background(), models.OutboundNotification{
		Type:       models.NotifyPriceDrop,
		Title:      "Wool coat",
		Price:      85,
		OldPrice:   &oldPrice,
		ProductURL: "https://market.test/items/1",
		WebhookURL: hookURL,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if captured.Content != "Price drop!" {
		t.Fatalf("content = %q", captured.Content)
	}
	e := captured.Embeds[0]
	if e.Color != colorPriceDrop {
		t.Fatalf("color = %#x, want %#x", e.Color, colorPriceDrop)
	}
	fields := map[string]string{}
	for _, f := range e.Fields {
		fields[f.Name] = f.Value
	}
	if fields["Price"] != "€85.00" || fields["Old Price"] != "€100.00" {
		t.Fatalf("price fields = %v", fields)
	}
}

func TestSendParsesRetryAfter(t *testing.T) {
	transport := httpmock.NewMockTransport()
	resp := httpmock.NewStringResponse(http.StatusTooManyRequests, "")
	resp.Header.Set("Retry-After", "5")
	transport.RegisterResponder("POST", hookURL, httpmock.ResponderFromResponse(resp))

	client := newTestClient(transport)
	err := client.Send(context.Background(), models.OutboundNotification{WebhookURL: hookURL})

	var rateLimit *RateLimitError
	if !errors.As(err, &rateLimit) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}
	if rateLimit.RetryAfter != 5*time.Second {
		t.Fatalf("retry after = %v, want 5s", rateLimit.RetryAfter)
	}
}

func TestSendRateLimitFallback(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", hookURL,
		httpmock.NewStringResponder(http.StatusTooManyRequests, ""))

	client := newTestClient(transport)
	err := client.Send(context.Background(), models.OutboundNotification{WebhookURL: hookURL})

	var rateLimit *RateLimitError
	if !errors.As(err, &rateLimit) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}
	if rateLimit.RetryAfter != 10*time.Second {
		t.Fatalf("retry after = %v, want fallback 10s", rateLimit.RetryAfter)
	}
}

func TestSendRejectsServerError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", hookURL, httpmock.NewStringResponder(500, ""))

	client := newTestClient(transport)
	err := client.Send(context.Background(), models.OutboundNotification{WebhookURL: hookURL})
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		t.Fatalf("500 must not classify as rate limit")
	}
}
