package platforms

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookChannel relays items to a downstream endpoint as signed JSON.
// The receiving side owns the actual platform integration; from this
// process it behaves like a short-text microblog channel.
type WebhookChannel struct {
	name     string
	endpoint string
	secret   string
	client   *http.Client
}

// NewWebhookChannel builds a relay adapter for one endpoint.
func NewWebhookChannel(name, endpoint, secret string) *WebhookChannel {
	return &WebhookChannel{
		name:     name,
		endpoint: endpoint,
		secret:   secret,
		// Adapter calls must be bounded externally; the dispatcher sets
		// no deadline of its own.
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WebhookChannel) Name() string {
	return w.name
}

func (w *WebhookChannel) Spec() Spec {
	return Spec{MaxLength: 280, Links: LinkInline}
}

type webhookPayload struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
	Link     string `json:"link,omitempty"`
}

type webhookResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (w *WebhookChannel) Post(text, imageURL, link string) Result {
	body, err := json.Marshal(webhookPayload{Text: text, ImageURL: imageURL, Link: link})
	if err != nil {
		return Result{Channel: w.name, Error: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Channel: w.name, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sign(w.secret, body))

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{Channel: w.name, Error: fmt.Sprintf("webhook request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{
			Channel: w.name,
			Error:   fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, string(data)),
		}
	}

	var wr webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		// A 2xx without a parseable body still counts as published.
		return Result{Success: true, Channel: w.name}
	}
	return Result{Success: true, Channel: w.name, ExternalID: wr.ID, ExternalURL: wr.URL}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
