// Package notify delivers completion events to external recipients.
// Delivery is strictly best-effort: a failed notification is logged and
// never changes the outcome of the job that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Event is a single completion/failure notice for a job.
type Event struct {
	JobID       string
	RecipientID string
	Message     string
}

// Deliverer sends a message to one recipient.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID, message string) error
}

// Dispatcher fans completion events out to the configured deliverer.
type Dispatcher struct {
	deliverer Deliverer
}

func NewDispatcher(d Deliverer) *Dispatcher {
	return &Dispatcher{deliverer: d}
}

// Notify delivers the event. Missing recipient or deliverer makes it a
// no-op; delivery errors are swallowed after logging.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if d == nil || d.deliverer == nil || event.RecipientID == "" {
		return
	}
	if err := d.deliverer.Deliver(ctx, event.RecipientID, event.Message); err != nil {
		log.Printf("Notification for job %s to %s failed: %v", event.JobID, event.RecipientID, err)
	}
}

// TelegramDeliverer sends messages through the Telegram Bot HTTP API.
// The recipient id is the chat id.
type TelegramDeliverer struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewTelegramDeliverer(token string) *TelegramDeliverer {
	return &TelegramDeliverer{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramDeliverer) Deliver(ctx context.Context, recipientID, message string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": recipientID,
		"text":    message,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram responded %d: %s", resp.StatusCode, tail)
	}
	return nil
}
