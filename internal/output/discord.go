package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rsilvagit/go-rent/internal/model"
)

// DiscordSender posts digests to Discord webhooks. The message recipient
// is the webhook URL.
type DiscordSender struct {
	client *http.Client
}

func NewDiscordSender() *DiscordSender {
	return &DiscordSender{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (ds *DiscordSender) Send(ctx context.Context, msg Message) error {
	if !strings.HasPrefix(msg.Recipient, "https://") && !strings.HasPrefix(msg.Recipient, "http://") {
		return fmt.Errorf("discord: recipient is not a webhook URL")
	}
	if len(msg.Listings) == 0 {
		return ds.send(ctx, msg.Recipient, "Keine neuen Angebote.")
	}

	// Discord has a 2000 char limit per message. Split into chunks.
	var chunks []string
	var current strings.Builder
	header := fmt.Sprintf("**%s**\n\n", msg.Subject)
	current.WriteString(header)

	for i, l := range msg.Listings {
		entry := formatDiscordListing(i+1, l)

		if current.Len()+len(entry) > 1900 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(entry)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	for _, chunk := range chunks {
		if err := ds.send(ctx, msg.Recipient, chunk); err != nil {
			return err
		}
	}
	return nil
}

func formatDiscordListing(n int, l model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%d. %s**\n", n, l.Title)
	fmt.Fprintf(&b, "> Preis: %d €\n", l.Price)
	fmt.Fprintf(&b, "> Details: %s\n", facts(l))
	if l.District != "" {
		fmt.Fprintf(&b, "> Bezirk: %s\n", l.District)
	}
	if l.SourceURL != "" {
		fmt.Fprintf(&b, "> [Zum Angebot](%s)\n", l.SourceURL)
	}
	b.WriteString("\n")
	return b.String()
}

type discordPayload struct {
	Content string `json:"content"`
}

func (ds *DiscordSender) send(ctx context.Context, webhookURL, text string) error {
	payload, err := json.Marshal(discordPayload{Content: text})
	if err != nil {
		return fmt.Errorf("discord: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("discord: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ds.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("discord: API error %d: %v", resp.StatusCode, result["message"])
	}

	return nil
}
