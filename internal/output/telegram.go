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

const telegramAPI = "https://api.telegram.org"

// TelegramSender sends digests to a Telegram chat via the Bot API. The
// message recipient is the chat id.
type TelegramSender struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewTelegramSender(token string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (ts *TelegramSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("telegram: missing chat id")
	}
	if len(msg.Listings) == 0 {
		return ts.send(ctx, msg.Recipient, "Keine neuen Angebote\\.")
	}

	// Telegram has a 4096 char limit per message. Split into chunks.
	var chunks []string
	var current strings.Builder
	header := fmt.Sprintf("*%s*\n\n", escapeMarkdown(msg.Subject))
	current.WriteString(header)

	for i, l := range msg.Listings {
		entry := formatListing(i+1, l)

		if current.Len()+len(entry) > 3800 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(entry)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	for _, chunk := range chunks {
		if err := ts.send(ctx, msg.Recipient, chunk); err != nil {
			return err
		}
	}
	return nil
}

func formatListing(n int, l model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\\. %s*\n", n, escapeMarkdown(l.Title))
	fmt.Fprintf(&b, "Preis: %s\n", escapeMarkdown(fmt.Sprintf("%d €", l.Price)))
	fmt.Fprintf(&b, "Details: %s\n", escapeMarkdown(facts(l)))
	if l.District != "" || l.City != "" {
		fmt.Fprintf(&b, "Ort: %s\n", escapeMarkdown(strings.Trim(l.District+", "+l.City, ", ")))
	}
	if l.SourceURL != "" {
		fmt.Fprintf(&b, "[Zum Angebot](%s)\n", escapeLinkURL(l.SourceURL))
	}
	b.WriteString("\n")
	return b.String()
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
		"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
		">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
		"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
		".", "\\.", "!", "\\!",
	)
	return replacer.Replace(s)
}

// escapeLinkURL escapes the characters MarkdownV2 reserves inside (...).
func escapeLinkURL(s string) string {
	return strings.NewReplacer(")", "\\)", "\\", "\\\\").Replace(s)
}

func (ts *TelegramSender) send(ctx context.Context, chatID, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", ts.baseURL, ts.token)

	payload := map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error %d: %v", resp.StatusCode, result["description"])
	}

	return nil
}
