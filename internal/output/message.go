package output

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/rsilvagit/go-rent/internal/model"
)

// Message is one alert digest ready for delivery. Channels that format
// their own markup read Listings; email uses HTML and Text.
type Message struct {
	Recipient string
	Subject   string
	HTML      string
	Text      string
	Listings  []model.Listing
}

// Sender delivers a message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"facts": facts,
}).Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<h2>{{.Title}}</h2>
{{range .Listings}}<div style="margin-bottom:16px">
<a href="{{.SourceURL}}"><strong>{{.Title}}</strong></a><br>
{{.Price}} € · {{facts .}}<br>
{{if .District}}{{.District}}, {{end}}{{.City}}
</div>
{{end}}<p style="color:#888">{{.Footer}}</p>
</body></html>`))

// Render builds the digest message for an alert.
func Render(a model.Alert, listings []model.Listing, manageURL string) (Message, error) {
	name := a.Name
	if name == "" {
		name = "Suchauftrag"
	}
	title := fmt.Sprintf("%d neue Angebot(e) für %s", len(listings), name)
	footer := "Du erhältst diese E-Mail, weil du einen Suchauftrag angelegt hast."
	if manageURL != "" {
		footer += " Verwalten: " + manageURL
	}

	var html bytes.Buffer
	err := digestTemplate.Execute(&html, struct {
		Title    string
		Listings []model.Listing
		Footer   string
	}{title, listings, footer})
	if err != nil {
		return Message{}, fmt.Errorf("output: rendering digest: %w", err)
	}

	var text strings.Builder
	text.WriteString(title + "\n\n")
	for i, l := range listings {
		fmt.Fprintf(&text, "%d. %s\n   %d € · %s\n   %s\n\n", i+1, l.Title, l.Price, facts(l), l.SourceURL)
	}
	text.WriteString(footer + "\n")

	return Message{
		Recipient: a.Recipient,
		Subject:   title,
		HTML:      html.String(),
		Text:      text.String(),
		Listings:  listings,
	}, nil
}

// facts summarizes rooms and surface, skipping unknown values.
func facts(l model.Listing) string {
	var parts []string
	if l.Rooms != nil {
		parts = append(parts, fmt.Sprintf("%g Zimmer", *l.Rooms))
	} else if l.Bedrooms != nil {
		parts = append(parts, fmt.Sprintf("%d Schlafzimmer", *l.Bedrooms))
	}
	if l.Surface != nil {
		parts = append(parts, fmt.Sprintf("%g m²", *l.Surface))
	}
	if l.Furnished != nil && *l.Furnished {
		parts = append(parts, "möbliert")
	}
	if len(parts) == 0 {
		return string(l.Type)
	}
	return strings.Join(parts, " · ")
}
