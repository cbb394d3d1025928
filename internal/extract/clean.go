package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	xhtml "golang.org/x/net/html"
)

// noiseSelector lists elements that never carry listing data.
const noiseSelector = "script, style, noscript, svg, iframe, link, meta, template, canvas, video, audio, form button, header nav, footer"

var minifier = func() *minify.M {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags: false,
		KeepEndTags:      true,
		KeepQuotes:       false,
	})
	return m
}()

// CleanMarkup strips non-content markup, minifies what is left and caps the
// result at maxBytes (on a rune boundary). maxBytes <= 0 disables the cap.
func CleanMarkup(body []byte, maxBytes int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("extract: parsing HTML: %w", err)
	}

	doc.Find(noiseSelector).Remove()
	removeComments(doc.Selection)
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"style", "class", "onclick", "onload", "data-reactid"} {
			s.RemoveAttr(attr)
		}
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	raw, err := root.Html()
	if err != nil {
		return "", fmt.Errorf("extract: rendering HTML: %w", err)
	}

	out, err := minifier.String("text/html", raw)
	if err != nil {
		// Minification is cosmetic; keep the stripped markup.
		out = raw
	}
	out = strings.TrimSpace(out)

	return truncate(out, maxBytes), nil
}

func removeComments(s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		n := c.Get(0)
		if n == nil {
			return
		}
		if n.Type == xhtml.CommentNode {
			c.Remove()
			return
		}
		if n.Type == xhtml.ElementNode {
			removeComments(c)
		}
	})
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
