package model

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams are query parameters that never identify an offer.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"gclid", "fbclid", "ref", "referrer", "source",
}

// CanonicalURL normalizes a listing URL so that the same offer reached through
// different links yields the same string: lowercase scheme and host, no
// "www." prefix, no fragment, no tracking parameters, no trailing slash.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("model: parsing url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("model: url %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.User = nil

	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	u.RawPath = ""
	return u.String(), nil
}

// IdentityKey returns the deduplication key of a listing within its provider.
// A stable provider-native id wins over the URL.
func IdentityKey(externalID, canonicalURL string) string {
	if id := strings.TrimSpace(externalID); id != "" {
		return "id:" + strings.ToLower(id)
	}
	return "url:" + canonicalURL
}
