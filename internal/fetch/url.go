package fetch

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ItemPlaceholder may appear in a base URL to position the item key.
const ItemPlaceholder = "{item}"

// ValidateBaseURL checks that the upstream URL is absolute http(s).
func ValidateBaseURL(base string) error {
	parsed, err := url.Parse(strings.Replace(base, ItemPlaceholder, "0", 1))
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q: scheme must be http or https", base)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("invalid base URL %q: missing host", base)
	}
	return nil
}

// ItemURL builds the request URL for one item.
// Example: https://host/offers/ + 42 -> https://host/offers/42
func ItemURL(base string, item int) string {
	key := strconv.Itoa(item)

	if strings.Contains(base, ItemPlaceholder) {
		return strings.Replace(base, ItemPlaceholder, key, 1)
	}

	// Keep a query string, if any, after the key.
	path, query, hasQuery := strings.Cut(base, "?")
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	target := path + key
	if hasQuery {
		target += "?" + query
	}
	return target
}

// Host returns the lowercase hostname of a URL, or "" if it cannot be parsed.
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
