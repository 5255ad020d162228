package model

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL validates an endpoint origin and strips trailing slashes.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", fmt.Errorf("base URL cannot be empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %q (only http and https are allowed)", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("URL must have a hostname")
	}

	return trimmed, nil
}

// JoinURL joins base and path with exactly one separating slash.
func JoinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return base
	}
	return base + "/" + path
}
