package model

import (
	"net/url"
	"time"
)

// Request describes one call to the upstream API. It is built per call and discarded.
type Request struct {
	Method       string
	Path         string
	Params       url.Values
	Body         any
	Authenticate bool

	// Auth, when set, is sent instead of the profile's stored tokens.
	Auth *Tokens
}

// Tokens is the pair of headers attached to authenticated calls.
type Tokens struct {
	AccessToken string
	IDToken     string
}

// TokenBundle is the normalized result of a successful login
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// CallRecord is one journal entry. It never carries bodies, query strings or headers.
type CallRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ProfileID  string    `json:"profile_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	ErrorCode  int       `json:"error_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}
