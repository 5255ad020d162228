package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rmcli/internal/model"
	"rmcli/internal/profile"
)

const (
	// MaxResponseSize limits response body to 50MB to prevent memory exhaustion
	MaxResponseSize = 50 * 1024 * 1024

	// Default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// NotLoggedIn is the description of the auth short-circuit failure.
	NotLoggedIn = "Not logged in. Please use the 'login' command first"

	headerAuthorization = "Authorization"
	headerIDToken       = "X-ID-Token"
)

// Credentials supplies the stored tokens of a profile at call time.
type Credentials interface {
	Tokens(profileID string) (model.Tokens, error)
}

// Recorder receives one record per call that reached the network.
type Recorder interface {
	Record(rec model.CallRecord) error
}

// Executor performs exactly one HTTP call per Execute and always returns a
// Result; transport errors never escape.
type Executor struct {
	client   *http.Client
	profile  profile.ActiveProfile
	creds    Credentials
	recorder Recorder
	log      *logrus.Entry
}

// Option configures an Executor.
type Option func(*Executor)

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Executor) {
		e.client.Transport = rt
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithRecorder attaches a call journal.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// NewExecutor binds an executor to the active profile.
func NewExecutor(active profile.ActiveProfile, creds Credentials, opts ...Option) *Executor {
	e := &Executor{
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		profile: active,
		creds:   creds,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithFields(logrus.Fields{"component": "executor", "profile": active.ID})

	if strings.HasPrefix(strings.ToLower(active.BaseURL), "http://") {
		e.log.Warn("Using insecure HTTP connection. Data will be transmitted unencrypted.")
	}
	return e
}

// Execute issues the request and normalizes the outcome into a Result.
func (e *Executor) Execute(ctx context.Context, r model.Request) model.Result {
	method := strings.ToUpper(r.Method)
	log := e.log.WithFields(logrus.Fields{"method": method, "path": r.Path})

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}

	if r.Authenticate {
		tokens, failure := e.tokensFor(r)
		if failure != nil {
			log.Debug("Skipping unauthenticated call")
			return *failure
		}
		headers[headerAuthorization] = tokens.AccessToken
		if tokens.IDToken != "" {
			headers[headerIDToken] = tokens.IDToken
		}
	}

	var bodyReader io.Reader
	if r.Body != nil {
		encoded, err := json.Marshal(r.Body)
		if err != nil {
			return model.Failure(model.KindInvalidRequest, http.StatusInternalServerError,
				fmt.Sprintf("invalid request body: %v", err))
		}
		bodyReader = bytes.NewReader(encoded)
	}

	reqURL := model.JoinURL(e.profile.BaseURL, r.Path)
	if len(r.Params) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + r.Params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return model.Failure(model.KindInvalidRequest, http.StatusInternalServerError, err.Error())
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	log.Debugf("Sending request to %s", reqURL)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("Request failed before a response was received")
		result := model.Failure(model.KindTransportFailure, http.StatusInternalServerError, err.Error())
		e.record(method, r.Path, 0, result, time.Since(start))
		return result
	}
	defer resp.Body.Close()

	result := e.readResult(resp)
	duration := time.Since(start)
	log.WithFields(logrus.Fields{"status": resp.StatusCode, "duration_ms": duration.Milliseconds()}).
		Debug("Received response")

	e.record(method, r.Path, resp.StatusCode, result, duration)
	return result
}

func (e *Executor) tokensFor(r model.Request) (model.Tokens, *model.Result) {
	if r.Auth != nil {
		if r.Auth.AccessToken == "" {
			failure := model.Failure(model.KindNotAuthenticated, http.StatusUnauthorized, NotLoggedIn)
			return model.Tokens{}, &failure
		}
		return *r.Auth, nil
	}

	if e.creds == nil {
		failure := model.Failure(model.KindNotAuthenticated, http.StatusUnauthorized, NotLoggedIn)
		return model.Tokens{}, &failure
	}

	tokens, err := e.creds.Tokens(e.profile.ID)
	if err != nil {
		failure := model.Failure(model.KindLocalFailure, http.StatusInternalServerError,
			fmt.Sprintf("reading stored credentials: %v", err))
		return model.Tokens{}, &failure
	}
	if tokens.AccessToken == "" {
		failure := model.Failure(model.KindNotAuthenticated, http.StatusUnauthorized, NotLoggedIn)
		return model.Tokens{}, &failure
	}
	return tokens, nil
}

func (e *Executor) readResult(resp *http.Response) model.Result {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return model.Failure(model.KindTransportFailure, http.StatusInternalServerError,
			fmt.Sprintf("reading response: %v", err))
	}
	if int64(len(body)) > MaxResponseSize {
		return model.Failure(model.KindMalformedResponse, http.StatusInternalServerError,
			"response body exceeded 50MB limit")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 {
			return model.Success(nil)
		}
		if !json.Valid(trimmed) {
			return model.Failure(model.KindMalformedResponse, http.StatusInternalServerError,
				"invalid response format from server")
		}
		return model.Success(json.RawMessage(trimmed))
	}

	return model.Failure(model.KindUpstreamFailure, resp.StatusCode, errorDescription(resp.Status, body))
}

// errorDescription extracts a human-readable message from an error body.
func errorDescription(status string, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return status
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		for _, key := range []string{"description", "message", "error"} {
			if msg, ok := payload[key].(string); ok && strings.TrimSpace(msg) != "" {
				return msg
			}
		}
	}
	return trimmed
}

func (e *Executor) record(method, path string, status int, result model.Result, d time.Duration) {
	if e.recorder == nil {
		return
	}

	rec := model.CallRecord{
		ID:         uuid.New().String()[:8],
		Timestamp:  time.Now(),
		ProfileID:  e.profile.ID,
		Method:     method,
		Path:       stripQuery(path),
		StatusCode: status,
		ErrorCode:  result.ErrorCode,
		DurationMs: d.Milliseconds(),
	}
	if err := e.recorder.Record(rec); err != nil {
		e.log.WithError(err).Debug("Failed to record call")
	}
}

func stripQuery(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		return path[:i]
	}
	return path
}

// Get performs a GET request
func (e *Executor) Get(ctx context.Context, path string, params url.Values, authenticate bool) model.Result {
	return e.Execute(ctx, model.Request{Method: http.MethodGet, Path: path, Params: params, Authenticate: authenticate})
}

// Post performs a POST request
func (e *Executor) Post(ctx context.Context, path string, params url.Values, body any, authenticate bool) model.Result {
	return e.Execute(ctx, model.Request{Method: http.MethodPost, Path: path, Params: params, Body: body, Authenticate: authenticate})
}

// Put performs a PUT request
func (e *Executor) Put(ctx context.Context, path string, params url.Values, body any, authenticate bool) model.Result {
	return e.Execute(ctx, model.Request{Method: http.MethodPut, Path: path, Params: params, Body: body, Authenticate: authenticate})
}

// Delete performs a DELETE request
func (e *Executor) Delete(ctx context.Context, path string, params url.Values, authenticate bool) model.Result {
	return e.Execute(ctx, model.Request{Method: http.MethodDelete, Path: path, Params: params, Authenticate: authenticate})
}

// IsRetryable reports whether a failed result may be retried by a caller:
// transport failures and 5xx upstream errors.
func IsRetryable(err error) bool {
	var failure *model.FailureError
	if !errors.As(err, &failure) {
		return false
	}
	switch failure.Kind {
	case model.KindTransportFailure:
		return true
	case model.KindUpstreamFailure:
		return failure.Code >= 500
	default:
		return false
	}
}
