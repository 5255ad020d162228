package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmcli/internal/model"
	"rmcli/internal/profile"
	"rmcli/internal/storage"
)

// countingTransport counts round trips and answers with respond.
type countingTransport struct {
	mu      sync.Mutex
	calls   int
	last    *http.Request
	respond func(*http.Request) (*http.Response, error)
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.calls++
	c.last = req
	c.mu.Unlock()
	return c.respond(req)
}

func jsonResponse(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

type staticCreds model.Tokens

func (s staticCreds) Tokens(string) (model.Tokens, error) {
	return model.Tokens(s), nil
}

type brokenCreds struct{}

func (brokenCreds) Tokens(string) (model.Tokens, error) {
	return model.Tokens{}, errors.New("disk on fire")
}

type memoryRecorder struct {
	records []model.CallRecord
}

func (m *memoryRecorder) Record(rec model.CallRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func testProfile(baseURL string) profile.ActiveProfile {
	return profile.ActiveProfile{ID: "default", BaseURL: baseURL}
}

func TestExecute_AuthShortCircuit(t *testing.T) {
	transport := &countingTransport{respond: jsonResponse(200, `{}`)}
	exec := NewExecutor(testProfile("https://api.example.com"), staticCreds{}, WithTransport(transport))

	result := exec.Execute(context.Background(), model.Request{
		Method:       http.MethodGet,
		Path:         "/v1/user",
		Authenticate: true,
	})

	assert.False(t, result.OK())
	assert.Equal(t, 401, result.ErrorCode)
	assert.Equal(t, NotLoggedIn, result.Description)
	assert.Equal(t, model.KindNotAuthenticated, result.Kind)
	assert.Equal(t, 0, transport.calls)
}

func TestExecute_AuthShortCircuitWithEmptyOverride(t *testing.T) {
	transport := &countingTransport{respond: jsonResponse(200, `{}`)}
	exec := NewExecutor(testProfile("https://api.example.com"), staticCreds{AccessToken: "stored"}, WithTransport(transport))

	result := exec.Execute(context.Background(), model.Request{
		Method:       http.MethodPost,
		Path:         "/v1/logout2",
		Authenticate: true,
		Auth:         &model.Tokens{},
	})

	assert.Equal(t, model.KindNotAuthenticated, result.Kind)
	assert.Equal(t, 0, transport.calls)
}

func TestExecute_CredentialReadFailure(t *testing.T) {
	transport := &countingTransport{respond: jsonResponse(200, `{}`)}
	exec := NewExecutor(testProfile("https://api.example.com"), brokenCreds{}, WithTransport(transport))

	result := exec.Get(context.Background(), "/v1/user", nil, true)
	assert.Equal(t, model.KindLocalFailure, result.Kind)
	assert.Equal(t, 500, result.ErrorCode)
	assert.Equal(t, 0, transport.calls)
}

func TestExecute_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name     string
		respond  func(*http.Request) (*http.Response, error)
		wantCode int
		wantDesc string
		wantKind model.ErrorKind
	}{
		{
			name:     "description field",
			respond:  jsonResponse(404, `{"description": "not found"}`),
			wantCode: 404,
			wantDesc: "not found",
			wantKind: model.KindUpstreamFailure,
		},
		{
			name:     "message field",
			respond:  jsonResponse(400, `{"status":"failure","message":"bad node id"}`),
			wantCode: 400,
			wantDesc: "bad node id",
			wantKind: model.KindUpstreamFailure,
		},
		{
			name:     "plain text body",
			respond:  jsonResponse(502, "upstream exploded"),
			wantCode: 502,
			wantDesc: "upstream exploded",
			wantKind: model.KindUpstreamFailure,
		},
		{
			name:     "empty body",
			respond:  jsonResponse(503, ""),
			wantCode: 503,
			wantDesc: "Service Unavailable",
			wantKind: model.KindUpstreamFailure,
		},
		{
			name: "connection refused",
			respond: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("dial tcp 127.0.0.1:1: connect: connection refused")
			},
			wantCode: 500,
			wantDesc: "connection refused",
			wantKind: model.KindTransportFailure,
		},
		{
			name:     "non-json success body",
			respond:  jsonResponse(200, "<html>hello</html>"),
			wantCode: 500,
			wantDesc: "invalid response format from server",
			wantKind: model.KindMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &countingTransport{respond: tt.respond}
			exec := NewExecutor(testProfile("https://api.example.com"), nil, WithTransport(transport))

			result := exec.Get(context.Background(), "/v1/things", nil, false)

			assert.Equal(t, model.StatusFailure, result.Status)
			assert.Equal(t, tt.wantCode, result.ErrorCode)
			assert.Contains(t, result.Description, tt.wantDesc)
			assert.Equal(t, tt.wantKind, result.Kind)
			assert.Equal(t, 1, transport.calls)
		})
	}
}

func TestExecute_SuccessBodies(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		transport := &countingTransport{respond: jsonResponse(200, `{"nodes":["a","b"]}`)}
		exec := NewExecutor(testProfile("https://api.example.com"), nil, WithTransport(transport))

		result := exec.Get(context.Background(), "/v1/user/nodes", nil, false)
		require.True(t, result.OK())

		var payload struct {
			Nodes []string `json:"nodes"`
		}
		require.NoError(t, result.Decode(&payload))
		assert.Equal(t, []string{"a", "b"}, payload.Nodes)
	})

	t.Run("empty body", func(t *testing.T) {
		transport := &countingTransport{respond: jsonResponse(204, "")}
		exec := NewExecutor(testProfile("https://api.example.com"), nil, WithTransport(transport))

		result := exec.Delete(context.Background(), "/v1/user/nodes/x", nil, false)
		require.True(t, result.OK())
		assert.JSONEq(t, "null", string(result.Data))
	})
}

func TestExecute_SendsStoredToken(t *testing.T) {
	var received http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	}))
	defer server.Close()

	store := storage.NewProfileStore(t.TempDir(), nil)
	require.NoError(t, store.UpdateBaseURL("default", server.URL))
	require.NoError(t, store.UpdateToken("default", "tok123"))

	active, err := profile.NewResolver(store, nil).Resolve("")
	require.NoError(t, err)

	exec := NewExecutor(active, store)
	result := exec.Get(context.Background(), "/v1/user", nil, true)
	require.True(t, result.OK(), result.Description)

	assert.Equal(t, "tok123", received.Get("Authorization"))
	assert.Empty(t, received.Get("X-ID-Token"))
	assert.Equal(t, "application/json", received.Get("Accept"))
	assert.JSONEq(t, `{"path":"/v1/user"}`, string(result.Data))
}

func TestExecute_RequestShape(t *testing.T) {
	var (
		gotURL    *url.URL
		gotBody   map[string]any
		gotHeader http.Header
		gotMethod string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	creds := staticCreds{AccessToken: "access", IDToken: "identity"}
	exec := NewExecutor(testProfile(server.URL+"/"), creds, WithTimeout(5*time.Second))

	params := url.Values{"node_id": []string{"n1"}, "node_details": []string{"true"}}
	result := exec.Put(context.Background(), "v1/user/nodes/params", params, map[string]any{"Light": map[string]any{"Power": true}}, true)
	require.True(t, result.OK(), result.Description)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/v1/user/nodes/params", gotURL.Path, "exactly one slash between base and path")
	assert.Equal(t, "n1", gotURL.Query().Get("node_id"))
	assert.Equal(t, "true", gotURL.Query().Get("node_details"))
	assert.Equal(t, "access", gotHeader.Get("Authorization"))
	assert.Equal(t, "identity", gotHeader.Get("X-ID-Token"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, map[string]any{"Light": map[string]any{"Power": true}}, gotBody)
}

func TestExecute_UnencodableBody(t *testing.T) {
	transport := &countingTransport{respond: jsonResponse(200, `{}`)}
	exec := NewExecutor(testProfile("https://api.example.com"), nil, WithTransport(transport))

	result := exec.Post(context.Background(), "/v1/x", nil, map[string]any{"bad": make(chan int)}, false)
	assert.Equal(t, model.KindInvalidRequest, result.Kind)
	assert.Equal(t, 0, transport.calls)
}

func TestExecute_RecordsCalls(t *testing.T) {
	recorder := &memoryRecorder{}
	transport := &countingTransport{respond: jsonResponse(404, `{"description":"nope"}`)}
	exec := NewExecutor(testProfile("https://api.example.com"), staticCreds{},
		WithTransport(transport), WithRecorder(recorder))

	exec.Get(context.Background(), "/v1/user/nodes?secret=1", url.Values{"q": []string{"x"}}, false)
	exec.Get(context.Background(), "/v1/user", nil, true) // short-circuited, not recorded

	require.Len(t, recorder.records, 1)
	rec := recorder.records[0]
	assert.Len(t, rec.ID, 8)
	assert.Equal(t, "default", rec.ProfileID)
	assert.Equal(t, http.MethodGet, rec.Method)
	assert.Equal(t, "/v1/user/nodes", rec.Path)
	assert.Equal(t, 404, rec.StatusCode)
	assert.Equal(t, 404, rec.ErrorCode)
}

func TestExecute_HonorsContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	exec := NewExecutor(testProfile(server.URL), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := exec.Get(ctx, "/slow", nil, false)
	assert.Equal(t, model.KindTransportFailure, result.Kind)
	assert.Equal(t, 500, result.ErrorCode)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name   string
		result model.Result
		want   bool
	}{
		{"transport", model.Failure(model.KindTransportFailure, 500, "refused"), true},
		{"server error", model.Failure(model.KindUpstreamFailure, 503, "busy"), true},
		{"client error", model.Failure(model.KindUpstreamFailure, 404, "missing"), false},
		{"not authenticated", model.Failure(model.KindNotAuthenticated, 401, NotLoggedIn), false},
		{"malformed", model.Failure(model.KindMalformedResponse, 500, "bad"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.result.Err()))
		})
	}
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}
