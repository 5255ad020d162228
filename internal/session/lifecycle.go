// Package session implements login and logout on top of the request
// executor and the credential store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"rmcli/internal/model"
)

const (
	LoginPath  = "/v1/login2"
	LogoutPath = "/v1/logout2"
)

var (
	// ErrInvalidCredentials maps the upstream 401 on login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformedResponse means the login response carried no recognizable token.
	ErrMalformedResponse = errors.New("malformed login response")

	// ErrPersistFailed means login succeeded upstream but the token could not be saved.
	ErrPersistFailed = errors.New("login succeeded but the token could not be saved")
)

// Executor issues a single API call.
type Executor interface {
	Execute(ctx context.Context, r model.Request) model.Result
}

// TokenStore is the subset of the credential store login and logout touch.
type TokenStore interface {
	Tokens(id string) (model.Tokens, error)
	UpdateTokens(id, accessToken, idToken string) error
	UpdateToken(id, token string) error
}

// Lifecycle coordinates login and logout for one profile at a time.
type Lifecycle struct {
	exec  Executor
	store TokenStore
	log   *logrus.Entry
}

// NewLifecycle wires a lifecycle to an executor and a token store.
func NewLifecycle(exec Executor, store TokenStore, log *logrus.Entry) *Lifecycle {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Lifecycle{
		exec:  exec,
		store: store,
		log:   log.WithField("component", "session"),
	}
}

type loginRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

// Login exchanges credentials for tokens and binds the access token to profileID.
func (l *Lifecycle) Login(ctx context.Context, username, password, profileID string) (*model.TokenBundle, error) {
	log := l.log.WithField("profile", profileID)

	result := l.exec.Execute(ctx, model.Request{
		Method:       http.MethodPost,
		Path:         LoginPath,
		Body:         loginRequest{UserName: username, Password: password},
		Authenticate: false,
	})
	if !result.OK() {
		if result.Kind == model.KindUpstreamFailure && result.ErrorCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, result.Description)
		}
		return nil, result.Err()
	}

	bundle, shape, err := parseTokens(result.Data)
	if err != nil {
		return nil, err
	}
	log.Debugf("Parsed %s login response", shape)

	if err := l.store.UpdateTokens(profileID, bundle.AccessToken, bundle.IDToken); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	log.Infof("Logged in as %s", username)
	return bundle, nil
}

// Logout removes the local token first, then notifies the server on a best
// effort basis. A failed server call does not fail the logout.
func (l *Lifecycle) Logout(ctx context.Context, profileID string) error {
	log := l.log.WithField("profile", profileID)

	tokens, err := l.store.Tokens(profileID)
	if err != nil {
		log.WithError(err).Warn("Could not read stored tokens before logout")
	}

	if err := l.store.UpdateToken(profileID, ""); err != nil {
		return fmt.Errorf("clearing stored token: %w", err)
	}
	log.Info("Cleared stored token")

	if tokens.AccessToken == "" {
		log.Debug("No token was stored; skipping server logout")
		return nil
	}

	result := l.exec.Execute(ctx, model.Request{
		Method:       http.MethodPost,
		Path:         LogoutPath,
		Authenticate: true,
		Auth:         &tokens,
	})
	if !result.OK() {
		log.WithField("error_code", result.ErrorCode).
			Warnf("Server logout failed: %s", result.Description)
	}
	return nil
}

// tokenFields covers both naming conventions the API has used.
type tokenFields struct {
	AccessToken       string `json:"accesstoken"`
	IDToken           string `json:"idtoken"`
	RefreshToken      string `json:"refreshtoken"`
	AccessTokenSnake  string `json:"access_token"`
	IDTokenSnake      string `json:"id_token"`
	RefreshTokenSnake string `json:"refresh_token"`
}

func (f tokenFields) bundle() (model.TokenBundle, bool) {
	b := model.TokenBundle{
		AccessToken:  firstNonEmpty(f.AccessToken, f.AccessTokenSnake),
		IDToken:      firstNonEmpty(f.IDToken, f.IDTokenSnake),
		RefreshToken: firstNonEmpty(f.RefreshToken, f.RefreshTokenSnake),
	}
	return b, b.AccessToken != ""
}

// tokenShape recognizes one response layout.
type tokenShape struct {
	name  string
	match func(data json.RawMessage) (model.TokenBundle, bool)
}

// tokenShapes are tried in order; the first match wins.
var tokenShapes = []tokenShape{
	{
		name: "flat",
		match: func(data json.RawMessage) (model.TokenBundle, bool) {
			var f tokenFields
			if json.Unmarshal(data, &f) != nil {
				return model.TokenBundle{}, false
			}
			return f.bundle()
		},
	},
	{
		name: "nested",
		match: func(data json.RawMessage) (model.TokenBundle, bool) {
			var wrapper struct {
				Data *tokenFields `json:"data"`
			}
			if json.Unmarshal(data, &wrapper) != nil || wrapper.Data == nil {
				return model.TokenBundle{}, false
			}
			return wrapper.Data.bundle()
		},
	},
}

func parseTokens(data json.RawMessage) (*model.TokenBundle, string, error) {
	for _, shape := range tokenShapes {
		if bundle, ok := shape.match(data); ok {
			return &bundle, shape.name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no access token in response", ErrMalformedResponse)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
