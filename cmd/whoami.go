package cmd

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

const userPath = "/v1/user"

// tokenInfo is what can be read from the stored access token without
// verifying its signature. It is informational only.
type tokenInfo struct {
	Subject   string    `json:"subject,omitempty"`
	Username  string    `json:"username,omitempty"`
	IssuedAt  time.Time `json:"issued_at,omitzero"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Expired   bool      `json:"expired"`
}

type whoamiOutput struct {
	Profile  string          `json:"profile"`
	Endpoint string          `json:"endpoint"`
	User     json.RawMessage `json:"user"`
	Token    *tokenInfo      `json:"token,omitempty"`
}

func init() {
	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user of the active profile",
		Args:  cobra.NoArgs,
		Run:   runWhoami,
	}
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) {
	active := activeProfile()
	exec := newExecutor(active)

	result := exec.Get(cmd.Context(), userPath, nil, true)
	if !result.OK() {
		finish(result)
		return
	}

	out := whoamiOutput{
		Profile:  active.ID,
		Endpoint: active.BaseURL,
		User:     result.Data,
	}

	tokens, err := rt.store.Tokens(active.ID)
	if err == nil && tokens.AccessToken != "" {
		info, err := inspectToken(tokens.AccessToken, time.Now())
		if err != nil {
			rt.log.WithError(err).Debug("Stored token is not a readable JWT")
		} else {
			out.Token = info
		}
	}

	if err := printer().PrintValue(out); err != nil {
		fail(err)
	}
}

// inspectToken decodes JWT claims without checking the signature.
func inspectToken(raw string, now time.Time) (*tokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}

	info := &tokenInfo{}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	for _, key := range []string{"cognito:username", "username", "email"} {
		if v, ok := claims[key].(string); ok && v != "" {
			info.Username = v
			break
		}
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time.UTC()
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp != nil {
		info.ExpiresAt = exp.Time.UTC()
		info.Expired = !now.Before(exp.Time)
	}
	if info.Subject == "" && info.ExpiresAt.IsZero() {
		return nil, errors.New("token carries no subject or expiry")
	}
	return info, nil
}
