package model

import (
	"encoding/json"
	"time"
)

const (
	// DefaultProfileID is the sentinel id of the implicit profile.
	DefaultProfileID = "default"

	// DefaultBaseURL is the public endpoint used when nothing else is configured.
	DefaultBaseURL = "https://api.rainmaker.espressif.com"
)

// ProfileDocument is the persisted form of a profile. Keys this tool does not
// know are kept in Extra and written back on save.
type ProfileDocument struct {
	Environments Environments `json:"environments"`
	Session      Session      `json:"session"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Environments holds the endpoints a profile talks to
type Environments struct {
	HTTPBaseURL string `json:"http_base_url"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Session is the credential record of a profile. An empty AccessToken means
// the profile is not authenticated.
type Session struct {
	AccessToken string    `json:"access_token,omitempty"`
	IDToken     string    `json:"id_token,omitempty"`
	Username    string    `json:"username,omitempty"`
	CreatedAt   Timestamp `json:"created_at,omitzero"`
	LastUsed    Timestamp `json:"last_used,omitzero"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Authenticated reports whether the session holds an access token.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// NewDefaultDocument returns a fresh document pointing at DefaultBaseURL.
func NewDefaultDocument(now time.Time) *ProfileDocument {
	return &ProfileDocument{
		Environments: Environments{HTTPBaseURL: DefaultBaseURL},
		Session: Session{
			CreatedAt: NewTimestamp(now),
			LastUsed:  NewTimestamp(now),
		},
	}
}

func (d ProfileDocument) MarshalJSON() ([]byte, error) {
	type plain ProfileDocument
	return withUnknown(plain(d), d.Extra)
}

func (d *ProfileDocument) UnmarshalJSON(data []byte) error {
	type plain ProfileDocument
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, "environments", "session")
	if err != nil {
		return err
	}
	*d = ProfileDocument(p)
	d.Extra = extra
	return nil
}

func (e Environments) MarshalJSON() ([]byte, error) {
	type plain Environments
	return withUnknown(plain(e), e.Extra)
}

func (e *Environments) UnmarshalJSON(data []byte) error {
	type plain Environments
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, "http_base_url")
	if err != nil {
		return err
	}
	*e = Environments(p)
	e.Extra = extra
	return nil
}

func (s Session) MarshalJSON() ([]byte, error) {
	type plain Session
	return withUnknown(plain(s), s.Extra)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, "access_token", "id_token", "username", "created_at", "last_used")
	if err != nil {
		return err
	}
	*s = Session(p)
	s.Extra = extra
	return nil
}

// unknownFields returns the members of the JSON object data not named in known.
func unknownFields(data []byte, known ...string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// withUnknown marshals v and adds the extra members it does not already carry.
func withUnknown(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = raw
		}
	}
	return json.Marshal(fields)
}
