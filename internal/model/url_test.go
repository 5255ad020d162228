package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain https", in: "https://api.example.com", want: "https://api.example.com"},
		{name: "trailing slash", in: "https://custom.example.com/", want: "https://custom.example.com"},
		{name: "several slashes and spaces", in: "  http://localhost:8080/// ", want: "http://localhost:8080"},
		{name: "with base path", in: "https://example.com/api/", want: "https://example.com/api"},
		{name: "empty", in: "", wantErr: true},
		{name: "no scheme", in: "api.example.com", wantErr: true},
		{name: "other scheme", in: "ftp://example.com", wantErr: true},
		{name: "no host", in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://a.example.com", "/v1/user", "https://a.example.com/v1/user"},
		{"https://a.example.com/", "/v1/user", "https://a.example.com/v1/user"},
		{"https://a.example.com/", "v1/user", "https://a.example.com/v1/user"},
		{"https://a.example.com", "v1/user", "https://a.example.com/v1/user"},
		{"https://a.example.com//", "//v1/user", "https://a.example.com/v1/user"},
		{"https://a.example.com", "", "https://a.example.com"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinURL(tt.base, tt.path), "%s + %s", tt.base, tt.path)
	}
}
