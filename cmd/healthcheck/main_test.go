package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddr(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: "", want: "127.0.0.1:8080"},
		{name: "bind all", raw: "0.0.0.0:9090", want: "127.0.0.1:9090"},
		{name: "bind all v6", raw: "[::]:9090", want: "127.0.0.1:9090"},
		{name: "port only", raw: ":9090", want: "127.0.0.1:9090"},
		{name: "explicit host", raw: "10.0.0.5:8081", want: "10.0.0.5:8081"},
		{name: "malformed", raw: "localhost", want: "127.0.0.1:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeAddr(tt.raw))
		})
	}
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9000/api/v1/health", healthURL("0.0.0.0:9000"))
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "healthy", status: http.StatusOK, body: `{"status":"ok","time":"2026-01-01T00:00:00Z"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, wantErr: "unexpected status 500"},
		{name: "degraded", status: http.StatusOK, body: `{"status":"degraded"}`, wantErr: `reported status "degraded"`},
		{name: "not json", status: http.StatusOK, body: `ok`, wantErr: "decode health response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/health", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := checkHealth(context.Background(), srv.Client(), srv.URL+"/api/v1/health")
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
