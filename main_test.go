package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"socket-relay/config"
	"socket-relay/relay"
	"socket-relay/stores/memory"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAllowOrigin(t *testing.T) {
	testCases := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty origin", nil, "", false},
		{"localhost default", nil, "http://localhost:3000", true},
		{"loopback ipv6 default", nil, "http://[::1]:8080", true},
		{"remote default", nil, "https://example.com", false},
		{"odd scheme default", nil, "ftp://localhost", false},
		{"configured match", []string{"https://example.com"}, "https://EXAMPLE.com", true},
		{"configured miss", []string{"https://example.com"}, "http://localhost:3000", false},
		{"wildcard", []string{"*"}, "https://anything.test", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := allowOrigin(tc.allowed, tc.origin); got != tc.want {
				t.Errorf("allowOrigin(%v, %q) = %v, want %v", tc.allowed, tc.origin, got, tc.want)
			}
		})
	}
}

func TestSetupRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	relaySrv := relay.NewServer(relay.Options{SendQueueSize: 4}, nil, relay.NewMetrics(reg))
	defer relaySrv.Close()

	r := setupRouter(config.Default(), relaySrv, memory.NewActivityStore(), reg)

	testCases := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/api/rooms", http.StatusOK, "[]"},
		{"/api/rooms/missing", http.StatusNotFound, ""},
		{"/metrics", http.StatusOK, "relay_connections"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("Expected status %d, got %d", tc.wantStatus, w.Code)
			}
			if !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Errorf("Expected body to contain %q, got %q", tc.wantBody, w.Body.String())
			}
		})
	}
}
