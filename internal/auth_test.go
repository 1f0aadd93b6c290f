package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrs "redveil/pkg/errors"
)

func TestAuthenticatorAcquire(t *testing.T) {
	var gotReq struct {
		path      string
		username  string
		password  string
		hasBasic  bool
		userAgent string
		vendorID  string
		deviceID  string
		body      map[string]any
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq.path = r.URL.Path
		gotReq.username, gotReq.password, gotReq.hasBasic = r.BasicAuth()
		gotReq.userAgent = r.Header.Get("User-Agent")
		gotReq.vendorID = r.Header.Get("Client-Vendor-ID")
		gotReq.deviceID = r.Header.Get("X-Reddit-Device-Id")
		json.NewDecoder(r.Body).Decode(&gotReq.body)

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"token_type":   "bearer",
			"expires_in":   86400,
		})
	}))
	defer server.Close()

	auth, err := NewAuthenticator(server.Client(), "client-abc", "test-agent/1.0", server.URL, "", nil)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	cred, err := auth.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if cred.Token != "fresh-token" {
		t.Errorf("Token = %q", cred.Token)
	}
	if cred.TokenType != "bearer" {
		t.Errorf("TokenType = %q", cred.TokenType)
	}
	if remaining := time.Until(cred.ExpiresAt); remaining < 23*time.Hour {
		t.Errorf("ExpiresAt only %v away, want ~24h", remaining)
	}

	if gotReq.path != "/auth/v2/oauth/access-token/loginless" {
		t.Errorf("path = %q", gotReq.path)
	}
	if !gotReq.hasBasic || gotReq.username != "client-abc" || gotReq.password != "" {
		t.Errorf("basic auth = %q/%q (%v), want client id with empty secret", gotReq.username, gotReq.password, gotReq.hasBasic)
	}
	if gotReq.userAgent != "test-agent/1.0" {
		t.Errorf("User-Agent = %q", gotReq.userAgent)
	}
	if gotReq.vendorID == "" || gotReq.deviceID == "" {
		t.Error("identity headers missing")
	}
	scopes, ok := gotReq.body["scopes"].([]any)
	if !ok || len(scopes) != 3 {
		t.Errorf("request scopes = %v", gotReq.body["scopes"])
	}
}

func TestAuthenticatorStableDeviceID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 3600})
	}))
	defer server.Close()

	auth, err := NewAuthenticator(server.Client(), "id", "ua", server.URL, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	first := auth.DeviceID()
	if first == "" {
		t.Fatal("empty device id")
	}
	if _, err := auth.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if auth.DeviceID() != first {
		t.Error("device id changed between calls")
	}
}

func TestAuthenticatorAcquireFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "upstream rejection", status: http.StatusForbidden, body: `{"error":"blocked"}`},
		{name: "non-json body", status: http.StatusOK, body: `<html>maintenance</html>`},
		{name: "missing token", status: http.StatusOK, body: `{"token_type":"bearer","expires_in":3600}`},
		{name: "non-positive expiry", status: http.StatusOK, body: `{"access_token":"t","expires_in":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			auth, err := NewAuthenticator(server.Client(), "id", "ua", server.URL, "", nil)
			if err != nil {
				t.Fatal(err)
			}

			cred, err := auth.Acquire(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !pkgerrs.IsAuth(err) {
				t.Errorf("error type = %T, want AuthError", err)
			}
			if cred.Token != "" || !cred.ExpiresAt.IsZero() {
				t.Errorf("credential partially populated on failure: %+v", cred)
			}
		})
	}
}
