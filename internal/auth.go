package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pkgerrs "redveil/pkg/errors"
)

const defaultTokenEndpointPath = "auth/v2/oauth/access-token/loginless"

var errMissingTokenFields = errors.New("access token fields missing or malformed in response")

// loginlessBody is the fixed scope request of the impersonated client.
var loginlessBody = []byte(`{"scopes": ["*", "email", "pii"]}`)

// Credential is a bearer token with its absolute expiry. It is owned by the
// TokenStore and replaced wholesale on refresh, never mutated in place.
type Credential struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
	obtained  time.Time
}

// Authenticator performs the loginless device handshake that mints a bearer
// credential while presenting as a known native client build. The device and
// vendor identifiers are generated once per process; regenerating them
// mid-run would detach an otherwise-valid token from its device association.
type Authenticator struct {
	client    *http.Client
	clientID  string
	userAgent string
	tokenURL  *url.URL
	deviceID  string
	vendorID  string
	logger    *zap.Logger
}

// NewAuthenticator creates an authenticator for the given auth base URL.
// The tokenPath parameter can be an empty string to use the default endpoint.
func NewAuthenticator(httpClient *http.Client, clientID, userAgent, baseURL, tokenPath string, logger *zap.Logger) (*Authenticator, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, &pkgerrs.AuthError{Err: err}
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}
	if tokenPath == "" {
		tokenPath = defaultTokenEndpointPath
	}
	tokenURL, err := parsedURL.Parse(tokenPath)
	if err != nil {
		return nil, &pkgerrs.AuthError{Err: err}
	}

	return &Authenticator{
		client:    httpClient,
		clientID:  clientID,
		userAgent: userAgent,
		tokenURL:  tokenURL,
		deviceID:  uuid.NewString(),
		vendorID:  uuid.NewString(),
		logger:    logger.Named("auth"),
	}, nil
}

// DeviceID returns the stable per-process device identifier.
func (a *Authenticator) DeviceID() string { return a.deviceID }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Acquire performs the device handshake and returns a fresh credential.
// Every failure path returns an AuthError; a credential is never returned
// partially populated.
func (a *Authenticator) Acquire(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL.String(), bytes.NewReader(loginlessBody))
	if err != nil {
		return Credential{}, &pkgerrs.AuthError{Err: err}
	}

	// Basic auth with the native client id and an empty secret, plus the
	// identity headers the official build sends.
	req.SetBasicAuth(a.clientID, "")
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Vendor-ID", a.vendorID)
	req.Header.Set("X-Reddit-Device-Id", a.deviceID)

	resp, err := a.client.Do(req)
	if err != nil {
		return Credential{}, &pkgerrs.AuthError{Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, &pkgerrs.AuthError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Credential{}, &pkgerrs.AuthError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(bodyBytes, &tok); err != nil {
		return Credential{}, &pkgerrs.AuthError{StatusCode: resp.StatusCode, Body: string(bodyBytes), Err: err}
	}
	if tok.AccessToken == "" || tok.ExpiresIn <= 0 {
		return Credential{}, &pkgerrs.AuthError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
			Err:        errMissingTokenFields,
		}
	}
	if tok.TokenType == "" {
		tok.TokenType = "bearer"
	}

	now := time.Now()
	cred := Credential{
		Token:     tok.AccessToken,
		TokenType: tok.TokenType,
		ExpiresAt: now.Add(time.Duration(tok.ExpiresIn) * time.Second),
		obtained:  now,
	}
	a.logger.Debug("acquired bearer credential",
		zap.Time("expires_at", cred.ExpiresAt),
		zap.String("device_id", a.deviceID))
	return cred, nil
}
