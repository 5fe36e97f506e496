package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"streamhostd/pkg/types"
)

// Client talks to the streaming service's local control endpoints. It is
// purely a transport: classification and retry policy live in the callers.
type Client struct {
	baseURL        string
	probeTimeout   time.Duration
	connectTimeout time.Duration
	httpClient     *http.Client
	creds          CredentialsFunc
	log            zerolog.Logger
}

// NewClient constructs a client for the service's control endpoint.
// The endpoint serves a self-signed certificate on localhost, so
// verification is disabled for this transport only.
func NewClient(baseURL string, probeTimeout, connectTimeout time.Duration, log zerolog.Logger) *Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0 on purpose: every request carries a context deadline.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		probeTimeout:   probeTimeout,
		connectTimeout: connectTimeout,
		httpClient:     cli,
		log:            log.With().Str("component", "service-client").Logger(),
	}
}

// BaseURL returns the configured control endpoint base.
func (c *Client) BaseURL() string { return c.baseURL }

// CredentialsFunc supplies the current vaulted pair, if any, for probes.
type CredentialsFunc func() (types.Credentials, bool)

// SetCredentialsProvider installs the source of probe credentials. A probe
// rejected with these attached is how a credential desync is detected.
func (c *Client) SetCredentialsProvider(fn CredentialsFunc) { c.creds = fn }

// passwordRequest is the payload for the credential endpoints.
type passwordRequest struct {
	CurrentUsername string `json:"currentUsername,omitempty"`
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewUsername     string `json:"newUsername"`
	NewPassword     string `json:"newPassword"`
}

// InitializeCredentials submits the first username/password pair to the
// service's credential-initialization endpoint. The endpoint only accepts
// unauthenticated calls while the service has no credentials configured.
func (c *Client) InitializeCredentials(ctx context.Context, creds types.Credentials) error {
	body := passwordRequest{NewUsername: creds.Username, NewPassword: creds.Password}
	return c.doPassword(ctx, http.MethodPost, "/api/password", nil, body)
}

// TestCredentials validates a candidate pair against the credential-test
// endpoint without mutating service state.
func (c *Client) TestCredentials(ctx context.Context, creds types.Credentials) error {
	body := passwordRequest{NewUsername: creds.Username, NewPassword: creds.Password}
	return c.doPassword(ctx, http.MethodPost, "/api/password/verify", &creds, body)
}

// ChangeCredentials replaces the service's credentials, authenticated by the
// current pair.
func (c *Client) ChangeCredentials(ctx context.Context, current, next types.Credentials) error {
	body := passwordRequest{
		CurrentUsername: current.Username,
		CurrentPassword: current.Password,
		NewUsername:     next.Username,
		NewPassword:     next.Password,
	}
	return c.doPassword(ctx, http.MethodPatch, "/api/password", &current, body)
}

func (c *Client) doPassword(ctx context.Context, method, path string, auth *types.Credentials, body passwordRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ErrUnreachable(ctx.Err().Error())
		}
		return ErrUnreachable(err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized(method + " " + path)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("unexpected credential endpoint response")
		return ErrUnreachable(fmt.Sprintf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(b))))
	}
}
