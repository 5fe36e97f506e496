package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"streamhostd/pkg/types"
)

// statusBody is the subset of the status endpoint response the probe parses.
// Anything that fails to decode classifies as unknown.
type statusBody struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Probe issues one bounded request against the service's status endpoint and
// classifies the raw outcome. The vaulted credentials are attached when a
// provider is configured; a 401/403 then means the service no longer accepts
// them. It never retries and never returns an error: unknown is the
// representation of an unclassifiable outcome.
func (c *Client) Probe(ctx context.Context) types.ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status", nil)
	if err != nil {
		return types.StatusUnknown
	}
	if c.creds != nil {
		if pair, ok := c.creds(); ok {
			req.SetBasicAuth(pair.Username, pair.Password)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.StatusAuthRequired
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body statusBody
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
			return types.StatusUnknown
		}
		return types.StatusOnline
	default:
		return types.StatusUnknown
	}
}

// classifyTransportError maps a request error to a status. Connection
// refused means nothing is listening; timeouts and everything else are
// unclassifiable.
func classifyTransportError(err error) types.ServiceStatus {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.StatusUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.StatusUnknown
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return types.StatusOffline
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return types.StatusOffline
	}
	return types.StatusUnknown
}
