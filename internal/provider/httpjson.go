package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps how much of an upstream response is read. The Raydium
// pool list is the largest payload we consume.
const maxBodyBytes = 512 << 20

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GetJSON issues a GET with a per-call timeout and decodes the body into out.
// All failures come back as *Error.
func GetJSON(ctx context.Context, client HTTPDoer, op, url string, timeout time.Duration, headers map[string]string, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Network(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return FromTransport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return FromTransport(op, fmt.Errorf("read body: %w", err))
	}

	if perr := FromStatus(op, resp.StatusCode, resp.Header, body); perr != nil {
		return perr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return BadResponse(op, "malformed JSON payload", err)
	}
	return nil
}
