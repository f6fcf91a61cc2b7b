package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies an upstream failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindUnauthorized
	KindBadResponse
	KindTimeout
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindBadResponse:
		return "bad_response"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// DefaultRetryAfter is used when a 429 carries no usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// Error is returned by every adapter call that fails.
type Error struct {
	Kind       Kind
	Op         string        // e.g. "rpc.getTokenAccountsByOwner", "raydium.pools"
	RetryAfter time.Duration // set for KindRateLimited
	Details    string        // set for KindBadResponse
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	switch e.Kind {
	case KindRateLimited:
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	case KindBadResponse:
		if e.Details != "" {
			b.WriteString(": ")
			b.WriteString(e.Details)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimited builds a KindRateLimited error.
func RateLimited(op string, retryAfter time.Duration) *Error {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &Error{Kind: KindRateLimited, Op: op, RetryAfter: retryAfter}
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(op string, status int) *Error {
	return &Error{Kind: KindUnauthorized, Op: op, Details: http.StatusText(status)}
}

// BadResponse builds a KindBadResponse error.
func BadResponse(op, details string, err error) *Error {
	return &Error{Kind: KindBadResponse, Op: op, Details: details, Err: err}
}

// Network builds a KindNetwork error.
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// FromStatus maps a non-2xx HTTP status to an Error. Returns nil for 2xx.
func FromStatus(op string, status int, header http.Header, body []byte) *Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return RateLimited(op, ParseRetryAfter(header.Get("Retry-After")))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Unauthorized(op, status)
	default:
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &Error{Kind: KindNetwork, Op: op, Err: fmt.Errorf("HTTP %d: %s", status, snippet)}
	}
}

// FromTransport classifies an error returned by http.Client.Do or a context.
func FromTransport(op string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return Network(op, err)
}

// ParseRetryAfter reads the delay-seconds form of Retry-After.
// HTTP-date values and garbage fall back to DefaultRetryAfter.
func ParseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return DefaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// KindOf classifies any error. Plain context deadline errors count as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if isTimeout(err) {
		return KindTimeout
	}
	return KindUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
