// Package graphql retries GraphQL operations through an executor. A
// GraphQL transport reports failures two ways: the HTTP status of the
// POST itself, and an errors array in a 200 envelope, where the real
// upstream status hides under extensions. Both are mapped onto the
// classify taxonomy so one classifier covers REST and GraphQL call
// sites.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/richesreach/recall/classify"
	"github.com/richesreach/recall/observe"
	"github.com/richesreach/recall/policy"
	"github.com/richesreach/recall/retry"
)

// Request is the POST body of a GraphQL operation.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Extensions carries the vendor fields commonly attached to a GraphQL
// error, including the upstream status code Apollo-style servers nest
// there.
type Extensions struct {
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// Error is one entry of the envelope's errors array.
type Error struct {
	Message    string     `json:"message"`
	Path       []any      `json:"path,omitempty"`
	Extensions Extensions `json:"extensions,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return "graphql: " + e.Message
	}
	return "graphql: operation failed"
}

// Response is the GraphQL envelope.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []Error         `json:"errors,omitempty"`
}

// Err maps the envelope's errors array onto the classify taxonomy
// using the status code nested in extensions: 5xx and 429 behave like
// their HTTP counterparts, anything else is a non-retryable client
// error. A clean envelope returns nil.
func (r *Response) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	switch status := first.Extensions.StatusCode; {
	case status == http.StatusTooManyRequests:
		return &classify.RateLimitedError{}
	case status >= 500:
		return &classify.ServerError{StatusCode: status}
	default:
		return &first
	}
}

// Do executes a GraphQL operation against endpoint with retries under
// the policy for key. Each attempt re-marshals and re-posts the
// request. The envelope's errors are classified like HTTP failures,
// so a nested 503 retries and a validation error does not.
func Do(ctx context.Context, exec *retry.Executor, key policy.Key, client *http.Client, endpoint string, gqlReq Request) (*Response, observe.Timeline, error) {
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(gqlReq)
	if err != nil {
		return nil, observe.Timeline{}, fmt.Errorf("graphql: encoding request: %w", err)
	}

	op := func(ctx context.Context) (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, &classify.TransportError{Op: "POST " + endpoint, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.CopyN(io.Discard, resp.Body, 4096)
			return nil, classify.FromHTTPStatus(resp.StatusCode, 0)
		}

		var envelope Response
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			// A malformed envelope will not improve on retry.
			return nil, fmt.Errorf("graphql: decoding response: %w", err)
		}
		if err := envelope.Err(); err != nil {
			return nil, err
		}
		return &envelope, nil
	}

	ctx, capture := observe.RecordTimeline(ctx)
	envelope, err := retry.DoValue(ctx, exec, key, op)

	var tl observe.Timeline
	if t := capture.Timeline(); t != nil {
		tl = *t
	}
	return envelope, tl, err
}
