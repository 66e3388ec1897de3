// Package http retries net/http requests through an executor, mapping
// transport failures and status codes onto the classify taxonomy.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/richesreach/recall/classify"
	"github.com/richesreach/recall/observe"
	"github.com/richesreach/recall/policy"
	"github.com/richesreach/recall/retry"
)

// drainLimit bounds how much of a failed response body is read before
// closing, so a retry can reuse the connection without hanging on a
// large error payload.
const drainLimit = 4096

// Options tunes DoHTTP per call site.
type Options struct {
	// TreatConflictAsCompleted maps a 409 response to
	// *classify.AlreadyCompletedError instead of *classify.ClientError,
	// for idempotent completion endpoints that answer 409 when the side
	// effect already happened.
	TreatConflictAsCompleted bool
}

// DoHTTP executes req with retries under the policy for key. The
// request is cloned per attempt; a request with a body must be
// replayable (GetBody set, as it is for requests built by
// http.NewRequest from a byte reader). On non-2xx the body is drained
// and closed before the retry decision, and Retry-After on a 429 is
// carried to the backoff as a hint.
//
// The returned Timeline records every attempt, so a caller can surface
// "retrying, attempt 2 of 3" in the UI.
func DoHTTP(ctx context.Context, exec *retry.Executor, key policy.Key, client *http.Client, req *http.Request, opts ...Options) (*http.Response, observe.Timeline, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	if client == nil {
		client = http.DefaultClient
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, observe.Timeline{}, errors.New("recall: request body is not replayable (GetBody is nil)")
	}

	op := func(ctx context.Context) (*http.Response, error) {
		outReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			outReq.Body = body
		}

		resp, err := client.Do(outReq)
		if err != nil {
			return nil, &classify.TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
		resp.Body.Close()

		if opt.TreatConflictAsCompleted && resp.StatusCode == http.StatusConflict {
			return nil, &classify.AlreadyCompletedError{Detail: resp.Status}
		}
		return nil, classify.FromHTTPStatus(resp.StatusCode, parseRetryAfter(resp.Header))
	}

	ctx, capture := observe.RecordTimeline(ctx)
	resp, err := retry.DoValue(ctx, exec, key, op)

	var tl observe.Timeline
	if t := capture.Timeline(); t != nil {
		tl = *t
	}
	return resp, tl, err
}

// parseRetryAfter reads a Retry-After header as delta-seconds or an
// HTTP-date. Zero means no usable hint.
func parseRetryAfter(header http.Header) time.Duration {
	s := header.Get("Retry-After")
	if s == "" {
		return 0
	}
	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(s); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
