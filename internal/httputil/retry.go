// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil resends requests the model endpoints reject as
// overloaded.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay is the wait before the first resend. It doubles for each
// later resend. Tests lower it.
var RetryBaseDelay = 10 * time.Second

// RetryMaxDelay caps one wait, including one asked for by Retry-After.
var RetryMaxDelay = 5 * time.Minute

const defaultMaxRetries = 5

// DoWithRetry sends req and resends it while the server answers 429 Too
// Many Requests or 503 Service Unavailable, at most maxRetries times (5
// when maxRetries is zero). A Retry-After header given in seconds sets the
// wait; otherwise it is RetryBaseDelay doubled per resend. Request bodies
// are rewound with req.GetBody. The last rejected response is returned
// once resends run out. A cancelled ctx ends the wait with ctx.Err().
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for n := 0; ; n++ {
		out, err := prepare(ctx, req, n)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(out)
		if err != nil {
			return nil, err
		}
		if !overloaded(resp.StatusCode) || n == maxRetries {
			return resp, nil
		}

		wait := retryDelay(resp.Header.Get("Retry-After"), n)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// prepare returns the request for send n, with a fresh body on resends.
func prepare(ctx context.Context, req *http.Request, n int) (*http.Request, error) {
	out := req.Clone(ctx)
	if n == 0 || req.GetBody == nil {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	out.Body = body
	return out, nil
}

func overloaded(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryDelay returns the wait before resend n+1.
func retryDelay(retryAfter string, n int) time.Duration {
	d := RetryBaseDelay << n
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		d = time.Duration(secs) * time.Second
	}
	if d > RetryMaxDelay {
		d = RetryMaxDelay
	}
	return d
}

// RetryingDoer sends every request through DoWithRetry. It is the HTTP
// client of the OpenAI client shared by the extractor and the embedder.
type RetryingDoer struct {
	Client     *http.Client
	MaxRetries int
}

// Do sends req, resending it while the server is overloaded.
func (d *RetryingDoer) Do(req *http.Request) (*http.Response, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	return DoWithRetry(req.Context(), client, req, d.MaxRetries)
}
