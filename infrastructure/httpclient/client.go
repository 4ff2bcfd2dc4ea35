package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout   = 15 * time.Second
	maxErrorBodySize = 1024
)

// Client is the shared fasthttp client of the outbound adapters.
type Client struct {
	hc      *fasthttp.Client
	timeout time.Duration
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		hc: &fasthttp.Client{
			Name:                "az-publish",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
	}
}

// StatusError is a non-2xx answer from an external system.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: status=%d body=%s", e.Code, e.Body)
}

// deadline is the earlier of ctx's deadline and the client timeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// jsonRequest sends body as JSON and decodes a 2xx answer into dest.
// Transport failures and answers worth retrying (see temporary) wrap
// domain.ErrExternalUnreachable.
func (c *Client) jsonRequest(ctx context.Context, method, url string, headers map[string]string, body, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}

	if err := c.hc.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) && ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.Unreachable(err)
	}

	code := resp.StatusCode()
	data := resp.Body()
	if code >= 400 {
		if len(data) > maxErrorBodySize {
			data = data[:maxErrorBodySize]
		}
		statusErr := &StatusError{Code: code, Body: string(data)}
		if temporary(code) {
			return fmt.Errorf("%w: %w", domain.ErrExternalUnreachable, statusErr)
		}
		return statusErr
	}

	if dest != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("decode response from %s: %w", url, err)
		}
	}
	return nil
}

// temporary reports whether a status means "try again later": server
// errors, rate limiting and request timeouts.
func temporary(code int) bool {
	return code >= 500 || code == fasthttp.StatusTooManyRequests || code == fasthttp.StatusRequestTimeout
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

func decodeLoose(body string, dest any) error {
	return json.Unmarshal([]byte(body), dest)
}
