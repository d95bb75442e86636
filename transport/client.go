package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-appshell/core"
	goerrors "github.com/goliatone/go-errors"
)

const defaultClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

// Client executes core.Requests over HTTP, running the pipeline around each call.
type Client struct {
	Doer                 core.HTTPDoer
	Pipeline             *Pipeline
	BaseURL              string
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewClient(doer core.HTTPDoer, pipeline *Pipeline) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: defaultClientTimeout}
	}
	if pipeline == nil {
		pipeline = NewPipeline()
	}
	return &Client{
		Doer:                 doer,
		Pipeline:             pipeline,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

// Do runs request interceptors, executes the request and hands any failure,
// including non-2xx responses, to the error interceptors.
func (c *Client) Do(ctx context.Context, req *core.Request) (*core.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c == nil || c.Doer == nil {
		return nil, transportError(
			"transport: client requires an http doer",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			RequestMetadata(req),
		)
	}
	if req == nil {
		return nil, transportError(
			"transport: request is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{metadataFailureKey: ErrorTypeConfig},
		)
	}

	current, err := c.Pipeline.RunRequest(ctx, req.Clone())
	if err != nil {
		return nil, c.Pipeline.RunError(ctx, err)
	}
	res, err := c.execute(ctx, current)
	if err != nil {
		return res, c.Pipeline.RunError(ctx, err)
	}
	return res, nil
}

func (c *Client) execute(ctx context.Context, req *core.Request) (*core.Response, error) {
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	req.Method = method

	target, err := c.resolveURL(req.URL)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			withRequest(req, ErrorTypeConfig, map[string]any{"url": strings.TrimSpace(req.URL)}),
		)
	}

	query := target.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	target.RawQuery = query.Encode()

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			withRequest(req, ErrorTypeConfig, map[string]any{"method": method, "url": target.String()}),
		)
	}
	for key, value := range c.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now().UTC()
	httpRes, err := c.Doer.Do(httpReq)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			withRequest(req, ErrorTypeRequest, map[string]any{"method": method, "url": target.String()}),
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := c.responseBodyLimit()
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			withRequest(req, ErrorTypeRequest, map[string]any{"status_code": httpRes.StatusCode}),
		)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			withRequest(req, ErrorTypeRequest, map[string]any{
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			}),
		)
	}

	res := &core.Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
		},
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		metadata := withRequest(req, ErrorTypeResponse, map[string]any{
			metadataResponse: res,
			AttrStatus:       res.StatusCode,
		})
		return res, transportError(
			fmt.Sprintf("transport: %s %s responded %d", method, target.String(), res.StatusCode),
			goerrors.HTTPStatusToCategory(res.StatusCode),
			res.StatusCode,
			metadata,
		).WithTextCode(core.ShellErrorTransport)
	}
	return res, nil
}

func (c *Client) resolveURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("transport: request url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.IsAbs() {
		return parsed, nil
	}
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("transport: relative url %q without base url", raw)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return baseURL.ResolveReference(parsed), nil
}

func (c *Client) responseBodyLimit() int64 {
	if c.MaxResponseBodyBytes > 0 {
		return c.MaxResponseBodyBytes
	}
	return defaultResponseBodyLimit
}

func withRequest(req *core.Request, kind string, extra map[string]any) map[string]any {
	metadata := RequestMetadata(req)
	metadata[metadataFailureKey] = kind
	for key, value := range extra {
		metadata[key] = value
	}
	return metadata
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.RequestDoer = (*Client)(nil)
