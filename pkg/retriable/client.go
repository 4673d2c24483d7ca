package retriable

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// HeadTo makes HEAD request against the specified hosts.
// The supplied hosts are tried in order until one succeeds.
func (c *Client) HeadTo(ctx context.Context, hosts []string, path string) (http.Header, int, error) {
	resp, err := c.executeRequest(ctx, http.MethodHead, hosts, path, nil)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	defer resp.Body.Close()
	return resp.Header, resp.StatusCode, nil
}

// Head makes HEAD request.
// path should be an absolute URI path, i.e. /foo/bar/baz
// The client must be configured with the hosts list.
func (c *Client) Head(ctx context.Context, path string) (http.Header, int, error) {
	return c.HeadTo(ctx, c.hosts, path)
}

// Get makes a GET request,
// the resulting HTTP body will be decoded into the supplied body parameter,
// and the http status code returned.
// The client must be configured with the hosts list.
func (c *Client) Get(ctx context.Context, path string, body any) (http.Header, int, error) {
	return c.Request(ctx, http.MethodGet, c.hosts, path, nil, body)
}

// Post makes an HTTP POST to the supplied path, serializing requestBody
// to json and sending that as the HTTP body. The HTTP response will be
// decoded into responseBody, and the status code (and potentially an
// error) returned.
func (c *Client) Post(ctx context.Context, path string, requestBody any, responseBody any) (http.Header, int, error) {
	return c.Request(ctx, http.MethodPost, c.hosts, path, requestBody, responseBody)
}

// Put is the same as Post, with the PUT verb.
func (c *Client) Put(ctx context.Context, path string, requestBody any, responseBody any) (http.Header, int, error) {
	return c.Request(ctx, http.MethodPut, c.hosts, path, requestBody, responseBody)
}

// Delete makes a DELETE request,
// the resulting HTTP body will be decoded into the supplied body parameter,
// and the http status code returned.
func (c *Client) Delete(ctx context.Context, path string, body any) (http.Header, int, error) {
	return c.Request(ctx, http.MethodDelete, c.hosts, path, nil, body)
}
