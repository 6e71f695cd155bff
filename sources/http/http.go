// SPDX-License-Identifier: Apache-2.0
// Copyright 2022 Jussi Maki

// Package http provides observables backed by HTTP requests.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/joamaki/filtermap/sources/lines"
	"github.com/joamaki/filtermap/stream"
)

type Option func(*http.Request)

func WithBasicAuth(username, password string) Option {
	return func(req *http.Request) {
		req.SetBasicAuth(username, password)
	}
}

func WithHeader(key, value string) Option {
	return func(req *http.Request) {
		req.Header.Add(key, value)
	}
}

// StatusError is returned when the server responds with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}
}

func request(ctx context.Context, method, url string, body io.Reader, options []Option) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for _, opt := range options {
		opt(req)
	}
	return http.DefaultClient.Do(req)
}

// Get emits the response of a GET request to 'url'. The observer owns the
// response body.
func Get(url string, options ...Option) stream.Observable[*http.Response] {
	return stream.FuncObservable[*http.Response](
		func(ctx context.Context, next func(*http.Response) error) error {
			resp, err := request(ctx, http.MethodGet, url, nil, options)
			if err != nil {
				return err
			}
			return next(resp)
		})
}

// Post emits the response of a POST request to 'url'. Every observer sends
// 'body'. The observer owns the response body.
func Post(url string, body []byte, options ...Option) stream.Observable[*http.Response] {
	return stream.FuncObservable[*http.Response](
		func(ctx context.Context, next func(*http.Response) error) error {
			resp, err := request(ctx, http.MethodPost, url, bytes.NewReader(body), options)
			if err != nil {
				return err
			}
			return next(resp)
		})
}

// ResponseBody reads and closes the body of each response. Responses with a
// non-2xx status fail with *StatusError.
func ResponseBody(in stream.Observable[*http.Response]) stream.Observable[[]byte] {
	return stream.FlatMap(in, func(resp *http.Response) stream.Observable[[]byte] {
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return stream.Error[[]byte](err)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return stream.Error[[]byte](err)
		}
		return stream.Just(body)
	})
}

// BodyLines streams the body of each response line by line as the server
// writes it, closing the body afterwards. Responses with a non-2xx status
// fail with *StatusError.
func BodyLines(in stream.Observable[*http.Response]) stream.Observable[string] {
	return stream.FlatMap(in, func(resp *http.Response) stream.Observable[string] {
		return stream.FuncObservable[string](
			func(ctx context.Context, next func(string) error) error {
				defer resp.Body.Close()

				if err := checkStatus(resp); err != nil {
					return err
				}
				return lines.FromReader(resp.Body).Observe(ctx, next)
			})
	})
}

// Lines streams the body of a GET request to 'url' line by line.
func Lines(url string, options ...Option) stream.Observable[string] {
	return BodyLines(Get(url, options...))
}
