// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package couch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// maxErrorBody caps how much of a failed response is kept on an Error
const maxErrorBody = 1 << 20

const designPrefix = "_design/"

// 🔌 Store is the set of document store operations replication needs.
// db is the database URL, e.g. https://registry.example.com/registry.
type Store interface {
	// Get fetches a document; a missing document yields an error for which IsNotFound is true
	Get(ctx context.Context, db, id string) (*Document, error)
	// Destroy deletes the given revision of a document
	Destroy(ctx context.Context, db, id, rev string) error
	// Insert creates or updates a document
	Insert(ctx context.Context, db, id string, doc *Document) error
	// GetAttachment opens a stream of the attachment bytes
	GetAttachment(ctx context.Context, db, id, name string) (io.ReadCloser, error)
	// SaveAttachment opens a sink that uploads an attachment to the given revision
	SaveAttachment(ctx context.Context, db, id, rev, name, contentType string) (AttachmentWriter, error)
}

// 📤 AttachmentWriter streams an attachment upload.
//
// Nothing is sent until the first Write or Close, so Header may still be
// edited before bytes start flowing. Close waits for the store's response.
type AttachmentWriter interface {
	io.WriteCloser
	Header() http.Header
	// CloseWithError aborts the upload. If the store already answered with
	// an error, that error is returned, otherwise err is.
	CloseWithError(err error) error
}

// 🔧 ClientOptions configures a Client
type ClientOptions struct {
	// Proxy is an optional forward proxy URL every request is routed through
	Proxy string
	// HTTPClient overrides the underlying client; its transport must be an
	// *http.Transport when Proxy is set
	HTTPClient *http.Client
	// Headers are sent on every request
	Headers http.Header
	// Timeout bounds connecting, waiting for response headers and reading
	// document bodies. Attachment streams are not bounded. Zero means no limit.
	Timeout time.Duration
}

// 🛋️ Client is an HTTP Store for CouchDB style document stores
type Client struct {
	http    *http.Client
	headers http.Header
	timeout time.Duration
}

var _ Store = (*Client)(nil)

// 🏭 NewClient creates a new Client
func NewClient(opts ClientOptions) (*Client, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	} else {
		clone := *hc
		hc = &clone
	}

	var proxyURL *url.URL
	if opts.Proxy != "" {
		var err error
		if proxyURL, err = url.Parse(opts.Proxy); err != nil {
			return nil, errors.Errorf("parsing proxy url: %w", err)
		}
		if proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, errors.Errorf("proxy url %q must be absolute", opts.Proxy)
		}
	}

	if proxyURL != nil || opts.Timeout > 0 {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		tr, ok := base.(*http.Transport)
		if !ok {
			if proxyURL != nil {
				return nil, errors.Errorf("proxy requires an *http.Transport, got %T", base)
			}
			return nil, errors.Errorf("timeout requires an *http.Transport, got %T", base)
		}
		tr = tr.Clone()
		if proxyURL != nil {
			tr.Proxy = http.ProxyURL(proxyURL)
		}
		if opts.Timeout > 0 {
			dialer := &net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}
			tr.DialContext = dialer.DialContext
			tr.TLSHandshakeTimeout = opts.Timeout
			tr.ResponseHeaderTimeout = opts.Timeout
		}
		hc.Transport = tr
	}

	return &Client{
		http:    hc,
		headers: opts.Headers.Clone(),
		timeout: opts.Timeout,
	}, nil
}

// bounded limits a request whose body is read in full before returning
func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// 🔍 Get implements Store
func (c *Client) Get(ctx context.Context, db, id string) (*Document, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, docURL(db, id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.Errorf("decoding %s: %w", id, err)
	}
	return &doc, nil
}

// 🗑️ Destroy implements Store
func (c *Client) Destroy(ctx context.Context, db, id, rev string) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodDelete, docURL(db, id)+"?rev="+url.QueryEscape(rev), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	return drain(resp)
}

// 📝 Insert implements Store
func (c *Client) Insert(ctx context.Context, db, id string, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Errorf("encoding %s: %w", id, err)
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPut, docURL(db, id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	return drain(resp)
}

// 📥 GetAttachment implements Store. The caller must close the stream, which
// is not bounded by the client timeout.
func (c *Client) GetAttachment(ctx context.Context, db, id, name string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, attachmentURL(db, id, name), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// 📤 SaveAttachment implements Store
func (c *Client) SaveAttachment(ctx context.Context, db, id, rev, name, contentType string) (AttachmentWriter, error) {
	pr, pw := io.Pipe()

	req, err := c.newRequest(ctx, http.MethodPut, attachmentURL(db, id, name)+"?rev="+url.QueryEscape(rev), pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return &attachmentWriter{
		client: c,
		req:    req,
		pr:     pr,
		pw:     pw,
		done:   make(chan error, 1),
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, errors.Errorf("creating %s request: %w", method, err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// do sends req and turns any non-2xx response into an *Error
func (c *Client) do(req *http.Request) (*http.Response, error) {
	logger := zerolog.Ctx(req.Context())
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug().Err(err).Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("store request failed")
		return nil, errors.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}

	logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("store request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newError(req, resp.StatusCode, body)
	}
	return resp, nil
}

func drain(resp *http.Response) error {
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return errors.Errorf("reading response: %w", err)
	}
	return nil
}

// 🔗 attachmentWriter is the AttachmentWriter returned by Client
type attachmentWriter struct {
	client *Client
	req    *http.Request
	pr     *io.PipeReader
	pw     *io.PipeWriter
	once   sync.Once
	done   chan error

	closeOnce sync.Once
	err       error
}

func (w *attachmentWriter) Header() http.Header {
	return w.req.Header
}

func (w *attachmentWriter) start() {
	w.once.Do(func() {
		go func() {
			resp, err := w.client.do(w.req)
			if err == nil {
				err = drain(resp)
			}
			// unblock a writer the server stopped reading from
			if err != nil {
				w.pr.CloseWithError(err)
			} else {
				w.pr.CloseWithError(errors.New("attachment upload already finished"))
			}
			w.done <- err
		}()
	})
}

func (w *attachmentWriter) Write(p []byte) (int, error) {
	w.start()
	return w.pw.Write(p)
}

func (w *attachmentWriter) Close() error {
	return w.finish(nil)
}

func (w *attachmentWriter) CloseWithError(cause error) error {
	return w.finish(cause)
}

// finish closes the pipe and waits for the upload. A store response error
// wins over cause: once the store rejects an upload the transport closes the
// pipe, so the writer only sees io.ErrClosedPipe.
func (w *attachmentWriter) finish(cause error) error {
	w.closeOnce.Do(func() {
		if cause != nil {
			w.pw.CloseWithError(cause)
			// an upload that never started is dropped without a request
			aborted := false
			w.once.Do(func() { aborted = true })
			if aborted {
				w.pr.Close()
				w.err = cause
				return
			}
		} else {
			w.start()
			w.pw.Close()
		}

		uploadErr := <-w.done
		var cerr *Error
		switch {
		case uploadErr == nil:
			w.err = cause
		case cause == nil || errors.As(uploadErr, &cerr):
			w.err = uploadErr
		default:
			w.err = cause
		}
	})
	return w.err
}

func docURL(db, id string) string {
	return strings.TrimRight(db, "/") + "/" + escapeID(id)
}

func attachmentURL(db, id, name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return docURL(db, id) + "/" + strings.Join(segments, "/")
}

// escapeID escapes a document id for use as a path segment. Design document
// ids keep their literal "_design/" prefix, which CouchDB expects unescaped.
func escapeID(id string) string {
	if strings.HasPrefix(id, designPrefix) {
		return designPrefix + url.PathEscape(strings.TrimPrefix(id, designPrefix))
	}
	return url.PathEscape(id)
}
