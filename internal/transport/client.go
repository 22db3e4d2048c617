// Package transport issues single-attempt outbound HTTP calls with hard
// deadlines and classifies their failures.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Sentinel errors for outbound call failures.
var (
	ErrUnreachable = errors.New("upstream unreachable")
	ErrTimeout     = errors.New("upstream timeout")
	ErrRejected    = errors.New("upstream rejected request")
)

// maxErrorBody bounds how much of a non-2xx body is kept for diagnostics.
const maxErrorBody = 64 << 10

const userAgent = "orthogate/1.0"

// Client is the interface for issuing one outbound call.
// Implementations must be safe for concurrent use and must not retry.
type Client interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Request describes a single outbound call.
type Request struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string
	Accept      string
	// Timeout is measured from the start of Do. With IdleTimeout unset it
	// also covers reading the body; otherwise it ends once headers arrive.
	Timeout time.Duration
	// IdleTimeout bounds each body Read, so a large body may stream for as
	// long as it keeps making progress.
	IdleTimeout time.Duration
}

// Response is a 2xx upstream response. The caller must close Body, which
// also releases the request deadlines.
type Response struct {
	Status        int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// StatusError is returned for non-2xx responses. Body is kept unparsed.
type StatusError struct {
	Status     int
	StatusLine string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %s", ErrRejected, e.StatusLine)
}

func (e *StatusError) Unwrap() error { return ErrRejected }

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a new HTTPClient. A nil client uses an http.Client
// whose transport propagates trace context to the backend; deadlines are
// always applied per request.
func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPClient{client: client}
}

func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	stopHeader := func() bool { return true }
	if req.Timeout > 0 {
		stopHeader = time.AfterFunc(req.Timeout, cancel).Stop
	}
	release := func() {
		stopHeader()
		cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		release()
		return nil, fmt.Errorf("building request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		release()
		return nil, classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer release()
		defer resp.Body.Close()
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Status:     resp.StatusCode,
			StatusLine: resp.Status,
			Body:       diag,
		}
	}

	rb := &deadlineBody{rc: resp.Body, release: release}
	if req.IdleTimeout > 0 && stopHeader() {
		// Headers arrived in time; from here on only stalls are fatal.
		rb.idle = req.IdleTimeout
		rb.timer = time.AfterFunc(req.IdleTimeout, cancel)
		rb.timer.Stop()
	}

	return &Response{
		Status:        resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          rb,
	}, nil
}

// deadlineBody classifies read failures, arms the idle timer around each
// Read and releases the request context on Close.
type deadlineBody struct {
	rc      io.ReadCloser
	release func()
	idle    time.Duration
	timer   *time.Timer
}

func (b *deadlineBody) Read(p []byte) (int, error) {
	if b.timer != nil {
		b.timer.Reset(b.idle)
		defer b.timer.Stop()
	}
	n, err := b.rc.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, classifyError(err)
	}
	return n, err
}

func (b *deadlineBody) Close() error {
	if b.timer != nil {
		b.timer.Stop()
	}
	err := b.rc.Close()
	b.release()
	return err
}

// classifyError maps transport-level errors to sentinel errors.
// Cancellation is reported as a timeout: deadlines are the only cancellation source.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
