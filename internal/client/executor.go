package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angeloszaimis/library-gateway/internal/apperror"
	"github.com/angeloszaimis/library-gateway/internal/loadbalancer"
	"github.com/angeloszaimis/library-gateway/internal/metrics"
)

const maxErrorBody = 4 << 10

var errEmptyBody = errors.New("empty response body")

// Request is one call to a dependency. Path is relative to the replica
// base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
}

// Target is the path with its encoded query, as stored in the retry queue.
func (r Request) Target() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}

// ParseTarget reverses Target.
func ParseTarget(target string) (string, url.Values, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", nil, err
	}

	query := u.Query()
	if len(query) == 0 {
		query = nil
	}
	return u.Path, query, nil
}

// Executor sends requests to the replicas of one dependency.
type Executor struct {
	dependency string
	balancer   *loadbalancer.LoadBalancer
	httpClient *http.Client
	timeout    time.Duration
	events     metrics.Emitter
}

func NewExecutor(balancer *loadbalancer.LoadBalancer, httpClient *http.Client, timeout time.Duration, events metrics.Emitter) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if events == nil {
		events = metrics.Discard
	}

	return &Executor{
		dependency: balancer.Dependency(),
		balancer:   balancer,
		httpClient: httpClient,
		timeout:    timeout,
		events:     events,
	}
}

func (e *Executor) Dependency() string {
	return e.dependency
}

// Do sends req and decodes a JSON response into out. A nil out discards
// the body. With a non-nil out, 204 leaves out untouched and any other
// success without a JSON body is Malformed.
func (e *Executor) Do(ctx context.Context, req Request, out any) error {
	target, err := e.balancer.GetAndReserveServer()
	if err != nil {
		return err
	}
	defer target.DecrementConn()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.Endpoint(req.Path, req.Query), body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", e.dependency, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(httpReq)
	duration := time.Since(start)

	event := metrics.MetricEvent{
		Type:       metrics.EventCallCompleted,
		Dependency: e.dependency,
		Backend:    target.URL().String(),
		Duration:   duration,
	}

	if err != nil {
		e.events.Emit(event)
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", e.dependency, context.Canceled)
		}
		return apperror.Unavailable(e.dependency, err)
	}
	defer resp.Body.Close()

	target.RecordResponse(duration)
	event.StatusCode = resp.StatusCode
	e.events.Emit(event)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperror.FromStatus(e.dependency, resp.StatusCode, errorMessage(resp.Body))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return e.decode(resp.Body, out)
}

func (e *Executor) decode(r io.Reader, out any) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return apperror.Unavailable(e.dependency, err)
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return apperror.Malformed(e.dependency, errEmptyBody)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return apperror.Malformed(e.dependency, err)
	}
	return nil
}

// errorMessage prefers the {"message": ...} payload services answer with.
func errorMessage(r io.Reader) string {
	payload, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}

	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &body) == nil && body.Message != "" {
		return body.Message
	}

	return strings.TrimSpace(string(payload))
}
