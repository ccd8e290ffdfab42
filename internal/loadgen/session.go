package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/perfgate/internal/loadgen/metrics"
)

// Request describes one HTTP call made by a task.
type Request struct {
	Method string
	Path   string

	// Name groups requests in the stats table; defaults to Path.
	Name string

	Body    []byte
	Headers map[string]string

	// Expect lists the status codes counted as success. When empty any
	// status below 400 succeeds.
	Expect []int

	// Action names the request in failure messages: "Checkout failed (500)".
	Action string

	// Check marks a response as failed by returning an error. It runs only
	// when the status is expected.
	Check func(*Response) error
}

// Response is the outcome of a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration

	// Err is set when the request failed, including unexpected statuses
	// and failed checks.
	Err error
}

// OK reports whether the request was recorded as a success.
func (r *Response) OK() bool {
	return r.Err == nil
}

// JSON returns the value at path in the response body.
func (r *Response) JSON(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// Session is the per-user state of a VirtualUser: HTTP access to the
// target, metrics recording and a small key/value scope.
type Session struct {
	UserID  int
	BaseURL string

	client  *http.Client
	metrics *metrics.Engine
	rng     *rand.Rand

	data   map[string]string
	dataMu sync.RWMutex
}

// NewSession creates a session against baseURL.
func NewSession(userID int, baseURL string, client *http.Client, engine *metrics.Engine, seed int64) *Session {
	return &Session{
		UserID:  userID,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		metrics: engine,
		rng:     rand.New(rand.NewSource(seed)),
		data:    make(map[string]string),
	}
}

// Rand returns the session's random source. A session belongs to a single
// user goroutine, so the source is not locked.
func (s *Session) Rand() *rand.Rand {
	return s.rng
}

// Do executes req and records its outcome.
func (s *Session) Do(ctx context.Context, req Request) *Response {
	name := req.Name
	if name == "" {
		name = req.Path
	}

	resp := s.execute(ctx, req)
	if resp.Err == nil && !expected(resp.StatusCode, req.Expect) {
		resp.Err = statusError(req.Action, resp.StatusCode)
	}
	if resp.Err == nil && req.Check != nil {
		resp.Err = req.Check(resp)
	}

	// a request cut short by the end of the run is not a result
	if ctx.Err() != nil && resp.Err != nil {
		return resp
	}

	sample := metrics.Sample{
		Method:   req.Method,
		Name:     name,
		Duration: resp.Duration,
		Bytes:    int64(len(resp.Body)),
		Success:  resp.Err == nil,
	}
	if resp.Err != nil {
		sample.Error = resp.Err.Error()
	}
	s.metrics.Record(sample)
	return resp
}

func (s *Session) execute(ctx context.Context, req Request) *Response {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, s.BaseURL+req.Path, body)
	if err != nil {
		return &Response{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return &Response{Duration: time.Since(start), Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Duration:   time.Since(start),
	}
	if err != nil {
		resp.Err = fmt.Errorf("failed to read response body: %w", err)
	}
	return resp
}

func statusError(action string, status int) error {
	if action == "" {
		return fmt.Errorf("HTTP %d", status)
	}
	return fmt.Errorf("%s failed (%d)", action, status)
}

func expected(status int, codes []int) bool {
	if len(codes) == 0 {
		return status > 0 && status < 400
	}
	for _, c := range codes {
		if status == c {
			return true
		}
	}
	return false
}

// Set stores a value in the session scope.
func (s *Session) Set(key, value string) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.data[key] = value
}

// Get returns a value from the session scope.
func (s *Session) Get(key string) (string, bool) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Delete removes a value from the session scope.
func (s *Session) Delete(key string) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	delete(s.data, key)
}
