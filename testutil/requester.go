package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/youwol/ywdash/errors"
)

// Call is one request received by a MockRequester.
type Call struct {
	Method string
	Path   string
	Body   json.RawMessage
}

// MockRequester is an in-memory daemon API. It satisfies
// transport.Requester. Thread-safe.
type MockRequester struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	failures  map[string]error
	calls     []Call
}

// NewMockRequester creates a requester answering every path with an empty
// body.
func NewMockRequester() *MockRequester {
	return &MockRequester{
		responses: make(map[string]json.RawMessage),
		failures:  make(map[string]error),
	}
}

// Respond sets the JSON response of path. v is marshaled once.
func (r *MockRequester) Respond(path string, v any) *MockRequester {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal response for %s: %v", path, err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[path] = raw
	return r
}

// RespondRaw sets the raw response body of path.
func (r *MockRequester) RespondRaw(path string, body []byte) *MockRequester {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[path] = append(json.RawMessage(nil), body...)
	return r
}

// Fail makes every request to path return err.
func (r *MockRequester) Fail(path string, err error) *MockRequester {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[path] = err
	return r
}

// Get records the call and decodes the canned response into out.
func (r *MockRequester) Get(ctx context.Context, path string, out any) error {
	return r.do(ctx, "GET", path, nil, out)
}

// Post records the call with its body and decodes the canned response into out.
func (r *MockRequester) Post(ctx context.Context, path string, body, out any) error {
	return r.do(ctx, "POST", path, body, out)
}

func (r *MockRequester) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.WrapInvalid(err, "mock", method, "encode request body")
		}
		raw = b
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Path: path, Body: raw})
	failure := r.failures[path]
	response := r.responses[path]
	r.mu.Unlock()

	if failure != nil {
		return failure
	}
	if out == nil || response == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = append([]byte(nil), response...)
		return nil
	}
	return json.Unmarshal(response, out)
}

// Calls returns every recorded call in order.
func (r *MockRequester) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many calls were made to path.
func (r *MockRequester) CallCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call to path.
func (r *MockRequester) LastCall(path string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].Path == path {
			return r.calls[i], true
		}
	}
	return Call{}, false
}
