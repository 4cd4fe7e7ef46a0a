package probe

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Predicate evaluates a response body and returns nil when the response
// indicates readiness. A non-nil error is retryable unless marked with
// Fatal.
type Predicate func(body []byte) error

type fatalError struct {
	err error
}

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// Fatal marks a predicate failure as non-retryable, e.g. an explicit auth
// rejection that no amount of waiting will fix.
func Fatal(err error) error { return fatalError{err: err} }

// IsFatal reports whether a predicate error was marked with Fatal.
func IsFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}

// All combines predicates; the first failure wins.
func All(predicates ...Predicate) Predicate {
	return func(body []byte) error {
		for _, p := range predicates {
			if err := p(body); err != nil {
				return err
			}
		}
		return nil
	}
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func parseRPCResponse(body []byte) (*rpcResponse, error) {
	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed rpc response: %w", err)
	}
	return &resp, nil
}

// ExpectResult asserts the body is a JSON-RPC response carrying a non-null
// result and no error object.
func ExpectResult() Predicate {
	return func(body []byte) error {
		resp, err := parseRPCResponse(body)
		if err != nil {
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			return errors.New("rpc response has no result")
		}
		return nil
	}
}

// ExpectResultAtLeast asserts a numeric JSON-RPC result of at least min,
// e.g. waiting for a block height to reach coinbase maturity.
func ExpectResultAtLeast(min int64) Predicate {
	return func(body []byte) error {
		resp, err := parseRPCResponse(body)
		if err != nil {
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		var value int64
		if err := json.Unmarshal(resp.Result, &value); err != nil {
			return fmt.Errorf("rpc result is not a number: %w", err)
		}
		if value < min {
			return fmt.Errorf("rpc result %d below %d", value, min)
		}
		return nil
	}
}

// ExpectField asserts a top-level JSON field exists and, when want is
// non-empty, that its string value equals want.
func ExpectField(name, want string) Predicate {
	return func(body []byte) error {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}
		raw, ok := doc[name]
		if !ok {
			return fmt.Errorf("response lacks field %q", name)
		}
		if want == "" {
			return nil
		}
		var got string
		if err := json.Unmarshal(raw, &got); err != nil {
			return fmt.Errorf("field %q is not a string: %w", name, err)
		}
		if got != want {
			return fmt.Errorf("field %q is %q, want %q", name, got, want)
		}
		return nil
	}
}

// RejectStatus fails when the top-level "status" field equals the given
// value, e.g. a health endpoint reporting "unhealthy" alongside HTTP 200.
func RejectStatus(value string) Predicate {
	return func(body []byte) error {
		var doc struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}
		if doc.Status == value {
			return fmt.Errorf("status is %q", value)
		}
		return nil
	}
}
