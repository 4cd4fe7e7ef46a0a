package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
)

// maxBodySize caps how much of a probe response is read into memory.
const maxBodySize = 1 << 20

// NetClient is the production Client: it dispatches on Spec.Kind and issues
// one network call or filesystem check per Probe invocation.
//
// Classification follows the startup-tolerant rules: connection refused,
// unreachable hosts, DNS failures and per-attempt timeouts are all
// transient, because the service may simply not be up yet. Only a
// malformed spec or a predicate marked fatal aborts retrying.
type NetClient struct {
	httpClient *http.Client
	dialer     *net.Dialer
}

// NewNetClient creates a client with default transports. The per-attempt
// timeout comes from each Spec, so the underlying http.Client carries none.
func NewNetClient() *NetClient {
	return &NetClient{
		httpClient: &http.Client{},
		dialer:     &net.Dialer{},
	}
}

// Probe performs one attempt against the spec's endpoint.
func (c *NetClient) Probe(ctx context.Context, spec Spec) Outcome {
	ctx, cancel := context.WithTimeout(ctx, spec.AttemptTimeout())
	defer cancel()

	switch spec.Kind {
	case KindRPC:
		return c.probeRPC(ctx, spec)
	case KindHTTP:
		return c.probeHTTP(ctx, spec)
	case KindTCP:
		return c.probeTCP(ctx, spec)
	case KindFile:
		return c.probeFile(ctx, spec)
	default:
		return FatalFailure(fmt.Errorf("unknown probe kind %q", spec.Kind))
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func (c *NetClient) probeRPC(ctx context.Context, spec Spec) Outcome {
	if err := validateHTTPTarget(spec.Target); err != nil {
		return FatalFailure(err)
	}
	if spec.Method == "" {
		return FatalFailure(fmt.Errorf("rpc probe for %s has no method", spec.Target))
	}
	params := spec.Params
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "readiness",
		Method:  spec.Method,
		Params:  params,
	})
	if err != nil {
		return FatalFailure(fmt.Errorf("building rpc request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.Target, bytes.NewReader(payload))
	if err != nil {
		return FatalFailure(fmt.Errorf("building rpc request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	return c.evaluate(req, spec)
}

func (c *NetClient) probeHTTP(ctx context.Context, spec Spec) Outcome {
	if err := validateHTTPTarget(spec.Target); err != nil {
		return FatalFailure(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.Target, nil)
	if err != nil {
		return FatalFailure(fmt.Errorf("building request: %w", err))
	}
	return c.evaluate(req, spec)
}

// evaluate issues the request and classifies the response. Transport errors
// are transient; a received response is judged by status and predicate.
func (c *NetClient) evaluate(req *http.Request, spec Spec) Outcome {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TransientFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return TransientFailure(fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TransientFailure(fmt.Errorf("unexpected status %s", resp.Status))
	}
	if spec.Expect != nil {
		if err := spec.Expect(body); err != nil {
			if IsFatal(err) {
				return FatalFailure(err)
			}
			return TransientFailure(err)
		}
	}
	return OK(body)
}

func (c *NetClient) probeTCP(ctx context.Context, spec Spec) Outcome {
	if _, _, err := net.SplitHostPort(spec.Target); err != nil {
		return FatalFailure(fmt.Errorf("invalid tcp target %q: %w", spec.Target, err))
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", spec.Target)
	if err != nil {
		return TransientFailure(err)
	}
	conn.Close()
	return OK(nil)
}

func (c *NetClient) probeFile(_ context.Context, spec Spec) Outcome {
	if spec.Target == "" {
		return FatalFailure(fmt.Errorf("file probe has no target path"))
	}
	info, err := os.Stat(spec.Target)
	if err != nil {
		if os.IsNotExist(err) {
			return TransientFailure(err)
		}
		return FatalFailure(err)
	}
	if info.IsDir() {
		return FatalFailure(fmt.Errorf("%s is a directory", spec.Target))
	}
	payload, err := json.Marshal(map[string]any{"path": spec.Target, "size": info.Size()})
	if err != nil {
		return FatalFailure(err)
	}
	return OK(payload)
}

func validateHTTPTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid target %q: scheme must be http or https", target)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid target %q: missing host", target)
	}
	return nil
}
