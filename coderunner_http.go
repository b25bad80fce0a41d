package blockflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteRunnerOptions configure a RemoteRunner.
type RemoteRunnerOptions struct {

	// BaseURL of the code execution service. Required.
	BaseURL string

	// APIKey sent as a bearer token, if set.
	APIKey string

	// Timeout for a single execution request. Defaults to 30s.
	Timeout time.Duration

	// Client overrides the HTTP client, mainly for tests.
	Client *resty.Client
}

// RemoteRunner sends function block code to an external execution service.
// The service contract is a POST /execute accepting {code, globals, timeout_ms}
// and answering {result, stdout, error}.
type RemoteRunner struct {
	client  *resty.Client
	timeout time.Duration
}

// NewRemoteRunner creates a code runner backed by a remote service.
func NewRemoteRunner(opts RemoteRunnerOptions) (*RemoteRunner, error) {
	if opts.BaseURL == "" && opts.Client == nil {
		return nil, errors.New("remote runner requires a base url")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = resty.New().SetBaseURL(opts.BaseURL).SetTimeout(timeout)
		if opts.APIKey != "" {
			client.SetAuthToken(opts.APIKey)
		}
	}
	return &RemoteRunner{client: client, timeout: timeout}, nil
}

func (r *RemoteRunner) Run(ctx context.Context, code string, globals map[string]any) (*CodeResult, error) {
	var out struct {
		Result any    `json:"result"`
		Stdout string `json:"stdout"`
		Error  string `json:"error"`
	}
	errorResponse := map[string]any{}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"code":       code,
			"globals":    globals,
			"timeout_ms": r.timeout.Milliseconds(),
		}).
		SetResult(&out).
		SetError(&errorResponse).
		Post("/execute")
	if err != nil {
		return nil, fmt.Errorf("code execution request failed: %w", err)
	}
	if resp.IsError() {
		if msg, ok := errorResponse["error"].(string); ok && msg != "" {
			return nil, fmt.Errorf("code execution service: %s", msg)
		}
		return nil, fmt.Errorf("code execution service returned %s", resp.Status())
	}
	if out.Error != "" {
		return nil, errors.New(out.Error)
	}
	return &CodeResult{Result: out.Result, Stdout: out.Stdout}, nil
}
