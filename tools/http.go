package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blockflow-ai/blockflow"
	"github.com/go-resty/resty/v2"
)

// HTTPInput defines the input parameters for the http tool
type HTTPInput struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"` // GET, POST, PUT, DELETE, etc.
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`         // raw request body
	JSONPayload map[string]any    `json:"json_payload"` // alternative to body for JSON
	Timeout     float64           `json:"timeout"`      // in seconds, default 30
}

// HTTPOutput defines the output of the http tool
type HTTPOutput struct {
	StatusCode    int               `json:"status_code"`
	Status        string            `json:"status"`
	Headers       map[string]string `json:"headers"`
	Body          string            `json:"body"`
	JSONResponse  map[string]any    `json:"json_response,omitempty"`
	Success       bool              `json:"success"`
	ContentLength int64             `json:"content_length"`
}

// HTTPToolOptions configure the http tool
type HTTPToolOptions struct {
	// FollowRedirects controls the client redirect policy (default true).
	FollowRedirects *bool

	// Client overrides the default resty client, mainly for tests.
	Client *resty.Client
}

// HTTPTool makes HTTP requests
type HTTPTool struct {
	client *resty.Client
}

func NewHTTPTool(opts HTTPToolOptions) blockflow.Tool {
	client := opts.Client
	if client == nil {
		client = resty.New()
		if opts.FollowRedirects != nil && !*opts.FollowRedirects {
			client.SetRedirectPolicy(resty.NoRedirectPolicy())
		}
	}
	return NewTypedTool(&HTTPTool{client: client})
}

func (t *HTTPTool) Name() string {
	return "http"
}

func (t *HTTPTool) Execute(ctx context.Context, params HTTPInput, tctx blockflow.ToolContext) (HTTPOutput, error) {
	if params.URL == "" {
		return HTTPOutput{}, fmt.Errorf("url cannot be empty")
	}
	if params.Method == "" {
		params.Method = "GET"
	}
	if params.Timeout <= 0 {
		params.Timeout = 30
	}

	timeout := time.Duration(params.Timeout * float64(time.Second))
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := t.client.R().SetContext(ctx)
	if params.Headers != nil {
		req.SetHeaders(params.Headers)
	}
	if params.JSONPayload != nil {
		req.SetBody(params.JSONPayload)
		if req.Header.Get("Content-Type") == "" {
			req.SetHeader("Content-Type", "application/json")
		}
	} else if params.Body != "" {
		req.SetBody(params.Body)
	}

	if logger, ok := blockflow.GetLoggerFromContext(ctx); ok {
		logger.Debug("http request", "method", params.Method, "url", params.URL, "block_id", tctx.BlockID)
	}
	resp, err := req.Execute(strings.ToUpper(params.Method), params.URL)
	if err != nil {
		return HTTPOutput{}, fmt.Errorf("request failed: %w", err)
	}

	output := HTTPOutput{
		StatusCode:    resp.StatusCode(),
		Status:        resp.Status(),
		Body:          resp.String(),
		Success:       resp.StatusCode() >= 200 && resp.StatusCode() < 300,
		ContentLength: resp.Size(),
		Headers:       make(map[string]string),
	}
	for key, values := range resp.Header() {
		if len(values) > 0 {
			output.Headers[key] = values[0]
		}
	}
	if strings.Contains(resp.Header().Get("Content-Type"), "application/json") {
		var jsonResp map[string]any
		if err := json.Unmarshal(resp.Body(), &jsonResp); err == nil {
			output.JSONResponse = jsonResp
		}
	}
	return output, nil
}
