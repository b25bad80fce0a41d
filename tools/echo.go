package tools

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/blockflow-ai/blockflow"
)

// EchoParams defines the parameters for the echo tool
type EchoParams struct {
	Message any `json:"message"`
}

// EchoResult defines the result of the echo tool
type EchoResult struct {
	Message any `json:"message"`
}

// EchoTool prints a message and passes it through as output
type EchoTool struct {
	writer io.Writer
}

func NewEchoTool() blockflow.Tool {
	return NewTypedTool(&EchoTool{writer: os.Stdout})
}

// NewEchoToolWithWriter returns an echo tool writing to the given writer.
func NewEchoToolWithWriter(w io.Writer) blockflow.Tool {
	return NewTypedTool(&EchoTool{writer: w})
}

func (t *EchoTool) Name() string {
	return "echo"
}

func (t *EchoTool) Execute(ctx context.Context, params EchoParams, tctx blockflow.ToolContext) (EchoResult, error) {
	if params.Message == nil {
		return EchoResult{}, fmt.Errorf("echo tool requires 'message' parameter")
	}
	fmt.Fprintln(t.writer, params.Message)
	return EchoResult{Message: params.Message}, nil
}
