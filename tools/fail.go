package tools

import (
	"context"
	"fmt"

	"github.com/blockflow-ai/blockflow"
)

// FailParams defines the parameters for the fail tool
type FailParams struct {
	Message string `json:"message"`
}

// FailResult is never returned since the tool always fails
type FailResult struct{}

// FailTool fails on purpose, for exercising error routes
type FailTool struct{}

func NewFailTool() blockflow.Tool {
	return NewTypedTool(&FailTool{})
}

func (t *FailTool) Name() string {
	return "fail"
}

func (t *FailTool) Execute(ctx context.Context, params FailParams, tctx blockflow.ToolContext) (FailResult, error) {
	message := params.Message
	if message == "" {
		message = "intentional failure"
	}
	return FailResult{}, fmt.Errorf("fail tool: %s", message)
}
