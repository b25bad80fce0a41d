package tools

import (
	"github.com/blockflow-ai/blockflow"
)

// Default returns the built-in tool set keyed by tool id.
func Default() blockflow.ToolRegistry {
	registry := blockflow.ToolRegistry{}
	for _, tool := range []blockflow.Tool{
		NewEchoTool(),
		NewFileTool(),
		NewHTTPTool(HTTPToolOptions{}),
		NewJSONTool(),
		NewRandomTool(),
		NewTimeTool(),
		NewWaitTool(),
		NewFailTool(),
	} {
		registry[tool.Name()] = tool
	}
	return registry
}
