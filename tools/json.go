package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/blockflow-ai/blockflow"
)

// JSONInput defines the input parameters for the json tool
type JSONInput struct {
	Operation string `json:"operation"`  // parse, stringify, query, merge, validate
	Data      string `json:"data"`       // JSON string to work with
	Query     string `json:"query"`      // dot-notation path for query
	MergeWith string `json:"merge_with"` // JSON string to merge with
}

// JSONTool works with JSON data
type JSONTool struct{}

func NewJSONTool() blockflow.Tool {
	return NewTypedTool(&JSONTool{})
}

func (t *JSONTool) Name() string {
	return "json"
}

func (t *JSONTool) Execute(ctx context.Context, params JSONInput, tctx blockflow.ToolContext) (any, error) {
	if params.Operation == "" {
		params.Operation = "parse"
	}
	switch strings.ToLower(params.Operation) {
	case "parse":
		container, err := gabs.ParseJSON([]byte(params.Data))
		if err != nil {
			return nil, err
		}
		return container.Data(), nil

	case "stringify":
		container, err := gabs.ParseJSON([]byte(params.Data))
		if err != nil {
			return nil, err
		}
		return container.StringIndent("", "  "), nil

	case "query":
		if params.Query == "" {
			return nil, fmt.Errorf("query cannot be empty for query operation")
		}
		container, err := gabs.ParseJSON([]byte(params.Data))
		if err != nil {
			return nil, err
		}
		path := strings.TrimPrefix(params.Query, ".")
		if path == "" {
			return container.Data(), nil
		}
		if !container.ExistsP(path) {
			return nil, fmt.Errorf("path %q not found", params.Query)
		}
		return container.Path(path).Data(), nil

	case "merge":
		if params.MergeWith == "" {
			return nil, fmt.Errorf("merge_with cannot be empty for merge operation")
		}
		base, err := gabs.ParseJSON([]byte(params.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse main data: %w", err)
		}
		overlay, err := gabs.ParseJSON([]byte(params.MergeWith))
		if err != nil {
			return nil, fmt.Errorf("failed to parse merge data: %w", err)
		}
		if err := base.Merge(overlay); err != nil {
			return nil, err
		}
		return base.Data(), nil

	case "validate":
		_, err := gabs.ParseJSON([]byte(params.Data))
		return err == nil, nil

	default:
		return nil, fmt.Errorf("unsupported operation: %s", params.Operation)
	}
}
