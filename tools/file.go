package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blockflow-ai/blockflow"
)

// FileInput defines the input parameters for the file tool
type FileInput struct {
	Operation   string `json:"operation"`   // read, write, append, delete, exists, mkdir, list
	Path        string `json:"path"`        // file or directory path
	Content     string `json:"content"`     // content for write/append operations
	Permissions string `json:"permissions"` // octal mode for write, e.g. "0644"
	CreateDirs  bool   `json:"create_dirs"` // create parent directories before writing
}

// FileTool performs local filesystem operations
type FileTool struct{}

func NewFileTool() blockflow.Tool {
	return NewTypedTool(&FileTool{})
}

func (t *FileTool) Name() string {
	return "file"
}

func (t *FileTool) Execute(ctx context.Context, params FileInput, tctx blockflow.ToolContext) (any, error) {
	if params.Path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if params.Operation == "" {
		params.Operation = "read"
	}

	switch strings.ToLower(params.Operation) {
	case "read":
		content, err := os.ReadFile(params.Path)
		if err != nil {
			return nil, err
		}
		return string(content), nil

	case "write":
		if params.CreateDirs {
			if err := os.MkdirAll(filepath.Dir(params.Path), 0755); err != nil {
				return nil, err
			}
		}
		perm := os.FileMode(0644)
		if params.Permissions != "" {
			parsed, err := strconv.ParseUint(params.Permissions, 8, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid permissions %q: %w", params.Permissions, err)
			}
			perm = os.FileMode(parsed)
		}
		if err := os.WriteFile(params.Path, []byte(params.Content), perm); err != nil {
			return nil, err
		}
		return true, nil

	case "append":
		file, err := os.OpenFile(params.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		if _, err := file.WriteString(params.Content); err != nil {
			return nil, err
		}
		return true, nil

	case "delete":
		if err := os.Remove(params.Path); err != nil {
			return nil, err
		}
		return true, nil

	case "exists":
		_, err := os.Stat(params.Path)
		return err == nil, nil

	case "mkdir":
		if err := os.MkdirAll(params.Path, 0755); err != nil {
			return nil, err
		}
		return true, nil

	case "list":
		entries, err := os.ReadDir(params.Path)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		return names, nil

	default:
		return nil, fmt.Errorf("unsupported operation: %s", params.Operation)
	}
}
