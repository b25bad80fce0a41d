package blockflow

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
)

// RunFormatter prints block progress for interactive runs
type RunFormatter interface {
	PrintBlockStart(blockName string, blockType string)
	PrintBlockOutput(blockName string, content any)
	PrintBlockError(blockName string, err error)
}

// ColorFormatter writes colored block progress to stdout.
type ColorFormatter struct{}

func NewColorFormatter() *ColorFormatter {
	return &ColorFormatter{}
}

func (f *ColorFormatter) PrintBlockStart(blockName string, blockType string) {
	color.Cyan("Running block: %s (%s)", blockName, blockType)
}

func (f *ColorFormatter) PrintBlockOutput(blockName string, content any) {
	data, err := json.Marshal(content)
	if err != nil {
		fmt.Printf("  %s: %v\n", blockName, content)
		return
	}
	color.White("  %s: %s", blockName, string(data))
}

func (f *ColorFormatter) PrintBlockError(blockName string, err error) {
	color.Red("Block failed: %s: %v", blockName, err)
}
