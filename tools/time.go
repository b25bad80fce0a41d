package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/blockflow-ai/blockflow"
)

// TimeInput defines the input parameters for the time tool
type TimeInput struct {
	UTC    bool   `json:"utc"`
	Format string `json:"format"` // Go layout string, default RFC3339
}

// TimeOutput defines the output of the time tool
type TimeOutput struct {
	Time string `json:"time"`
	Unix int64  `json:"unix"`
}

// TimeTool reports the current time
type TimeTool struct {
	now func() time.Time
}

func NewTimeTool() blockflow.Tool {
	return NewTypedTool(&TimeTool{now: time.Now})
}

func (t *TimeTool) Name() string {
	return "time"
}

func (t *TimeTool) Execute(ctx context.Context, params TimeInput, tctx blockflow.ToolContext) (TimeOutput, error) {
	now := t.now()
	if params.UTC {
		now = now.UTC()
	}
	format := params.Format
	if format == "" {
		format = time.RFC3339
	}
	return TimeOutput{
		Time: now.Format(format),
		Unix: now.Unix(),
	}, nil
}

// WaitParams defines the parameters for the wait tool
type WaitParams struct {
	Duration any `json:"duration"`
}

// WaitResult defines the result of the wait tool
type WaitResult struct {
	Message  string  `json:"message"`
	Duration float64 `json:"duration"` // seconds actually waited
}

// WaitTool delays for a duration, honoring cancellation
type WaitTool struct{}

func NewWaitTool() blockflow.Tool {
	return NewTypedTool(&WaitTool{})
}

func (t *WaitTool) Name() string {
	return "wait"
}

func (t *WaitTool) Execute(ctx context.Context, params WaitParams, tctx blockflow.ToolContext) (WaitResult, error) {
	if params.Duration == nil {
		return WaitResult{}, fmt.Errorf("wait tool requires 'duration' parameter")
	}

	var duration time.Duration
	switch v := params.Duration.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return WaitResult{}, fmt.Errorf("invalid duration format: %w", err)
		}
		duration = parsed
	case float64:
		// Seconds as a number.
		duration = time.Duration(v * float64(time.Second))
	default:
		return WaitResult{}, fmt.Errorf("duration must be a string or a number of seconds")
	}

	if duration <= 0 {
		return WaitResult{Message: "no delay specified"}, nil
	}

	select {
	case <-ctx.Done():
		return WaitResult{}, ctx.Err()
	case <-time.After(duration):
		return WaitResult{
			Message:  fmt.Sprintf("waited %s", duration),
			Duration: duration.Seconds(),
		}, nil
	}
}
