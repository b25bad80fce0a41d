package blockflow

import (
	"context"
	"time"

	"github.com/blockflow-ai/blockflow/script"
)

// CodeResult is what a code runner hands back: the script's return value and
// anything it printed.
type CodeResult struct {
	Result any    `json:"result"`
	Stdout string `json:"stdout,omitempty"`
}

// CodeRunner executes user code from function blocks. Implementations decide
// where the code runs; the executor only sees this contract.
type CodeRunner interface {
	Run(ctx context.Context, code string, globals map[string]any) (*CodeResult, error)
}

// SandboxRunnerOptions configure a SandboxRunner.
type SandboxRunnerOptions struct {

	// Globals available to every script, in addition to the per-run bindings.
	// Defaults to the safe risor builtin subset.
	Globals map[string]any

	// Timeout caps a single script evaluation. Zero means no runner-level
	// cap; block timeouts still apply.
	Timeout time.Duration
}

// SandboxRunner evaluates code in-process with the risor engine, restricted
// to side-effect-free builtins. Print output is captured per run.
type SandboxRunner struct {
	globals map[string]any
	timeout time.Duration
}

// NewSandboxRunner creates an in-process code runner.
func NewSandboxRunner(opts SandboxRunnerOptions) *SandboxRunner {
	globals := opts.Globals
	if globals == nil {
		globals = script.SafeRisorGlobals()
	}
	return &SandboxRunner{globals: globals, timeout: opts.Timeout}
}

func (r *SandboxRunner) Run(ctx context.Context, code string, globals map[string]any) (*CodeResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	printFn, stdout := script.PrintCapture()
	combined := make(map[string]any, len(r.globals)+len(globals)+1)
	for name, value := range r.globals {
		combined[name] = value
	}
	for name, value := range globals {
		combined[name] = value
	}
	combined["print"] = printFn

	engine := script.NewRisorEngine(combined)
	compiled, err := engine.Compile(ctx, code)
	if err != nil {
		return nil, err
	}
	value, err := compiled.Evaluate(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &CodeResult{Result: value.Value(), Stdout: stdout.String()}, nil
}
