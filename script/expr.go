package script

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine compiles and evaluates expr-lang expressions. Undefined
// variables are permitted at compile time because globals are only bound at
// evaluation time.
type ExprEngine struct{}

// NewExprEngine returns an expr-lang backed Compiler.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{}
}

func (e *ExprEngine) Compile(ctx context.Context, code string) (Script, error) {
	program, err := expr.Compile(code,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expr script: %w", err)
	}
	return &ExprScript{program: program}, nil
}

// ExprScript is a compiled expr-lang program.
type ExprScript struct {
	program *vm.Program
}

func (s *ExprScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	if globals == nil {
		globals = map[string]any{}
	}
	result, err := expr.Run(s.program, globals)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expr script: %w", err)
	}
	return NewGoValue(result), nil
}
