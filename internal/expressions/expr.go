package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// ExprEngine runs expr-lang programs. It is the backend of FEELEngine:
// routing conditions reach it already translated from FEEL.
// Compiled programs are cached per expression and shared across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates an ExprEngine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: make(map[string]*vm.Program)}
}

// EvaluateBool runs expression as a condition with the keys of data as
// variables; variables missing from data are nil. Programs whose result
// type is statically not boolean are rejected at compile time.
func (e *ExprEngine) EvaluateBool(_ context.Context, expression string, data map[string]any) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}
	out, err := e.run(prg, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution, "condition %q returned %T", expression, out)
	}
	return b, nil
}

// Compile checks that expression compiles as a condition.
func (e *ExprEngine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

func (e *ExprEngine) run(prg *vm.Program, expression string, data map[string]any) (any, error) {
	if data == nil {
		data = map[string]any{}
	}
	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

// program returns the cached program for source, compiling it on first use.
// No typed environment is given, so one program serves every variable set.
func (e *ExprEngine) program(source string) (*vm.Program, error) {
	if source == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	e.mu.RLock()
	prg, ok := e.cache[source]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	prg, err := expr.Compile(source, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", source, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": source})
	}

	e.mu.Lock()
	if cached, ok := e.cache[source]; ok {
		prg = cached
	} else {
		e.cache[source] = prg
	}
	e.mu.Unlock()
	return prg, nil
}
