package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// VisibilityEngine evaluates form component hide rules with Google's Common
// Expression Language. Hide rules are FEEL ("=x != \"a\""); they are parsed,
// rendered as CEL and compiled against an environment declaring each
// referenced variable as dyn.
// Thread-safe: compiled programs are cached and reused across goroutines.
type VisibilityEngine struct {
	mu    sync.RWMutex
	cache map[string]*celProgram
}

type celProgram struct {
	prg   cel.Program
	vars  []string
	lists map[string]bool
}

// NewVisibilityEngine creates a new CEL visibility engine.
func NewVisibilityEngine() *VisibilityEngine {
	return &VisibilityEngine{
		cache: make(map[string]*celProgram),
	}
}

// Evaluate compiles (or retrieves from cache) a hide rule and evaluates it
// against the provided form variables. Variables the data does not set
// default to "" or, when used as a list, to an empty list.
func (e *VisibilityEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty visibility expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.prg.Eval(prg.activation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

// Hidden reports whether a component with the given hide rule is hidden for
// data. An empty rule never hides.
func (e *VisibilityEngine) Hidden(ctx context.Context, hide string, data map[string]any) (bool, error) {
	if hide == "" {
		return false, nil
	}
	out, err := e.Evaluate(ctx, hide, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"hide rule %q returned %T, expected bool", hide, out)
	}
	return b, nil
}

// Check compiles expression without evaluating it.
func (e *VisibilityEngine) Check(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *VisibilityEngine) getOrCompile(expression string) (*celProgram, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	parsed, err := ParseFEEL(expression)
	if err != nil {
		return nil, err
	}
	vars := parsed.Identifiers()
	opts := make([]cel.EnvOption, 0, len(vars))
	for _, v := range vars {
		opts = append(opts, cel.Variable(v, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	source := parsed.ToCEL()
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression, "cel": source})
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	lists := make(map[string]bool)
	for _, v := range parsed.ListIdentifiers() {
		lists[v] = true
	}
	compiled := &celProgram{prg: prg, vars: vars, lists: lists}
	e.cache[expression] = compiled
	return compiled, nil
}

// activation creates the evaluation activation map from the data.
// Missing keys get defaults to prevent CEL no-such-attribute errors.
func (p *celProgram) activation(data map[string]any) map[string]any {
	activation := make(map[string]any, len(p.vars))
	for _, key := range p.vars {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
			continue
		}
		if p.lists[key] {
			activation[key] = []any{}
		} else {
			activation[key] = ""
		}
	}
	return activation
}
