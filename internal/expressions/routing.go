package expressions

import "context"

// FEELEngine evaluates FEEL routing conditions by translating them to
// expr-lang and running them on the Expr engine.
type FEELEngine struct {
	expr *ExprEngine
}

// NewFEELEngine creates a FEEL engine backed by a fresh Expr engine.
func NewFEELEngine() *FEELEngine {
	return &FEELEngine{expr: NewExprEngine()}
}

// TranslateToExpr parses a FEEL expression and renders it as expr-lang.
func TranslateToExpr(expression string) (string, error) {
	parsed, err := ParseFEEL(expression)
	if err != nil {
		return "", err
	}
	return parsed.ToExpr(), nil
}

// EvaluateBool evaluates a condition ("=" prefix optional) against form
// variables. A condition that cannot produce a boolean fails to compile.
func (e *FEELEngine) EvaluateBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	translated, err := TranslateToExpr(expression)
	if err != nil {
		return false, err
	}
	return e.expr.EvaluateBool(ctx, translated, data)
}

// Check parses and compiles expression without evaluating it.
func (e *FEELEngine) Check(expression string) error {
	translated, err := TranslateToExpr(expression)
	if err != nil {
		return err
	}
	return e.expr.Compile(translated)
}
