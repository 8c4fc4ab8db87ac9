// Package expr evaluates the dynamic parts of a pipeline definition: `when`
// conditions and `${...}` interpolations. Expressions are resolved lazily,
// against the scope of the job that is about to run them, so a single parsed
// pipeline serves every matrix row.
package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// String is a deferred string value, resolved against a job scope.
type String interface {
	Resolve(scope *Scope) (string, error)
}

// StringList is a deferred list of strings, resolved against a job scope.
type StringList interface {
	Resolve(scope *Scope) ([]string, error)
}

// Condition is a deferred boolean decision, resolved against a job scope.
type Condition interface {
	Decide(scope *Scope) (bool, error)
}

// Literal wraps a plain string that needs no evaluation. The YAML front-end
// produces these, since its command lines carry no template syntax.
func Literal(s string) String {
	return literal(s)
}

type literal string

func (l literal) Resolve(*Scope) (string, error) {
	return string(l), nil
}

// FromExpression wraps a decoded HCL expression as a deferred string.
func FromExpression(e hcl.Expression) String {
	return hclString{expr: e}
}

type hclString struct {
	expr hcl.Expression
}

func (h hclString) Resolve(scope *Scope) (string, error) {
	val, diags := h.expr.Value(scope.evalContext())
	if diags.HasErrors() {
		return "", diags
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("expression did not produce a string: %w", err)
	}
	if val.IsNull() {
		return "", nil
	}
	return val.AsString(), nil
}

// ListFromExpression wraps a decoded HCL expression as a deferred string list.
func ListFromExpression(e hcl.Expression) StringList {
	return hclList{expr: e}
}

type hclList struct {
	expr hcl.Expression
}

func (h hclList) Resolve(scope *Scope) ([]string, error) {
	val, diags := h.expr.Value(scope.evalContext())
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	val, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("expression did not produce a list of strings: %w", err)
	}
	var out []string
	for _, item := range val.AsValueSlice() {
		out = append(out, item.AsString())
	}
	return out, nil
}

// CondFromExpression wraps a decoded HCL expression as a deferred condition.
func CondFromExpression(e hcl.Expression) Condition {
	return hclCond{expr: e}
}

type hclCond struct {
	expr hcl.Expression
}

func (h hclCond) Decide(scope *Scope) (bool, error) {
	val, diags := h.expr.Value(scope.evalContext())
	if diags.HasErrors() {
		return false, diags
	}
	val, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition did not produce a boolean: %w", err)
	}
	if val.IsNull() {
		return false, fmt.Errorf("condition produced a null value")
	}
	return val.True(), nil
}

// ParseTemplate parses template source (a string possibly containing `${...}`
// interpolations) into a deferred string. Used by tests and by callers that
// hold raw template text rather than a decoded HCL body.
func ParseTemplate(src, filename string) (String, error) {
	e, diags := hclsyntax.ParseTemplate([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	return FromExpression(e), nil
}

// ParseCondition parses a bare expression (e.g. `matrix.env.IS_CONDA == "1"`)
// into a deferred condition.
func ParseCondition(src, filename string) (Condition, error) {
	e, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	return CondFromExpression(e), nil
}
