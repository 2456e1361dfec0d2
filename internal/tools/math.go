package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	llmtools "github.com/flitsinc/go-llms/tools"
)

// MathCalculations evaluates an array of math expressions. Results come
// back in input order; failures are collected into a single error string
// the model is told to show instead of the results.
type MathCalculations struct{}

func NewMathCalculations() *MathCalculations { return &MathCalculations{} }

func (m *MathCalculations) Name() string  { return "custom_math_calculations" }
func (m *MathCalculations) Title() string { return "Custom Math Calculations" }

func (m *MathCalculations) Schema() llmtools.FunctionSchema {
	return llmtools.FunctionSchema{
		Name: m.Name(),
		Description: "Evaluates an array of math expressions and returns an array " +
			"of results in the same order. Arguments: {\"expressions\": array of " +
			"expression strings using numbers, + - * / % ** and functions like " +
			"abs, ceil, floor, round, max, min; \"precision\": optional number of " +
			"decimal places for the results, default 2}. Useful when the user asks " +
			"to compute sums, averages or other derived numbers from tool output.",
		Parameters: llmtools.ValueSchema{Type: "object"},
	}
}

type mathArgs struct {
	Expressions []string `json:"expressions"`
	Precision   *int     `json:"precision"`
}

type mathResult struct {
	Results []float64 `json:"results"`
	Error   string    `json:"error"`
}

func (m *MathCalculations) Invoke(_ context.Context, args json.RawMessage) ([]Item, error) {
	var parsed mathArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("decode math arguments: %w", err)
	}
	if len(parsed.Expressions) == 0 {
		return nil, fmt.Errorf("expressions are required")
	}

	precision := 2
	if parsed.Precision != nil && *parsed.Precision >= 0 {
		precision = *parsed.Precision
	}

	result := mathResult{Results: make([]float64, 0, len(parsed.Expressions))}
	var errs []string
	for _, expression := range parsed.Expressions {
		value, err := evalNumber(expression)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%q: %v", expression, err))
			result.Results = append(result.Results, 0)
			continue
		}
		result.Results = append(result.Results, roundTo(value, precision))
	}
	result.Error = strings.Join(errs, "; ")

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode math result: %w", err)
	}
	return []Item{TextItem(string(payload))}, nil
}

func evalNumber(expression string) (float64, error) {
	out, err := expr.Eval(expression, nil)
	if err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("expression is not numeric (got %T)", out)
	}
}

func roundTo(value float64, precision int) float64 {
	scale := math.Pow10(precision)
	return math.Round(value*scale) / scale
}
