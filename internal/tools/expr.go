package tools

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

var errDivisionByZero = errors.New("division by zero")

var constants = map[string]float64{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
}

type mathFunc struct {
	minArgs, maxArgs int // maxArgs < 0 means variadic
	fn               func(args []float64) (float64, error)
}

func unary(f func(float64) float64) mathFunc {
	return mathFunc{1, 1, func(a []float64) (float64, error) { return f(a[0]), nil }}
}

var functions = map[string]mathFunc{
	"abs":     unary(math.Abs),
	"sqrt":    {1, 1, sqrt},
	"pow":     {2, 2, func(a []float64) (float64, error) { return math.Pow(a[0], a[1]), nil }},
	"round":   {1, 2, round},
	"min":     {1, -1, func(a []float64) (float64, error) { return fold(a, math.Min), nil }},
	"max":     {1, -1, func(a []float64) (float64, error) { return fold(a, math.Max), nil }},
	"floor":   unary(math.Floor),
	"ceil":    unary(math.Ceil),
	"trunc":   unary(math.Trunc),
	"exp":     unary(math.Exp),
	"log":     {1, 2, logarithm},
	"log10":   {1, 1, positive(math.Log10)},
	"log2":    {1, 1, positive(math.Log2)},
	"sin":     unary(math.Sin),
	"cos":     unary(math.Cos),
	"tan":     unary(math.Tan),
	"asin":    unary(math.Asin),
	"acos":    unary(math.Acos),
	"atan":    unary(math.Atan),
	"hypot":   {2, 2, func(a []float64) (float64, error) { return math.Hypot(a[0], a[1]), nil }},
	"degrees": unary(func(x float64) float64 { return x * 180 / math.Pi }),
	"radians": unary(func(x float64) float64 { return x * math.Pi / 180 }),
}

// Evaluate computes an arithmetic expression. It accepts numbers, the
// operators + - * / %, parentheses, the constants pi, e and tau, and a fixed
// set of math functions. Nothing else is evaluated.
func Evaluate(expr string) (float64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, errors.New("expression is empty")
	}
	// go/parser would read the rest of the line as a comment.
	if strings.Contains(expr, "//") {
		return 0, errors.New("floor division is not supported, use floor(a / b)")
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid syntax: %w", err)
	}
	v, err := eval(node)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

func eval(n ast.Expr) (float64, error) {
	switch n := n.(type) {
	case *ast.BasicLit:
		return literal(n)
	case *ast.ParenExpr:
		return eval(n.X)
	case *ast.Ident:
		if v, ok := constants[n.Name]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("name '%s' is not defined", n.Name)
	case *ast.UnaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return -x, nil
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)
	case *ast.BinaryExpr:
		return binary(n)
	case *ast.CallExpr:
		return call(n)
	}
	return 0, fmt.Errorf("unsupported expression %T", n)
}

func literal(n *ast.BasicLit) (float64, error) {
	switch n.Kind {
	case token.INT:
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err == nil {
			return float64(i), nil
		}
		return strconv.ParseFloat(n.Value, 64)
	case token.FLOAT:
		return strconv.ParseFloat(n.Value, 64)
	}
	return 0, fmt.Errorf("unsupported literal %s", n.Value)
}

func binary(n *ast.BinaryExpr) (float64, error) {
	if _, ok := n.Y.(*ast.StarExpr); ok && n.Op == token.MUL {
		return 0, errors.New("'**' is not supported, use pow(x, y)")
	}
	x, err := eval(n.X)
	if err != nil {
		return 0, err
	}
	y, err := eval(n.Y)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case token.ADD:
		return x + y, nil
	case token.SUB:
		return x - y, nil
	case token.MUL:
		return x * y, nil
	case token.QUO:
		if y == 0 {
			return 0, errDivisionByZero
		}
		return x / y, nil
	case token.REM:
		if y == 0 {
			return 0, errDivisionByZero
		}
		// The result takes the sign of the divisor.
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return r, nil
	}
	return 0, fmt.Errorf("unsupported operator %s", n.Op)
}

func call(n *ast.CallExpr) (float64, error) {
	id, ok := n.Fun.(*ast.Ident)
	if !ok {
		return 0, errors.New("only named functions can be called")
	}
	f, ok := functions[id.Name]
	if !ok {
		return 0, fmt.Errorf("name '%s' is not defined", id.Name)
	}
	if n.Ellipsis.IsValid() {
		return 0, errors.New("variadic arguments are not supported")
	}
	if len(n.Args) < f.minArgs || (f.maxArgs >= 0 && len(n.Args) > f.maxArgs) {
		return 0, fmt.Errorf("%s() takes %s, got %d", id.Name, arity(f), len(n.Args))
	}
	args := make([]float64, len(n.Args))
	for i, a := range n.Args {
		v, err := eval(a)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return f.fn(args)
}

func arity(f mathFunc) string {
	switch {
	case f.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", f.minArgs)
	case f.minArgs == f.maxArgs:
		return fmt.Sprintf("%d argument(s)", f.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", f.minArgs, f.maxArgs)
}

func fold(a []float64, f func(x, y float64) float64) float64 {
	out := a[0]
	for _, v := range a[1:] {
		out = f(out, v)
	}
	return out
}

func sqrt(a []float64) (float64, error) {
	if a[0] < 0 {
		return 0, errors.New("math domain error")
	}
	return math.Sqrt(a[0]), nil
}

func positive(f func(float64) float64) func([]float64) (float64, error) {
	return func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, errors.New("math domain error")
		}
		return f(a[0]), nil
	}
}

func logarithm(a []float64) (float64, error) {
	if a[0] <= 0 {
		return 0, errors.New("math domain error")
	}
	if len(a) == 1 {
		return math.Log(a[0]), nil
	}
	if a[1] <= 0 || a[1] == 1 {
		return 0, errors.New("math domain error")
	}
	return math.Log(a[0]) / math.Log(a[1]), nil
}

// round rounds half to even, optionally to a number of decimal places.
func round(a []float64) (float64, error) {
	if len(a) == 1 {
		return math.RoundToEven(a[0]), nil
	}
	scale := math.Pow(10, math.Trunc(a[1]))
	return math.RoundToEven(a[0]*scale) / scale, nil
}
