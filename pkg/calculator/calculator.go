// Package calculator registers the arithmetic tools served by
// kalku-calc: add, subtract, multiply, divide, square, sqrt. Domain
// failures (division by zero, negative square root, non-finite input)
// are ordinary errors that the dispatcher turns into isError results.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/halim/kalku/pkg/toolserver"
)

// Domain errors surfaced to the model as tool output.
var (
	ErrDivisionByZero = errors.New("division by zero is not allowed")
	ErrNegativeSqrt   = errors.New("cannot calculate square root of negative number")
	ErrInvalidInput   = errors.New("invalid input")
)

// Register wires every calculator tool into the registry. Called once
// at server startup; a failure here is a configuration error.
func Register(reg *toolserver.Registry) error {
	binary := []toolserver.Parameter{
		{Name: "a", Type: "number", Description: "First operand", Required: true},
		{Name: "b", Type: "number", Description: "Second operand", Required: true},
	}
	unary := []toolserver.Parameter{
		{Name: "a", Type: "number", Description: "Operand", Required: true},
	}

	tools := []toolserver.Tool{
		{
			Name:        "add",
			Description: "Add two numbers together",
			Parameters:  binary,
			Handler:     binaryHandler(Add),
		},
		{
			Name:        "subtract",
			Description: "Subtract second number from first number",
			Parameters:  binary,
			Handler:     binaryHandler(Subtract),
		},
		{
			Name:        "multiply",
			Description: "Multiply two numbers together",
			Parameters:  binary,
			Handler:     binaryHandler(Multiply),
		},
		{
			Name:        "divide",
			Description: "Divide first number by second number",
			Parameters:  binary,
			Handler:     binaryHandler(Divide),
		},
		{
			Name:        "square",
			Description: "Calculate the square of a number",
			Parameters:  unary,
			Handler:     unaryHandler(Square),
		},
		{
			Name:        "sqrt",
			Description: "Calculate the square root of a number",
			Parameters:  unary,
			Handler:     unaryHandler(Sqrt),
		},
	}

	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// Add returns a + b.
func Add(a, b float64) (float64, error) {
	if err := validate(a, b); err != nil {
		return 0, err
	}
	return a + b, nil
}

// Subtract returns a - b.
func Subtract(a, b float64) (float64, error) {
	if err := validate(a, b); err != nil {
		return 0, err
	}
	return a - b, nil
}

// Multiply returns a * b.
func Multiply(a, b float64) (float64, error) {
	if err := validate(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// Divide returns a / b, rejecting a zero divisor.
func Divide(a, b float64) (float64, error) {
	if err := validate(a, b); err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// Square returns a * a.
func Square(a float64) (float64, error) {
	if err := validate(a); err != nil {
		return 0, err
	}
	return a * a, nil
}

// Sqrt returns the square root of a, rejecting negative input.
func Sqrt(a float64) (float64, error) {
	if err := validate(a); err != nil {
		return 0, err
	}
	if a < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNegativeSqrt, formatNumber(a))
	}
	return math.Sqrt(a), nil
}

func validate(values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: NaN values are not allowed", ErrInvalidInput)
		}
		if math.IsInf(v, 0) {
			return fmt.Errorf("%w: infinite values are not allowed", ErrInvalidInput)
		}
	}
	return nil
}

// formatNumber renders a result as its shortest decimal form, so
// add(15, 27) reads "42" rather than "42.000000".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func binaryHandler(op func(a, b float64) (float64, error)) toolserver.Handler {
	return func(_ context.Context, args map[string]interface{}) (string, error) {
		a, err := numberArg(args, "a")
		if err != nil {
			return "", err
		}
		b, err := numberArg(args, "b")
		if err != nil {
			return "", err
		}
		result, err := op(a, b)
		if err != nil {
			return "", err
		}
		return formatNumber(result), nil
	}
}

func unaryHandler(op func(a float64) (float64, error)) toolserver.Handler {
	return func(_ context.Context, args map[string]interface{}) (string, error) {
		a, err := numberArg(args, "a")
		if err != nil {
			return "", err
		}
		result, err := op(a)
		if err != nil {
			return "", err
		}
		return formatNumber(result), nil
	}
}

// numberArg extracts a numeric argument. Schema validation runs before
// the handler, so a miss here means the schema and handler disagree.
func numberArg(args map[string]interface{}, name string) (float64, error) {
	v, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing argument %q", ErrInvalidInput, name)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: argument %q must be a number", ErrInvalidInput, name)
	}
	return f, nil
}
