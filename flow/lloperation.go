package flow

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// LLOp describes a low-level operation.
type LLOp struct {
	Name        string
	SideEffects bool // operation changes state
	CanFold     bool // can be computed at compile time from constant arguments
	TryFold     bool // may be computed at compile time, unless it raises
	CanRaise    bool
	Fold        func(args []interface{}) (interface{}, error)
}

// ErrNoFold is returned by folding functions for arguments they cannot handle.
var ErrNoFold = errors.New("cannot fold")

var llops = map[string]*LLOp{}

// LookupOp finds an operation by name.
func LookupOp(name string) (*LLOp, bool) {
	op, ok := llops[name]
	return op, ok
}

// Ops returns all known operations, sorted by name.
func Ops() []*LLOp {
	ops := make([]*LLOp, 0, len(llops))
	for _, op := range llops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Arity returns the number of abstract operands an operation is dispatched on:
// 1 for unary or 2 for binary dispatch, 0 for operations dispatched otherwise.
func (op *LLOp) Arity() int {
	return arity[op.Name]
}

var arity = map[string]int{}

func def(name string, n int, op LLOp) {
	op.Name = name
	llops[name] = &op
	arity[name] = n
}

func pure(fold func([]interface{}) (interface{}, error)) LLOp {
	return LLOp{CanFold: true, Fold: fold}
}

func trying(fold func([]interface{}) (interface{}, error)) LLOp {
	return LLOp{TryFold: true, CanRaise: true, Fold: fold}
}

// --- Folding helpers -------------------------------------------------------

func intUnary(f func(int) (int, error)) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		a, ok := args[0].(int)
		if !ok {
			return nil, ErrNoFold
		}
		return f(a)
	}
}

func intBinary(f func(a, b int) (int, error)) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		a, ok1 := args[0].(int)
		b, ok2 := args[1].(int)
		if !ok1 || !ok2 {
			return nil, ErrNoFold
		}
		return f(a, b)
	}
}

func intCompare(f func(a, b int) bool) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		a, ok1 := args[0].(int)
		b, ok2 := args[1].(int)
		if !ok1 || !ok2 {
			return nil, ErrNoFold
		}
		return f(a, b), nil
	}
}

func uintBinary(f func(a, b uint) (uint, error)) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		a, ok1 := args[0].(uint)
		b, ok2 := args[1].(uint)
		if !ok1 || !ok2 {
			return nil, ErrNoFold
		}
		return f(a, b)
	}
}

func uintCompare(f func(a, b uint) bool) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		a, ok1 := args[0].(uint)
		b, ok2 := args[1].(uint)
		if !ok1 || !ok2 {
			return nil, ErrNoFold
		}
		return f(a, b), nil
	}
}

func charCompare(f func(a, b byte) bool) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		a, ok1 := args[0].(byte)
		b, ok2 := args[1].(byte)
		if !ok1 || !ok2 {
			return nil, ErrNoFold
		}
		return f(a, b), nil
	}
}

func floatBinary(f func(a, b float64) interface{}) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		a, ok1 := args[0].(float64)
		b, ok2 := args[1].(float64)
		if !ok1 || !ok2 {
			return nil, ErrNoFold
		}
		return f(a, b), nil
	}
}

func identity(args []interface{}) (interface{}, error) {
	return args[0], nil
}

// ErrOverflow is returned when folding an overflow-checking operation overflows.
var ErrOverflow = errors.New("integer overflow")

// ErrZeroDivision is returned when folding a division by zero.
var ErrZeroDivision = errors.New("division by zero")

func addOvf(a, b int) (int, error) {
	r := a + b
	if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
		return 0, ErrOverflow
	}
	return r, nil
}

func subOvf(a, b int) (int, error) {
	r := a - b
	if (a >= 0 && b < 0 && r < 0) || (a < 0 && b > 0 && r >= 0) {
		return 0, ErrOverflow
	}
	return r, nil
}

func mulOvf(a, b int) (int, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt) || (b == -1 && a == math.MinInt) {
		return 0, ErrOverflow
	}
	return r, nil
}

// floordiv rounds towards negative infinity.
func floordiv(a, b int) (int, error) {
	if b == 0 {
		return 0, ErrZeroDivision
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q, nil
}

func floormod(a, b int) (int, error) {
	if b == 0 {
		return 0, ErrZeroDivision
	}
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m, nil
}

func plain(f func(a, b int) int) func(a, b int) (int, error) {
	return func(a, b int) (int, error) { return f(a, b), nil }
}

func init() {
	// integer arithmetic
	def("int_add", 2, pure(intBinary(plain(func(a, b int) int { return a + b }))))
	def("int_sub", 2, pure(intBinary(plain(func(a, b int) int { return a - b }))))
	def("int_mul", 2, pure(intBinary(plain(func(a, b int) int { return a * b }))))
	def("int_floordiv", 2, pure(intBinary(floordiv)))
	def("int_mod", 2, pure(intBinary(floormod)))
	def("int_and", 2, pure(intBinary(plain(func(a, b int) int { return a & b }))))
	def("int_or", 2, pure(intBinary(plain(func(a, b int) int { return a | b }))))
	def("int_xor", 2, pure(intBinary(plain(func(a, b int) int { return a ^ b }))))
	def("int_lshift", 2, pure(intBinary(func(a, b int) (int, error) {
		if b < 0 {
			return 0, ErrNoFold
		}
		return a << uint(b), nil
	})))
	def("int_rshift", 2, pure(intBinary(func(a, b int) (int, error) {
		if b < 0 {
			return 0, ErrNoFold
		}
		return a >> uint(b), nil
	})))
	def("int_add_ovf", 2, trying(intBinary(addOvf)))
	def("int_sub_ovf", 2, trying(intBinary(subOvf)))
	def("int_mul_ovf", 2, trying(intBinary(mulOvf)))
	def("int_floordiv_zer", 2, trying(intBinary(floordiv)))
	def("int_mod_zer", 2, trying(intBinary(floormod)))
	def("int_neg", 1, pure(intUnary(func(a int) (int, error) { return -a, nil })))
	def("int_abs", 1, pure(intUnary(func(a int) (int, error) {
		if a < 0 {
			return -a, nil
		}
		return a, nil
	})))
	def("int_invert", 1, pure(intUnary(func(a int) (int, error) { return ^a, nil })))
	def("int_neg_ovf", 1, trying(intUnary(func(a int) (int, error) {
		if a == math.MinInt {
			return 0, ErrOverflow
		}
		return -a, nil
	})))
	def("int_is_true", 1, pure(func(args []interface{}) (interface{}, error) {
		a, ok := args[0].(int)
		if !ok {
			return nil, ErrNoFold
		}
		return a != 0, nil
	}))
	// comparisons
	def("int_lt", 2, pure(intCompare(func(a, b int) bool { return a < b })))
	def("int_le", 2, pure(intCompare(func(a, b int) bool { return a <= b })))
	def("int_eq", 2, pure(intCompare(func(a, b int) bool { return a == b })))
	def("int_ne", 2, pure(intCompare(func(a, b int) bool { return a != b })))
	def("int_gt", 2, pure(intCompare(func(a, b int) bool { return a > b })))
	def("int_ge", 2, pure(intCompare(func(a, b int) bool { return a >= b })))
	// unsigned
	def("uint_add", 2, pure(uintBinary(func(a, b uint) (uint, error) { return a + b, nil })))
	def("uint_sub", 2, pure(uintBinary(func(a, b uint) (uint, error) { return a - b, nil })))
	def("uint_mul", 2, pure(uintBinary(func(a, b uint) (uint, error) { return a * b, nil })))
	def("uint_and", 2, pure(uintBinary(func(a, b uint) (uint, error) { return a & b, nil })))
	def("uint_or", 2, pure(uintBinary(func(a, b uint) (uint, error) { return a | b, nil })))
	def("uint_floordiv", 2, pure(uintBinary(func(a, b uint) (uint, error) {
		if b == 0 {
			return 0, ErrZeroDivision
		}
		return a / b, nil
	})))
	def("uint_lt", 2, pure(uintCompare(func(a, b uint) bool { return a < b })))
	def("uint_le", 2, pure(uintCompare(func(a, b uint) bool { return a <= b })))
	def("uint_eq", 2, pure(uintCompare(func(a, b uint) bool { return a == b })))
	def("uint_ne", 2, pure(uintCompare(func(a, b uint) bool { return a != b })))
	def("uint_gt", 2, pure(uintCompare(func(a, b uint) bool { return a > b })))
	def("uint_ge", 2, pure(uintCompare(func(a, b uint) bool { return a >= b })))
	// chars
	def("char_lt", 2, pure(charCompare(func(a, b byte) bool { return a < b })))
	def("char_le", 2, pure(charCompare(func(a, b byte) bool { return a <= b })))
	def("char_eq", 2, pure(charCompare(func(a, b byte) bool { return a == b })))
	def("char_ne", 2, pure(charCompare(func(a, b byte) bool { return a != b })))
	def("char_gt", 2, pure(charCompare(func(a, b byte) bool { return a > b })))
	def("char_ge", 2, pure(charCompare(func(a, b byte) bool { return a >= b })))
	// floats
	def("float_add", 2, pure(floatBinary(func(a, b float64) interface{} { return a + b })))
	def("float_sub", 2, pure(floatBinary(func(a, b float64) interface{} { return a - b })))
	def("float_mul", 2, pure(floatBinary(func(a, b float64) interface{} { return a * b })))
	def("float_truediv", 2, pure(floatBinary(func(a, b float64) interface{} { return a / b })))
	def("float_lt", 2, pure(floatBinary(func(a, b float64) interface{} { return a < b })))
	def("float_le", 2, pure(floatBinary(func(a, b float64) interface{} { return a <= b })))
	def("float_eq", 2, pure(floatBinary(func(a, b float64) interface{} { return a == b })))
	def("float_ne", 2, pure(floatBinary(func(a, b float64) interface{} { return a != b })))
	def("float_gt", 2, pure(floatBinary(func(a, b float64) interface{} { return a > b })))
	def("float_ge", 2, pure(floatBinary(func(a, b float64) interface{} { return a >= b })))
	// bools and casts
	def("bool_not", 1, pure(func(args []interface{}) (interface{}, error) {
		a, ok := args[0].(bool)
		if !ok {
			return nil, ErrNoFold
		}
		return !a, nil
	}))
	def("same_as", 1, pure(identity))
	def("cast_bool_to_int", 1, pure(func(args []interface{}) (interface{}, error) {
		if a, ok := args[0].(bool); ok {
			if a {
				return 1, nil
			}
			return 0, nil
		}
		return nil, ErrNoFold
	}))
	def("cast_char_to_int", 1, pure(func(args []interface{}) (interface{}, error) {
		if a, ok := args[0].(byte); ok {
			return int(a), nil
		}
		return nil, ErrNoFold
	}))
	def("cast_int_to_char", 1, pure(intUnaryAny(func(a int) interface{} { return byte(a) })))
	def("cast_int_to_uint", 1, pure(intUnaryAny(func(a int) interface{} { return uint(a) })))
	def("cast_int_to_float", 1, pure(intUnaryAny(func(a int) interface{} { return float64(a) })))
	def("cast_uint_to_int", 1, pure(func(args []interface{}) (interface{}, error) {
		if a, ok := args[0].(uint); ok {
			return int(a), nil
		}
		return nil, ErrNoFold
	}))
	def("cast_float_to_int", 1, pure(func(args []interface{}) (interface{}, error) {
		if a, ok := args[0].(float64); ok {
			return int(a), nil
		}
		return nil, ErrNoFold
	}))
	// pointers and containers
	def("cast_pointer", 1, pure(identity))
	def("ptr_nonzero", 1, pure(func(args []interface{}) (interface{}, error) {
		return args[0] != nil, nil
	}))
	def("ptr_iszero", 1, pure(func(args []interface{}) (interface{}, error) {
		return args[0] == nil, nil
	}))
	def("ptr_eq", 2, pure(func(args []interface{}) (interface{}, error) {
		return args[0] == args[1], nil
	}))
	def("ptr_ne", 2, pure(func(args []interface{}) (interface{}, error) {
		return args[0] != args[1], nil
	}))
	def("getfield", 1, LLOp{})
	def("getsubstruct", 1, LLOp{CanFold: true})
	def("getinteriorfield", 1, LLOp{})
	def("getinteriorarraysize", 1, LLOp{CanFold: true})
	def("getarraysize", 1, LLOp{CanFold: true})
	def("getarrayitem", 2, LLOp{})
	def("getarraysubstruct", 2, LLOp{CanFold: true})
	def("setfield", 1, LLOp{SideEffects: true})
	def("setinteriorfield", 1, LLOp{SideEffects: true})
	def("setarrayitem", 2, LLOp{SideEffects: true})
	def("malloc", 0, LLOp{SideEffects: true})
	def("malloc_varsize", 0, LLOp{SideEffects: true})
	def("zero_gc_pointers_inside", 1, LLOp{SideEffects: true})
	// calls and markers
	def("direct_call", 1, LLOp{SideEffects: true, CanRaise: true})
	def("indirect_call", 1, LLOp{SideEffects: true, CanRaise: true})
	def("hint", 1, LLOp{})
	def("is_early_constant", 1, LLOp{})
	def("keepalive", 1, LLOp{SideEffects: true})
	def("debug_assert", 1, LLOp{SideEffects: true})
	def("jit_merge_point", 0, LLOp{SideEffects: true})
	def("can_enter_jit", 0, LLOp{SideEffects: true})
}

func intUnaryAny(f func(int) interface{}) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		a, ok := args[0].(int)
		if !ok {
			return nil, ErrNoFold
		}
		return f(a), nil
	}
}

// FoldOp computes the result of a foldable operation for literal arguments.
func FoldOp(name string, args ...interface{}) (interface{}, error) {
	op, ok := llops[name]
	if !ok || op.Fold == nil {
		return nil, fmt.Errorf("operation %s: %w", name, ErrNoFold)
	}
	return op.Fold(args)
}
