// Package operators implements the expression/accumulator operator catalog
// behind a [domain.OperatorRegistry]: arithmetic, string, boolean,
// comparison, conditional, array, set and type-conversion operators evaluate
// eagerly through the shared [domain.Evaluator]; $cond/$switch/$ifNull/$let/
// $and/$or/$map/$filter/$reduce receive their arguments unevaluated so they
// can short-circuit or introduce scoped variables.
package operators

import (
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
)

// Registry implements [domain.OperatorRegistry].
type Registry struct {
	ops map[string]domain.OperatorFunc
}

// NewRegistry returns a [domain.OperatorRegistry] pre-populated with the
// built-in catalog. extra operators, if any, are registered last and may
// override built-ins by name.
func NewRegistry(extra map[string]domain.OperatorFunc) domain.OperatorRegistry {
	r := &Registry{ops: make(map[string]domain.OperatorFunc, 96)}
	r.registerArithmetic()
	r.registerString()
	r.registerBoolean()
	r.registerComparison()
	r.registerConditional()
	r.registerArray()
	r.registerSet()
	r.registerType()
	r.registerDate()
	r.registerVariable()
	r.registerScript()
	for name, fn := range extra {
		r.Register(name, fn)
	}
	return r
}

// Lookup implements [domain.OperatorRegistry].
func (r *Registry) Lookup(name string) (domain.OperatorFunc, bool) {
	fn, ok := r.ops[name]
	return fn, ok
}

// Register implements [domain.OperatorRegistry].
func (r *Registry) Register(name string, fn domain.OperatorFunc) {
	r.ops[name] = fn
}

// eager wraps a function that only needs the already-evaluated argument
// values, handling the Compute calls and arity for it.
func eager(fn func(vals []any, defined []bool) (any, bool, error)) domain.OperatorFunc {
	return func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		vals := make([]any, len(args))
		defd := make([]bool, len(args))
		for i, a := range args {
			v, d, err := eval.Compute(frame.Current, a, frame)
			if err != nil {
				return nil, false, err
			}
			vals[i], defd[i] = v, d
		}
		return fn(vals, defd)
	}
}

func asNumber(v any) (*big.Float, bool) {
	if d, ok := v.(domain.Decimal); ok {
		if d.Float == nil {
			return big.NewFloat(0), true
		}
		return d.Float, true
	}
	r := big.NewFloat(0)
	switch n := v.(type) {
	case int:
		r.SetInt64(int64(n))
	case int8:
		r.SetInt64(int64(n))
	case int16:
		r.SetInt64(int64(n))
	case int32:
		r.SetInt64(int64(n))
	case int64:
		r.SetInt64(n)
	case uint:
		r.SetUint64(uint64(n))
	case uint8:
		r.SetUint64(uint64(n))
	case uint16:
		r.SetUint64(uint64(n))
	case uint32:
		r.SetUint64(uint64(n))
	case uint64:
		r.SetUint64(n)
	case float32:
		r.SetFloat64(float64(n))
	case float64:
		r.SetFloat64(n)
	default:
		return nil, false
	}
	return r, true
}

func requireNumber(op string, v any) (float64, error) {
	n, ok := asNumber(v)
	if !ok {
		return 0, &domain.ErrTypeMismatch{Operator: op, Value: v}
	}
	f, _ := n.Float64()
	return f, nil
}

func isNullish(v any, defined bool) bool {
	return !defined || v == nil
}

func (r *Registry) registerArithmetic() {
	r.ops["$add"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		total := 0.0
		for i, v := range vals {
			if isNullish(v, defd[i]) {
				return nil, false, nil
			}
			f, err := requireNumber("$add", v)
			if err != nil {
				return nil, false, err
			}
			total += f
		}
		return total, true, nil
	})
	r.ops["$subtract"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) != 2 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$subtract requires exactly 2 arguments"}
		}
		if isNullish(vals[0], defd[0]) || isNullish(vals[1], defd[1]) {
			return nil, false, nil
		}
		a, err := requireNumber("$subtract", vals[0])
		if err != nil {
			return nil, false, err
		}
		b, err := requireNumber("$subtract", vals[1])
		if err != nil {
			return nil, false, err
		}
		return a - b, true, nil
	})
	r.ops["$multiply"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		total := 1.0
		for i, v := range vals {
			if isNullish(v, defd[i]) {
				return nil, false, nil
			}
			f, err := requireNumber("$multiply", v)
			if err != nil {
				return nil, false, err
			}
			total *= f
		}
		return total, true, nil
	})
	r.ops["$divide"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) != 2 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$divide requires exactly 2 arguments"}
		}
		a, err := requireNumber("$divide", vals[0])
		if err != nil {
			return nil, false, err
		}
		b, err := requireNumber("$divide", vals[1])
		if err != nil {
			return nil, false, err
		}
		if b == 0 {
			return nil, false, &domain.ErrDivideByZero{Operator: "$divide"}
		}
		return a / b, true, nil
	})
	r.ops["$mod"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) != 2 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$mod requires exactly 2 arguments"}
		}
		a, err := requireNumber("$mod", vals[0])
		if err != nil {
			return nil, false, err
		}
		b, err := requireNumber("$mod", vals[1])
		if err != nil {
			return nil, false, err
		}
		if b == 0 {
			return nil, false, &domain.ErrDivideByZero{Operator: "$mod"}
		}
		return math.Mod(a, b), true, nil
	})
	r.ops["$abs"] = unaryMath("$abs", math.Abs)
	r.ops["$ceil"] = unaryMath("$ceil", math.Ceil)
	r.ops["$floor"] = unaryMath("$floor", math.Floor)
	r.ops["$sqrt"] = unaryMath("$sqrt", math.Sqrt)
	r.ops["$exp"] = unaryMath("$exp", math.Exp)
	r.ops["$ln"] = unaryMath("$ln", math.Log)
	r.ops["$log10"] = unaryMath("$log10", math.Log10)
	r.ops["$trunc"] = unaryMath("$trunc", math.Trunc)
	r.ops["$sin"] = unaryMath("$sin", math.Sin)
	r.ops["$cos"] = unaryMath("$cos", math.Cos)
	r.ops["$tan"] = unaryMath("$tan", math.Tan)
	r.ops["$asin"] = unaryMath("$asin", math.Asin)
	r.ops["$acos"] = unaryMath("$acos", math.Acos)
	r.ops["$atan"] = unaryMath("$atan", math.Atan)
	r.ops["$degreesToRadians"] = unaryMath("$degreesToRadians", func(d float64) float64 { return d * math.Pi / 180 })
	r.ops["$radiansToDegrees"] = unaryMath("$radiansToDegrees", func(r float64) float64 { return r * 180 / math.Pi })
	r.ops["$atan2"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) != 2 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$atan2 requires exactly 2 arguments"}
		}
		y, err := requireNumber("$atan2", vals[0])
		if err != nil {
			return nil, false, err
		}
		x, err := requireNumber("$atan2", vals[1])
		if err != nil {
			return nil, false, err
		}
		return math.Atan2(y, x), true, nil
	})
	r.ops["$pow"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) != 2 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$pow requires exactly 2 arguments"}
		}
		a, err := requireNumber("$pow", vals[0])
		if err != nil {
			return nil, false, err
		}
		b, err := requireNumber("$pow", vals[1])
		if err != nil {
			return nil, false, err
		}
		return math.Pow(a, b), true, nil
	})
	r.ops["$round"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) == 0 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$round requires at least 1 argument"}
		}
		v, err := requireNumber("$round", vals[0])
		if err != nil {
			return nil, false, err
		}
		place := 0
		if len(vals) > 1 {
			p, err := requireNumber("$round", vals[1])
			if err != nil {
				return nil, false, err
			}
			place = int(p)
		}
		mult := math.Pow(10, float64(place))
		return math.Round(v*mult) / mult, true, nil
	})
}

func unaryMath(name string, fn func(float64) float64) domain.OperatorFunc {
	return eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) != 1 {
			return nil, false, &domain.ErrMalformedSpec{Reason: name + " requires exactly 1 argument"}
		}
		if isNullish(vals[0], defd[0]) {
			return nil, false, nil
		}
		f, err := requireNumber(name, vals[0])
		if err != nil {
			return nil, false, err
		}
		return fn(f), true, nil
	})
}

func (r *Registry) registerString() {
	r.ops["$concat"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		var b strings.Builder
		for i, v := range vals {
			if isNullish(v, defd[i]) {
				return nil, false, nil
			}
			s, ok := v.(string)
			if !ok {
				return nil, false, &domain.ErrTypeMismatch{Operator: "$concat", Value: v}
			}
			b.WriteString(s)
		}
		return b.String(), true, nil
	})
	r.ops["$toUpper"] = stringUnary("$toUpper", strings.ToUpper)
	r.ops["$toLower"] = stringUnary("$toLower", strings.ToLower)
	r.ops["$trim"] = stringUnary("$trim", strings.TrimSpace)
	r.ops["$strLenCP"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		s, ok := vals[0].(string)
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$strLenCP", Value: vals[0]}
		}
		return len([]rune(s)), true, nil
	})
	r.ops["$split"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		s, ok := vals[0].(string)
		sep, ok2 := vals[1].(string)
		if !ok || !ok2 {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$split", Value: vals[0]}
		}
		parts := strings.Split(s, sep)
		res := make([]any, len(parts))
		for i, p := range parts {
			res[i] = p
		}
		return res, true, nil
	})
	r.ops["$substrCP"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) != 3 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$substrCP requires exactly 3 arguments"}
		}
		s, ok := vals[0].(string)
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$substrCP", Value: vals[0]}
		}
		start, err := requireNumber("$substrCP", vals[1])
		if err != nil {
			return nil, false, err
		}
		length, err := requireNumber("$substrCP", vals[2])
		if err != nil {
			return nil, false, err
		}
		runes := []rune(s)
		from := max(0, int(start))
		if from > len(runes) {
			from = len(runes)
		}
		to := min(len(runes), from+max(0, int(length)))
		return string(runes[from:to]), true, nil
	})
}

func stringUnary(name string, fn func(string) string) domain.OperatorFunc {
	return eager(func(vals []any, defd []bool) (any, bool, error) {
		if isNullish(vals[0], defd[0]) {
			return nil, false, nil
		}
		s, ok := vals[0].(string)
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: name, Value: vals[0]}
		}
		return fn(s), true, nil
	})
}

func truthy(v any, defined bool) bool {
	if !defined || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	}
	if n, ok := asNumber(v); ok {
		return n.Sign() != 0
	}
	return true
}

func (r *Registry) registerBoolean() {
	r.ops["$and"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		for _, a := range args {
			v, d, err := eval.Compute(frame.Current, a, frame)
			if err != nil {
				return nil, false, err
			}
			if !truthy(v, d) {
				return false, true, nil
			}
		}
		return true, true, nil
	}
	r.ops["$or"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		for _, a := range args {
			v, d, err := eval.Compute(frame.Current, a, frame)
			if err != nil {
				return nil, false, err
			}
			if truthy(v, d) {
				return true, true, nil
			}
		}
		return false, true, nil
	}
	r.ops["$not"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		if len(args) != 1 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$not requires exactly 1 argument"}
		}
		v, d, err := eval.Compute(frame.Current, args[0], frame)
		if err != nil {
			return nil, false, err
		}
		return !truthy(v, d), true, nil
	}
}

func (r *Registry) registerComparison() {
	cmpOp := func(name string, ok func(c int) bool) domain.OperatorFunc {
		return eager(func(vals []any, defd []bool) (any, bool, error) {
			if len(vals) != 2 {
				return nil, false, &domain.ErrMalformedSpec{Reason: name + " requires exactly 2 arguments"}
			}
			c, err := compareLoose(vals[0], vals[1])
			if err != nil {
				return nil, false, err
			}
			return ok(c), true, nil
		})
	}
	r.ops["$eq"] = cmpOp("$eq", func(c int) bool { return c == 0 })
	r.ops["$ne"] = cmpOp("$ne", func(c int) bool { return c != 0 })
	r.ops["$gt"] = cmpOp("$gt", func(c int) bool { return c > 0 })
	r.ops["$gte"] = cmpOp("$gte", func(c int) bool { return c >= 0 })
	r.ops["$lt"] = cmpOp("$lt", func(c int) bool { return c < 0 })
	r.ops["$lte"] = cmpOp("$lte", func(c int) bool { return c <= 0 })
	r.ops["$cmp"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		c, err := compareLoose(vals[0], vals[1])
		return c, true, err
	})
}

// compareLoose implements BSON-style canonical type ordering for the
// comparison operators without depending on [domain.Comparer], which is
// scoped to query matching; keeping expression comparison self-contained
// avoids a circular package dependency.
func compareLoose(a, b any) (int, error) {
	if a == nil && b == nil {
		return 0, nil
	}
	if a == nil {
		return -1, nil
	}
	if b == nil {
		return 1, nil
	}
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an.Cmp(bn), nil
		}
		return -1, nil
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
		if _, ok := asNumber(b); ok {
			return 1, nil
		}
		return -1, nil
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			if ab == bb {
				return 0, nil
			}
			if ab {
				return 1, nil
			}
			return -1, nil
		}
		if _, ok := b.(time.Time); ok {
			return -1, nil
		}
		return 1, nil
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt), nil
		}
		return 1, nil
	}
	return 0, &domain.ErrTypeMismatch{Operator: "$cmp", Value: a}
}

func (r *Registry) registerConditional() {
	r.ops["$cond"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		branches, err := condBranches(args)
		if err != nil {
			return nil, false, err
		}
		v, d, err := eval.Compute(frame.Current, branches[0], frame)
		if err != nil {
			return nil, false, err
		}
		if truthy(v, d) {
			return eval.Compute(frame.Current, branches[1], frame)
		}
		return eval.Compute(frame.Current, branches[2], frame)
	}
	r.ops["$ifNull"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		if len(args) < 2 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$ifNull requires at least 2 arguments"}
		}
		for _, a := range args[:len(args)-1] {
			v, d, err := eval.Compute(frame.Current, a, frame)
			if err != nil {
				return nil, false, err
			}
			if !isNullish(v, d) {
				return v, true, nil
			}
		}
		return eval.Compute(frame.Current, args[len(args)-1], frame)
	}
	r.ops["$switch"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$switch requires a document with branches/default"}
		}
		branches, _ := spec.Get("branches").([]any)
		for _, b := range branches {
			branchDoc, ok := b.(domain.Document)
			if !ok {
				return nil, false, &domain.ErrMalformedSpec{Reason: "$switch branch must be a document"}
			}
			v, d, err := eval.Compute(frame.Current, branchDoc.Get("case"), frame)
			if err != nil {
				return nil, false, err
			}
			if truthy(v, d) {
				return eval.Compute(frame.Current, branchDoc.Get("then"), frame)
			}
		}
		if def, ok := spec.Get("default"), spec.Has("default"); ok {
			return eval.Compute(frame.Current, def, frame)
		}
		return nil, false, &domain.ErrMalformedSpec{Reason: "$switch had no matching branch and no default"}
	}
}

func condBranches(args []any) ([3]any, error) {
	if len(args) == 3 {
		return [3]any{args[0], args[1], args[2]}, nil
	}
	if len(args) == 1 {
		if doc, ok := args[0].(domain.Document); ok {
			return [3]any{doc.Get("if"), doc.Get("then"), doc.Get("else")}, nil
		}
	}
	return [3]any{}, &domain.ErrMalformedSpec{Reason: "$cond requires [if, then, else] or {if, then, else}"}
}

func toSlice(v any, defined bool) ([]any, bool) {
	if !defined {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

func (r *Registry) registerArray() {
	r.ops["$size"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		arr, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$size", Value: vals[0]}
		}
		return len(arr), true, nil
	})
	r.ops["$isArray"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		_, ok := toSlice(vals[0], defd[0])
		return ok, true, nil
	})
	r.ops["$arrayElemAt"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		arr, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$arrayElemAt", Value: vals[0]}
		}
		idx, err := requireNumber("$arrayElemAt", vals[1])
		if err != nil {
			return nil, false, err
		}
		i := int(idx)
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return nil, false, nil
		}
		return arr[i], true, nil
	})
	r.ops["$concatArrays"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		var res []any
		for i, v := range vals {
			arr, ok := toSlice(v, defd[i])
			if !ok {
				return nil, false, &domain.ErrTypeMismatch{Operator: "$concatArrays", Value: v}
			}
			res = append(res, arr...)
		}
		return res, true, nil
	})
	r.ops["$reverseArray"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		arr, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$reverseArray", Value: vals[0]}
		}
		res := make([]any, len(arr))
		for i, v := range arr {
			res[len(arr)-1-i] = v
		}
		return res, true, nil
	})
	r.ops["$slice"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		arr, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$slice", Value: vals[0]}
		}
		n, err := requireNumber("$slice", vals[1])
		if err != nil {
			return nil, false, err
		}
		if len(vals) == 2 {
			count := int(n)
			if count >= 0 {
				return arr[:min(count, len(arr))], true, nil
			}
			start := max(0, len(arr)+count)
			return arr[start:], true, nil
		}
		count, err := requireNumber("$slice", vals[2])
		if err != nil {
			return nil, false, err
		}
		start := int(n)
		if start < 0 {
			start = max(0, len(arr)+start)
		}
		start = min(start, len(arr))
		end := min(len(arr), start+max(0, int(count)))
		return arr[start:end], true, nil
	})
	r.ops["$in"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		arr, ok := toSlice(vals[1], defd[1])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$in", Value: vals[1]}
		}
		for _, item := range arr {
			c, err := compareLoose(item, vals[0])
			if err == nil && c == 0 {
				return true, true, nil
			}
		}
		return false, true, nil
	})
	r.ops["$map"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$map requires a document with input/as/in"}
		}
		inputVal, d, err := eval.Compute(frame.Current, spec.Get("input"), frame)
		if err != nil {
			return nil, false, err
		}
		arr, ok := toSlice(inputVal, d)
		if !ok {
			return nil, false, nil
		}
		as, _ := spec.Get("as").(string)
		if as == "" {
			as = "this"
		}
		res := make([]any, len(arr))
		for i, item := range arr {
			child := frame.Child(map[string]any{as: item})
			v, _, err := eval.Compute(frame.Current, spec.Get("in"), child)
			if err != nil {
				return nil, false, err
			}
			res[i] = v
		}
		return res, true, nil
	}
	r.ops["$filter"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$filter requires a document with input/cond"}
		}
		inputVal, d, err := eval.Compute(frame.Current, spec.Get("input"), frame)
		if err != nil {
			return nil, false, err
		}
		arr, ok := toSlice(inputVal, d)
		if !ok {
			return nil, false, nil
		}
		as, _ := spec.Get("as").(string)
		if as == "" {
			as = "this"
		}
		var res []any
		for _, item := range arr {
			child := frame.Child(map[string]any{as: item})
			v, vd, err := eval.Compute(frame.Current, spec.Get("cond"), child)
			if err != nil {
				return nil, false, err
			}
			if truthy(v, vd) {
				res = append(res, item)
			}
		}
		return res, true, nil
	}
	r.ops["$reduce"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$reduce requires a document with input/initialValue/in"}
		}
		inputVal, d, err := eval.Compute(frame.Current, spec.Get("input"), frame)
		if err != nil {
			return nil, false, err
		}
		arr, ok := toSlice(inputVal, d)
		if !ok {
			return nil, false, nil
		}
		acc, _, err := eval.Compute(frame.Current, spec.Get("initialValue"), frame)
		if err != nil {
			return nil, false, err
		}
		for _, item := range arr {
			child := frame.Child(map[string]any{"value": acc, "this": item})
			acc, _, err = eval.Compute(frame.Current, spec.Get("in"), child)
			if err != nil {
				return nil, false, err
			}
		}
		return acc, true, nil
	}
	r.ops["$anyElementTrue"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		arr, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$anyElementTrue", Value: vals[0]}
		}
		for _, v := range arr {
			if truthy(v, true) {
				return true, true, nil
			}
		}
		return false, true, nil
	})
	r.ops["$allElementsTrue"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		arr, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$allElementsTrue", Value: vals[0]}
		}
		for _, v := range arr {
			if !truthy(v, true) {
				return false, true, nil
			}
		}
		return true, true, nil
	})
	r.ops["$range"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) < 2 || len(vals) > 3 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$range requires 2 or 3 arguments"}
		}
		start, err := requireNumber("$range", vals[0])
		if err != nil {
			return nil, false, err
		}
		end, err := requireNumber("$range", vals[1])
		if err != nil {
			return nil, false, err
		}
		step := 1.0
		if len(vals) == 3 {
			step, err = requireNumber("$range", vals[2])
			if err != nil {
				return nil, false, err
			}
			if step == 0 {
				return nil, false, &domain.ErrMalformedSpec{Reason: "$range step must not be 0"}
			}
		}
		var res []any
		if step > 0 {
			for v := start; v < end; v += step {
				res = append(res, int(v))
			}
		} else {
			for v := start; v > end; v += step {
				res = append(res, int(v))
			}
		}
		if res == nil {
			res = []any{}
		}
		return res, true, nil
	})
	r.ops["$zip"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$zip requires a document with inputs"}
		}
		inputsVal, _, err := eval.Compute(frame.Current, spec.Get("inputs"), frame)
		if err != nil {
			return nil, false, err
		}
		inputs, ok := inputsVal.([]any)
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$zip", Value: inputsVal}
		}
		arrays := make([][]any, len(inputs))
		maxLen := 0
		for i, in := range inputs {
			arr, ok := in.([]any)
			if !ok {
				return nil, false, &domain.ErrTypeMismatch{Operator: "$zip", Value: in}
			}
			arrays[i] = arr
			maxLen = max(maxLen, len(arr))
		}
		res := make([]any, maxLen)
		for i := range maxLen {
			tuple := make([]any, len(arrays))
			for j, arr := range arrays {
				if i < len(arr) {
					tuple[j] = arr[i]
				}
			}
			res[i] = tuple
		}
		return res, true, nil
	}
	r.ops["$sortArray"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$sortArray requires a document with input/sortBy"}
		}
		inputVal, d, err := eval.Compute(frame.Current, spec.Get("input"), frame)
		if err != nil {
			return nil, false, err
		}
		arr, ok := toSlice(inputVal, d)
		if !ok {
			return nil, false, nil
		}
		order, err := requireNumber("$sortArray", spec.Get("sortBy"))
		if err != nil {
			return nil, false, err
		}
		res := slices.Clone(arr)
		var sortErr error
		slices.SortStableFunc(res, func(a, b any) int {
			c, err := compareLoose(a, b)
			if err != nil {
				sortErr = err
				return 0
			}
			if order < 0 {
				return -c
			}
			return c
		})
		if sortErr != nil {
			return nil, false, sortErr
		}
		return res, true, nil
	}
}

func toSet(arr []any) map[string]any {
	canon := make(map[string]any, len(arr))
	for _, v := range arr {
		canon[fmt.Sprintf("%v", v)] = v
	}
	return canon
}

func (r *Registry) registerSet() {
	r.ops["$setUnion"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		seen := map[string]any{}
		for i, v := range vals {
			arr, ok := toSlice(v, defd[i])
			if !ok {
				return nil, false, &domain.ErrTypeMismatch{Operator: "$setUnion", Value: v}
			}
			for k, item := range toSet(arr) {
				seen[k] = item
			}
		}
		res := make([]any, 0, len(seen))
		for _, v := range seen {
			res = append(res, v)
		}
		return res, true, nil
	})
	r.ops["$setIntersection"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) == 0 {
			return []any{}, true, nil
		}
		arr0, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$setIntersection", Value: vals[0]}
		}
		result := toSet(arr0)
		for i := 1; i < len(vals); i++ {
			arr, ok := toSlice(vals[i], defd[i])
			if !ok {
				return nil, false, &domain.ErrTypeMismatch{Operator: "$setIntersection", Value: vals[i]}
			}
			next := toSet(arr)
			for k := range result {
				if _, ok := next[k]; !ok {
					delete(result, k)
				}
			}
		}
		res := make([]any, 0, len(result))
		for _, v := range result {
			res = append(res, v)
		}
		return res, true, nil
	})
	r.ops["$setDifference"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		a, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$setDifference", Value: vals[0]}
		}
		b, ok := toSlice(vals[1], defd[1])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$setDifference", Value: vals[1]}
		}
		exclude := toSet(b)
		var res []any
		for k, v := range toSet(a) {
			if _, ok := exclude[k]; !ok {
				res = append(res, v)
			}
		}
		return res, true, nil
	})
	r.ops["$setEquals"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if len(vals) < 2 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$setEquals requires at least 2 arguments"}
		}
		arr0, ok := toSlice(vals[0], defd[0])
		if !ok {
			return false, true, nil
		}
		base := toSet(arr0)
		for i := 1; i < len(vals); i++ {
			arr, ok := toSlice(vals[i], defd[i])
			if !ok {
				return false, true, nil
			}
			next := toSet(arr)
			if len(next) != len(base) {
				return false, true, nil
			}
			for k := range base {
				if _, ok := next[k]; !ok {
					return false, true, nil
				}
			}
		}
		return true, true, nil
	})
	r.ops["$setIsSubset"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		a, ok := toSlice(vals[0], defd[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$setIsSubset", Value: vals[0]}
		}
		b, ok := toSlice(vals[1], defd[1])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$setIsSubset", Value: vals[1]}
		}
		superset := toSet(b)
		for k := range toSet(a) {
			if _, ok := superset[k]; !ok {
				return false, true, nil
			}
		}
		return true, true, nil
	})
}

func (r *Registry) registerType() {
	r.ops["$type"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		return typeName(vals[0], defd[0]), true, nil
	})
	r.ops["$toString"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if isNullish(vals[0], defd[0]) {
			return nil, false, nil
		}
		return fmt.Sprintf("%v", vals[0]), true, nil
	})
	r.ops["$toInt"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if isNullish(vals[0], defd[0]) {
			return nil, false, nil
		}
		f, err := requireNumber("$toInt", vals[0])
		if err != nil {
			return nil, false, err
		}
		return int(f), true, nil
	})
	r.ops["$toDouble"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if isNullish(vals[0], defd[0]) {
			return nil, false, nil
		}
		f, err := requireNumber("$toDouble", vals[0])
		if err != nil {
			return nil, false, err
		}
		return f, true, nil
	})
	r.ops["$toBool"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		return truthy(vals[0], defd[0]), true, nil
	})
	r.ops["$isNumber"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if !defd[0] {
			return false, true, nil
		}
		_, ok := asNumber(vals[0])
		return ok, true, nil
	})
	r.ops["$toLong"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if isNullish(vals[0], defd[0]) {
			return nil, false, nil
		}
		f, err := requireNumber("$toLong", vals[0])
		if err != nil {
			return nil, false, err
		}
		return int64(f), true, nil
	})
	r.ops["$toDecimal"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if isNullish(vals[0], defd[0]) {
			return nil, false, nil
		}
		n, ok := asNumber(vals[0])
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$toDecimal", Value: vals[0]}
		}
		return domain.NewDecimal(n), true, nil
	})
	r.ops["$toDate"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		if isNullish(vals[0], defd[0]) {
			return nil, false, nil
		}
		switch t := vals[0].(type) {
		case time.Time:
			return t, true, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, false, &domain.ErrTypeMismatch{Operator: "$toDate", Value: vals[0]}
			}
			return parsed, true, nil
		default:
			f, err := requireNumber("$toDate", vals[0])
			if err != nil {
				return nil, false, err
			}
			return time.UnixMilli(int64(f)), true, nil
		}
	})
	r.ops["$convert"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$convert requires a document with input/to"}
		}
		to, _ := spec.Get("to").(string)
		if to == "" {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$convert.to must be a non-empty string"}
		}
		target, ok := r.Lookup("$to" + strings.ToUpper(to[:1]) + to[1:])
		if !ok {
			return nil, false, &domain.ErrUnknownOperator{Name: "$convert:" + to}
		}
		return target([]any{spec.Get("input")}, frame, eval)
	}
	r.ops["$mergeObjects"] = eager(func(vals []any, defd []bool) (any, bool, error) {
		merged := map[string]any{}
		for i, v := range vals {
			if isNullish(v, defd[i]) {
				continue
			}
			doc, ok := v.(domain.Document)
			if !ok {
				return nil, false, &domain.ErrTypeMismatch{Operator: "$mergeObjects", Value: v}
			}
			for k, fv := range doc.Iter() {
				merged[k] = fv
			}
		}
		return data.M(merged), true, nil
	})
}

func typeName(v any, defined bool) string {
	if !defined {
		return "missing"
	}
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int"
	case float32, float64:
		return "double"
	case domain.Decimal:
		return "decimal"
	case domain.Binary:
		return "binData"
	case time.Time:
		return "date"
	case []any:
		return "array"
	case domain.Document:
		return "object"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func (r *Registry) registerDate() {
	dateField := func(name string, fn func(time.Time) int) domain.OperatorFunc {
		return eager(func(vals []any, defd []bool) (any, bool, error) {
			t, ok := vals[0].(time.Time)
			if !ok {
				return nil, false, &domain.ErrTypeMismatch{Operator: name, Value: vals[0]}
			}
			return fn(t), true, nil
		})
	}
	r.ops["$year"] = dateField("$year", func(t time.Time) int { return t.Year() })
	r.ops["$month"] = dateField("$month", func(t time.Time) int { return int(t.Month()) })
	r.ops["$dayOfMonth"] = dateField("$dayOfMonth", func(t time.Time) int { return t.Day() })
	r.ops["$hour"] = dateField("$hour", func(t time.Time) int { return t.Hour() })
	r.ops["$minute"] = dateField("$minute", func(t time.Time) int { return t.Minute() })
	r.ops["$second"] = dateField("$second", func(t time.Time) int { return t.Second() })
	r.ops["$dayOfWeek"] = dateField("$dayOfWeek", func(t time.Time) int { return int(t.Weekday()) + 1 })
	r.ops["$dayOfYear"] = dateField("$dayOfYear", func(t time.Time) int { return t.YearDay() })
	r.ops["$dateToString"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$dateToString requires a document with date/format"}
		}
		dv, d, err := eval.Compute(frame.Current, spec.Get("date"), frame)
		if err != nil {
			return nil, false, err
		}
		if !d {
			return nil, false, nil
		}
		t, ok := dv.(time.Time)
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Operator: "$dateToString", Value: dv}
		}
		format, _ := spec.Get("format").(string)
		if format == "" {
			format = "%Y-%m-%dT%H:%M:%S.%LZ"
		}
		return strftimeLike(format, t), true, nil
	}
}

// strftimeLike renders a small subset of MongoDB's %-directives; %Y %m %d
// %H %M %S %L are the ones the date accumulators and $dateToString exercise.
func strftimeLike(format string, t time.Time) string {
	replacements := map[string]string{
		"%Y": fmt.Sprintf("%04d", t.Year()),
		"%m": fmt.Sprintf("%02d", int(t.Month())),
		"%d": fmt.Sprintf("%02d", t.Day()),
		"%H": fmt.Sprintf("%02d", t.Hour()),
		"%M": fmt.Sprintf("%02d", t.Minute()),
		"%S": fmt.Sprintf("%02d", t.Second()),
		"%L": fmt.Sprintf("%03d", t.Nanosecond()/1e6),
	}
	res := format
	for k, v := range replacements {
		res = strings.ReplaceAll(res, k, v)
	}
	return res
}

func (r *Registry) registerVariable() {
	r.ops["$let"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$let requires a document with vars/in"}
		}
		varsSpec, ok := spec.Get("vars").(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$let.vars must be a document"}
		}
		bound := make(map[string]any, varsSpec.Len())
		for k, expr := range varsSpec.Iter() {
			v, _, err := eval.Compute(frame.Current, expr, frame)
			if err != nil {
				return nil, false, err
			}
			bound[k] = v
		}
		return eval.Compute(frame.Current, spec.Get("in"), frame.Child(bound))
	}
	r.ops["$literal"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		if len(args) != 1 {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$literal requires exactly 1 argument"}
		}
		return args[0], true, nil
	}
}

// registerScript wires $function to the capability-hook [domain.ScriptEvaluator];
// it is rejected with [domain.ErrScriptDisabled] unless the engine was built
// with scriptEnabled set.
func (r *Registry) registerScript() {
	r.ops["$function"] = func(args []any, frame *domain.Frame, eval domain.Evaluator) (any, bool, error) {
		spec, ok := args[0].(domain.Document)
		if !ok {
			return nil, false, &domain.ErrMalformedSpec{Reason: "$function requires a document with body/args"}
		}
		if frame.Opts == nil || !frame.Opts.ScriptEnabled || frame.Opts.Script == nil {
			return nil, false, &domain.ErrScriptDisabled{Operator: "$function"}
		}
		argExprs, _ := spec.Get("args").([]any)
		vals := make([]any, len(argExprs))
		for i, a := range argExprs {
			v, _, err := eval.Compute(frame.Current, a, frame)
			if err != nil {
				return nil, false, err
			}
			vals[i] = v
		}
		res, err := frame.Opts.Script.Eval(spec.Get("body"), vals...)
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	}
}
