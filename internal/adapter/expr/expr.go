// Package expr implements the default [domain.Evaluator]: a recursive
// interpreter over the raw, already-unmarshaled expression tree (documents,
// arrays, literals and "$"-prefixed field/variable references), dispatching
// "$operator" documents through a [domain.OperatorRegistry].
package expr

import (
	"strings"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
)

// Evaluator implements [domain.Evaluator].
type Evaluator struct {
	registry domain.OperatorRegistry
	fn       domain.FieldNavigator
	now      domain.TimeGetter
}

// NewEvaluator returns a new implementation of [domain.Evaluator].
func NewEvaluator(registry domain.OperatorRegistry, fn domain.FieldNavigator, now domain.TimeGetter) domain.Evaluator {
	return &Evaluator{registry: registry, fn: fn, now: now}
}

// Compute implements [domain.Evaluator].
func (e *Evaluator) Compute(doc domain.Document, expression any, frame *domain.Frame) (any, bool, error) {
	if frame == nil {
		frame = &domain.Frame{Root: doc, Current: doc}
	}
	switch v := expression.(type) {
	case domain.Document:
		return e.computeDocument(v, frame)
	case []any:
		res := make([]any, len(v))
		for i, item := range v {
			val, _, err := e.Compute(doc, item, frame)
			if err != nil {
				return nil, false, err
			}
			res[i] = val
		}
		return res, true, nil
	case string:
		if strings.HasPrefix(v, "$$") {
			return e.computeVariable(v[2:], frame)
		}
		if strings.HasPrefix(v, "$") {
			return e.computeFieldPath(v[1:], frame)
		}
		return v, true, nil
	default:
		return v, true, nil
	}
}

func (e *Evaluator) computeDocument(v domain.Document, frame *domain.Frame) (any, bool, error) {
	if v.Len() == 1 {
		for field, arg := range v.Iter() {
			if strings.HasPrefix(field, "$") {
				fn, ok := e.registry.Lookup(field)
				if !ok {
					return nil, false, &domain.ErrUnknownOperator{Name: field}
				}
				args, ok := arg.([]any)
				if !ok {
					args = []any{arg}
				}
				return fn(args, frame, e)
			}
		}
	}

	res := data.NewOrderedDocument()
	for field, value := range v.Iter() {
		val, defined, err := e.Compute(frame.Current, value, frame)
		if err != nil {
			return nil, false, err
		}
		if defined {
			res.Set(field, val)
		}
	}
	return res, true, nil
}

func (e *Evaluator) computeFieldPath(path string, frame *domain.Frame) (any, bool, error) {
	addr, err := e.fn.GetAddress(path)
	if err != nil {
		return nil, false, err
	}
	fields, expanded, err := e.fn.GetField(frame.Current, addr...)
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	if !expanded {
		val, defined := fields[0].Get()
		return val, defined, nil
	}
	res := make([]any, len(fields))
	anyDefined := false
	for i, f := range fields {
		v, d := f.Get()
		res[i] = v
		anyDefined = anyDefined || d
	}
	return res, anyDefined, nil
}

func (e *Evaluator) computeVariable(name string, frame *domain.Frame) (any, bool, error) {
	switch name {
	case "ROOT":
		return frame.Root, true, nil
	case "CURRENT":
		return frame.Current, true, nil
	case "NOW", "CLUSTER_TIME":
		if e.now != nil {
			return e.now.GetTime(), true, nil
		}
		return nil, false, nil
	case "REMOVE":
		return nil, false, nil
	}
	if frame.Opts != nil {
		if v, ok := frame.Opts.Variables[name]; ok {
			return v, true, nil
		}
	}
	v, ok := frame.Vars[name]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}
