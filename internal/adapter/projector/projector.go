// Package projector contains the default [domain.Projector] implementation.
package projector

import (
	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/fieldnavigator"
)

// Projector implements [domain.Projector].
type Projector struct {
	fn        domain.FieldNavigator
	docFac    domain.DocumentFactory
	evaluator domain.Evaluator
	matcher   domain.Matcher
}

// NewProjector returns a new implementation of [domain.Projector].
func NewProjector(opts ...domain.ProjectorOption) domain.Projector {
	options := domain.ProjectorOptions{
		DocFac: data.NewDocument,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.FieldNavigator == nil {
		options.FieldNavigator = fieldnavigator.NewFieldNavigator(
			options.DocFac,
		)
	}
	return &Projector{
		fn:        options.FieldNavigator,
		docFac:    options.DocFac,
		evaluator: options.Evaluator,
		matcher:   options.Matcher,
	}
}

// Project implements [domain.Projector]. spec fields set to 0/1 behave as
// classic include/exclude directives; any other literal value is assigned
// verbatim; a [domain.Document] value is evaluated as a computed expression
// via the configured [domain.Evaluator].
func (q *Projector) Project(docs []domain.Document, spec domain.Document) ([]domain.Document, error) {
	if spec == nil || spec.Len() == 0 {
		return docs, nil
	}

	mode, err := q.classify(spec)
	if err != nil {
		return nil, err
	}

	res := make([]domain.Document, len(docs))
	for n, doc := range docs {
		projected, err := q.projectDoc(doc, spec, mode)
		if err != nil {
			return nil, err
		}
		res[n] = projected
	}
	return res, nil
}

type projectionMode int

const (
	modeInclude projectionMode = iota
	modeExclude
)

// classify decides whether spec is a plain include or exclude projection.
// Any field whose value is a computed expression or a non-0/1 literal forces
// include mode, since exclusion only makes sense for the classic {field: 0}
// directive.
func (q *Projector) classify(spec domain.Document) (projectionMode, error) {
	sawOne, sawZero := false, false
	for field, value := range spec.Iter() {
		if field == "_id" {
			continue
		}
		if n, ok := asDirective(value); ok {
			if n == 0 {
				sawZero = true
			} else {
				sawOne = true
			}
			continue
		}
		return modeInclude, nil
	}
	if sawOne || !sawZero {
		return modeInclude, nil
	}
	return modeExclude, nil
}

func asDirective(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (q *Projector) projectDoc(doc domain.Document, spec domain.Document, mode projectionMode) (domain.Document, error) {
	if mode == modeExclude {
		return q.excludeProject(doc, spec)
	}
	return q.includeProject(doc, spec)
}

func (q *Projector) excludeProject(doc domain.Document, spec domain.Document) (domain.Document, error) {
	res, err := q.docFac(doc)
	if err != nil {
		return nil, err
	}
	for field, value := range spec.Iter() {
		if n, ok := asDirective(value); !ok || n != 0 {
			continue
		}
		addr, err := q.fn.GetAddress(field)
		if err != nil {
			return nil, err
		}
		values, _, err := q.fn.GetField(res, addr...)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			v.Unset()
		}
	}
	return res, nil
}

// includeProject builds its output as an [data.OrderedDocument], independent
// of the configured document factory, so that the result's field order
// always follows spec's own order rather than whatever factory a caller
// plugged in — output key order is part of $project's contract, not an
// incidental detail of the document implementation.
func (q *Projector) includeProject(doc domain.Document, spec domain.Document) (domain.Document, error) {
	res := data.NewOrderedDocument()

	idMentioned := spec.Has("_id")
	if !idMentioned || truthyDirective(spec.Get("_id")) {
		res.Set("_id", doc.ID())
	}

	frame := &domain.Frame{Root: doc, Current: doc}
	for field, value := range spec.Iter() {
		if field == "_id" {
			continue
		}
		if n, ok := asDirective(value); ok {
			if n == 0 {
				continue
			}
			if err := q.copyField(res, doc, field); err != nil {
				return nil, err
			}
			continue
		}
		if handled, err := q.applyArrayDirective(res, doc, field, value); handled || err != nil {
			if err != nil {
				return nil, err
			}
			continue
		}
		val, defined, err := q.compute(doc, value, frame)
		if err != nil {
			return nil, err
		}
		if !defined {
			continue
		}
		addr, err := q.fn.GetAddress(field)
		if err != nil {
			return nil, err
		}
		created, err := q.fn.EnsureField(res, addr...)
		if err != nil {
			return nil, err
		}
		for _, c := range created {
			c.Set(val)
		}
	}
	return res, nil
}

// applyArrayDirective handles the find-projection array directives $slice
// and $elemMatch, e.g. {comments: {$slice: -5}} or
// {scores: {$elemMatch: {$gt: 80}}}. These read the field's own array value
// out of doc rather than evaluating an arbitrary expression, so they're
// special-cased ahead of the generic computed-field path.
func (q *Projector) applyArrayDirective(res, doc domain.Document, field string, value any) (bool, error) {
	spec, ok := value.(domain.Document)
	if !ok || spec.Len() != 1 {
		return false, nil
	}
	var directive string
	var arg any
	for k, v := range spec.Iter() {
		directive, arg = k, v
	}
	if directive != "$slice" && directive != "$elemMatch" {
		return false, nil
	}

	addr, err := q.fn.GetAddress(field)
	if err != nil {
		return false, err
	}
	fields, _, err := q.fn.GetField(doc, addr...)
	if err != nil {
		return false, err
	}
	fieldValue, defined := fields[0].Get()
	if !defined {
		return true, nil
	}
	arr, ok := fieldValue.([]any)
	if !ok {
		return true, nil
	}

	var out any
	switch directive {
	case "$slice":
		out = sliceArray(arr, arg)
	case "$elemMatch":
		if q.matcher == nil {
			return false, &domain.ErrMalformedSpec{Reason: "$elemMatch projection requires a configured matcher"}
		}
		query, ok := arg.(domain.Document)
		if !ok {
			return true, &domain.ErrMalformedSpec{Reason: "$elemMatch requires a query document"}
		}
		out = nil
		for _, elem := range arr {
			elemDoc, err := q.docFac(elem)
			if err != nil {
				// $elemMatch only matches document-shaped array elements;
				// scalars can never satisfy a field-keyed query document.
				continue
			}
			matched, err := q.matcher.Match(elemDoc, query)
			if err != nil {
				return true, err
			}
			if matched {
				out = []any{elem}
				break
			}
		}
	}
	if out == nil {
		return true, nil
	}
	created, err := q.fn.EnsureField(res, addr...)
	if err != nil {
		return true, err
	}
	for _, c := range created {
		c.Set(out)
	}
	return true, nil
}

// sliceArray implements $slice's two forms: a single signed count (from the
// front if positive, from the back if negative) or a [skip, limit] pair.
func sliceArray(arr []any, arg any) []any {
	n := len(arr)
	if pair, ok := arg.([]any); ok && len(pair) == 2 {
		skip, _ := asDirective(pair[0])
		limit, _ := asDirective(pair[1])
		start := skip
		if start < 0 {
			start = max(n+start, 0)
		}
		start = min(start, n)
		end := min(start+limit, n)
		if end < start {
			end = start
		}
		return arr[start:end]
	}
	count, _ := asDirective(arg)
	if count >= 0 {
		return arr[:min(count, n)]
	}
	return arr[max(n+count, 0):]
}

func truthyDirective(v any) bool {
	n, ok := asDirective(v)
	return !ok || n != 0
}

func (q *Projector) copyField(res domain.Document, doc domain.Document, field string) error {
	addr, err := q.fn.GetAddress(field)
	if err != nil {
		return err
	}
	values, expanded, err := q.fn.GetField(doc, addr...)
	if err != nil {
		return err
	}
	fieldValue, ok := q.readFields(values, expanded)
	if !ok {
		return nil
	}
	created, err := q.fn.EnsureField(res, addr...)
	if err != nil {
		return err
	}
	for _, c := range created {
		c.Set(fieldValue)
	}
	return nil
}

func (q *Projector) readFields(f []domain.GetSetter, expanded bool) (any, bool) {
	if !expanded {
		return f[0].Get()
	}
	res := make([]any, len(f))
	for n, field := range f {
		value, _ := field.Get()
		res[n] = value
	}
	return res, true
}

// compute delegates to the configured evaluator, falling back to returning
// value verbatim as a literal when no evaluator is configured — this
// keeps Projector usable standalone for the plain include/exclude case.
func (q *Projector) compute(doc domain.Document, value any, frame *domain.Frame) (any, bool, error) {
	if q.evaluator == nil {
		return value, true, nil
	}
	return q.evaluator.Compute(doc, value, frame)
}
