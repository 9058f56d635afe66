// Package pipeline implements the aggregation [domain.Stage] catalog:
// $match, $project/$addFields/$set/$unset, $sort, $skip, $limit, $count,
// $group, $unwind, $replaceRoot/$replaceWith, $lookup and $facet. Each stage
// wraps an upstream iter.Seq2[domain.Document, error], reading it lazily
// when the semantics allow streaming and draining it fully when they don't
// (e.g. $group, $sort).
package pipeline

import (
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/accumulator"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/canon"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
)

func drain(upstream iter.Seq2[domain.Document, error]) ([]domain.Document, error) {
	var docs []domain.Document
	for doc, err := range upstream {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func emit(docs []domain.Document) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func fail(err error) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		yield(nil, err)
	}
}

// MatchStage implements $match.
type MatchStage struct{ Query domain.Document }

// Run implements [domain.Stage].
func (s *MatchStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for doc, err := range upstream {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			ok, err := rt.Matcher.Match(doc, s.Query)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if ok {
				if !yield(doc, nil) {
					return
				}
			}
		}
	}
}

// ProjectStage implements $project/$addFields/$set/$unset through the
// shared [domain.Projector].
type ProjectStage struct{ Spec domain.Document }

// Run implements [domain.Stage].
func (s *ProjectStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for doc, err := range upstream {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			res, err := rt.Projector.Project([]domain.Document{doc}, s.Spec)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(res[0], nil) {
				return
			}
		}
	}
}

// LimitStage implements $limit.
type LimitStage struct{ N int64 }

// Run implements [domain.Stage].
func (s *LimitStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		var n int64
		for doc, err := range upstream {
			if err != nil {
				yield(nil, err)
				return
			}
			if n >= s.N {
				return
			}
			n++
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// SkipStage implements $skip.
type SkipStage struct{ N int64 }

// Run implements [domain.Stage].
func (s *SkipStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		var n int64
		for doc, err := range upstream {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if n < s.N {
				n++
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// CountStage implements $count.
type CountStage struct{ Field string }

// Run implements [domain.Stage].
func (s *CountStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		docs, err := drain(upstream)
		if err != nil {
			yield(nil, err)
			return
		}
		doc, err := rt.DocFac(nil)
		if err != nil {
			yield(nil, err)
			return
		}
		doc.Set(s.Field, len(docs))
		yield(doc, nil)
	}
}

// SortStage implements $sort.
type SortStage struct{ Sort domain.Sort }

// Run implements [domain.Stage].
func (s *SortStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	docs, err := drain(upstream)
	if err != nil {
		return fail(err)
	}

	var sortErr error
	slices.SortStableFunc(docs, func(a, b domain.Document) int {
		if sortErr != nil {
			return 0
		}
		for _, crit := range s.Sort {
			addr, err := rt.FieldNavigator.GetAddress(crit.Key)
			if err != nil {
				sortErr = err
				return 0
			}
			fa, _, err := rt.FieldNavigator.GetField(a, addr...)
			if err != nil {
				sortErr = err
				return 0
			}
			fb, _, err := rt.FieldNavigator.GetField(b, addr...)
			if err != nil {
				sortErr = err
				return 0
			}
			va, _ := fa[0].Get()
			vb, _ := fb[0].Get()
			c, err := rt.Comparer.Compare(va, vb)
			if err != nil {
				sortErr = err
				return 0
			}
			if c != 0 {
				if crit.Order < 0 {
					return -c
				}
				return c
			}
		}
		return 0
	})
	if sortErr != nil {
		return fail(sortErr)
	}
	return emit(docs)
}

// UnwindStage implements $unwind.
type UnwindStage struct {
	Path                      string
	IncludeArrayIndex         string
	PreserveNullAndEmptyArrays bool
}

// Run implements [domain.Stage].
func (s *UnwindStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		addr, err := rt.FieldNavigator.GetAddress(s.Path)
		if err != nil {
			yield(nil, err)
			return
		}
		for doc, err := range upstream {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			fields, _, err := rt.FieldNavigator.GetField(doc, addr...)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			val, defined := fields[0].Get()
			arr, isArr := val.([]any)
			if !defined || (isArr && len(arr) == 0) {
				if s.PreserveNullAndEmptyArrays {
					if !yield(doc, nil) {
						return
					}
				}
				continue
			}
			if !isArr {
				arr = []any{val}
			}
			for i, item := range arr {
				clone, err := rt.DocFac(doc)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				created, err := rt.FieldNavigator.EnsureField(clone, addr...)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				for _, c := range created {
					c.Set(item)
				}
				if s.IncludeArrayIndex != "" {
					clone.Set(s.IncludeArrayIndex, i)
				}
				if !yield(clone, nil) {
					return
				}
			}
		}
	}
}

// ReplaceRootStage implements $replaceRoot/$replaceWith.
type ReplaceRootStage struct{ NewRoot any }

// Run implements [domain.Stage].
func (s *ReplaceRootStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for doc, err := range upstream {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			val, _, err := rt.Evaluator.Compute(doc, s.NewRoot, &domain.Frame{Root: doc, Current: doc, Opts: rt.Opts})
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			newRoot, ok := val.(domain.Document)
			if !ok {
				if !yield(nil, &domain.ErrTypeMismatch{Operator: "$replaceRoot", Value: val}) {
					return
				}
				continue
			}
			if !yield(newRoot, nil) {
				return
			}
		}
	}
}

// GroupSpec describes one accumulator field of a $group stage.
type GroupSpec struct {
	Field    string
	Operator string
	Expr     any
}

// GroupStage implements $group.
type GroupStage struct {
	ID     any
	Fields []GroupSpec
}

// Run implements [domain.Stage].
func (s *GroupStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	docs, err := drain(upstream)
	if err != nil {
		return fail(err)
	}

	norm := canon.NewNormalizer(rt.DocFac)
	accFactories := accumulator.Registry(rt.Comparer, norm, rt.Hasher)

	type group struct {
		key   any
		accs  []domain.Accumulator
	}
	order := []uint64{}
	groups := map[uint64]*group{}

	for _, doc := range docs {
		frame := &domain.Frame{Root: doc, Current: doc, Opts: rt.Opts}
		keyVal, _, err := rt.Evaluator.Compute(doc, s.ID, frame)
		if err != nil {
			return fail(err)
		}
		key, err := norm.Key(keyVal, rt.Hasher)
		if err != nil {
			return fail(err)
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: keyVal, accs: make([]domain.Accumulator, len(s.Fields))}
			for i, spec := range s.Fields {
				factory, ok := accFactories[spec.Operator]
				if !ok {
					return fail(&domain.ErrUnknownOperator{Name: spec.Operator})
				}
				g.accs[i] = factory()
			}
			groups[key] = g
			order = append(order, key)
		}
		for i, spec := range s.Fields {
			val, defined, err := rt.Evaluator.Compute(doc, spec.Expr, frame)
			if err != nil {
				return fail(err)
			}
			if err := g.accs[i].Accumulate(val, defined); err != nil {
				return fail(err)
			}
		}
	}

	res := make([]domain.Document, 0, len(order))
	for _, key := range order {
		g := groups[key]
		doc, err := rt.DocFac(nil)
		if err != nil {
			return fail(err)
		}
		doc.Set("_id", g.key)
		for i, spec := range s.Fields {
			val, err := g.accs[i].Finish()
			if err != nil {
				return fail(err)
			}
			doc.Set(spec.Field, val)
		}
		res = append(res, doc)
	}
	return emit(res)
}

// FacetStage implements $facet: every sub-pipeline runs against the same
// buffered input, and results are collected under their named field.
type FacetStage struct {
	// Names holds the facet field names in the order they appeared in the
	// $facet spec document, so the output doc's field order is deterministic
	// instead of following Go's randomized map iteration order.
	Names  []string
	Facets map[string][]domain.Stage
}

// Run implements [domain.Stage].
func (s *FacetStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	docs, err := drain(upstream)
	if err != nil {
		return fail(err)
	}

	// Built as a [data.OrderedDocument], independent of rt.DocFac, so the
	// output's field order always follows the spec's facet key order rather
	// than Go's randomized map iteration order.
	result := data.NewOrderedDocument()
	for _, name := range s.Names {
		seq := emit(docs)
		for _, stage := range s.Facets[name] {
			seq = stage.Run(seq, rt)
		}
		facetDocs, err := drain(seq)
		if err != nil {
			return fail(err)
		}
		result.Set(name, facetDocs)
	}
	return emit([]domain.Document{result})
}

// LookupStage implements $lookup against an in-memory named collection
// resolved through rt.Lookup.
type LookupStage struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	// Let holds the generalized form's $$variable bindings (raw,
	// uncompiled expressions keyed by variable name), evaluated against
	// each outer document before Pipeline runs against From.
	Let map[string]any
	// Pipeline, when set, selects the generalized let/pipeline form: it
	// runs against From's documents once per outer document, with Let's
	// bindings visible as $$vars, instead of the simple equality-join form.
	Pipeline []domain.Stage
}

// Run implements [domain.Stage].
func (s *LookupStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	if s.Pipeline != nil {
		return s.runPipeline(upstream, rt)
	}
	return func(yield func(domain.Document, error) bool) {
		if rt.Lookup == nil {
			yield(nil, &domain.ErrMalformedSpec{Reason: "$lookup: no collection context configured"})
			return
		}
		foreign, ok := rt.Lookup(s.From)
		if !ok {
			if !yield(nil, &domain.ErrMalformedSpec{Reason: "$lookup: unknown collection " + s.From}) {
				return
			}
			return
		}
		localAddr, err := rt.FieldNavigator.GetAddress(s.LocalField)
		if err != nil {
			yield(nil, err)
			return
		}
		foreignAddr, err := rt.FieldNavigator.GetAddress(s.ForeignField)
		if err != nil {
			yield(nil, err)
			return
		}
		for doc, err := range upstream {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			localFields, _, err := rt.FieldNavigator.GetField(doc, localAddr...)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			localVal, _ := localFields[0].Get()

			var matches []any
			for _, fdoc := range foreign {
				foreignFields, _, err := rt.FieldNavigator.GetField(fdoc, foreignAddr...)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				foreignVal, _ := foreignFields[0].Get()
				c, err := rt.Comparer.Compare(localVal, foreignVal)
				if err != nil {
					continue
				}
				if c == 0 {
					matches = append(matches, fdoc)
				}
			}
			if matches == nil {
				matches = []any{}
			}

			clone, err := rt.DocFac(doc)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			clone.Set(s.As, matches)
			if !yield(clone, nil) {
				return
			}
		}
	}
}

// runPipeline implements $lookup's generalized let/pipeline form: Pipeline
// runs against From's documents once per outer document, with Let's
// bindings evaluated against that outer document and exposed as $$vars.
func (s *LookupStage) runPipeline(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		if rt.Lookup == nil {
			yield(nil, &domain.ErrMalformedSpec{Reason: "$lookup: no collection context configured"})
			return
		}
		foreign, ok := rt.Lookup(s.From)
		if !ok {
			yield(nil, &domain.ErrMalformedSpec{Reason: "$lookup: unknown collection " + s.From})
			return
		}

		for doc, err := range upstream {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			vars := make(map[string]any, len(s.Let))
			frame := &domain.Frame{Root: doc, Current: doc, Opts: rt.Opts}
			for name, expr := range s.Let {
				val, defined, err := rt.Evaluator.Compute(doc, expr, frame)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if defined {
					vars[name] = val
				}
			}

			subRt := s.runtimeWithVars(rt, vars)
			matched, err := drain(s.runSubPipeline(foreign, subRt))
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			matches := make([]any, len(matched))
			for i, d := range matched {
				matches[i] = d
			}

			clone, err := rt.DocFac(doc)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			clone.Set(s.As, matches)
			if !yield(clone, nil) {
				return
			}
		}
	}
}

// runtimeWithVars clones rt with a new Opts whose Variables layers vars on
// top of rt.Opts.Variables, so sub-pipeline stages see $$vars the same way
// $let-introduced variables are threaded via Frame.Opts.
func (s *LookupStage) runtimeWithVars(rt *domain.Runtime, vars map[string]any) *domain.Runtime {
	merged := make(map[string]any, len(rt.Opts.Variables)+len(vars))
	for k, v := range rt.Opts.Variables {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	subOpts := *rt.Opts
	subOpts.Variables = merged
	subRt := *rt
	subRt.Opts = &subOpts
	return &subRt
}

func (s *LookupStage) runSubPipeline(docs []domain.Document, rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	seq := emit(docs)
	for _, stage := range s.Pipeline {
		seq = stage.Run(seq, rt)
	}
	return seq
}
