package pipeline

import (
	"iter"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/canon"
)

// GraphLookupStage implements $graphLookup: a recursive search through a
// named foreign collection, following ConnectFromField on each newly
// discovered document to reach the next frontier of ConnectToField values.
type GraphLookupStage struct {
	From             string
	StartWith        any
	ConnectFromField string
	ConnectToField   string
	As               string
	MaxDepth         int
	HasMaxDepth      bool
	DepthField       string
}

// Run implements [domain.Stage].
func (s *GraphLookupStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		if rt.Lookup == nil {
			yield(nil, &domain.ErrMalformedSpec{Reason: "$graphLookup: no collection context configured"})
			return
		}
		foreign, ok := rt.Lookup(s.From)
		if !ok {
			yield(nil, &domain.ErrMalformedSpec{Reason: "$graphLookup: unknown collection " + s.From})
			return
		}
		toAddr, err := rt.FieldNavigator.GetAddress(s.ConnectToField)
		if err != nil {
			yield(nil, err)
			return
		}
		fromAddr, err := rt.FieldNavigator.GetAddress(s.ConnectFromField)
		if err != nil {
			yield(nil, err)
			return
		}
		norm := canon.NewNormalizer(rt.DocFac)

		for doc, err := range upstream {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			matches, err := s.traverse(doc, foreign, toAddr, fromAddr, norm, rt)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
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

func (s *GraphLookupStage) traverse(
	doc domain.Document,
	foreign []domain.Document,
	toAddr, fromAddr []string,
	norm *canon.Normalizer,
	rt *domain.Runtime,
) ([]any, error) {
	frame := &domain.Frame{Root: doc, Current: doc, Opts: rt.Opts}
	startVal, _, err := rt.Evaluator.Compute(doc, s.StartWith, frame)
	if err != nil {
		return nil, err
	}
	frontier := toValueSlice(startVal)

	visited := map[uint64]bool{}
	var result []any

	for depth := 0; len(frontier) > 0; depth++ {
		if s.HasMaxDepth && depth > s.MaxDepth {
			break
		}
		var next []any
		for _, fdoc := range foreign {
			toFields, _, err := rt.FieldNavigator.GetField(fdoc, toAddr...)
			if err != nil {
				return nil, err
			}
			toVal, defined := toFields[0].Get()
			if !defined {
				continue
			}
			if !matchesAny(toVal, frontier, rt.Comparer) {
				continue
			}
			key, err := norm.Key(toVal, rt.Hasher)
			if err != nil {
				return nil, err
			}
			if visited[key] {
				continue
			}
			visited[key] = true

			entry := fdoc
			if s.DepthField != "" {
				clone, err := rt.DocFac(fdoc)
				if err != nil {
					return nil, err
				}
				clone.Set(s.DepthField, depth)
				entry = clone
			}
			result = append(result, entry)

			fromFields, _, err := rt.FieldNavigator.GetField(fdoc, fromAddr...)
			if err != nil {
				return nil, err
			}
			fromVal, defined := fromFields[0].Get()
			if defined {
				next = append(next, toValueSlice(fromVal)...)
			}
		}
		frontier = next
	}
	if result == nil {
		result = []any{}
	}
	return result, nil
}

func toValueSlice(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	if v == nil {
		return nil
	}
	return []any{v}
}

func matchesAny(v any, candidates []any, cmp domain.Comparer) bool {
	for _, c := range candidates {
		if ok, err := cmp.Compare(v, c); err == nil && ok == 0 {
			return true
		}
	}
	return false
}
