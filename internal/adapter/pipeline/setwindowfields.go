package pipeline

import (
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/accumulator"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/canon"
)

// WindowBound describes one edge of a $setWindowFields documents window:
// "unbounded", "current" (offset 0 from the current document) or a signed
// integer document offset.
type WindowBound struct {
	Unbounded bool
	Offset    int
}

// WindowField describes one output field of $setWindowFields.
type WindowField struct {
	Field    string
	Operator string
	Expr     any
	Lower    WindowBound
	Upper    WindowBound
}

// SetWindowFieldsStage implements $setWindowFields: partitions upstream
// documents, sorts each partition, then for every document recomputes each
// configured accumulator over the slice of the partition its window covers.
type SetWindowFieldsStage struct {
	PartitionBy any
	Sort        domain.Sort
	Fields      []WindowField
}

// Run implements [domain.Stage].
func (s *SetWindowFieldsStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	docs, err := drain(upstream)
	if err != nil {
		return fail(err)
	}

	norm := canon.NewNormalizer(rt.DocFac)
	accFactories := accumulator.Registry(rt.Comparer, norm, rt.Hasher)

	partitions, order, err := s.partition(docs, rt, norm)
	if err != nil {
		return fail(err)
	}

	var res []domain.Document
	for _, key := range order {
		part := partitions[key]
		if err := s.sortPartition(part, rt); err != nil {
			return fail(err)
		}
		out, err := s.computeWindows(part, rt, accFactories)
		if err != nil {
			return fail(err)
		}
		res = append(res, out...)
	}
	return emit(res)
}

func (s *SetWindowFieldsStage) partition(docs []domain.Document, rt *domain.Runtime, norm *canon.Normalizer) (map[uint64][]domain.Document, []uint64, error) {
	if s.PartitionBy == nil {
		return map[uint64][]domain.Document{0: docs}, []uint64{0}, nil
	}
	partitions := map[uint64][]domain.Document{}
	var order []uint64
	for _, doc := range docs {
		frame := &domain.Frame{Root: doc, Current: doc, Opts: rt.Opts}
		v, _, err := rt.Evaluator.Compute(doc, s.PartitionBy, frame)
		if err != nil {
			return nil, nil, err
		}
		key, err := norm.Key(v, rt.Hasher)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], doc)
	}
	return partitions, order, nil
}

func (s *SetWindowFieldsStage) sortPartition(part []domain.Document, rt *domain.Runtime) error {
	if len(s.Sort) == 0 {
		return nil
	}
	var sortErr error
	slices.SortStableFunc(part, func(a, b domain.Document) int {
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
	return sortErr
}

func (s *SetWindowFieldsStage) computeWindows(part []domain.Document, rt *domain.Runtime, accFactories map[string]domain.AccumulatorFactory) ([]domain.Document, error) {
	n := len(part)
	res := make([]domain.Document, n)
	for i, doc := range part {
		clone, err := rt.DocFac(doc)
		if err != nil {
			return nil, err
		}
		for _, wf := range s.Fields {
			lo := windowIndex(wf.Lower, i, n, true)
			hi := windowIndex(wf.Upper, i, n, false)
			if lo > hi || lo >= n || hi < 0 {
				clone.Set(wf.Field, nil)
				continue
			}
			factory, ok := accFactories[wf.Operator]
			if !ok {
				return nil, &domain.ErrUnknownOperator{Name: wf.Operator}
			}
			acc := factory()
			for _, wdoc := range part[max(lo, 0):min(hi+1, n)] {
				frame := &domain.Frame{Root: wdoc, Current: wdoc, Opts: rt.Opts}
				val, defined, err := rt.Evaluator.Compute(wdoc, wf.Expr, frame)
				if err != nil {
					return nil, err
				}
				if err := acc.Accumulate(val, defined); err != nil {
					return nil, err
				}
			}
			val, err := acc.Finish()
			if err != nil {
				return nil, err
			}
			clone.Set(wf.Field, val)
		}
		res[i] = clone
	}
	return res, nil
}

func windowIndex(b WindowBound, i, n int, lower bool) int {
	if b.Unbounded {
		if lower {
			return 0
		}
		return n - 1
	}
	return i + b.Offset
}
