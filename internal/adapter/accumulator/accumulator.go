// Package accumulator implements the $group/$bucket/$bucketAuto stateful
// accumulators behind [domain.AccumulatorFactory]: $sum, $avg, $min, $max,
// $push, $addToSet, $first, $last, $stdDevPop, $stdDevSamp, $count.
package accumulator

import (
	"math"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/canon"
)

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

type sumAcc struct{ total float64 }

func (a *sumAcc) Accumulate(v any, defined bool) error {
	if f, ok := asFloat(v); defined && ok {
		a.total += f
	}
	return nil
}
func (a *sumAcc) Finish() (any, error) { return a.total, nil }

// NewSum returns the $sum [domain.AccumulatorFactory].
func NewSum() domain.AccumulatorFactory {
	return func() domain.Accumulator { return &sumAcc{} }
}

type avgAcc struct {
	total float64
	count int
}

func (a *avgAcc) Accumulate(v any, defined bool) error {
	if f, ok := asFloat(v); defined && ok {
		a.total += f
		a.count++
	}
	return nil
}
func (a *avgAcc) Finish() (any, error) {
	if a.count == 0 {
		return nil, nil
	}
	return a.total / float64(a.count), nil
}

// NewAvg returns the $avg [domain.AccumulatorFactory].
func NewAvg() domain.AccumulatorFactory {
	return func() domain.Accumulator { return &avgAcc{} }
}

type minMaxAcc struct {
	cmp domain.Comparer
	val any
	set bool
	min bool
}

func (a *minMaxAcc) Accumulate(v any, defined bool) error {
	if !defined {
		return nil
	}
	if !a.set {
		a.val, a.set = v, true
		return nil
	}
	c, err := a.cmp.Compare(v, a.val)
	if err != nil {
		return err
	}
	if (a.min && c < 0) || (!a.min && c > 0) {
		a.val = v
	}
	return nil
}
func (a *minMaxAcc) Finish() (any, error) { return a.val, nil }

// NewMin returns the $min [domain.AccumulatorFactory].
func NewMin(cmp domain.Comparer) domain.AccumulatorFactory {
	return func() domain.Accumulator { return &minMaxAcc{cmp: cmp, min: true} }
}

// NewMax returns the $max [domain.AccumulatorFactory].
func NewMax(cmp domain.Comparer) domain.AccumulatorFactory {
	return func() domain.Accumulator { return &minMaxAcc{cmp: cmp, min: false} }
}

type pushAcc struct{ values []any }

func (a *pushAcc) Accumulate(v any, defined bool) error {
	if defined {
		a.values = append(a.values, v)
	}
	return nil
}
func (a *pushAcc) Finish() (any, error) {
	if a.values == nil {
		return []any{}, nil
	}
	return a.values, nil
}

// NewPush returns the $push [domain.AccumulatorFactory].
func NewPush() domain.AccumulatorFactory {
	return func() domain.Accumulator { return &pushAcc{} }
}

type addToSetAcc struct {
	norm   *canon.Normalizer
	hasher domain.Hasher
	seen   map[uint64]bool
	values []any
}

func (a *addToSetAcc) Accumulate(v any, defined bool) error {
	if !defined {
		return nil
	}
	key, err := a.norm.Key(v, a.hasher)
	if err != nil {
		return err
	}
	if a.seen[key] {
		return nil
	}
	if a.seen == nil {
		a.seen = map[uint64]bool{}
	}
	a.seen[key] = true
	a.values = append(a.values, v)
	return nil
}
func (a *addToSetAcc) Finish() (any, error) {
	if a.values == nil {
		return []any{}, nil
	}
	return a.values, nil
}

// NewAddToSet returns the $addToSet [domain.AccumulatorFactory].
func NewAddToSet(norm *canon.Normalizer, hasher domain.Hasher) domain.AccumulatorFactory {
	return func() domain.Accumulator { return &addToSetAcc{norm: norm, hasher: hasher, seen: map[uint64]bool{}} }
}

type firstLastAcc struct {
	val   any
	set   bool
	first bool
}

func (a *firstLastAcc) Accumulate(v any, defined bool) error {
	if !defined {
		return nil
	}
	if a.first && a.set {
		return nil
	}
	a.val, a.set = v, true
	return nil
}
func (a *firstLastAcc) Finish() (any, error) { return a.val, nil }

// NewFirst returns the $first [domain.AccumulatorFactory].
func NewFirst() domain.AccumulatorFactory {
	return func() domain.Accumulator { return &firstLastAcc{first: true} }
}

// NewLast returns the $last [domain.AccumulatorFactory].
func NewLast() domain.AccumulatorFactory {
	return func() domain.Accumulator { return &firstLastAcc{first: false} }
}

type stdDevAcc struct {
	sample bool
	values []float64
}

func (a *stdDevAcc) Accumulate(v any, defined bool) error {
	if f, ok := asFloat(v); defined && ok {
		a.values = append(a.values, f)
	}
	return nil
}
func (a *stdDevAcc) Finish() (any, error) {
	n := len(a.values)
	if n == 0 || (a.sample && n < 2) {
		return nil, nil
	}
	var mean float64
	for _, v := range a.values {
		mean += v
	}
	mean /= float64(n)
	var sumSq float64
	for _, v := range a.values {
		sumSq += (v - mean) * (v - mean)
	}
	divisor := float64(n)
	if a.sample {
		divisor = float64(n - 1)
	}
	return math.Sqrt(sumSq / divisor), nil
}

// NewStdDevPop returns the $stdDevPop [domain.AccumulatorFactory].
func NewStdDevPop() domain.AccumulatorFactory {
	return func() domain.Accumulator { return &stdDevAcc{} }
}

// NewStdDevSamp returns the $stdDevSamp [domain.AccumulatorFactory].
func NewStdDevSamp() domain.AccumulatorFactory {
	return func() domain.Accumulator { return &stdDevAcc{sample: true} }
}

type countAcc struct{ n int }

func (a *countAcc) Accumulate(_ any, _ bool) error { a.n++; return nil }
func (a *countAcc) Finish() (any, error)           { return a.n, nil }

// NewCount returns the $count accumulator [domain.AccumulatorFactory],
// counting every document regardless of whether the input expression is
// defined.
func NewCount() domain.AccumulatorFactory {
	return func() domain.Accumulator { return &countAcc{} }
}

// Registry maps accumulator operator names to factories, built once per
// Aggregator.Run and consulted by the $group/$bucket/$bucketAuto stages.
func Registry(cmp domain.Comparer, norm *canon.Normalizer, hasher domain.Hasher) map[string]domain.AccumulatorFactory {
	return map[string]domain.AccumulatorFactory{
		"$sum":        NewSum(),
		"$avg":        NewAvg(),
		"$min":        NewMin(cmp),
		"$max":        NewMax(cmp),
		"$push":       NewPush(),
		"$addToSet":   NewAddToSet(norm, hasher),
		"$first":      NewFirst(),
		"$last":       NewLast(),
		"$stdDevPop":  NewStdDevPop(),
		"$stdDevSamp": NewStdDevSamp(),
		"$count":      NewCount(),
	}
}
