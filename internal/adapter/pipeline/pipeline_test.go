package pipeline

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
)

func TestLookupLetPipelineForm(t *testing.T) {
	rt := testRuntime()
	rt.Lookup = func(name string) ([]domain.Document, bool) {
		if name != "orders" {
			return nil, false
		}
		return []domain.Document{
			M{"customerId": 1, "amount": 10},
			M{"customerId": 1, "amount": 20},
			M{"customerId": 2, "amount": 30},
		}, true
	}

	spec := []domain.Document{
		M{"$lookup": M{
			"from": "orders",
			"let":  M{"id": "$_id"},
			"pipeline": A{
				M{"$addFields": M{"isMatch": M{"$eq": A{"$customerId", "$$id"}}}},
				M{"$match": M{"isMatch": true}},
			},
			"as": "orders",
		}},
	}
	stages, err := Compile(spec)
	require.NoError(t, err)
	require.Len(t, stages, 1)

	docs := []domain.Document{M{"_id": 1}, M{"_id": 2}}
	out := collect(t, stages[0].Run(emit(docs), rt))
	require.Len(t, out, 2)

	orders1, ok := out[0].Get("orders").([]any)
	require.True(t, ok)
	require.Len(t, orders1, 2)

	orders2, ok := out[1].Get("orders").([]any)
	require.True(t, ok)
	require.Len(t, orders2, 1)
}

func TestFacetStagePreservesSpecKeyOrder(t *testing.T) {
	rt := testRuntime()
	docs := []domain.Document{M{"v": 1}, M{"v": 2}, M{"v": 3}}

	// Built from JSON text (data.OrderedDocument, not data.M) so the facet
	// names carry real insertion order instead of a plain map's randomized
	// iteration order — otherwise the spec's own key order wouldn't be
	// recoverable in the first place, defeating the point of this test.
	step, err := data.NewDocument(`{"$facet": {
		"z": [{"$match": {}}],
		"m": [{"$match": {}}],
		"a": [{"$match": {}}]
	}}`)
	require.NoError(t, err)
	spec := []domain.Document{step}

	for range 20 {
		stages, err := Compile(spec)
		require.NoError(t, err)
		require.Len(t, stages, 1)

		out := collect(t, stages[0].Run(emit(docs), rt))
		require.Len(t, out, 1)
		require.Equal(t, []string{"z", "m", "a"}, slices.Collect(out[0].Keys()))
	}
}
