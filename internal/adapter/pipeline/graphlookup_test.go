package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinicius-lino-figueiredo/memql/domain"
)

func TestGraphLookupStage(t *testing.T) {
	rt := testRuntime()
	employees := []domain.Document{
		M{"_id": "dev", "name": "Dev", "reportsTo": nil},
		M{"_id": "eliot", "name": "Eliot", "reportsTo": "dev"},
		M{"_id": "ron", "name": "Ron", "reportsTo": "eliot"},
	}
	rt.Lookup = func(name string) ([]domain.Document, bool) {
		if name == "employees" {
			return employees, true
		}
		return nil, false
	}

	docs := []domain.Document{M{"_id": "ron", "reportsTo": "eliot"}}
	stage := &GraphLookupStage{
		From:             "employees",
		StartWith:        "$reportsTo",
		ConnectFromField: "reportsTo",
		ConnectToField:   "_id",
		As:               "chain",
	}
	out := collect(t, stage.Run(emit(docs), rt))
	require.Len(t, out, 1)
	chain, ok := out[0].Get("chain").([]any)
	require.True(t, ok)
	require.Len(t, chain, 2)
}

func TestGraphLookupStageMaxDepth(t *testing.T) {
	rt := testRuntime()
	employees := []domain.Document{
		M{"_id": "dev", "reportsTo": nil},
		M{"_id": "eliot", "reportsTo": "dev"},
		M{"_id": "ron", "reportsTo": "eliot"},
	}
	rt.Lookup = func(name string) ([]domain.Document, bool) { return employees, true }

	docs := []domain.Document{M{"_id": "ron", "reportsTo": "eliot"}}
	stage := &GraphLookupStage{
		From:             "employees",
		StartWith:        "$reportsTo",
		ConnectFromField: "reportsTo",
		ConnectToField:   "_id",
		As:               "chain",
		MaxDepth:         0,
		HasMaxDepth:      true,
	}
	out := collect(t, stage.Run(emit(docs), rt))
	chain := out[0].Get("chain").([]any)
	require.Len(t, chain, 1)
}

func TestGraphLookupStageUnknownCollection(t *testing.T) {
	rt := testRuntime()
	rt.Lookup = func(name string) ([]domain.Document, bool) { return nil, false }
	docs := []domain.Document{M{"_id": "a"}}
	stage := &GraphLookupStage{From: "missing", StartWith: "$x", ConnectFromField: "f", ConnectToField: "t", As: "out"}
	var sawErr bool
	for _, err := range stage.Run(emit(docs), rt) {
		if err != nil {
			sawErr = true
		}
	}
	require.True(t, sawErr)
}
