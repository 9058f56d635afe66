package pipeline

import (
	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
)

// Compile translates a raw aggregation pipeline — a slice of single-key
// "$stageName" documents — into the corresponding [domain.Stage] chain.
func Compile(spec []domain.Document) ([]domain.Stage, error) {
	stages := make([]domain.Stage, 0, len(spec))
	for _, step := range spec {
		if step.Len() != 1 {
			return nil, &domain.ErrMalformedSpec{Reason: "pipeline stage must have exactly one operator"}
		}
		for name, arg := range step.Iter() {
			stage, err := compileStage(name, arg)
			if err != nil {
				return nil, err
			}
			stages = append(stages, stage)
		}
	}
	return stages, nil
}

func compileStage(name string, arg any) (domain.Stage, error) {
	switch name {
	case "$match":
		doc, ok := arg.(domain.Document)
		if !ok {
			return nil, &domain.ErrMalformedSpec{Reason: "$match requires a document"}
		}
		return &MatchStage{Query: doc}, nil
	case "$project", "$addFields", "$set", "$unset":
		return compileProjectLike(name, arg)
	case "$limit":
		n, ok := asInt64(arg)
		if !ok {
			return nil, &domain.ErrMalformedSpec{Reason: "$limit requires an integer"}
		}
		return &LimitStage{N: n}, nil
	case "$skip":
		n, ok := asInt64(arg)
		if !ok {
			return nil, &domain.ErrMalformedSpec{Reason: "$skip requires an integer"}
		}
		return &SkipStage{N: n}, nil
	case "$count":
		field, ok := arg.(string)
		if !ok {
			return nil, &domain.ErrMalformedSpec{Reason: "$count requires a string"}
		}
		return &CountStage{Field: field}, nil
	case "$sort":
		doc, ok := arg.(domain.Document)
		if !ok {
			return nil, &domain.ErrMalformedSpec{Reason: "$sort requires a document"}
		}
		// Compound key priority follows doc's own iteration order, so a
		// multi-field sort is only deterministic when doc actually
		// preserves insertion order (data.OrderedDocument) rather than a
		// plain Go map (data.M), whose order is randomized per call.
		sort := make(domain.Sort, 0, doc.Len())
		for k, v := range doc.Iter() {
			n, _ := asInt64(v)
			sort = append(sort, domain.SortName{Key: k, Order: n})
		}
		return &SortStage{Sort: sort}, nil
	case "$unwind":
		return compileUnwind(arg)
	case "$replaceRoot":
		doc, ok := arg.(domain.Document)
		if !ok {
			return nil, &domain.ErrMalformedSpec{Reason: "$replaceRoot requires a document"}
		}
		return &ReplaceRootStage{NewRoot: doc.Get("newRoot")}, nil
	case "$replaceWith":
		return &ReplaceRootStage{NewRoot: arg}, nil
	case "$group":
		return compileGroup(arg)
	case "$bucket":
		return compileBucket(arg)
	case "$bucketAuto":
		return compileBucketAuto(arg)
	case "$lookup":
		return compileLookup(arg)
	case "$graphLookup":
		return compileGraphLookup(arg)
	case "$facet":
		return compileFacet(arg)
	case "$setWindowFields":
		return compileSetWindowFields(arg)
	default:
		return nil, &domain.ErrUnknownOperator{Name: name}
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func compileProjectLike(name string, arg any) (domain.Stage, error) {
	if name == "$unset" {
		spec := make(map[string]any)
		switch v := arg.(type) {
		case string:
			spec[v] = 0
		case []any:
			for _, f := range v {
				if s, ok := f.(string); ok {
					spec[s] = 0
				}
			}
		case domain.Document:
			for k := range v.Iter() {
				spec[k] = 0
			}
		default:
			return nil, &domain.ErrMalformedSpec{Reason: "$unset requires a string, array or document"}
		}
		return &ProjectStage{Spec: data.M(spec)}, nil
	}
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: name + " requires a document"}
	}
	return &ProjectStage{Spec: doc}, nil
}

func compileUnwind(arg any) (domain.Stage, error) {
	if path, ok := arg.(string); ok {
		return &UnwindStage{Path: path}, nil
	}
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$unwind requires a string or document"}
	}
	path, _ := doc.Get("path").(string)
	includeIdx, _ := doc.Get("includeArrayIndex").(string)
	preserve, _ := doc.Get("preserveNullAndEmptyArrays").(bool)
	return &UnwindStage{Path: path, IncludeArrayIndex: includeIdx, PreserveNullAndEmptyArrays: preserve}, nil
}

// compileAccumulatorFields parses the non-"_id" fields of a $group/$bucket/
// $bucketAuto output document, each a single-operator document, into
// [GroupSpec]s.
func compileAccumulatorFields(doc domain.Document, stageName string) ([]GroupSpec, error) {
	var fields []GroupSpec
	for field, value := range doc.Iter() {
		if field == "_id" {
			continue
		}
		accSpec, ok := value.(domain.Document)
		if !ok || accSpec.Len() != 1 {
			return nil, &domain.ErrMalformedSpec{Reason: stageName + " field must be a single-operator document"}
		}
		for op, expr := range accSpec.Iter() {
			fields = append(fields, GroupSpec{Field: field, Operator: op, Expr: expr})
		}
	}
	return fields, nil
}

func compileGroup(arg any) (domain.Stage, error) {
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$group requires a document"}
	}
	fields, err := compileAccumulatorFields(doc, "$group")
	if err != nil {
		return nil, err
	}
	return &GroupStage{ID: doc.Get("_id"), Fields: fields}, nil
}

func compileBucket(arg any) (domain.Stage, error) {
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$bucket requires a document"}
	}
	boundaries, ok := doc.Get("boundaries").([]any)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$bucket.boundaries must be an array"}
	}
	output, _ := doc.Get("output").(domain.Document)
	var fields []GroupSpec
	if output != nil {
		var err error
		fields, err = compileAccumulatorFields(output, "$bucket.output")
		if err != nil {
			return nil, err
		}
	}
	stage := &BucketStage{GroupBy: doc.Get("groupBy"), Boundaries: boundaries, Fields: fields}
	if doc.Has("default") {
		stage.Default, stage.HasDefault = doc.Get("default"), true
	}
	return stage, nil
}

func compileBucketAuto(arg any) (domain.Stage, error) {
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$bucketAuto requires a document"}
	}
	n, ok := asInt64(doc.Get("buckets"))
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$bucketAuto.buckets must be an integer"}
	}
	output, _ := doc.Get("output").(domain.Document)
	var fields []GroupSpec
	if output != nil {
		var err error
		fields, err = compileAccumulatorFields(output, "$bucketAuto.output")
		if err != nil {
			return nil, err
		}
	}
	return &BucketAutoStage{GroupBy: doc.Get("groupBy"), Buckets: int(n), Fields: fields}, nil
}

func compileLookup(arg any) (domain.Stage, error) {
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$lookup requires a document"}
	}
	from, _ := doc.Get("from").(string)
	local, _ := doc.Get("localField").(string)
	foreign, _ := doc.Get("foreignField").(string)
	as, _ := doc.Get("as").(string)
	stage := &LookupStage{From: from, LocalField: local, ForeignField: foreign, As: as}

	if letSpec, ok := doc.Get("let").(domain.Document); ok {
		let := make(map[string]any, letSpec.Len())
		for name, expr := range letSpec.Iter() {
			let[name] = expr
		}
		stage.Let = let
	}
	if subArr, ok := doc.Get("pipeline").([]any); ok {
		subDocs := make([]domain.Document, 0, len(subArr))
		for _, s := range subArr {
			if d, ok := s.(domain.Document); ok {
				subDocs = append(subDocs, d)
			}
		}
		stages, err := Compile(subDocs)
		if err != nil {
			return nil, err
		}
		stage.Pipeline = stages
	}
	return stage, nil
}

func compileGraphLookup(arg any) (domain.Stage, error) {
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$graphLookup requires a document"}
	}
	from, _ := doc.Get("from").(string)
	connectFrom, _ := doc.Get("connectFromField").(string)
	connectTo, _ := doc.Get("connectToField").(string)
	as, _ := doc.Get("as").(string)
	depthField, _ := doc.Get("depthField").(string)
	stage := &GraphLookupStage{
		From:             from,
		StartWith:        doc.Get("startWith"),
		ConnectFromField: connectFrom,
		ConnectToField:   connectTo,
		As:               as,
		DepthField:       depthField,
	}
	if n, ok := asInt64(doc.Get("maxDepth")); ok {
		stage.MaxDepth, stage.HasMaxDepth = int(n), true
	}
	return stage, nil
}

func compileWindowBound(v any) WindowBound {
	if s, ok := v.(string); ok && s == "unbounded" {
		return WindowBound{Unbounded: true}
	}
	n, _ := asInt64(v)
	return WindowBound{Offset: int(n)}
}

func compileSetWindowFields(arg any) (domain.Stage, error) {
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$setWindowFields requires a document"}
	}
	stage := &SetWindowFieldsStage{PartitionBy: doc.Get("partitionBy")}
	if sortDoc, ok := doc.Get("sortBy").(domain.Document); ok {
		for k, v := range sortDoc.Iter() {
			n, _ := asInt64(v)
			stage.Sort = append(stage.Sort, domain.SortName{Key: k, Order: n})
		}
	}
	output, ok := doc.Get("output").(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$setWindowFields.output must be a document"}
	}
	for field, value := range output.Iter() {
		fieldSpec, ok := value.(domain.Document)
		if !ok {
			return nil, &domain.ErrMalformedSpec{Reason: "$setWindowFields output field must be a document"}
		}
		wf := WindowField{Field: field, Lower: WindowBound{Unbounded: true}, Upper: WindowBound{Unbounded: true}}
		for k, v := range fieldSpec.Iter() {
			if k == "window" {
				continue
			}
			wf.Operator, wf.Expr = k, v
		}
		if winDoc, ok := fieldSpec.Get("window").(domain.Document); ok {
			if bounds, ok := winDoc.Get("documents").([]any); ok && len(bounds) == 2 {
				wf.Lower = compileWindowBound(bounds[0])
				wf.Upper = compileWindowBound(bounds[1])
			}
		}
		if wf.Operator == "" {
			return nil, &domain.ErrMalformedSpec{Reason: "$setWindowFields output field requires an accumulator operator"}
		}
		stage.Fields = append(stage.Fields, wf)
	}
	return stage, nil
}

func compileFacet(arg any) (domain.Stage, error) {
	doc, ok := arg.(domain.Document)
	if !ok {
		return nil, &domain.ErrMalformedSpec{Reason: "$facet requires a document"}
	}
	names := make([]string, 0, doc.Len())
	facets := make(map[string][]domain.Stage, doc.Len())
	for name, sub := range doc.Iter() {
		subArr, ok := sub.([]any)
		if !ok {
			return nil, &domain.ErrMalformedSpec{Reason: "$facet sub-pipeline must be an array"}
		}
		subDocs := make([]domain.Document, 0, len(subArr))
		for _, s := range subArr {
			if d, ok := s.(domain.Document); ok {
				subDocs = append(subDocs, d)
			}
		}
		stages, err := Compile(subDocs)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		facets[name] = stages
	}
	return &FacetStage{Names: names, Facets: facets}, nil
}
