package domain

// ProcessingMode controls how the pipeline treats input documents (§3's
// Lifecycle paragraph): whether it may mutate them in place, must deep-copy
// at ingress, or copies lazily on first write.
type ProcessingMode int

const (
	// CopyInput shallow-copies a document the first time a stage needs to
	// write to it. Default.
	CopyInput ProcessingMode = iota
	// CloneOff permits in-place mutation of the caller's documents.
	CloneOff
	// CloneInput deep-copies every document at ingress.
	CloneInput
)

// CollationDescriptor carries the locale/strength/case/numeric-ordering
// knobs of §4.7, consumed by an [Collator] implementation.
type CollationDescriptor struct {
	Locale          string
	Strength        int
	CaseFirst       string // "upper", "lower", "off"
	NumericOrdering bool
	Alternate       string // "non-ignorable", "shifted"
	CaseLevel       bool
	Backwards       bool
}

// WithEngineCollation sets the collation descriptor used for string
// comparisons in $sort, $group key equality and collation-aware operators.
func WithEngineCollation(c CollationDescriptor) EngineOption {
	return func(eo *EngineOptions) { eo.Collation = &c }
}

// WithEngineProcessingMode sets the document ownership/mutation discipline.
func WithEngineProcessingMode(m ProcessingMode) EngineOption {
	return func(eo *EngineOptions) { eo.ProcessingMode = m }
}

// WithEngineIDKey overrides the name of the identity field, default "_id".
func WithEngineIDKey(key string) EngineOption {
	return func(eo *EngineOptions) { eo.IDKey = key }
}

// WithEngineVariables pre-populates $$variable bindings visible to every
// expression evaluated by the query or pipeline.
func WithEngineVariables(vars map[string]any) EngineOption {
	return func(eo *EngineOptions) { eo.Variables = vars }
}

// WithEngineScriptEnabled allows $where/$function to invoke
// host-provided code via the configured [ScriptEvaluator].
func WithEngineScriptEnabled(enabled bool) EngineOption {
	return func(eo *EngineOptions) { eo.ScriptEnabled = enabled }
}

// WithEngineScriptEvaluator sets the capability hook that actually executes
// script operators.
func WithEngineScriptEvaluator(s ScriptEvaluator) EngineOption {
	return func(eo *EngineOptions) { eo.Script = s }
}

// WithEngineContext registers a lookup table of named in-memory collections
// that $lookup/$graphLookup may reference by name.
func WithEngineContext(collections map[string][]Document) EngineOption {
	return func(eo *EngineOptions) { eo.Context = collections }
}

// WithEngineOperators registers additional or overriding operators on top
// of the built-in catalog.
func WithEngineOperators(ops map[string]OperatorFunc) EngineOption {
	return func(eo *EngineOptions) { eo.ExtraOperators = ops }
}

// EngineOption configures a Query/Aggregator through the functional options
// pattern (§6's options table).
type EngineOption func(*EngineOptions)

// EngineOptions holds every option from §6's table.
type EngineOptions struct {
	Collation      *CollationDescriptor
	ProcessingMode ProcessingMode
	IDKey          string
	Variables      map[string]any
	ScriptEnabled  bool
	Script         ScriptEvaluator
	Context        map[string][]Document
	ExtraOperators map[string]OperatorFunc
}

// WithFindProjection specifies which fields to include or exclude from query
// results.
func WithFindProjection(p Document) FindOption {
	return func(fo *FindOptions) { fo.Projection = p }
}

// WithFindSkip sets the number of documents to skip in query results.
func WithFindSkip(s int64) FindOption {
	return func(fo *FindOptions) { fo.Skip = s }
}

// WithFindLimit sets the maximum number of documents to return.
func WithFindLimit(l int64) FindOption {
	return func(fo *FindOptions) { fo.Limit = l }
}

// WithFindSort specifies the sort order for query results.
func WithFindSort(s Sort) FindOption {
	return func(fo *FindOptions) { fo.Sort = s }
}

// FindOption configures query behavior through the functional options
// pattern.
type FindOption func(*FindOptions)

// FindOptions contains parameters for customizing query execution.
type FindOptions struct {
	Projection Document
	Skip       int64
	Limit      int64
	Sort       Sort
}

// WithMatcherDocumentFactory sets the document factory for creating
// documents during matching.
func WithMatcherDocumentFactory(d DocumentFactory) MatcherOption {
	return func(mo *MatcherOptions) { mo.DocumentFactory = d }
}

// WithMatcherComparer sets the comparer implementation for value comparisons
// during matching.
func WithMatcherComparer(c Comparer) MatcherOption {
	return func(mo *MatcherOptions) { mo.Comparer = c }
}

// WithMatcherFieldNavigator sets the field navigator for accessing document
// fields during matching.
func WithMatcherFieldNavigator(f FieldNavigator) MatcherOption {
	return func(mo *MatcherOptions) { mo.FieldNavigator = f }
}

// WithMatcherEvaluator sets [MatcherOptions].Evaluator. The matcher in
// internal/adapter/matcher does not read it.
func WithMatcherEvaluator(e Evaluator) MatcherOption {
	return func(mo *MatcherOptions) { mo.Evaluator = e }
}

// WithMatcherScript sets the script capability hook for $where.
func WithMatcherScript(s ScriptEvaluator, enabled bool) MatcherOption {
	return func(mo *MatcherOptions) { mo.Script = s; mo.ScriptEnabled = enabled }
}

// MatcherOption configures matcher behavior through the functional options
// pattern.
type MatcherOption func(*MatcherOptions)

// MatcherOptions contains parameters for customizing matcher behavior.
type MatcherOptions struct {
	DocumentFactory DocumentFactory
	Comparer        Comparer
	FieldNavigator  FieldNavigator
	Evaluator       Evaluator
	Script          ScriptEvaluator
	ScriptEnabled   bool
}

// WithProjectorFieldNavigator sets the [FieldNavigator] that will be used by
// [Projector].
func WithProjectorFieldNavigator(fn FieldNavigator) ProjectorOption {
	return func(po *ProjectorOptions) { po.FieldNavigator = fn }
}

// WithProjectorDocumentFactory sets the [Document] factory function that
// will be used by [Projector].
func WithProjectorDocumentFactory(df DocumentFactory) ProjectorOption {
	return func(po *ProjectorOptions) { po.DocFac = df }
}

// WithProjectorEvaluator sets the expression evaluator used for computed
// projection fields.
func WithProjectorEvaluator(e Evaluator) ProjectorOption {
	return func(po *ProjectorOptions) { po.Evaluator = e }
}

// WithProjectorMatcher sets the [Matcher] used to evaluate $elemMatch
// projection specs.
func WithProjectorMatcher(m Matcher) ProjectorOption {
	return func(po *ProjectorOptions) { po.Matcher = m }
}

// ProjectorOption configures projector behavior through the functional
// options pattern.
type ProjectorOption func(*ProjectorOptions)

// ProjectorOptions contains parameters for customizing projector behavior.
type ProjectorOptions struct {
	FieldNavigator FieldNavigator
	DocFac         DocumentFactory
	Evaluator      Evaluator
	Matcher        Matcher
}

// WithComparerCollator sets the [Collator] consulted for string comparisons,
// per §4.7's collation knobs.
func WithComparerCollator(c Collator) ComparerOption {
	return func(co *ComparerOptions) { co.Collator = c }
}

// ComparerOption configures comparer behavior through the functional options
// pattern.
type ComparerOption func(*ComparerOptions)

// ComparerOptions contains parameters for customizing comparer behavior.
type ComparerOptions struct {
	Collator Collator
}

// WithQuery sets the query criteria for a Query call.
func WithQuery(q Document) QueryOption {
	return func(qo *QueryOptions) { qo.Query = q }
}

// WithQueryLimit sets the maximum number of documents the query should
// return.
func WithQueryLimit(l int64) QueryOption {
	return func(qo *QueryOptions) { qo.Limit = l }
}

// WithQuerySkip sets the number of documents the query should skip.
func WithQuerySkip(s int64) QueryOption {
	return func(qo *QueryOptions) { qo.Skip = s }
}

// WithQuerySort sets the sort order for query results.
func WithQuerySort(s Sort) QueryOption {
	return func(qo *QueryOptions) { qo.Sort = s }
}

// WithQueryProjection specifies which fields to include or exclude in query
// results.
func WithQueryProjection(p Document) QueryOption {
	return func(qo *QueryOptions) { qo.Projection = p }
}

// QueryOption configures query behavior through the functional options
// pattern.
type QueryOption func(*QueryOptions)

// QueryOptions contains parameters for customizing query behavior.
type QueryOptions struct {
	Query      Document
	Limit      int64
	Skip       int64
	Sort       Sort
	Projection Document
}

// WithCursorDecoder sets the decoder for converting cursor results.
func WithCursorDecoder(d Decoder) CursorOption {
	return func(co *CursorOptions) { co.Decoder = d }
}

// CursorOption configures cursor behavior through the functional options
// pattern.
type CursorOption func(*CursorOptions)

// CursorOptions contains parameters for customizing cursor behavior.
type CursorOptions struct {
	Decoder Decoder
}
