package observability

// --- Graph Attributes ---

const (
	AttrGraphRunID     = "graph.run_id"
	AttrGraphNode      = "graph.node"
	AttrGraphStatus    = "graph.status"
	AttrGraphSequence  = "graph.sequence"
	AttrGraphNodeCount = "graph.node_count"
	AttrGraphEntry     = "graph.entry"
	AttrGraphTarget    = "graph.target"
	AttrGraphResumed   = "graph.resumed"
)

// --- Invoker Attributes ---

const (
	// AttrInvokeTier is the name of the tier that served (or failed) a call
	AttrInvokeTier = "invoke.tier"

	// AttrInvokeAttempt is the 1-based attempt number on the current tier
	AttrInvokeAttempt = "invoke.attempt"

	// AttrInvokeErrorKind is the classified failure kind (quota, unauthorized, timeout, other)
	AttrInvokeErrorKind = "invoke.error_kind"
)

// --- LLM Provider Attributes ---

const (
	AttrLLMProvider     = "llm.provider"
	AttrLLMModel        = "llm.model"
	AttrLLMEndpoint     = "llm.endpoint"
	AttrLLMFinishReason = "llm.finish_reason"
	AttrLLMTokensTotal  = "llm.tokens.total" // #nosec G101 -- Not a credential, token refers to LLM tokens
)

// --- Checkpoint Attributes ---

const (
	AttrCheckpointBackend = "checkpoint.backend"
)

// --- HTTP Attributes ---

const (
	AttrHTTPMethod           = "http.method"
	AttrHTTPStatusCode       = "http.status_code"
	AttrHTTPURL              = "http.url"
	AttrHTTPRequestBodySize  = "http.request.body.size"
	AttrHTTPResponseBodySize = "http.response.body.size"
)

// --- General Attributes ---

const (
	AttrError             = "error"
	AttrDuration          = "duration"
	AttrStatus            = "status"
	AttrStatusDescription = "status_description"
)

// --- Span Names ---

const (
	SpanGraphRun   = "graph.run"
	SpanGraphNode  = "graph.node"
	SpanInvoke     = "invoke"
	SpanLLMRequest = "llm.request"
)

// --- Event Names ---

const (
	EventLLMRequestStart = "llm.request.start"
	EventLLMRequestEnd   = "llm.request.end"
	EventInvokeRetry     = "invoke.retry"
	EventInvokeFallback  = "invoke.fallback"
	EventCheckpointSaved = "checkpoint.saved"
)

// --- Metric Names ---

const (
	MetricGraphRuns              = "graph.runs"
	MetricGraphRunDuration       = "graph.run.duration"
	MetricGraphNodesExecuted     = "graph.nodes.executed"
	MetricGraphNodesFailed       = "graph.nodes.failed"
	MetricGraphNodeDuration      = "graph.node.duration"
	MetricGraphCheckpointsFailed = "graph.checkpoints.failed"
	MetricInvokeAttempts         = "invoke.attempts"
	MetricInvokeFallbacks        = "invoke.fallbacks"
)
