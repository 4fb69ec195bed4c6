package api

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query          string         `json:"query"`
	TopK           *int           `json:"top_k"`
	ScoreThreshold *float64       `json:"score_threshold"`
	Filter         map[string]any `json:"filter"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	SourceFile string  `json:"source_file"`
	Category   string  `json:"category"`
	Title      string  `json:"title,omitempty"`
	Offset     int     `json:"offset"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// SearchResponse is the body returned by POST /search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// ContextRequest is the body of POST /get_context.
type ContextRequest struct {
	CaseFacts     string         `json:"case_facts"`
	EvidenceChain string         `json:"evidence_chain"`
	TopK          *int           `json:"top_k"`
	MinScore      *float64       `json:"min_score"`
	Filter        map[string]any `json:"filter"`
}

// ContextResult is one chunk used to build the context.
type ContextResult struct {
	Text       string  `json:"text"`
	SourceFile string  `json:"source_file"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
}

// ContextResponse is the body returned by POST /get_context.
type ContextResponse struct {
	Context string          `json:"context"`
	Results []ContextResult `json:"results"`
}

// StatsResponse is the body returned by GET /stats.
type StatsResponse struct {
	RecordCount    uint64 `json:"record_count"`
	Dimension      int    `json:"dimension"`
	DistanceMetric string `json:"distance_metric"`
	CollectionName string `json:"collection_name"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

// ErrorBody carries a stable error code and a human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
