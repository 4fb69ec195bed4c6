// Package mcp exposes statute retrieval as Model Context Protocol tools.
package mcp

// SearchStatutesInput defines the input parameters for the search_statutes tool.
type SearchStatutesInput struct {
	// Query is the natural-language question or legal keywords.
	Query string `json:"query" jsonschema:"The natural-language query, e.g. 合同违约的赔偿责任"`
	// TopK is the maximum number of chunks to return.
	TopK int `json:"top_k,omitempty" jsonschema:"Maximum number of chunks to return (default 5)"`
	// ScoreThreshold drops chunks scoring below it.
	ScoreThreshold float64 `json:"score_threshold,omitempty" jsonschema:"Minimum similarity score (default 0)"`
	// Category restricts results to one statute category.
	Category string `json:"category,omitempty" jsonschema:"Only return chunks of this category, e.g. 民法"`
	// SourceFile restricts results to one source file.
	SourceFile string `json:"source_file,omitempty" jsonschema:"Only return chunks from this source file"`
}

// SearchStatutesOutput contains the search results.
type SearchStatutesOutput struct {
	Results []StatuteChunk `json:"results"`
	// Message is set when nothing matched.
	Message string `json:"message,omitempty"`
}

// StatuteChunk is one retrieved chunk.
type StatuteChunk struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	SourceFile string  `json:"source_file"`
	Category   string  `json:"category"`
	Title      string  `json:"title,omitempty"`
	Score      float64 `json:"score"`
}

// GetLegalContextInput defines the input parameters for the get_legal_context tool.
type GetLegalContextInput struct {
	CaseFacts     string   `json:"case_facts" jsonschema:"Facts of the case"`
	EvidenceChain string   `json:"evidence_chain,omitempty" jsonschema:"Evidence supporting the facts"`
	TopK          int      `json:"top_k,omitempty" jsonschema:"Maximum number of statutes in the context (default 5)"`
	MinScore      *float64 `json:"min_score,omitempty" jsonschema:"Minimum similarity score (default 0.3)"`
	Category      string   `json:"category,omitempty" jsonschema:"Only use statutes of this category"`
}

// GetLegalContextOutput is the rendered context and the chunks behind it.
type GetLegalContextOutput struct {
	Context string         `json:"context"`
	Results []StatuteChunk `json:"results"`
}

// IndexStatusInput takes no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput describes the searched collection.
type IndexStatusOutput struct {
	Collection     string `json:"collection"`
	Healthy        bool   `json:"healthy"`
	RecordCount    uint64 `json:"record_count"`
	Dimension      int    `json:"dimension"`
	DistanceMetric string `json:"distance_metric"`
	Message        string `json:"message,omitempty"`
}
