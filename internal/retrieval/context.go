package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bull/statute-rag/internal/storage"
)

const (
	// ContextHeader opens a rendered context block.
	ContextHeader = "【相关法律法规】"
	// EvidenceLabel introduces the evidence chain in a context query.
	EvidenceLabel = "【证据链】"
	// NoResultsMarker is the context text when nothing passes the threshold.
	NoResultsMarker = "未找到相关法律法规。"

	// overFetch is how many candidates per requested result are searched
	// so that deduplication can still fill top_k.
	overFetch = 3
)

// ContextQuery asks for statute context for a case.
type ContextQuery struct {
	CaseFacts     string
	EvidenceChain string
	TopK          int
	MinScore      float64
	Filter        *storage.Filter
}

// ContextResult is the rendered context plus the chunks it was built from.
type ContextResult struct {
	Context string
	Results []Result
}

// GetContext retrieves statutes relevant to the case facts and renders them
// as a numbered block for a drafting model.
func (s *Service) GetContext(ctx context.Context, q ContextQuery) (*ContextResult, error) {
	if err := validate(q.CaseFacts, q.TopK, MaxContextTopK); err != nil {
		return nil, err
	}

	hits, err := s.search(ctx, BuildContextQuery(q.CaseFacts, q.EvidenceChain), storage.SearchRequest{
		TopK:           q.TopK * overFetch,
		ScoreThreshold: q.MinScore,
		Filter:         q.Filter,
	})
	if err != nil {
		return nil, err
	}

	kept := dedupe(hits)
	storage.SortScored(kept)
	if len(kept) > q.TopK {
		kept = kept[:q.TopK]
	}

	results := make([]Result, len(kept))
	for i, h := range kept {
		results[i] = toResult(h)
	}
	return &ContextResult{Context: RenderContext(results), Results: results}, nil
}

// BuildContextQuery joins case facts with a labelled evidence section.
func BuildContextQuery(caseFacts, evidenceChain string) string {
	facts := strings.TrimSpace(caseFacts)
	evidence := strings.TrimSpace(evidenceChain)
	if evidence == "" {
		return facts
	}
	return facts + "\n\n" + EvidenceLabel + "\n" + evidence
}

// RenderContext formats results as a numbered list under ContextHeader.
func RenderContext(results []Result) string {
	if len(results) == 0 {
		return NoResultsMarker
	}

	var b strings.Builder
	b.WriteString(ContextHeader)
	b.WriteString("\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   (来源: %s, 相关度: %.3f)\n", i+1, r.Text, r.SourceFile, r.Score)
	}
	return b.String()
}

// dedupe drops hits whose character range overlaps a higher-ranked hit from
// the same source file. hits must be ordered best first.
func dedupe(hits []storage.ScoredRecord) []storage.ScoredRecord {
	type span struct{ start, end int }
	seen := make(map[string][]span)

	kept := make([]storage.ScoredRecord, 0, len(hits))
	for _, h := range hits {
		cur := span{start: h.Payload.Offset, end: h.Payload.Offset + utf8.RuneCountInString(h.Payload.Text)}

		overlaps := false
		for _, sp := range seen[h.Payload.SourceFile] {
			if cur.start < sp.end && sp.start < cur.end {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		seen[h.Payload.SourceFile] = append(seen[h.Payload.SourceFile], cur)
		kept = append(kept, h)
	}
	return kept
}
