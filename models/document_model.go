// Data structures for external academic documents and vector-store chunks.

package models

import (
	"fmt"
	"strings"
	"time"
)

// ExternalDocument is a homogeneous record returned by any source adapter
type ExternalDocument struct {
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	Authors       []string `json:"authors"`
	Year          int      `json:"year"`
	Source        string   `json:"source"`
	URL           string   `json:"url"`
	DOI           string   `json:"doi,omitempty"`
	PMID          string   `json:"pmid,omitempty"`
	PMCID         string   `json:"pmcid,omitempty"`
	Journal       string   `json:"journal,omitempty"`
	CitationCount int      `json:"citation_count"`
	Language      string   `json:"language,omitempty"`
	FullText      string   `json:"full_text,omitempty"`

	// RelevanceScore and CompositeScore are populated by the source manager
	// during ranking; they are meaningless before that.
	RelevanceScore float64 `json:"relevance_score"`
	CompositeScore float64 `json:"composite_score"`
}

// UniqueID returns the strongest available identity for deduplication:
// DOI first, then PMID, then PMCID, empty if the document has none.
func (d *ExternalDocument) UniqueID() string {
	switch {
	case d.DOI != "":
		return "doi:" + strings.ToLower(d.DOI)
	case d.PMID != "":
		return "pmid:" + d.PMID
	case d.PMCID != "":
		return "pmcid:" + d.PMCID
	}
	return ""
}

// TitleKey returns the fallback identity (normalized title, year)
func (d *ExternalDocument) TitleKey() string {
	return fmt.Sprintf("%s|%d", strings.ToLower(strings.TrimSpace(d.Title)), d.Year)
}

// Body returns the text used for chunking and embedding
func (d *ExternalDocument) Body() string {
	parts := []string{d.Title}
	if d.Abstract != "" {
		parts = append(parts, d.Abstract)
	}
	if d.FullText != "" {
		parts = append(parts, d.FullText)
	}
	return strings.Join(parts, "\n\n")
}

// ExternalSearchResult is the aggregate outcome of a multi-source search.
// Partial source failures never surface as an error here; Found is false only
// when every source failed or produced nothing.
type ExternalSearchResult struct {
	Found            bool                `json:"found"`
	SourcesSearched  int                 `json:"sources_searched"`
	SourcesSucceeded int                 `json:"sources_succeeded"`
	TotalResults     int                 `json:"total_results"`
	UniqueResults    int                 `json:"unique_results"`
	SearchDuration   time.Duration       `json:"search_duration"`
	BestDocument     *ExternalDocument   `json:"best_document,omitempty"`
	AllDocuments     []*ExternalDocument `json:"all_documents,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// SourceType tags where a vector chunk came from
type SourceType string

const (
	SourceTypeInternal SourceType = "internal"
	SourceTypeExternal SourceType = "external_document"
)

// ChunkMetadata carries enough context to reconstruct document-level coherence
// from any single chunk.
type ChunkMetadata struct {
	Source        string     `json:"source"`
	SourceType    SourceType `json:"source_type"`
	Title         string     `json:"title,omitempty"`
	URL           string     `json:"url,omitempty"`
	Breed         string     `json:"breed,omitempty"`
	Species       string     `json:"species,omitempty"`
	Phase         string     `json:"phase,omitempty"`
	AgeBand       string     `json:"age_band,omitempty"`
	DOI           string     `json:"doi,omitempty"`
	PMID          string     `json:"pmid,omitempty"`
	CitationCount int        `json:"citation_count"`
	IngestedAt    time.Time  `json:"ingested_at"`
	QueryContext  string     `json:"query_context,omitempty"`
	ChunkIndex    int        `json:"chunk_index"`
	TotalChunks   int        `json:"total_chunks"`
	IsFirstChunk  bool       `json:"is_first_chunk"`
	IsLastChunk   bool       `json:"is_last_chunk"`
}

// VectorChunk is one embedded unit of knowledge in the vector store
type VectorChunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Embedding []float32     `json:"-"`
	Metadata  ChunkMetadata `json:"metadata"`
	Score     float32       `json:"score"`
}
