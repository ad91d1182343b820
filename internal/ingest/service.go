package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/internal/vectordb"
	"github.com/plumeline/plumeline/models"
)

// Service persists external documents into the vector store as embedded
// chunks. Ingestion is idempotent: a document already present under its DOI,
// PMID or normalized title is skipped.
type Service struct {
	store   vectordb.Store
	chunker *Chunker
	log     *zap.Logger
}

// NewService builds the ingestion service
func NewService(store vectordb.Store, cfg config.IngestConfig, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		chunker: NewChunker(cfg.MinWords, cfg.MaxWords, cfg.OverlapWords),
		log:     log,
	}
}

// Outcome reports what happened to one document
type Outcome struct {
	Ingested      bool
	Skipped       bool
	ChunksWritten int
}

// IngestDocument chunks, embeds and stores one document. queryContext is the
// user query that triggered the expansion, kept on each chunk for audit.
// A document counts as ingested once at least one chunk is persisted; chunk
// failures past the first degrade the document instead of failing it.
func (s *Service) IngestDocument(ctx context.Context, doc *models.ExternalDocument, queryContext string) (*Outcome, error) {
	dup, err := s.alreadyIngested(ctx, doc)
	if err != nil {
		return nil, err
	}
	if dup {
		s.log.Debug("document already ingested, skipping",
			zap.String("title", doc.Title))
		return &Outcome{Skipped: true}, nil
	}

	pieces := s.chunker.Chunk(doc.Body())
	if len(pieces) == 0 {
		return nil, fmt.Errorf("document %q has no ingestable text", doc.Title)
	}

	now := time.Now().UTC()
	written := 0
	var firstErr error
	for i, piece := range pieces {
		chunk := &models.VectorChunk{
			ID:      uuid.NewString(),
			Content: piece,
			Metadata: models.ChunkMetadata{
				Source:        doc.Source,
				SourceType:    models.SourceTypeExternal,
				Title:         doc.Title,
				URL:           doc.URL,
				DOI:           doc.DOI,
				PMID:          doc.PMID,
				CitationCount: doc.CitationCount,
				IngestedAt:    now,
				QueryContext:  queryContext,
				ChunkIndex:    i,
				TotalChunks:   len(pieces),
				IsFirstChunk:  i == 0,
				IsLastChunk:   i == len(pieces)-1,
			},
		}
		if err := s.store.Insert(ctx, chunk); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.log.Warn("chunk insert failed",
				zap.String("title", doc.Title),
				zap.Int("chunk", i),
				zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		written++
	}

	if written == 0 {
		return nil, firstErr
	}
	if written < len(pieces) {
		s.log.Warn("document partially ingested",
			zap.String("title", doc.Title),
			zap.Int("written", written),
			zap.Int("total", len(pieces)))
	}
	return &Outcome{Ingested: true, ChunksWritten: written}, nil
}

// IngestBatch ingests documents sequentially, continuing past individual
// failures. It returns the number of documents ingested.
func (s *Service) IngestBatch(ctx context.Context, docs []*models.ExternalDocument, queryContext string) (int, error) {
	ingested := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			return ingested, ctx.Err()
		}
		out, err := s.IngestDocument(ctx, doc, queryContext)
		if err != nil {
			s.log.Warn("document ingestion failed",
				zap.String("title", doc.Title),
				zap.Error(err))
			continue
		}
		if out.Ingested {
			ingested++
		}
	}
	return ingested, nil
}

// alreadyIngested checks identifiers strongest-first: DOI, then PMID, then
// the document title.
func (s *Service) alreadyIngested(ctx context.Context, doc *models.ExternalDocument) (bool, error) {
	if doc.DOI != "" {
		if found, err := s.store.ExistsByField(ctx, "doi", doc.DOI); err != nil || found {
			return found, err
		}
	}
	if doc.PMID != "" {
		if found, err := s.store.ExistsByField(ctx, "pmid", doc.PMID); err != nil || found {
			return found, err
		}
	}
	if doc.Title != "" {
		if found, err := s.store.ExistsByField(ctx, "title", doc.Title); err != nil || found {
			return found, err
		}
	}
	return false, nil
}
