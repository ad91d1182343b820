package sources

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/models"
)

// Embedder produces embedding vectors for relevance scoring
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Enablement reports whether a source is currently enabled. The config
// watcher satisfies this so sources can be toggled without a restart.
type Enablement interface {
	SourceEnabled(name string) bool
}

type registeredSource struct {
	adapter Adapter
	weight  float64
	limiter *rate.Limiter
}

// Manager fans a query out to all enabled source adapters concurrently,
// deduplicates the merged results and ranks them with a composite score.
type Manager struct {
	sources    []registeredSource
	embedder   Embedder
	enablement Enablement
	weights    config.RankingConfig
	maxPerSrc  int
	minYear    int
	log        *zap.Logger
}

// NewManager builds a manager from configuration, registering the built-in
// adapters that are configured.
func NewManager(cfg config.SourcesConfig, ranking config.RankingConfig, embedder Embedder, enablement Enablement, log *zap.Logger) *Manager {
	m := &Manager{
		embedder:   embedder,
		enablement: enablement,
		weights:    ranking,
		maxPerSrc:  cfg.MaxResultsPerSource,
		minYear:    cfg.MinYear,
		log:        log,
	}
	if m.maxPerSrc <= 0 {
		m.maxPerSrc = 10
	}

	for name, sc := range cfg.Adapters {
		var adapter Adapter
		switch name {
		case "semanticscholar":
			adapter = NewSemanticScholar(sc.APIKey, sc.Timeout, sc.MaxRetries)
		case "pubmed":
			adapter = NewPubMed(sc.APIKey, sc.Timeout, sc.MaxRetries)
		case "europepmc":
			adapter = NewEuropePMC(sc.Timeout, sc.MaxRetries)
		case "agris":
			adapter = NewAgris(sc.Timeout, sc.MaxRetries)
		default:
			continue
		}
		m.Register(adapter, sc.Weight, sc.RateRPS, sc.RateBurst)
	}
	return m
}

// Register adds an adapter with its authority weight and rate limit
func (m *Manager) Register(adapter Adapter, weight, rps float64, burst int) {
	if weight <= 0 {
		weight = 0.5
	}
	if rps <= 0 {
		rps = 2.0
	}
	if burst <= 0 {
		burst = 1
	}
	m.sources = append(m.sources, registeredSource{
		adapter: adapter,
		weight:  weight,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	})
}

type sourceOutcome struct {
	name string
	docs []*models.ExternalDocument
	err  error
}

// Search queries every enabled source concurrently and returns the merged,
// deduplicated, ranked result. A source failing or timing out never fails the
// whole search; Found is false only when nothing usable came back at all.
func (m *Manager) Search(ctx context.Context, query string) (*models.ExternalSearchResult, error) {
	start := time.Now()

	active := make([]registeredSource, 0, len(m.sources))
	for _, src := range m.sources {
		if m.enablement != nil && !m.enablement.SourceEnabled(src.adapter.Name()) {
			continue
		}
		active = append(active, src)
	}

	result := &models.ExternalSearchResult{SourcesSearched: len(active)}
	if len(active) == 0 {
		result.SearchDuration = time.Since(start)
		result.Error = "no sources enabled"
		return result, nil
	}

	outcomes := make([]sourceOutcome, len(active))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range active {
		i, src := i, src
		g.Go(func() error {
			out := sourceOutcome{name: src.adapter.Name()}
			if err := src.limiter.Wait(gctx); err != nil {
				out.err = err
			} else {
				out.docs, out.err = src.adapter.Search(gctx, query, m.maxPerSrc, m.minYear)
			}
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			// Per-source failures are recorded, never propagated, so one bad
			// source cannot cancel its siblings.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var merged []*models.ExternalDocument
	for _, out := range outcomes {
		if out.err != nil {
			m.log.Warn("source search failed",
				zap.String("source", out.name),
				zap.Error(out.err))
			continue
		}
		if len(out.docs) > 0 {
			result.SourcesSucceeded++
			result.TotalResults += len(out.docs)
			merged = append(merged, out.docs...)
		}
	}

	unique := deduplicate(merged)
	result.UniqueResults = len(unique)

	if len(unique) == 0 {
		result.SearchDuration = time.Since(start)
		if result.SourcesSucceeded == 0 {
			result.Error = "all sources failed or returned nothing"
		}
		return result, nil
	}

	m.scoreRelevance(ctx, query, unique)
	m.scoreComposite(unique)

	sort.SliceStable(unique, func(a, b int) bool {
		return unique[a].CompositeScore > unique[b].CompositeScore
	})

	result.Found = true
	// Only the top five feed ingestion; the unique count still reports the
	// full haul.
	top := unique
	if len(top) > 5 {
		top = top[:5]
	}
	result.AllDocuments = top
	result.BestDocument = unique[0]
	result.SearchDuration = time.Since(start)

	m.log.Info("external search complete",
		zap.String("query", query),
		zap.Int("sources_searched", result.SourcesSearched),
		zap.Int("sources_succeeded", result.SourcesSucceeded),
		zap.Int("total", result.TotalResults),
		zap.Int("unique", result.UniqueResults),
		zap.Duration("duration", result.SearchDuration))

	return result, nil
}

// deduplicate keeps the first occurrence of each document. Strong identifiers
// (DOI, PMID, PMCID) win over the normalized (title, year) fallback; a strong
// identifier also reserves its title key so an id-less copy of the same paper
// from another source cannot slip back in.
func deduplicate(docs []*models.ExternalDocument) []*models.ExternalDocument {
	seenID := make(map[string]bool)
	seenTitle := make(map[string]bool)

	unique := make([]*models.ExternalDocument, 0, len(docs))
	for _, doc := range docs {
		if id := doc.UniqueID(); id != "" {
			if seenID[id] {
				continue
			}
			seenID[id] = true
			seenTitle[doc.TitleKey()] = true
			unique = append(unique, doc)
			continue
		}
		key := doc.TitleKey()
		if seenTitle[key] {
			continue
		}
		seenTitle[key] = true
		unique = append(unique, doc)
	}
	return unique
}

// scoreRelevance batch-embeds the documents and scores each by cosine
// similarity with the query embedding. When embedding fails every document
// gets the neutral 0.5 so ranking degrades to citations and recency.
func (m *Manager) scoreRelevance(ctx context.Context, query string, docs []*models.ExternalDocument) {
	texts := make([]string, 0, len(docs)+1)
	texts = append(texts, query)
	for _, doc := range docs {
		abstract := doc.Abstract
		if len(abstract) > 500 {
			abstract = abstract[:500]
		}
		texts = append(texts, doc.Title+"\n"+abstract)
	}

	vecs, err := m.embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		m.log.Warn("relevance embedding failed, using neutral scores", zap.Error(err))
		for _, doc := range docs {
			doc.RelevanceScore = 0.5
		}
		return
	}

	queryVec := vecs[0]
	for i, doc := range docs {
		doc.RelevanceScore = cosineSimilarity(queryVec, vecs[i+1])
	}
}

// scoreComposite combines relevance, citation rate, recency and source
// authority. Citation rates are normalized against the best in the batch.
func (m *Manager) scoreComposite(docs []*models.ExternalDocument) {
	currentYear := time.Now().Year()

	weightBySource := make(map[string]float64, len(m.sources))
	for _, src := range m.sources {
		weightBySource[src.adapter.Name()] = src.weight
	}

	rates := make([]float64, len(docs))
	for i, doc := range docs {
		rates[i] = citationRate(doc, currentYear)
	}
	maxRate, err := stats.Max(rates)
	if err != nil || maxRate <= 0 {
		maxRate = 1
	}

	for i, doc := range docs {
		citation := rates[i] / maxRate

		recency := recencyScore(doc.Year, currentYear)

		sourceWeight, ok := weightBySource[doc.Source]
		if !ok {
			sourceWeight = 0.5
		}

		doc.CompositeScore = m.weights.Relevance*doc.RelevanceScore +
			m.weights.Citation*citation +
			m.weights.Recency*recency +
			m.weights.Source*sourceWeight
	}
}

// recencyScore buckets the publication year: this year's papers score 1.0,
// the last four years 0.8, the last nine 0.5, anything older or undated 0.2.
func recencyScore(year, currentYear int) float64 {
	switch {
	case year >= currentYear:
		return 1.0
	case year >= currentYear-4:
		return 0.8
	case year >= currentYear-9:
		return 0.5
	}
	return 0.2
}

// citationRate is citations per year since publication. Both numerator floor
// and age are clamped to 1 so brand-new and zero-citation papers stay finite.
func citationRate(doc *models.ExternalDocument, currentYear int) float64 {
	citations := float64(doc.CitationCount)
	if citations < 1 {
		citations = 1
	}
	age := float64(currentYear - doc.Year)
	if doc.Year == 0 || age < 1 {
		age = 1
	}
	return citations / age
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
