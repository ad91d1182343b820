package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/models"
)

// QdrantStore implements Store over a Qdrant instance. gRPC is preferred;
// the HTTP API is kept as a fallback because some managed deployments only
// expose it.
type QdrantStore struct {
	cfg               config.VectorConfig
	embedder          Embedder
	conn              *grpc.ClientConn
	pointsClient      qdrant.PointsClient
	collectionsClient qdrant.CollectionsClient
	httpClient        *http.Client
	useGRPC           bool
	log               *zap.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists
func NewQdrantStore(cfg config.VectorConfig, embedder Embedder, log *zap.Logger) (*QdrantStore, error) {
	qs := &QdrantStore{
		cfg:        cfg,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}

	if err := qs.setupGRPCConnection(); err != nil {
		if log != nil {
			log.Warn("qdrant gRPC connection failed, trying HTTP", zap.Error(err))
		}
		if httpErr := qs.testHTTPConnection(); httpErr != nil {
			return nil, wrapStoreErr(fmt.Errorf("gRPC: %v, HTTP: %v", err, httpErr))
		}
	}

	if err := qs.ensureCollection(context.Background()); err != nil && log != nil {
		log.Warn("failed to ensure collection exists", zap.Error(err))
	}

	return qs, nil
}

// Insert embeds the chunk content and upserts it with its metadata payload.
// Upserts are keyed by chunk id, so repeated inserts are idempotent.
func (qs *QdrantStore) Insert(ctx context.Context, chunk *models.VectorChunk) error {
	embedding := chunk.Embedding
	if embedding == nil {
		vecs, err := qs.embedder.Embed(ctx, []string{chunk.Content})
		if err != nil {
			return err
		}
		if len(vecs) == 0 || len(vecs[0]) == 0 {
			return fmt.Errorf("%w: empty embedding for chunk %s", models.ErrEmbedding, chunk.ID)
		}
		embedding = vecs[0]
	}

	id := numericID(chunk.ID)
	if qs.useGRPC {
		if err := qs.insertGRPC(ctx, chunk, embedding, id); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		} else if qs.log != nil {
			qs.log.Warn("gRPC insert failed, falling back to HTTP", zap.Error(err))
		}
	}
	return qs.insertHTTP(ctx, chunk, embedding, id)
}

// Search returns the top-k chunks for an embedding, filters applied pre-search
func (qs *QdrantStore) Search(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
	if qs.useGRPC {
		results, err := qs.searchGRPC(ctx, embedding, filters, limit)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if qs.log != nil {
			qs.log.Warn("gRPC search failed, falling back to HTTP", zap.Error(err))
		}
	}
	return qs.searchHTTP(ctx, embedding, filters, limit)
}

// ExistsByField reports whether any stored chunk carries field == value
func (qs *QdrantStore) ExistsByField(ctx context.Context, field, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	if qs.useGRPC {
		limit := uint32(1)
		resp, err := qs.pointsClient.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: qs.cfg.Collection,
			Filter:         grpcFilter(map[string]string{field: value}),
			Limit:          &limit,
		})
		if err == nil {
			return len(resp.Result) > 0, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}
	return qs.existsHTTP(ctx, field, value)
}

// Health checks the instance is reachable
func (qs *QdrantStore) Health(ctx context.Context) error {
	if qs.useGRPC {
		_, err := qs.collectionsClient.List(ctx, &qdrant.ListCollectionsRequest{})
		if err != nil {
			return wrapStoreErr(err)
		}
		return nil
	}
	return qs.testHTTPConnection()
}

// Close closes the gRPC connection if active
func (qs *QdrantStore) Close() error {
	if qs.conn != nil {
		return qs.conn.Close()
	}
	return nil
}

func (qs *QdrantStore) setupGRPCConnection() error {
	conn, err := grpc.NewClient(
		fmt.Sprintf("%s:%d", qs.cfg.Host, qs.cfg.Port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to dial gRPC: %w", err)
	}

	qs.conn = conn
	qs.pointsClient = qdrant.NewPointsClient(conn)
	qs.collectionsClient = qdrant.NewCollectionsClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := qs.collectionsClient.List(ctx, &qdrant.ListCollectionsRequest{}); err != nil {
		conn.Close()
		qs.conn = nil
		return fmt.Errorf("gRPC connection test failed: %w", err)
	}

	qs.useGRPC = true
	return nil
}

func (qs *QdrantStore) testHTTPConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, qs.httpURL("/collections"), nil)
	if err != nil {
		return err
	}
	resp, err := qs.httpClient.Do(req)
	if err != nil {
		return wrapStoreErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return wrapStoreErr(fmt.Errorf("HTTP API returned status %d", resp.StatusCode))
	}
	return nil
}

func (qs *QdrantStore) ensureCollection(ctx context.Context) error {
	if !qs.useGRPC {
		return nil // the HTTP path creates lazily on first insert failure
	}
	_, err := qs.collectionsClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: qs.cfg.Collection,
	})
	if err == nil {
		return nil
	}
	_, err = qs.collectionsClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: qs.cfg.Collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(qs.cfg.Dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	return err
}

func (qs *QdrantStore) insertGRPC(ctx context.Context, chunk *models.VectorChunk, embedding []float32, id uint64) error {
	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: id}},
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{
			Vector: &qdrant.Vector{Data: embedding},
		}},
		Payload: payloadGRPC(chunk),
	}
	_, err := qs.pointsClient.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qs.cfg.Collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

func (qs *QdrantStore) insertHTTP(ctx context.Context, chunk *models.VectorChunk, embedding []float32, id uint64) error {
	body, err := json.Marshal(map[string]any{
		"points": []any{map[string]any{
			"id":      id,
			"vector":  embedding,
			"payload": payloadJSON(chunk),
		}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		qs.httpURL("/collections/"+qs.cfg.Collection+"/points"), bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := qs.httpClient.Do(req)
	if err != nil {
		return wrapStoreErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return wrapStoreErr(fmt.Errorf("insert failed with status %d: %s", resp.StatusCode, string(raw)))
	}
	return nil
}

func (qs *QdrantStore) searchGRPC(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
	req := &qdrant.SearchPoints{
		CollectionName: qs.cfg.Collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		Filter:         grpcFilter(filterMap(filters)),
	}

	resp, err := qs.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	chunks := make([]*models.VectorChunk, 0, len(resp.Result))
	for _, hit := range resp.Result {
		chunks = append(chunks, chunkFromGRPCPayload(hit.Payload, hit.Score))
	}
	return chunks, nil
}

func (qs *QdrantStore) searchHTTP(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
	payload := map[string]any{
		"vector":       embedding,
		"limit":        limit,
		"with_payload": true,
	}
	if f := httpFilter(filterMap(filters)); f != nil {
		payload["filter"] = f
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		qs.httpURL("/collections/"+qs.cfg.Collection+"/points/search"), bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := qs.httpClient.Do(req)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, wrapStoreErr(fmt.Errorf("search failed with status %d: %s", resp.StatusCode, string(raw)))
	}

	var decoded struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, wrapStoreErr(err)
	}

	chunks := make([]*models.VectorChunk, 0, len(decoded.Result))
	for _, hit := range decoded.Result {
		chunks = append(chunks, chunkFromJSONPayload(hit.Payload, float32(hit.Score)))
	}
	return chunks, nil
}

func (qs *QdrantStore) existsHTTP(ctx context.Context, field, value string) (bool, error) {
	body, err := json.Marshal(map[string]any{
		"limit":  1,
		"filter": httpFilter(map[string]string{field: value}),
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		qs.httpURL("/collections/"+qs.cfg.Collection+"/points/scroll"), bytes.NewBuffer(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := qs.httpClient.Do(req)
	if err != nil {
		return false, wrapStoreErr(err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result struct {
			Points []any `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, wrapStoreErr(err)
	}
	return len(decoded.Result.Points) > 0, nil
}

func (qs *QdrantStore) httpURL(path string) string {
	// gRPC and HTTP ports are adjacent in default deployments
	port := qs.cfg.Port
	if port == 6334 {
		port = 6333
	}
	return fmt.Sprintf("http://%s:%d%s", qs.cfg.Host, port, path)
}

// filterMap flattens the typed filters onto payload keys
func filterMap(f models.SearchFilters) map[string]string {
	m := map[string]string{}
	if f.Species != "" {
		m["species"] = f.Species
	}
	if f.Line != "" {
		m["breed"] = f.Line
	}
	if f.Sex != "" {
		m["sex"] = f.Sex
	}
	if f.AgeDays != nil {
		m["age_band"] = AgeBand(*f.AgeDays)
	}
	return m
}

func grpcFilter(m map[string]string) *qdrant.Filter {
	if len(m) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(m))
	for key, value := range m {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			}},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func httpFilter(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	must := make([]any, 0, len(m))
	for key, value := range m {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}

func payloadGRPC(chunk *models.VectorChunk) map[string]*qdrant.Value {
	str := func(s string) *qdrant.Value {
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
	}
	num := func(n int64) *qdrant.Value {
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: n}}
	}
	boolean := func(b bool) *qdrant.Value {
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: b}}
	}
	md := chunk.Metadata
	return map[string]*qdrant.Value{
		"original_id":    str(chunk.ID),
		"content":        str(chunk.Content),
		"source":         str(md.Source),
		"source_type":    str(string(md.SourceType)),
		"title":          str(md.Title),
		"url":            str(md.URL),
		"breed":          str(md.Breed),
		"species":        str(md.Species),
		"phase":          str(md.Phase),
		"age_band":       str(md.AgeBand),
		"doi":            str(md.DOI),
		"pmid":           str(md.PMID),
		"citation_count": num(int64(md.CitationCount)),
		"ingested_at":    str(md.IngestedAt.Format(time.RFC3339)),
		"query_context":  str(md.QueryContext),
		"chunk_index":    num(int64(md.ChunkIndex)),
		"total_chunks":   num(int64(md.TotalChunks)),
		"is_first_chunk": boolean(md.IsFirstChunk),
		"is_last_chunk":  boolean(md.IsLastChunk),
	}
}

func payloadJSON(chunk *models.VectorChunk) map[string]any {
	md := chunk.Metadata
	return map[string]any{
		"original_id":    chunk.ID,
		"content":        chunk.Content,
		"source":         md.Source,
		"source_type":    string(md.SourceType),
		"title":          md.Title,
		"url":            md.URL,
		"breed":          md.Breed,
		"species":        md.Species,
		"phase":          md.Phase,
		"age_band":       md.AgeBand,
		"doi":            md.DOI,
		"pmid":           md.PMID,
		"citation_count": md.CitationCount,
		"ingested_at":    md.IngestedAt.Format(time.RFC3339),
		"query_context":  md.QueryContext,
		"chunk_index":    md.ChunkIndex,
		"total_chunks":   md.TotalChunks,
		"is_first_chunk": md.IsFirstChunk,
		"is_last_chunk":  md.IsLastChunk,
	}
}

func chunkFromGRPCPayload(payload map[string]*qdrant.Value, score float32) *models.VectorChunk {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(key string) int {
		if v, ok := payload[key]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}
	getBool := func(key string) bool {
		if v, ok := payload[key]; ok {
			return v.GetBoolValue()
		}
		return false
	}
	ingested, _ := time.Parse(time.RFC3339, get("ingested_at"))
	return &models.VectorChunk{
		ID:      get("original_id"),
		Content: get("content"),
		Score:   score,
		Metadata: models.ChunkMetadata{
			Source:        get("source"),
			SourceType:    models.SourceType(get("source_type")),
			Title:         get("title"),
			URL:           get("url"),
			Breed:         get("breed"),
			Species:       get("species"),
			Phase:         get("phase"),
			AgeBand:       get("age_band"),
			DOI:           get("doi"),
			PMID:          get("pmid"),
			CitationCount: getInt("citation_count"),
			IngestedAt:    ingested,
			QueryContext:  get("query_context"),
			ChunkIndex:    getInt("chunk_index"),
			TotalChunks:   getInt("total_chunks"),
			IsFirstChunk:  getBool("is_first_chunk"),
			IsLastChunk:   getBool("is_last_chunk"),
		},
	}
}

func chunkFromJSONPayload(payload map[string]any, score float32) *models.VectorChunk {
	get := func(key string) string {
		if v, ok := payload[key].(string); ok {
			return v
		}
		return ""
	}
	getInt := func(key string) int {
		if v, ok := payload[key].(float64); ok {
			return int(v)
		}
		return 0
	}
	getBool := func(key string) bool {
		if v, ok := payload[key].(bool); ok {
			return v
		}
		return false
	}
	ingested, _ := time.Parse(time.RFC3339, get("ingested_at"))
	return &models.VectorChunk{
		ID:      get("original_id"),
		Content: get("content"),
		Score:   score,
		Metadata: models.ChunkMetadata{
			Source:        get("source"),
			SourceType:    models.SourceType(get("source_type")),
			Title:         get("title"),
			URL:           get("url"),
			Breed:         get("breed"),
			Species:       get("species"),
			Phase:         get("phase"),
			AgeBand:       get("age_band"),
			DOI:           get("doi"),
			PMID:          get("pmid"),
			CitationCount: getInt("citation_count"),
			IngestedAt:    ingested,
			QueryContext:  get("query_context"),
			ChunkIndex:    getInt("chunk_index"),
			TotalChunks:   getInt("total_chunks"),
			IsFirstChunk:  getBool("is_first_chunk"),
			IsLastChunk:   getBool("is_last_chunk"),
		},
	}
}

func numericID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}
