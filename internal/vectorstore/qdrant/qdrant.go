package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ragd/internal/domain"
)

// Store is a REST client to a Qdrant collection. Chunk content and metadata
// travel in the point payload; vectors come from the injected embedder. The
// collection is created lazily on first write, with cosine distance.
type Store struct {
	url        string
	apiKey     string
	collection string
	embedder   domain.Embedder
	httpClient *http.Client
	logger     *logrus.Logger

	mu      sync.Mutex
	ensured bool
}

type Config struct {
	URL        string
	APIKeyEnv  string
	Collection string
	Timeout    time.Duration
}

func New(cfg Config, embedder domain.Embedder, logger *logrus.Logger) *Store {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     apiKey,
		collection: cfg.Collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// AddDocuments embeds the chunks and upserts them as points.
func (s *Store) AddDocuments(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		if ch.Metadata.Source == "" {
			return errors.New("chunk without source in metadata")
		}
		texts[i] = ch.Content
	}
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		points[i] = map[string]any{
			"id":      ch.ID,
			"vector":  vectors[i],
			"payload": payloadFromChunk(ch),
		}
	}
	body := map[string]any{"points": points}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"collection": s.collection,
		"points":     len(points),
	}).Debug("upserted chunks")
	return nil
}

// Search embeds the query and runs a filtered similarity search.
func (s *Store) Search(ctx context.Context, query string, k int, opts domain.SearchOptions) ([]domain.ScoredMatch, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SimilaritySearch(ctx, vec, k, opts)
}

// SimilaritySearch queries the collection for the k nearest points, pushing
// the option filters down as a Qdrant payload filter.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float64, k int, opts domain.SearchOptions) ([]domain.ScoredMatch, error) {
	if k <= 0 {
		k = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if opts.Threshold > 0 {
		req["score_threshold"] = opts.Threshold
	}
	if f := buildFilter(opts); f != nil {
		req["filter"] = f
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.postJSON(ctx, url, req, &resp); err != nil {
		return nil, err
	}

	matches := make([]domain.ScoredMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, domain.ScoredMatch{
			Chunk:    chunkFromPayload(r.ID, r.Payload),
			Score:    r.Score,
			Distance: 1 - r.Score,
		})
	}
	return matches, nil
}

// Stats reports point count and vector dimension of the collection.
func (s *Store) Stats(ctx context.Context) (domain.IndexStats, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	if err := s.getJSON(ctx, url, &resp); err != nil {
		return domain.IndexStats{}, err
	}
	return domain.IndexStats{
		Count:     resp.Result.PointsCount,
		Dimension: resp.Result.Config.Params.Vectors.Size,
	}, nil
}

func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection already exists with this schema.
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

func payloadFromChunk(ch domain.Chunk) map[string]any {
	p := map[string]any{
		"content":      ch.Content,
		"source":       ch.Metadata.Source,
		"chunk_index":  ch.Metadata.ChunkIndex,
		"total_chunks": ch.Metadata.TotalChunks,
	}
	if ch.Metadata.Section != "" {
		p["section"] = ch.Metadata.Section
	}
	if ch.Metadata.Title != "" {
		p["title"] = ch.Metadata.Title
	}
	if ch.Metadata.Page != 0 {
		p["page"] = ch.Metadata.Page
	}
	if ch.Metadata.URL != "" {
		p["url"] = ch.Metadata.URL
	}
	if !ch.Metadata.Timestamp.IsZero() {
		p["timestamp"] = ch.Metadata.Timestamp.Format(time.RFC3339)
	}
	if ch.Metadata.UploadedBy != "" {
		p["uploaded_by"] = ch.Metadata.UploadedBy
	}
	for k, v := range ch.Metadata.Extra {
		p["x_"+k] = v
	}
	return p
}

func chunkFromPayload(id string, payload map[string]any) domain.Chunk {
	ch := domain.Chunk{ID: id}
	if v, ok := payload["content"].(string); ok {
		ch.Content = v
	}
	if v, ok := payload["source"].(string); ok {
		ch.Metadata.Source = v
	}
	if v, ok := payload["section"].(string); ok {
		ch.Metadata.Section = v
	}
	if v, ok := payload["title"].(string); ok {
		ch.Metadata.Title = v
	}
	if v, ok := payload["page"].(float64); ok {
		ch.Metadata.Page = int(v)
	}
	if v, ok := payload["url"].(string); ok {
		ch.Metadata.URL = v
	}
	if v, ok := payload["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			ch.Metadata.Timestamp = ts
		}
	}
	if v, ok := payload["uploaded_by"].(string); ok {
		ch.Metadata.UploadedBy = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		ch.Metadata.ChunkIndex = int(v)
	}
	if v, ok := payload["total_chunks"].(float64); ok {
		ch.Metadata.TotalChunks = int(v)
	}
	for k, v := range payload {
		if len(k) > 2 && k[:2] == "x_" {
			if sv, ok := v.(string); ok {
				if ch.Metadata.Extra == nil {
					ch.Metadata.Extra = map[string]string{}
				}
				ch.Metadata.Extra[k[2:]] = sv
			}
		}
	}
	return ch
}

func buildFilter(opts domain.SearchOptions) map[string]any {
	var must []map[string]any
	if opts.UserID != "" {
		must = append(must, map[string]any{
			"key":   "uploaded_by",
			"match": map[string]any{"value": opts.UserID},
		})
	}
	if len(opts.FilterBySource) > 0 {
		must = append(must, map[string]any{
			"key":   "source",
			"match": map[string]any{"any": opts.FilterBySource},
		})
	}
	if must == nil {
		return nil
	}
	return map[string]any{"must": must}
}

func (s *Store) getJSON(ctx context.Context, url string, out any) error {
	return s.doJSON(ctx, http.MethodGet, url, nil, out)
}

func (s *Store) putJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPut, url, body, out)
}

func (s *Store) postJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *Store) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s failed: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("qdrant %s %s returned %s: %s", method, url, strconv.Itoa(resp.StatusCode), string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}
