package services

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/llm"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

const (
	// DefaultSimilarTopK bounds how many past pairs a retrieval returns.
	DefaultSimilarTopK = 3
	// DefaultSimilarThreshold is the minimum cosine similarity to surface.
	DefaultSimilarThreshold = 0.7
)

type historyEntry struct {
	query  models.HistoricalQuery
	vector []float32
}

// HistoryStore keeps embedded (question, SQL) pairs in memory and retrieves
// the ones nearest a new question. Offers are best-effort: embedding
// failures drop the pair without surfacing an error.
type HistoryStore struct {
	mu      sync.RWMutex
	entries []historyEntry

	client    llm.Client
	model     string
	topK      int
	threshold float64
	logger    *zap.Logger
}

// HistoryStoreOption tunes retrieval.
type HistoryStoreOption func(*HistoryStore)

// WithTopK overrides how many pairs a retrieval returns.
func WithTopK(k int) HistoryStoreOption {
	return func(s *HistoryStore) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithSimilarityThreshold overrides the cosine cutoff.
func WithSimilarityThreshold(t float64) HistoryStoreOption {
	return func(s *HistoryStore) { s.threshold = t }
}

// WithEmbeddingModel names the embedding model used for offers and
// retrievals. Empty leaves the provider's default in effect.
func WithEmbeddingModel(model string) HistoryStoreOption {
	return func(s *HistoryStore) { s.model = model }
}

// NewHistoryStore wires the store. client may be nil; the store then
// accepts no offers and retrieves nothing.
func NewHistoryStore(client llm.Client, logger *zap.Logger, opts ...HistoryStoreOption) *HistoryStore {
	s := &HistoryStore{
		client:    client,
		topK:      DefaultSimilarTopK,
		threshold: DefaultSimilarThreshold,
		logger:    logger.Named("history-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Offer embeds and stores one successful pair. Failures are logged and
// swallowed; retrieval quality degrades but the query path never blocks on
// this.
func (s *HistoryStore) Offer(ctx context.Context, query models.HistoricalQuery) {
	if s.client == nil {
		return
	}
	if query.CreatedAt.IsZero() {
		query.CreatedAt = time.Now()
	}

	vector, err := s.client.CreateEmbedding(ctx, query.Question, s.model)
	if err != nil {
		s.logger.Warn("failed to embed historical query", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.entries = append(s.entries, historyEntry{query: query, vector: vector})
	s.mu.Unlock()
}

// Similar returns up to topK past pairs above the threshold, restricted to
// the same dialect and schema.
func (s *HistoryStore) Similar(ctx context.Context, question, dialect, schemaName string) ([]models.SimilarQuery, error) {
	if s.client == nil {
		return nil, nil
	}
	s.mu.RLock()
	empty := len(s.entries) == 0
	s.mu.RUnlock()
	if empty {
		return nil, nil
	}

	vector, err := s.client.CreateEmbedding(ctx, question, s.model)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []models.SimilarQuery
	for _, e := range s.entries {
		if e.query.Dialect != dialect {
			continue
		}
		if schemaName != "" && e.query.SchemaName != "" && e.query.SchemaName != schemaName {
			continue
		}
		sim := cosineSimilarity(vector, e.vector)
		if sim < s.threshold {
			continue
		}
		matches = append(matches, models.SimilarQuery{
			Question:   e.query.Question,
			SQL:        e.query.SQL,
			Similarity: sim,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > s.topK {
		matches = matches[:s.topK]
	}
	return matches, nil
}

// Len reports how many pairs are stored.
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
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
