package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/autobot-platform/autobot/internal/config"
	"github.com/autobot-platform/autobot/internal/metrics"
)

// Embedder converts text into the shared vector space. Implemented by the
// inference client; tests use a deterministic hash embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// storageRetryDelay is the backoff before the single retry of a failed store
// write.
const storageRetryDelay = 200 * time.Millisecond

// Service is the conversation memory manager: append-only exchange log,
// knowledge corpus, semantic retrieval, profile aggregation, and retention
// pruning.
type Service struct {
	repo     Repository
	embedder Embedder
	cfg      config.MemoryConfig
}

// NewService creates a new memory service.
func NewService(repo Repository, embedder Embedder, cfg config.MemoryConfig) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		cfg:      cfg,
	}
}

// SaveInteraction persists a user/bot exchange. If the embedder is
// unreachable the record is stored without a vector and flagged pending; the
// write path never fails for that reason. The user's profile counter is
// bumped atomically in the store.
func (s *Service) SaveInteraction(ctx context.Context, userID, question, answer, category string) (*ConversationRecord, error) {
	if userID == "" || question == "" || answer == "" {
		return nil, fmt.Errorf("user_id, question and answer are required")
	}

	rec := &ConversationRecord{
		UserID:    userID,
		Question:  question,
		Answer:    answer,
		Category:  category,
		CreatedAt: time.Now(),
	}

	embedding, err := s.embedder.Embed(ctx, question+"\n"+answer)
	if err != nil {
		slog.Warn("memory: embedding failed, storing record as pending", "error", err, "user_id", userID)
	} else {
		rec.Embedding = embedding
	}

	if err := s.withRetry(ctx, func() error {
		return s.repo.CreateConversation(ctx, rec)
	}); err != nil {
		return nil, err
	}

	if err := s.withRetry(ctx, func() error {
		return s.repo.BumpProfile(ctx, userID, category, rec.CreatedAt)
	}); err != nil {
		// The profile is a derived cache; the authoritative record is already
		// stored, so log and move on rather than failing the save.
		slog.Error("memory: bumping profile failed", "error", err, "user_id", userID)
	}

	return rec, nil
}

// AddKnowledge inserts one reference document with the same embedding-failure
// handling as SaveInteraction. Knowledge is only removed by explicit deletion.
func (s *Service) AddKnowledge(ctx context.Context, text, sourceTag string) (*KnowledgeItem, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	item := &KnowledgeItem{
		Text:      text,
		SourceTag: sourceTag,
		CreatedAt: time.Now(),
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("memory: embedding failed, storing knowledge as pending", "error", err)
	} else {
		item.Embedding = embedding
	}

	if err := s.withRetry(ctx, func() error {
		return s.repo.CreateKnowledge(ctx, item)
	}); err != nil {
		return nil, err
	}
	return item, nil
}

// SearchContext returns the most relevant stored items for a query, at most
// limit, with no duplicate IDs. If the query embedding cannot be computed the
// search degrades to keyword matching instead of failing.
func (s *Service) SearchContext(ctx context.Context, query, userID string, limit int, kinds []Kind) ([]ScoredItem, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = s.cfg.SearchLimit
	}

	opts := SearchOptions{
		UserID:    userID,
		Limit:     limit,
		UserBoost: s.cfg.UserBoost,
		Kinds:     kinds,
	}

	var (
		results []ScoredItem
		err     error
	)
	embedding, embedErr := s.embedder.Embed(ctx, query)
	if embedErr != nil {
		slog.Warn("memory: query embedding failed, falling back to keyword search", "error", embedErr)
		results, err = s.repo.SearchKeyword(ctx, query, opts)
	} else {
		results, err = s.repo.SearchSimilar(ctx, embedding, opts)
	}
	if err != nil {
		return nil, err
	}

	return dedupeByID(results, limit), nil
}

// PruneOlderThan removes conversation records older than now minus days.
// Profile counters are monotonic and deliberately untouched, so "total
// interactions" stays meaningful across pruning.
func (s *Service) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must not be negative")
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	return s.repo.PruneConversationsBefore(ctx, cutoff)
}

// GetProfile returns the live aggregate for a user; unknown users get a
// zeroed profile, not an error.
func (s *Service) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// Stats reports corpus totals for the dashboard and refreshes the pending
// embeddings gauge.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	metrics.EmbeddingsPending.Set(float64(stats.PendingEmbeddings))
	return stats, nil
}

// RetentionDays exposes the configured retention window.
func (s *Service) RetentionDays() int {
	return s.cfg.RetentionDays
}

// withRetry runs a store write, retrying once after a short backoff.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	slog.Warn("memory: store write failed, retrying once", "error", err)

	select {
	case <-time.After(storageRetryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return fn()
}

func dedupeByID(items []ScoredItem, limit int) []ScoredItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := string(item.Kind) + ":" + item.ID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
