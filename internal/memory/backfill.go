package memory

import (
	"context"
	"log/slog"
	"time"
)

const backfillBatchSize = 50

// Backfiller periodically re-embeds records that were stored without a
// vector because the embedder was unreachable at write time. Promotion is
// one-way: already-embedded records are never touched.
type Backfiller struct {
	repo     Repository
	embedder Embedder
	interval time.Duration
}

// NewBackfiller creates a backfill worker.
func NewBackfiller(repo Repository, embedder Embedder, interval time.Duration) *Backfiller {
	return &Backfiller{repo: repo, embedder: embedder, interval: interval}
}

// Run loops until the context is canceled, processing one batch per tick.
func (b *Backfiller) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.RunOnce(ctx); n > 0 {
				slog.Info("backfill: embedded pending records", "count", n)
			}
		}
	}
}

// RunOnce processes a single batch of pending conversations and knowledge
// items and returns how many records it promoted. Failures are logged and
// left pending for the next tick.
func (b *Backfiller) RunOnce(ctx context.Context) int {
	promoted := 0

	convs, err := b.repo.ListPendingConversations(ctx, backfillBatchSize)
	if err != nil {
		slog.Error("backfill: listing pending conversations", "error", err)
	}
	for _, rec := range convs {
		embedding, err := b.embedder.Embed(ctx, rec.Question+"\n"+rec.Answer)
		if err != nil {
			slog.Warn("backfill: embedder still unavailable", "error", err)
			return promoted
		}
		if err := b.repo.SetConversationEmbedding(ctx, rec.ID, embedding); err != nil {
			slog.Error("backfill: promoting conversation", "id", rec.ID, "error", err)
			continue
		}
		promoted++
	}

	items, err := b.repo.ListPendingKnowledge(ctx, backfillBatchSize)
	if err != nil {
		slog.Error("backfill: listing pending knowledge", "error", err)
	}
	for _, item := range items {
		embedding, err := b.embedder.Embed(ctx, item.Text)
		if err != nil {
			slog.Warn("backfill: embedder still unavailable", "error", err)
			return promoted
		}
		if err := b.repo.SetKnowledgeEmbedding(ctx, item.ID, embedding); err != nil {
			slog.Error("backfill: promoting knowledge item", "id", item.ID, "error", err)
			continue
		}
		promoted++
	}

	return promoted
}
