package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// SearchOptions bounds a context search.
type SearchOptions struct {
	UserID    string
	Limit     int
	UserBoost float64
	Kinds     []Kind
}

func (o SearchOptions) wants(k Kind) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, kind := range o.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Repository defines memory persistence operations.
type Repository interface {
	CreateConversation(ctx context.Context, rec *ConversationRecord) error
	CreateKnowledge(ctx context.Context, item *KnowledgeItem) error
	SearchSimilar(ctx context.Context, embedding []float32, opts SearchOptions) ([]ScoredItem, error)
	SearchKeyword(ctx context.Context, query string, opts SearchOptions) ([]ScoredItem, error)
	PruneConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	BumpProfile(ctx context.Context, userID, category string, seenAt time.Time) error
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	ListPendingConversations(ctx context.Context, limit int) ([]ConversationRecord, error)
	ListPendingKnowledge(ctx context.Context, limit int) ([]KnowledgeItem, error)
	SetConversationEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	SetKnowledgeEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	Stats(ctx context.Context) (*Stats, error)
}

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new memory repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateConversation(ctx context.Context, rec *ConversationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if len(rec.Embedding) > 0 {
		vec := pgvector.NewVector(rec.Embedding)
		_, err := r.pool.Exec(ctx,
			`INSERT INTO conversations (id, user_id, question, answer, category, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.ID, rec.UserID, rec.Question, rec.Answer, rec.Category, vec, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting conversation with embedding: %w", err)
		}
		rec.EmbeddingStatus = StatusEmbedded
	} else {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO conversations (id, user_id, question, answer, category, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, rec.UserID, rec.Question, rec.Answer, rec.Category, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting conversation: %w", err)
		}
		rec.EmbeddingStatus = StatusPending
	}
	return nil
}

func (r *PostgresRepository) CreateKnowledge(ctx context.Context, item *KnowledgeItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	if len(item.Embedding) > 0 {
		vec := pgvector.NewVector(item.Embedding)
		_, err := r.pool.Exec(ctx,
			`INSERT INTO knowledge_items (id, text, source_tag, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.Text, item.SourceTag, vec, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting knowledge item with embedding: %w", err)
		}
		item.EmbeddingStatus = StatusEmbedded
	} else {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO knowledge_items (id, text, source_tag, created_at)
			 VALUES ($1, $2, $3, $4)`,
			item.ID, item.Text, item.SourceTag, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting knowledge item: %w", err)
		}
		item.EmbeddingStatus = StatusPending
	}
	return nil
}

// SearchSimilar ranks conversation records and knowledge items in the shared
// vector space by cosine similarity, boosting the caller's own records by a
// fixed weight and breaking ties by recency. Records without an embedding are
// only reachable through SearchKeyword.
func (r *PostgresRepository) SearchSimilar(ctx context.Context, embedding []float32, opts SearchOptions) ([]ScoredItem, error) {
	vec := pgvector.NewVector(embedding)

	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, user_id, content, label, created_at, score
		 FROM (
		   SELECT id, 'conversation' AS kind, user_id,
		          question || E'\n' || answer AS content, category AS label, created_at,
		          (1 - (embedding <=> $1)) +
		          CASE WHEN $2 <> '' AND user_id = $2 THEN $3::float8 ELSE 0 END AS score
		   FROM conversations
		   WHERE embedding IS NOT NULL AND $4::bool
		   UNION ALL
		   SELECT id, 'knowledge' AS kind, '' AS user_id,
		          text AS content, source_tag AS label, created_at,
		          (1 - (embedding <=> $1)) AS score
		   FROM knowledge_items
		   WHERE embedding IS NOT NULL AND $5::bool
		 ) candidates
		 ORDER BY score DESC, created_at DESC
		 LIMIT $6`,
		vec, opts.UserID, opts.UserBoost,
		opts.wants(KindConversation), opts.wants(KindKnowledge), opts.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar items: %w", err)
	}
	defer rows.Close()

	return scanScoredItems(rows)
}

// likeEscaper neutralizes LIKE metacharacters so user input matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchKeyword is the degraded path used when the query embedding is not
// available: case-insensitive substring match, own records first, newest first.
func (r *PostgresRepository) SearchKeyword(ctx context.Context, query string, opts SearchOptions) ([]ScoredItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, user_id, content, label, created_at, score
		 FROM (
		   SELECT id, 'conversation' AS kind, user_id,
		          question || E'\n' || answer AS content, category AS label, created_at,
		          CASE WHEN $2 <> '' AND user_id = $2 THEN 1.0 ELSE 0.0 END AS score
		   FROM conversations
		   WHERE (question ILIKE '%' || $1 || '%' OR answer ILIKE '%' || $1 || '%') AND $3::bool
		   UNION ALL
		   SELECT id, 'knowledge' AS kind, '' AS user_id,
		          text AS content, source_tag AS label, created_at,
		          0.0 AS score
		   FROM knowledge_items
		   WHERE text ILIKE '%' || $1 || '%' AND $4::bool
		 ) candidates
		 ORDER BY score DESC, created_at DESC
		 LIMIT $5`,
		likeEscaper.Replace(query), opts.UserID,
		opts.wants(KindConversation), opts.wants(KindKnowledge), opts.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	return scanScoredItems(rows)
}

func scanScoredItems(rows pgx.Rows) ([]ScoredItem, error) {
	var results []ScoredItem
	for rows.Next() {
		var item ScoredItem
		var kind string
		if err := rows.Scan(&item.ID, &kind, &item.UserID, &item.Text, &item.Label, &item.CreatedAt, &item.Score); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		item.Kind = Kind(kind)
		results = append(results, item)
	}
	return results, rows.Err()
}

// PruneConversationsBefore deletes conversation records older than cutoff.
// Knowledge items are never age-pruned. Idempotent by construction.
func (r *PostgresRepository) PruneConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM conversations WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning conversations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BumpProfile increments the user's monotonic interaction counter and the
// category frequency map in a single upsert, so concurrent writers never lose
// updates.
func (r *PostgresRepository) BumpProfile(ctx context.Context, userID, category string, seenAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, interaction_count, last_seen, top_categories)
		 VALUES ($1, 1, $2,
		         CASE WHEN $3 = '' THEN '{}'::jsonb ELSE jsonb_build_object($3::text, 1) END)
		 ON CONFLICT (user_id) DO UPDATE SET
		   interaction_count = user_profiles.interaction_count + 1,
		   last_seen = GREATEST(user_profiles.last_seen, EXCLUDED.last_seen),
		   top_categories = CASE WHEN $3 = '' THEN user_profiles.top_categories
		     ELSE jsonb_set(user_profiles.top_categories, ARRAY[$3::text],
		          to_jsonb(COALESCE((user_profiles.top_categories->>$3)::int, 0) + 1)) END`,
		userID, seenAt, category,
	)
	if err != nil {
		return fmt.Errorf("bumping profile for %s: %w", userID, err)
	}
	return nil
}

// GetProfile returns the live aggregate, or a zeroed profile for unknown users.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	profile := &UserProfile{UserID: userID, TopCategories: map[string]int{}}

	var categories json.RawMessage
	err := r.pool.QueryRow(ctx,
		`SELECT interaction_count, last_seen, top_categories
		 FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&profile.InteractionCount, &profile.LastSeen, &categories)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile, nil
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &profile.TopCategories); err != nil {
			return nil, fmt.Errorf("decoding top categories: %w", err)
		}
	}
	return profile, nil
}

func (r *PostgresRepository) ListPendingConversations(ctx context.Context, limit int) ([]ConversationRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, question, answer, category, created_at
		 FROM conversations
		 WHERE embedding IS NULL
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending conversations: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Question, &rec.Answer, &rec.Category, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pending conversation: %w", err)
		}
		rec.EmbeddingStatus = StatusPending
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) ListPendingKnowledge(ctx context.Context, limit int) ([]KnowledgeItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, text, source_tag, created_at
		 FROM knowledge_items
		 WHERE embedding IS NULL
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending knowledge: %w", err)
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		var item KnowledgeItem
		if err := rows.Scan(&item.ID, &item.Text, &item.SourceTag, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pending knowledge: %w", err)
		}
		item.EmbeddingStatus = StatusPending
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetConversationEmbedding promotes a pending record to embedded. The guard on
// embedding IS NULL makes the pending -> embedded transition one-way: an
// embedded record's vector is never recomputed.
func (r *PostgresRepository) SetConversationEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET embedding = $2 WHERE id = $1 AND embedding IS NULL`,
		id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("setting conversation embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s not pending", id)
	}
	return nil
}

func (r *PostgresRepository) SetKnowledgeEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE knowledge_items SET embedding = $2 WHERE id = $1 AND embedding IS NULL`,
		id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("setting knowledge embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("knowledge item %s not pending", id)
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM conversations),
		   (SELECT COUNT(*) FROM knowledge_items),
		   (SELECT COUNT(DISTINCT user_id) FROM conversations),
		   (SELECT COUNT(*) FROM conversations WHERE embedding IS NULL) +
		   (SELECT COUNT(*) FROM knowledge_items WHERE embedding IS NULL)`,
	).Scan(&stats.TotalConversations, &stats.TotalKnowledge, &stats.UniqueUsers, &stats.PendingEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("reading memory stats: %w", err)
	}
	return stats, nil
}
