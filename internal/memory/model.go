package memory

import (
	"time"

	"github.com/google/uuid"
)

// Embedding status values. A record is pending until the backfill worker
// (or the synchronous write path) attaches an embedding; embedded records
// are never re-embedded.
const (
	StatusEmbedded = "embedded"
	StatusPending  = "pending"
)

// ConversationRecord is one user/bot exchange. Records are append-only:
// corrections are new records, never updates.
type ConversationRecord struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	Category        string    `json:"category,omitempty"`
	Embedding       []float32 `json:"-"`
	EmbeddingStatus string    `json:"embedding_status"`
	CreatedAt       time.Time `json:"created_at"`
}

// KnowledgeItem is durable reference material, not tied to a user exchange.
// Never pruned by age.
type KnowledgeItem struct {
	ID              uuid.UUID `json:"id"`
	Text            string    `json:"text"`
	SourceTag       string    `json:"source_tag,omitempty"`
	Embedding       []float32 `json:"-"`
	EmbeddingStatus string    `json:"embedding_status"`
	CreatedAt       time.Time `json:"created_at"`
}

// UserProfile is a derived aggregate over a user's conversation records.
// interaction_count is a monotonic counter of interactions ever seen; pruning
// old records does not decrement it.
type UserProfile struct {
	UserID           string         `json:"user_id"`
	InteractionCount int64          `json:"interaction_count"`
	LastSeen         time.Time      `json:"last_seen"`
	TopCategories    map[string]int `json:"top_categories"`
}

// Kind selects which collections a context search covers.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindKnowledge    Kind = "knowledge"
)

// ScoredItem is a single search result. Conversation results carry the
// owning user; knowledge results are global.
type ScoredItem struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"user_id,omitempty"`
	Text      string    `json:"text"`
	Label     string    `json:"label,omitempty"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the stored corpus for the dashboard.
type Stats struct {
	TotalConversations int64 `json:"total_conversas"`
	TotalKnowledge     int64 `json:"total_conhecimento"`
	UniqueUsers        int64 `json:"usuarios_unicos"`
	PendingEmbeddings  int64 `json:"embeddings_pendentes"`
}

// SaveInteractionRequest is the body of POST /api/v1/memory/save.
type SaveInteractionRequest struct {
	UserID   string `json:"user_id" validate:"required,min=1"`
	Question string `json:"question" validate:"required,min=1"`
	Answer   string `json:"answer" validate:"required,min=1"`
	Category string `json:"category,omitempty"`
}

// KnowledgeDoc is one document in an add-knowledge request.
type KnowledgeDoc struct {
	Text      string `json:"text" validate:"required,min=1"`
	SourceTag string `json:"source_tag,omitempty"`
}

// AddKnowledgeRequest is the body of POST /api/v1/knowledge.
type AddKnowledgeRequest struct {
	Documents []KnowledgeDoc `json:"documents" validate:"required,min=1,dive"`
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query  string   `json:"query" validate:"required,min=1"`
	UserID string   `json:"user_id,omitempty"`
	Limit  int      `json:"limit,omitempty"`
	Kinds  []string `json:"kinds,omitempty"`
}

// CleanRequest is the body of POST /api/v1/memory/clean. A nil Days uses the
// configured retention window; an explicit 0 prunes every record up to now.
type CleanRequest struct {
	Days *int `json:"days"`
}
