package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/autobot-platform/autobot/internal/memory"
	"github.com/autobot-platform/autobot/internal/metrics"
)

// Memory is the slice of the memory service the pipeline needs.
type Memory interface {
	SearchContext(ctx context.Context, query, userID string, limit int, kinds []memory.Kind) ([]memory.ScoredItem, error)
	SaveInteraction(ctx context.Context, userID, question, answer, category string) (*memory.ConversationRecord, error)
}

// ShortTerm is the rolling conversation window.
type ShortTerm interface {
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]memory.ConversationEntry, error)
	AppendTurn(ctx context.Context, userID string, entry memory.ConversationEntry) error
}

// Generator produces completions.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ResponseCache fronts the generator with exact-repeat caching.
type ResponseCache interface {
	Get(ctx context.Context, prompt string) (string, bool)
	Set(ctx context.Context, prompt, response string) error
}

// InteractionPublisher emits interaction events, best-effort.
type InteractionPublisher interface {
	PublishInteraction(ctx context.Context, userID, question, category string, cached bool) error
}

const shortTermWindow = 10

// degradedAnswer is returned when the inference endpoint is unreachable.
// Never empty: the user always gets an explanation.
const degradedAnswer = "Desculpe, o serviço de IA está temporariamente indisponível. " +
	"Sua mensagem foi registrada e será respondida assim que o serviço voltar."

// Service runs the chat pipeline: retrieve context, consult the cache,
// generate, persist, publish.
type Service struct {
	mem       Memory
	shortTerm ShortTerm
	gen       Generator
	cache     ResponseCache
	publisher InteractionPublisher
	model     string
}

// NewService creates the chat service. cache and publisher may be nil.
func NewService(mem Memory, shortTerm ShortTerm, gen Generator, cache ResponseCache, publisher InteractionPublisher, model string) *Service {
	return &Service{
		mem:       mem,
		shortTerm: shortTerm,
		gen:       gen,
		cache:     cache,
		publisher: publisher,
		model:     model,
	}
}

// Result is the outcome of one chat exchange.
type Result struct {
	Response     string  `json:"response"`
	Model        string  `json:"model"`
	ResponseTime float64 `json:"response_time"`
	Cached       bool    `json:"cached"`
}

// Ask runs one message through the full pipeline. The interaction is always
// recorded, including degraded attempts.
func (s *Service) Ask(ctx context.Context, userID, message string) (*Result, error) {
	if userID == "" || message == "" {
		return nil, fmt.Errorf("user_id and message are required")
	}

	start := time.Now()
	category := classify(message)

	// Context retrieval always precedes inference so the prompt reflects
	// stored memory even when the answer ends up served from cache fallback.
	items, err := s.mem.SearchContext(ctx, message, userID, 0, nil)
	if err != nil {
		slog.Warn("chat: context search failed, proceeding without context", "error", err)
	}

	var recent []memory.ConversationEntry
	if s.shortTerm != nil {
		recent, err = s.shortTerm.GetRecentMessages(ctx, userID, shortTermWindow)
		if err != nil {
			slog.Warn("chat: short-term fetch failed", "error", err)
		}
	}

	prompt := buildPrompt(message, items, recent)

	outcome := "success"
	cached := false
	var answer string

	if s.cache != nil {
		if hit, ok := s.cache.Get(ctx, prompt); ok {
			answer = hit
			cached = true
			outcome = "cached"
		}
	}

	if !cached {
		answer, err = s.gen.Generate(ctx, prompt)
		if err != nil {
			slog.Error("chat: inference failed", "error", err, "user_id", userID)
			answer = degradedAnswer
			outcome = "degraded"
		} else if s.cache != nil {
			if err := s.cache.Set(ctx, prompt, answer); err != nil {
				slog.Warn("chat: caching response failed", "error", err)
			}
		}
	}

	// Every attempt is recorded, degraded answers included. The store layer
	// already retried once, so a failure here is persistent and fails the
	// request instead of silently dropping the exchange.
	if _, err := s.mem.SaveInteraction(ctx, userID, message, answer, category); err != nil {
		slog.Error("chat: saving interaction failed", "error", err, "user_id", userID)
		metrics.ChatRequestsTotal.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("saving interaction: %w", err)
	}

	if s.shortTerm != nil {
		now := time.Now()
		if err := s.shortTerm.AppendTurn(ctx, userID, memory.ConversationEntry{Role: "user", Content: message, Timestamp: now}); err != nil {
			slog.Warn("chat: appending user turn failed", "error", err)
		}
		if err := s.shortTerm.AppendTurn(ctx, userID, memory.ConversationEntry{Role: "assistant", Content: answer, Timestamp: now}); err != nil {
			slog.Warn("chat: appending assistant turn failed", "error", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishInteraction(ctx, userID, message, category, cached); err != nil {
			slog.Warn("chat: publishing interaction event failed", "error", err)
		}
	}

	metrics.ChatRequestsTotal.WithLabelValues(outcome).Inc()

	return &Result{
		Response:     answer,
		Model:        s.model,
		ResponseTime: time.Since(start).Seconds(),
		Cached:       cached,
	}, nil
}

func buildPrompt(message string, items []memory.ScoredItem, recent []memory.ConversationEntry) string {
	var sb strings.Builder
	sb.WriteString("Você é o assistente corporativo da empresa. Responda em português, de forma objetiva e cordial.\n")

	if len(items) > 0 {
		sb.WriteString("\nContexto relevante:\n")
		for _, item := range items {
			sb.WriteString("- ")
			sb.WriteString(strings.ReplaceAll(item.Text, "\n", " "))
			sb.WriteString("\n")
		}
	}

	if len(recent) > 0 {
		sb.WriteString("\nConversa recente:\n")
		for _, entry := range recent {
			sb.WriteString(entry.Role)
			sb.WriteString(": ")
			sb.WriteString(entry.Content)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nusuário: ")
	sb.WriteString(message)
	sb.WriteString("\nassistente:")
	return sb.String()
}

// classify assigns a coarse category from keywords. Good enough for the
// profile's top_categories aggregate; uncategorized messages get "".
func classify(message string) string {
	m := strings.ToLower(message)
	switch {
	case containsAny(m, "crm", "lead", "bitrix", "cliente", "venda"):
		return "crm"
	case containsAny(m, "internet", "conexão", "link", "wifi", "rede"):
		return "isp"
	case containsAny(m, "site", "domínio", "hospedagem", "email", "e-mail"):
		return "hosting"
	case containsAny(m, "fatura", "boleto", "pagamento", "cobrança"):
		return "financeiro"
	case containsAny(m, "senha", "acesso", "erro", "problema", "suporte"):
		return "suporte"
	default:
		return ""
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
