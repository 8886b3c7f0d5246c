package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobot-platform/autobot/internal/memory"
)

type fakeMemory struct {
	items     []memory.ScoredItem
	searchErr error

	saved      []memory.ConversationRecord
	saveErr    error
	searchSeen []string
}

func (m *fakeMemory) SearchContext(_ context.Context, query, userID string, limit int, kinds []memory.Kind) ([]memory.ScoredItem, error) {
	m.searchSeen = append(m.searchSeen, query)
	return m.items, m.searchErr
}

func (m *fakeMemory) SaveInteraction(_ context.Context, userID, question, answer, category string) (*memory.ConversationRecord, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	rec := memory.ConversationRecord{UserID: userID, Question: question, Answer: answer, Category: category}
	m.saved = append(m.saved, rec)
	return &rec, nil
}

type fakeShortTerm struct {
	entries  []memory.ConversationEntry
	appended []memory.ConversationEntry
}

func (s *fakeShortTerm) GetRecentMessages(context.Context, string, int) ([]memory.ConversationEntry, error) {
	return s.entries, nil
}

func (s *fakeShortTerm) AppendTurn(_ context.Context, _ string, entry memory.ConversationEntry) error {
	s.appended = append(s.appended, entry)
	return nil
}

type fakeGenerator struct {
	answer  string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type fakeCache struct {
	store map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, prompt string) (string, bool) {
	v, ok := c.store[prompt]
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, prompt, response string) error {
	c.store[prompt] = response
	return nil
}

type fakePublisher struct {
	published int
	err       error
}

func (p *fakePublisher) PublishInteraction(context.Context, string, string, string, bool) error {
	p.published++
	return p.err
}

func TestAsk_FullPipeline(t *testing.T) {
	mem := &fakeMemory{items: []memory.ScoredItem{{Text: "O CRM usado é o Bitrix24.", Kind: memory.KindKnowledge}}}
	st := &fakeShortTerm{entries: []memory.ConversationEntry{{Role: "user", Content: "Oi"}}}
	gen := &fakeGenerator{answer: "Usamos o Bitrix24 como CRM."}
	cache := newFakeCache()
	pub := &fakePublisher{}

	svc := NewService(mem, st, gen, cache, pub, "llama3")
	result, err := svc.Ask(context.Background(), "joao", "Qual CRM a empresa usa?")
	require.NoError(t, err)

	assert.Equal(t, "Usamos o Bitrix24 como CRM.", result.Response)
	assert.Equal(t, "llama3", result.Model)
	assert.False(t, result.Cached)
	assert.GreaterOrEqual(t, result.ResponseTime, 0.0)

	// Context search ran before inference, and the prompt carries both the
	// retrieved context and the recent window.
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Bitrix24")
	assert.Contains(t, gen.prompts[0], "Conversa recente")
	assert.Contains(t, gen.prompts[0], "Qual CRM a empresa usa?")

	// Interaction persisted, both turns appended, event published.
	require.Len(t, mem.saved, 1)
	assert.Equal(t, "crm", mem.saved[0].Category)
	assert.Len(t, st.appended, 2)
	assert.Equal(t, 1, pub.published)
}

func TestAsk_CacheHitSkipsInference(t *testing.T) {
	mem := &fakeMemory{}
	gen := &fakeGenerator{answer: "primeira resposta"}
	cache := newFakeCache()

	svc := NewService(mem, &fakeShortTerm{}, gen, cache, nil, "llama3")
	ctx := context.Background()

	first, err := svc.Ask(ctx, "joao", "pergunta repetida")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Ask(ctx, "joao", "pergunta repetida")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Response, second.Response)

	// The generator only ran once.
	assert.Len(t, gen.prompts, 1)

	// Both exchanges were still persisted.
	assert.Len(t, mem.saved, 2)
}

func TestAsk_DegradedOnUpstreamFailure(t *testing.T) {
	mem := &fakeMemory{}
	gen := &fakeGenerator{err: errors.New("connection refused")}

	svc := NewService(mem, &fakeShortTerm{}, gen, nil, nil, "llama3")
	result, err := svc.Ask(context.Background(), "joao", "Oi")
	require.NoError(t, err, "inference outage must not fail the request")

	assert.NotEmpty(t, result.Response, "degraded answer must never be empty")
	assert.False(t, result.Cached)

	// The failed attempt is recorded too.
	require.Len(t, mem.saved, 1)
	assert.Equal(t, result.Response, mem.saved[0].Answer)
}

func TestAsk_SearchFailureDoesNotBlockChat(t *testing.T) {
	mem := &fakeMemory{searchErr: errors.New("db down")}
	gen := &fakeGenerator{answer: "resposta"}

	svc := NewService(mem, &fakeShortTerm{}, gen, nil, nil, "llama3")
	result, err := svc.Ask(context.Background(), "joao", "Oi")
	require.NoError(t, err)
	assert.Equal(t, "resposta", result.Response)
}

func TestAsk_StorageFailureFailsRequest(t *testing.T) {
	mem := &fakeMemory{saveErr: errors.New("store unavailable")}
	gen := &fakeGenerator{answer: "resposta"}
	st := &fakeShortTerm{}

	svc := NewService(mem, st, gen, nil, nil, "llama3")
	_, err := svc.Ask(context.Background(), "joao", "Oi")
	require.Error(t, err, "a persistent store failure must not be swallowed")

	// Nothing downstream of the failed save runs.
	assert.Empty(t, st.appended)
}

func TestAsk_PublishFailureIsBestEffort(t *testing.T) {
	mem := &fakeMemory{}
	gen := &fakeGenerator{answer: "resposta"}
	pub := &fakePublisher{err: errors.New("nats down")}

	svc := NewService(mem, &fakeShortTerm{}, gen, nil, pub, "llama3")
	_, err := svc.Ask(context.Background(), "joao", "Oi")
	require.NoError(t, err)
	assert.Equal(t, 1, pub.published)
}

func TestAsk_RejectsEmptyInput(t *testing.T) {
	svc := NewService(&fakeMemory{}, nil, &fakeGenerator{}, nil, nil, "llama3")

	_, err := svc.Ask(context.Background(), "", "Oi")
	assert.Error(t, err)
	_, err = svc.Ask(context.Background(), "joao", "")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"Como cadastrar um lead no CRM?":      "crm",
		"Minha internet está lenta":           "isp",
		"O site da empresa caiu":              "hosting",
		"Segunda via do boleto":               "financeiro",
		"Esqueci minha senha":                 "suporte",
		"Bom dia, tudo bem?":                  "",
	}
	for msg, want := range cases {
		assert.Equal(t, want, classify(msg), "message: %s", msg)
	}
}

func TestBuildPrompt_FlattensContextNewlines(t *testing.T) {
	items := []memory.ScoredItem{{Text: "pergunta\nresposta"}}
	prompt := buildPrompt("msg", items, nil)
	assert.Contains(t, prompt, "- pergunta resposta")
	assert.False(t, strings.Contains(prompt, "- pergunta\nresposta"))
}
