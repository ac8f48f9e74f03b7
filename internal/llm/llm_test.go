package llm

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_PunctuationSubstitution(t *testing.T) {
	p := NewMockProvider()

	resp, err := p.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: "system", Content: "ignored"},
			{Role: "user", Content: "こんにちは、世界。"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "こんにちは, 世界.", resp.Output)
	assert.Positive(t, resp.Usage.TotalTokens)
}

func TestMockProvider_LastUserMessageWins(t *testing.T) {
	p := NewMockProvider()

	resp, err := p.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: "user", Content: "first！"},
			{Role: "assistant", Content: "reply"},
			{Role: "user", Content: "second？"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "second?", resp.Output)
}

func TestMockProvider_Deterministic(t *testing.T) {
	p := NewMockProvider()
	req := Request{Messages: []Message{{Role: "user", Content: "静かな夜だった。誰もいない。"}}}

	a, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	b, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Output, b.Output)
	assert.Equal(t, a.Usage, b.Usage)
}

func TestCache_KeyIsStable(t *testing.T) {
	c := NewCache(t.TempDir())
	req := Request{
		Model:    ModelSpec{Provider: "mock", Name: "m"},
		Messages: []Message{{Role: "user", Content: "text"}},
	}
	assert.Equal(t, c.Key(req), c.Key(req))

	other := req
	other.Messages = []Message{{Role: "user", Content: "different"}}
	assert.NotEqual(t, c.Key(req), c.Key(other))

	otherProvider := req
	otherProvider.Model.Provider = "openai"
	assert.NotEqual(t, c.Key(req), c.Key(otherProvider), "provider id must participate in the key")
}

func TestCache_RoundTrip(t *testing.T) {
	c := NewCache(t.TempDir())
	req := Request{Model: ModelSpec{Provider: "mock", Name: "gpt-test/x"}}
	key := c.Key(req)

	resp := &Response{Output: "hello", Usage: Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}}
	require.NoError(t, c.Put(req.Model.Name, key, resp))

	got, ok := c.Get(req.Model.Name, key)
	require.True(t, ok)
	assert.Equal(t, resp.Output, got.Output)
	assert.Equal(t, resp.Usage, got.Usage)
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)
	req := Request{Model: ModelSpec{Provider: "mock", Name: "m"}}
	key := c.Key(req)

	path := filepath.Join(dir, "m", key+".json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, ok := c.Get(req.Model.Name, key)
	assert.False(t, ok, "corrupt entries must read as misses")
}

func TestCache_MissOnAbsent(t *testing.T) {
	c := NewCache(t.TempDir())
	_, ok := c.Get("m", "nope")
	assert.False(t, ok)
}

func TestRateLimiter_UnboundedAdmitsImmediately(t *testing.T) {
	l := NewRateLimiter(0, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = l.Admit(context.Background(), 10_000)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unbounded limiter blocked")
	}
}

func TestRateLimiter_RPMBudget(t *testing.T) {
	l := NewRateLimiter(2, 0)
	base := time.Unix(1_700_000_000, 0)
	now := base
	var mu sync.Mutex
	l.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	require.NoError(t, l.Admit(context.Background(), 1))
	require.NoError(t, l.Admit(context.Background(), 1))

	// Third call must block until an entry leaves the 60 s window.
	admitted := make(chan error, 1)
	go func() { admitted <- l.Admit(context.Background(), 1) }()

	select {
	case <-admitted:
		t.Fatal("third request admitted inside a full window")
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	now = base.Add(61 * time.Second)
	mu.Unlock()
	l.cond.Broadcast()

	select {
	case err := <-admitted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request not admitted after the window expired")
	}
}

func TestRateLimiter_TPMBudget(t *testing.T) {
	l := NewRateLimiter(0, 100)

	require.NoError(t, l.Admit(context.Background(), 60))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := l.Admit(ctx, 60)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "60+60 tokens must not fit a 100-token budget")
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	l := NewRateLimiter(1, 0)
	require.NoError(t, l.Admit(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Admit(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// countingProvider wraps the mock and counts network-equivalent calls.
type countingProvider struct {
	mock  *MockProvider
	calls int
}

func (p *countingProvider) ID() string { return "mock" }

func (p *countingProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	p.calls++
	return p.mock.Complete(ctx, req)
}

func TestGateway_CacheHitSkipsProviderAndLimiter(t *testing.T) {
	provider := &countingProvider{mock: NewMockProvider()}
	// One request per minute: a second uncached call would block.
	limiter := NewRateLimiter(1, 0)
	gw := NewGateway(provider, NewCache(t.TempDir()), limiter, nil)

	req := Request{
		Model:    ModelSpec{Provider: "mock", Name: "m"},
		Messages: []Message{{Role: "user", Content: "やあ！"}},
	}

	first, err := gw.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, provider.calls)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := gw.Complete(ctx, req)
	require.NoError(t, err, "cache hit must not consult the rate limiter")
	assert.Equal(t, 1, provider.calls, "cache hit must not reach the provider")
	assert.Equal(t, first.Output, second.Output)
}

func TestGateway_NoCacheStillWorks(t *testing.T) {
	provider := &countingProvider{mock: NewMockProvider()}
	gw := NewGateway(provider, nil, NewRateLimiter(0, 0), nil)

	req := Request{Model: ModelSpec{Name: "m"}, Messages: []Message{{Role: "user", Content: "は？"}}}
	_, err := gw.Complete(context.Background(), req)
	require.NoError(t, err)
	_, err = gw.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider("carrier-pigeon")
	assert.Error(t, err)
}
