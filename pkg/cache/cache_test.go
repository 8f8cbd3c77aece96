package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

func testModel() config.Model {
	return config.NewModel(config.ProviderOpenAI, "gpt-4o-mini")
}

func testRequest(text string) *llms.Request {
	return &llms.Request{
		System:   "system prompt",
		Messages: []llms.Message{{Role: llms.RoleUser, Text: text}},
	}
}

func TestKeyDeterministic(t *testing.T) {
	req := testRequest("hello")
	assert.Equal(t, Key(testModel(), req), Key(testModel(), req))
}

func TestKeyDistinguishes(t *testing.T) {
	base := Key(testModel(), testRequest("hello"))

	assert.NotEqual(t, base, Key(testModel(), testRequest("goodbye")))
	assert.NotEqual(t, base, Key(config.NewModel(config.ProviderAnthropic, "claude"), testRequest("hello")))

	withTools := testRequest("hello")
	withTools.Tools = []llms.ToolDefinition{{Name: "ClickTool"}}
	assert.NotEqual(t, base, Key(testModel(), withTools))
}

func TestLookupMiss(t *testing.T) {
	c := New(nil)
	_, ok := c.Lookup("nope")
	assert.False(t, ok)
	assert.Equal(t, llms.Usage{}, c.Usage())
}

func TestLookupHitAccountsUsage(t *testing.T) {
	c := New(nil)
	c.Put("k", &llms.Response{
		Content: "cached",
		Usage:   llms.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	})

	resp, ok := c.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, "cached", resp.Content)
	assert.Equal(t, llms.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, c.Usage())

	// every hit counts again
	_, _ = c.Lookup("k")
	assert.Equal(t, 30, c.Usage().TotalTokens)
}

func TestDiscardDropsUncommitted(t *testing.T) {
	c := New(nil)
	c.Put("k", &llms.Response{Content: "cached"})
	c.Discard()

	_, ok := c.Lookup("k")
	assert.False(t, ok)
}

func TestSaveKeepsEntries(t *testing.T) {
	c := New(nil)
	c.Put("k", &llms.Response{Content: "cached"})
	require.NoError(t, c.Save())

	// committed entries survive a later discard
	c.Discard()
	_, ok := c.Lookup("k")
	assert.True(t, ok)
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	first := New(store)
	first.Put("k", &llms.Response{
		Content: "persisted",
		Usage:   llms.Usage{TotalTokens: 7},
	})
	require.NoError(t, first.Save())

	// a fresh cache over the same store sees the saved entry
	second := New(store)
	resp, ok := second.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, "persisted", resp.Content)
	assert.Equal(t, 7, second.Usage().TotalTokens)
}

func TestStoreDiscardedEntriesNotPersisted(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	first := New(store)
	first.Put("k", &llms.Response{Content: "temp"})
	first.Discard()
	require.NoError(t, first.Save())

	second := New(store)
	_, ok := second.Lookup("k")
	assert.False(t, ok)
}

// fakeProvider counts calls and replies with fixed content and usage.
type fakeProvider struct {
	calls int
	resp  llms.Response
}

func (f *fakeProvider) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	f.calls++
	resp := f.resp
	return &resp, nil
}

func (f *fakeProvider) Model() config.Model { return testModel() }
func (f *fakeProvider) Close() error        { return nil }

func TestCachedProvider(t *testing.T) {
	inner := &fakeProvider{resp: llms.Response{
		Content: "answer",
		Usage:   llms.Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30},
	}}
	c := New(nil)
	cached := NewCachedProvider(inner, c)

	req := testRequest("question")

	first, err := cached.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 30, first.Usage.TotalTokens)
	assert.Equal(t, llms.Usage{}, c.Usage())

	// identical request: served from cache, usage zeroed on the response
	// and recorded on the cache tally instead
	second, err := cached.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "answer", second.Content)
	assert.Equal(t, llms.Usage{}, second.Usage)
	assert.Equal(t, llms.Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30}, c.Usage())

	// a different request misses
	_, err = cached.Generate(context.Background(), testRequest("other"))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProviderEstimatesMissingUsage(t *testing.T) {
	inner := &fakeProvider{resp: llms.Response{Content: "reply with several words"}}
	c := New(nil)
	cached := NewCachedProvider(inner, c)

	resp, err := cached.Generate(context.Background(), testRequest("question"))
	require.NoError(t, err)
	assert.Greater(t, resp.Usage.TotalTokens, 0)

	_, err = cached.Generate(context.Background(), testRequest("question"))
	require.NoError(t, err)
	assert.Greater(t, c.Usage().TotalTokens, 0)
}
