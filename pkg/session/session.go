// Package session holds per-client state: one model, one platform, a
// response cache, the six agents sharing a cached LLM handle, and the
// learned planner examples.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/alumnium-hq/alumnium/pkg/agents"
	"github.com/alumnium-hq/alumnium/pkg/axtree"
	"github.com/alumnium-hq/alumnium/pkg/cache"
	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// Stats aggregates a session's token spend: Total sums the agents' usage,
// Cache counts tokens that cache hits substituted for.
type Stats struct {
	Total llms.Usage `json:"total"`
	Cache llms.Usage `json:"cache"`
}

// Add accumulates another session's stats.
func (s *Stats) Add(other Stats) {
	s.Total.Add(other.Total)
	s.Cache.Add(other.Cache)
}

// Session owns its cache, LLM handle, agents, and examples. Concurrent
// requests against the same session serialize on the session lock.
type Session struct {
	id             string
	model          config.Model
	platform       axtree.Platform
	plannerEnabled bool

	cache     *cache.Cache
	llm       llms.Provider
	planner   *agents.Planner
	actor     *agents.Actor
	retriever *agents.Retriever
	locator   *agents.LocatorAgent
	area      *agents.AreaAgent
	changes   *agents.ChangesAnalyzer

	mu       sync.Mutex
	examples []agents.Example
}

// New constructs a session with all six agents bound to one cached LLM
// handle, so every call participates in the same cache.
func New(id string, llmCfg config.LLMConfig, platform axtree.Platform, plannerEnabled bool, tools []llms.ToolDefinition, store *cache.Store) (*Session, error) {
	provider, err := llms.New(llmCfg)
	if err != nil {
		return nil, err
	}

	sessionCache := cache.New(store)
	cached := cache.NewCachedProvider(provider, sessionCache)
	providerTag := llmCfg.Model.Provider

	toolNames := make([]string, len(tools))
	for i, tool := range tools {
		toolNames[i] = tool.Name
	}

	s := &Session{
		id:             id,
		model:          llmCfg.Model,
		platform:       platform,
		plannerEnabled: plannerEnabled,
		cache:          sessionCache,
		llm:            provider,
	}

	if s.planner, err = agents.NewPlanner(cached, providerTag, toolNames); err != nil {
		return nil, err
	}
	if s.actor, err = agents.NewActor(cached, providerTag, tools); err != nil {
		return nil, err
	}
	if s.retriever, err = agents.NewRetriever(cached, providerTag); err != nil {
		return nil, err
	}
	if s.locator, err = agents.NewLocatorAgent(cached, providerTag); err != nil {
		return nil, err
	}
	if s.area, err = agents.NewAreaAgent(cached, providerTag); err != nil {
		return nil, err
	}
	if s.changes, err = agents.NewChangesAnalyzer(cached, providerTag); err != nil {
		return nil, err
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Model returns the session's model.
func (s *Session) Model() config.Model { return s.model }

// PlannerEnabled reports whether Plan consults the LLM at all.
func (s *Session) PlannerEnabled() bool { return s.plannerEnabled }

// ProcessTree parses a raw tree string per the session's platform tag.
func (s *Session) ProcessTree(raw string) (*axtree.Tree, error) {
	return axtree.Parse(s.platform, raw)
}

// Plan produces an ordered step list for a goal. With the planner
// disabled, the goal itself is the single step and no LLM call happens.
func (s *Session) Plan(ctx context.Context, goal, treeXML string) (string, []string, error) {
	if !s.plannerEnabled {
		return goal, []string{goal}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	examples := make([]agents.Example, len(s.examples))
	copy(examples, s.examples)
	return s.planner.Invoke(ctx, goal, treeXML, examples)
}

// ExecuteStep runs the actor on one step and rewrites the resulting tool
// calls from opaque to raw element IDs.
func (s *Session) ExecuteStep(ctx context.Context, goal, step string, tree *axtree.Tree) (string, []llms.ToolCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	explanation, calls, err := s.actor.Invoke(ctx, goal, step, tree.Render())
	if err != nil {
		return "", nil, err
	}
	mapped, err := tree.MapToolCallsToRawID(calls)
	if err != nil {
		return "", nil, err
	}
	return explanation, mapped, nil
}

// Retrieve answers a data question about the current screen.
func (s *Session) Retrieve(ctx context.Context, information, treeXML, title, url, screenshot string) (string, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retriever.Invoke(ctx, information, treeXML, title, url, screenshot)
}

// FindArea locates the subtree matching a description.
func (s *Session) FindArea(ctx context.Context, description, treeXML string) (*agents.Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.area.Invoke(ctx, description, treeXML)
}

// FindElements locates elements matching a description.
func (s *Session) FindElements(ctx context.Context, description, treeXML string) ([]agents.Locator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locator.Invoke(ctx, description, treeXML)
}

// AnalyzeChanges summarizes a structural tree diff.
func (s *Session) AnalyzeChanges(ctx context.Context, diff string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changes.Invoke(ctx, diff)
}

// AddExample appends a learned (goal, actions) pair to the planner's
// few-shot slot.
func (s *Session) AddExample(goal string, actions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.examples = append(s.examples, agents.Example{Goal: goal, Actions: actions})
}

// ClearExamples drops all learned examples.
func (s *Session) ClearExamples() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.examples = nil
}

// SaveCache flushes uncommitted cache entries to the backing store.
func (s *Session) SaveCache() error {
	return s.cache.Save()
}

// DiscardCache drops uncommitted cache entries.
func (s *Session) DiscardCache() {
	s.cache.Discard()
}

// Stats reports the session's token tallies.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total llms.Usage
	total.Add(s.planner.Usage())
	total.Add(s.actor.Usage())
	total.Add(s.retriever.Usage())
	total.Add(s.locator.Usage())
	total.Add(s.area.Usage())
	total.Add(s.changes.Usage())

	return Stats{Total: total, Cache: s.cache.Usage()}
}

// Close releases the session's LLM handle.
func (s *Session) Close() error {
	if s.llm != nil {
		return s.llm.Close()
	}
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s, %s)", s.id, s.model, s.platform)
}
