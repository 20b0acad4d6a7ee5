package specializer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/credentials"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/prompt"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/schedule"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/templatesource"
)

func defaultTemplate(t *testing.T) *templatesource.Template {
	t.Helper()
	data, err := templatesource.EmbeddedSource{}.Load(context.Background())
	require.NoError(t, err)
	tmpl, err := templatesource.Parse("default", data, nil)
	require.NoError(t, err)
	return tmpl
}

func refs() credentials.Set {
	return credentials.Set{
		Cache:           graph.CredentialRef{ID: "c1", Name: "Redis"},
		RelationalStore: graph.CredentialRef{ID: "p1", Name: "Postgres"},
		OpenAI:          graph.CredentialRef{ID: "o1", Name: "OpenAI"},
		Gemini:          graph.CredentialRef{ID: "g1", Name: "Gemini"},
	}
}

func counter() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
	}
}

func enabledSchedule() schedule.Config {
	return schedule.Config{
		Enabled:     true,
		Monday:      true,
		Tuesday:     true,
		Wednesday:   true,
		Thursday:    true,
		Friday:      true,
		StartTime:   "09:00",
		EndTime:     "18:00",
		SlotMinutes: 60,
	}
}

func TestSpecializeEndToEnd(t *testing.T) {
	tmpl := defaultTemplate(t)
	e := New(Config{Credentials: refs(), WebhookBaseURL: "https://hooks.example.com/webhook/", IDGenerator: counter()})

	original := "You sell flowers in Recife.\nBe kind."
	req := Request{
		Provider:     credentials.ProviderGemini,
		Instructions: original,
		Schedule:     enabledSchedule(),
		Holidays:     []schedule.Holiday{{Date: "2025-12-25", Description: "Christmas"}},
	}

	first, err := e.Specialize(tmpl, req)
	require.NoError(t, err)
	assert.True(t, first.Validation.Deployable, "%v", first.Validation.Issues())
	assert.Equal(t, "https://hooks.example.com/webhook/"+first.WebhookPath, first.WebhookURL)

	wired := credentials.WiredProviders(first.Workflow)
	require.Len(t, wired, 1)
	assert.Equal(t, graph.KindProviderGemini, wired[0].Kind())

	agent, ok := first.Workflow.FirstOfKind(graph.KindAgent)
	require.True(t, ok)
	firstText := agent.SystemMessage()
	assert.True(t, strings.HasPrefix(firstText, prompt.ExpressionMarker))
	assert.Contains(t, firstText, "25-12-2025 (Christmas)")

	req.Instructions = firstText
	second, err := e.Specialize(tmpl, req)
	require.NoError(t, err)
	agent, _ = second.Workflow.FirstOfKind(graph.KindAgent)

	assert.Equal(t, firstText, agent.SystemMessage())
	assert.Equal(t, original, prompt.BaseInstructions(agent.SystemMessage()))
	assert.NotEqual(t, first.WebhookPath, second.WebhookPath)
}

func TestSpecializeSchedulingDisabled(t *testing.T) {
	e := New(Config{Credentials: refs()})
	res, err := e.Specialize(defaultTemplate(t), Request{
		Provider:     credentials.ProviderOpenAI,
		Instructions: "Answer questions about the menu.",
		Schedule:     schedule.Config{StartTime: "09:00", EndTime: "18:00", SlotMinutes: 30},
		Holidays:     []schedule.Holiday{{Date: "2025-01-01", Description: "New year"}},
	})
	require.NoError(t, err)

	agent, _ := res.Workflow.FirstOfKind(graph.KindAgent)
	text := agent.SystemMessage()
	assert.NotContains(t, text, "Never schedule on these dates")
	assert.NotContains(t, text, schedule.Heading)
	assert.NotContains(t, text, "YYYY-MM-DDTHH:mm:ss")
}

func TestSpecializeSanitizes(t *testing.T) {
	e := New(Config{Credentials: refs()})
	res, err := e.Specialize(defaultTemplate(t), Request{Provider: credentials.ProviderOpenAI})
	require.NoError(t, err)

	assert.Empty(t, res.Workflow.NodesOfKind(graph.KindDecorative))
	assert.Equal(t, 1, res.Sanitized.RemovedNodes)

	trigger, ok := res.Workflow.FirstOfKind(graph.KindEntryTrigger)
	require.True(t, ok)
	assert.Equal(t, "onReceived", trigger.Parameters["responseMode"])
	assert.Equal(t, map[string]any{}, trigger.Parameters["options"])
	assert.Equal(t, res.WebhookPath, trigger.Parameters["path"])
	assert.Equal(t, res.WebhookPath, trigger.WebhookID)
}

func TestSpecializeDoesNotLeakBetweenRequests(t *testing.T) {
	tmpl := defaultTemplate(t)
	e := New(Config{Credentials: refs()})

	var wg sync.WaitGroup
	results := make([]*Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := credentials.ProviderOpenAI
			if i%2 == 1 {
				p = credentials.ProviderGemini
			}
			res, err := e.Specialize(tmpl, Request{Provider: p, Instructions: fmt.Sprintf("tenant %d", i)})
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.NotNil(t, res)
		agent, _ := res.Workflow.FirstOfKind(graph.KindAgent)
		assert.Equal(t, fmt.Sprintf("tenant %d", i), prompt.BaseInstructions(agent.SystemMessage()))
		assert.Len(t, credentials.WiredProviders(res.Workflow), 1)
	}
}

func TestSpecializeRegenerateIDs(t *testing.T) {
	tmpl := defaultTemplate(t)
	e := New(Config{Credentials: refs()})
	res, err := e.Specialize(tmpl, Request{Provider: credentials.ProviderOpenAI, RegenerateIDs: true})
	require.NoError(t, err)

	orig, err := tmpl.Instantiate()
	require.NoError(t, err)
	old := map[string]bool{}
	for _, n := range orig.Nodes {
		old[n.ID] = true
	}

	seen := map[string]bool{}
	for _, n := range res.Workflow.Nodes {
		assert.False(t, old[n.ID], "node %s kept its id", n.Name)
		assert.False(t, seen[n.ID])
		seen[n.ID] = true
	}
	assert.Empty(t, res.Workflow.Dangling())
}

type staticTemplate struct {
	wf  *graph.Workflow
	err error
}

func (s staticTemplate) Instantiate() (*graph.Workflow, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.wf.Clone(), nil
}

func TestSpecializeErrors(t *testing.T) {
	e := New(Config{Credentials: refs()})

	t.Run("template without providers", func(t *testing.T) {
		wf := &graph.Workflow{
			Nodes:       []*graph.Node{{Name: "Agent", Type: graph.TypeAgent}},
			Connections: graph.Connections{},
		}
		_, err := e.Specialize(staticTemplate{wf: wf}, Request{Provider: credentials.ProviderOpenAI})
		var integrity *graph.TemplateIntegrityError
		require.ErrorAs(t, err, &integrity)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := e.Specialize(defaultTemplate(t), Request{Provider: "mistral"})
		assert.ErrorIs(t, err, credentials.ErrUnknownProvider)
	})

	t.Run("instantiate failure", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := e.Specialize(staticTemplate{err: boom}, Request{Provider: credentials.ProviderOpenAI})
		assert.ErrorIs(t, err, boom)
	})
}

func TestSpecializeLenientFallbacks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := New(Config{Credentials: refs(), Logger: logger})

	wf := &graph.Workflow{
		Nodes: []*graph.Node{
			{Name: "Agent", Type: graph.TypeAgent},
			{Name: "OpenAI", Type: graph.TypeOpenAI},
			{Name: "Gemini", Type: graph.TypeGemini},
		},
		Connections: graph.Connections{},
	}
	res, err := e.Specialize(staticTemplate{wf: wf}, Request{
		Provider:   credentials.ProviderOpenAI,
		WebhookURL: "https://hooks.example.com/webhook/previous",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://hooks.example.com/webhook/previous", res.WebhookURL)
	assert.Empty(t, res.WebhookPath)
	assert.False(t, res.Validation.Deployable)
	assert.Contains(t, buf.String(), "generated workflow failed structural validation")
}

func TestSpecializeWithoutAgent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := New(Config{Credentials: refs(), Logger: logger})

	wf := &graph.Workflow{
		Nodes: []*graph.Node{
			{Name: "OpenAI", Type: graph.TypeOpenAI},
			{Name: "Gemini", Type: graph.TypeGemini},
			{Name: "Redis", Type: graph.TypeRedis},
		},
		Connections: graph.Connections{},
	}
	res, err := e.Specialize(staticTemplate{wf: wf}, Request{
		Provider:     credentials.ProviderGemini,
		Instructions: "Sell shoes.",
	})
	require.NoError(t, err)

	assert.False(t, res.Composed)
	assert.Contains(t, buf.String(), "instructions not applied")
	assert.Empty(t, credentials.WiredProviders(res.Workflow))

	redis, _ := res.Workflow.NodeByName("Redis")
	assert.Equal(t, refs().Cache, redis.Credentials["redis"])
	gem, _ := res.Workflow.NodeByName("Gemini")
	assert.Equal(t, refs().Gemini, gem.Credentials["googlePalmApi"])

	assert.False(t, res.Validation.Deployable)
	assert.Contains(t, res.Validation.Missing, graph.KindAgent)
}
