package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
)

var refs = Set{
	Cache:           graph.CredentialRef{ID: "r1", Name: "Redis shared"},
	RelationalStore: graph.CredentialRef{ID: "p1", Name: "Postgres shared"},
	OpenAI:          graph.CredentialRef{ID: "o1", Name: "OpenAI"},
	Gemini:          graph.CredentialRef{ID: "g1", Name: "Gemini"},
}

func newWorkflow(t *testing.T, wireOpenAI, wireGemini bool) *graph.Workflow {
	t.Helper()
	wf := &graph.Workflow{
		Nodes: []*graph.Node{
			{ID: "1", Name: "Agent", Type: graph.TypeAgent},
			{ID: "2", Name: "OpenAI Chat Model", Type: graph.TypeOpenAI,
				Credentials: map[string]graph.CredentialRef{"openAiApi": {ID: "stale", Name: "stale"}}},
			{ID: "3", Name: "Gemini Chat Model", Type: graph.TypeGemini},
			{ID: "4", Name: "Redis", Type: graph.TypeRedis},
			{ID: "5", Name: "Postgres", Type: graph.TypePostgres},
			{ID: "6", Name: "Chat Memory", Type: graph.TypeChatMemory},
		},
		Connections: graph.Connections{},
	}
	lm := graph.Target{Node: "Agent", Port: graph.PortLanguageModel}
	if wireOpenAI {
		wf.Connections.AddGroup("OpenAI Chat Model", graph.PortLanguageModel, lm)
	}
	if wireGemini {
		wf.Connections.AddGroup("Gemini Chat Model", graph.PortLanguageModel, lm)
	}
	wf.Connections.AddGroup("Chat Memory", graph.PortMemory, graph.Target{Node: "Agent", Port: graph.PortMemory})
	return wf
}

func TestBindWiresExactlyOneProvider(t *testing.T) {
	b := NewBinder(refs)

	for _, prior := range [][2]bool{{false, false}, {true, false}, {false, true}, {true, true}} {
		for _, p := range Providers {
			wf := newWorkflow(t, prior[0], prior[1])

			require.NoError(t, b.Bind(wf, p))

			wired := WiredProviders(wf)
			require.Len(t, wired, 1, "prior=%v provider=%s", prior, p)
			assert.Equal(t, p.Kind(), wired[0].Kind())
			assert.Empty(t, wf.Dangling())
			assert.True(t, wf.Connections.HasEdge("Chat Memory", graph.PortMemory, "Agent", graph.PortMemory))
		}
	}
}

func TestBindRepeatedSwitchesProvider(t *testing.T) {
	b := NewBinder(refs)
	wf := newWorkflow(t, true, false)

	require.NoError(t, b.Bind(wf, ProviderGemini))
	require.NoError(t, b.Bind(wf, ProviderOpenAI))
	require.NoError(t, b.Bind(wf, ProviderGemini))

	wired := WiredProviders(wf)
	require.Len(t, wired, 1)
	assert.Equal(t, "Gemini Chat Model", wired[0].Name)
	assert.Len(t, wf.Connections["Gemini Chat Model"][graph.PortLanguageModel], 1)
	assert.NotContains(t, wf.Connections, "OpenAI Chat Model")
}

func TestBindSetsCredentials(t *testing.T) {
	wf := newWorkflow(t, true, false)
	require.NoError(t, NewBinder(refs).Bind(wf, ProviderGemini))

	redis, _ := wf.NodeByName("Redis")
	assert.Equal(t, refs.Cache, redis.Credentials["redis"])
	pg, _ := wf.NodeByName("Postgres")
	assert.Equal(t, refs.RelationalStore, pg.Credentials["postgres"])
	mem, _ := wf.NodeByName("Chat Memory")
	assert.Equal(t, refs.RelationalStore, mem.Credentials["postgres"])

	gem, _ := wf.NodeByName("Gemini Chat Model")
	assert.Equal(t, refs.Gemini, gem.Credentials["googlePalmApi"])
	oai, _ := wf.NodeByName("OpenAI Chat Model")
	assert.NotContains(t, oai.Credentials, "openAiApi")
}

func TestBindMissingProviderIsIntegrityError(t *testing.T) {
	wf := newWorkflow(t, false, false)
	wf.RemoveNodes(func(n *graph.Node) bool { return n.Type == graph.TypeGemini })

	err := NewBinder(refs).Bind(wf, ProviderOpenAI)

	var tie *graph.TemplateIntegrityError
	require.True(t, errors.As(err, &tie))
	assert.Equal(t, []graph.Kind{graph.KindProviderGemini}, tie.Missing)
}

func TestBindWithoutAgentBindsCredentialsOnly(t *testing.T) {
	wf := newWorkflow(t, false, false)
	wf.RemoveNodes(func(n *graph.Node) bool { return n.Type == graph.TypeAgent })

	require.NoError(t, NewBinder(refs).Bind(wf, ProviderOpenAI))

	oai, _ := wf.NodeByName("OpenAI Chat Model")
	assert.Equal(t, refs.OpenAI, oai.Credentials["openAiApi"])
	redis, _ := wf.NodeByName("Redis")
	assert.Equal(t, refs.Cache, redis.Credentials["redis"])
	assert.Empty(t, WiredProviders(wf))
	assert.NotContains(t, wf.Connections, "OpenAI Chat Model")
	assert.Empty(t, wf.Dangling())
}

func TestBindUnknownProvider(t *testing.T) {
	err := NewBinder(refs).Bind(newWorkflow(t, false, false), Provider("claude"))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{" OpenAI ", ProviderOpenAI, false},
		{"gemini", ProviderGemini, false},
		{"google", ProviderGemini, false},
		{"mistral", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetBindings(t *testing.T) {
	b := refs.Bindings(ProviderGemini)
	require.Len(t, b, 3)
	assert.Equal(t, ServiceGemini, b[2].Service)
	assert.Equal(t, refs.Gemini, b[2].Reference)
}
