// Package credentials binds references to externally managed secrets onto
// workflow nodes and wires exactly one language-model provider to the agent.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
)

// ErrUnknownProvider is returned for a provider tag outside the closed set.
var ErrUnknownProvider = errors.New("unknown language model provider")

// Provider selects the language-model backend of a specialized workflow.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Providers lists the supported providers in a stable order.
var Providers = []Provider{ProviderOpenAI, ProviderGemini}

// ParseProvider accepts a provider tag case-insensitively.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// Kind returns the node kind carrying this provider.
func (p Provider) Kind() graph.Kind {
	switch p {
	case ProviderOpenAI:
		return graph.KindProviderOpenAI
	case ProviderGemini:
		return graph.KindProviderGemini
	default:
		return graph.KindOpaque
	}
}

// ServiceKind names the service a credential authenticates against.
type ServiceKind string

const (
	ServiceCache           ServiceKind = "cache"
	ServiceRelationalStore ServiceKind = "relational_store"
	ServiceOpenAI          ServiceKind = "openai"
	ServiceGemini          ServiceKind = "gemini"
)

// Credential map keys expected by the orchestration engine.
var credentialKeys = map[ServiceKind]string{
	ServiceCache:           "redis",
	ServiceRelationalStore: "postgres",
	ServiceOpenAI:          "openAiApi",
	ServiceGemini:          "googlePalmApi",
}

// Binding attaches one credential reference to one service kind.
type Binding struct {
	Service   ServiceKind
	Reference graph.CredentialRef
}

// Set holds the fixed references the deployment shares across tenants.
type Set struct {
	Cache           graph.CredentialRef
	RelationalStore graph.CredentialRef
	OpenAI          graph.CredentialRef
	Gemini          graph.CredentialRef
}

// Bindings returns the bindings active for provider p.
func (s Set) Bindings(p Provider) []Binding {
	out := []Binding{
		{Service: ServiceCache, Reference: s.Cache},
		{Service: ServiceRelationalStore, Reference: s.RelationalStore},
	}
	switch p {
	case ProviderOpenAI:
		out = append(out, Binding{Service: ServiceOpenAI, Reference: s.OpenAI})
	case ProviderGemini:
		out = append(out, Binding{Service: ServiceGemini, Reference: s.Gemini})
	}
	return out
}

func providerService(k graph.Kind) ServiceKind {
	if k == graph.KindProviderGemini {
		return ServiceGemini
	}
	return ServiceOpenAI
}

// Binder applies a credential Set to workflows.
type Binder struct {
	refs Set
}

// NewBinder creates a binder for the given references.
func NewBinder(refs Set) *Binder {
	return &Binder{refs: refs}
}

// Bind applies the bindings of provider p, then disconnects every provider
// from the agent's language-model input and reconnects only the selected one.
// A template without both provider kinds yields a *graph.TemplateIntegrityError.
// A template without an agent gets its credentials but no provider edge.
func (b *Binder) Bind(wf *graph.Workflow, p Provider) error {
	selectedKind := p.Kind()
	if !selectedKind.IsProvider() {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, string(p))
	}

	var missing []graph.Kind
	for _, k := range []graph.Kind{graph.KindProviderOpenAI, graph.KindProviderGemini} {
		if _, ok := wf.FirstOfKind(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &graph.TemplateIntegrityError{Stage: "credential binding", Missing: missing}
	}
	selected, _ := wf.FirstOfKind(selectedKind)

	providers := map[string]bool{}
	for _, n := range wf.Nodes {
		if n.Kind().IsProvider() {
			providers[n.Name] = true
			delete(n.Credentials, credentialKeys[providerService(n.Kind())])
		}
	}

	for _, binding := range b.refs.Bindings(p) {
		switch binding.Service {
		case ServiceCache:
			for _, n := range wf.NodesOfKind(graph.KindCache) {
				setCredential(n, binding.Service, binding.Reference)
			}
		case ServiceRelationalStore:
			for _, n := range wf.NodesOfKind(graph.KindRelationalStore) {
				setCredential(n, binding.Service, binding.Reference)
			}
		default:
			setCredential(selected, binding.Service, binding.Reference)
		}
	}

	agent, ok := wf.FirstOfKind(graph.KindAgent)
	if !ok {
		return nil
	}
	wf.Connections.RemoveTargets(func(src, port string, t graph.Target) bool {
		return providers[src] && port == graph.PortLanguageModel &&
			t.Node == agent.Name && t.Port == graph.PortLanguageModel
	})
	wf.Connections.AddGroup(selected.Name, graph.PortLanguageModel, graph.Target{
		Node:  agent.Name,
		Port:  graph.PortLanguageModel,
		Index: 0,
	})
	return nil
}

// WiredProviders returns the provider nodes currently connected to the
// agent's language-model input.
func WiredProviders(wf *graph.Workflow) []*graph.Node {
	agent, ok := wf.FirstOfKind(graph.KindAgent)
	if !ok {
		return nil
	}
	var out []*graph.Node
	for _, n := range wf.Nodes {
		if n.Kind().IsProvider() &&
			wf.Connections.HasEdge(n.Name, graph.PortLanguageModel, agent.Name, graph.PortLanguageModel) {
			out = append(out, n)
		}
	}
	return out
}

func setCredential(n *graph.Node, svc ServiceKind, ref graph.CredentialRef) {
	if n.Credentials == nil {
		n.Credentials = map[string]graph.CredentialRef{}
	}
	n.Credentials[credentialKeys[svc]] = ref
}
