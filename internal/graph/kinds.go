package graph

// Kind is the closed set of node behaviors the engine manipulates. Anything
// else is KindOpaque and passes through untouched.
type Kind string

const (
	KindOpaque          Kind = "opaque"
	KindEntryTrigger    Kind = "entry_trigger"
	KindAgent           Kind = "agent"
	KindProviderOpenAI  Kind = "provider_openai"
	KindProviderGemini  Kind = "provider_gemini"
	KindChannel         Kind = "channel"
	KindCache           Kind = "cache"
	KindRelationalStore Kind = "relational_store"
	KindDecorative      Kind = "decorative"
)

// Node type identifiers understood by the orchestration engine.
const (
	TypeWebhook      = "n8n-nodes-base.webhook"
	TypeAgent        = "@n8n/n8n-nodes-langchain.agent"
	TypeOpenAI       = "@n8n/n8n-nodes-langchain.lmChatOpenAi"
	TypeGemini       = "@n8n/n8n-nodes-langchain.lmChatGoogleGemini"
	TypeEvolutionAPI = "n8n-nodes-evolution-api.evolutionApi"
	TypeRedis        = "n8n-nodes-base.redis"
	TypePostgres     = "n8n-nodes-base.postgres"
	TypeChatMemory   = "@n8n/n8n-nodes-langchain.memoryPostgresChat"
	TypePostgresTool = "n8n-nodes-base.postgresTool"
	TypeStickyNote   = "n8n-nodes-base.stickyNote"
)

var kindsByType = map[string]Kind{
	TypeWebhook:      KindEntryTrigger,
	TypeAgent:        KindAgent,
	TypeOpenAI:       KindProviderOpenAI,
	TypeGemini:       KindProviderGemini,
	TypeEvolutionAPI: KindChannel,
	TypeRedis:        KindCache,
	TypePostgres:     KindRelationalStore,
	TypeChatMemory:   KindRelationalStore,
	TypePostgresTool: KindRelationalStore,
	TypeStickyNote:   KindDecorative,
}

// KindOf classifies a node type string.
func KindOf(nodeType string) Kind {
	if k, ok := kindsByType[nodeType]; ok {
		return k
	}
	return KindOpaque
}

// IsProvider reports whether k is a language-model provider kind.
func (k Kind) IsProvider() bool {
	return k == KindProviderOpenAI || k == KindProviderGemini
}
