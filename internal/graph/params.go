package graph

import (
	"encoding/json"
	"fmt"
)

// Response modes for entry triggers.
const (
	ResponseModeOnReceived   = "onReceived"
	ResponseModeLastNode     = "lastNode"
	ResponseModeResponseNode = "responseNode"
)

// TriggerParams is the typed view of an entry trigger's parameters.
type TriggerParams struct {
	Path         string         `json:"path"`
	HTTPMethod   string         `json:"httpMethod,omitempty"`
	ResponseMode string         `json:"responseMode,omitempty"`
	Options      map[string]any `json:"options"`
}

// AgentParams is the typed view of the agent node's parameters.
type AgentParams struct {
	PromptType string         `json:"promptType,omitempty"`
	Text       string         `json:"text,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

const systemMessageKey = "systemMessage"

// SystemMessage returns the agent's system instructions.
func (p AgentParams) SystemMessage() string {
	s, _ := p.Options[systemMessageKey].(string)
	return s
}

// SetSystemMessage replaces the agent's system instructions.
func (p *AgentParams) SetSystemMessage(msg string) {
	if p.Options == nil {
		p.Options = map[string]any{}
	}
	p.Options[systemMessageKey] = msg
}

// ProviderParams is the typed view of a language-model provider node.
type ProviderParams struct {
	Model     any            `json:"model,omitempty"`
	ModelName string         `json:"modelName,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// ChannelParams is the typed view of the external channel connector.
type ChannelParams struct {
	Resource     string `json:"resource,omitempty"`
	Operation    string `json:"operation,omitempty"`
	InstanceName string `json:"instanceName,omitempty"`
	RemoteJID    string `json:"remoteJid,omitempty"`
	MessageText  string `json:"messageText,omitempty"`
}

// StoreParams covers the cache and relational store kinds.
type StoreParams struct {
	Operation string `json:"operation,omitempty"`
	Key       string `json:"key,omitempty"`
	Table     any    `json:"table,omitempty"`
	TableName string `json:"tableName,omitempty"`
	SessionID string `json:"sessionKey,omitempty"`
}

// NoteParams is the typed view of a decorative annotation.
type NoteParams struct {
	Content string  `json:"content,omitempty"`
	Height  float64 `json:"height,omitempty"`
	Width   float64 `json:"width,omitempty"`
}

// OpaqueParams is the untyped bag of a node kind the engine does not model.
type OpaqueParams map[string]any

// DecodeParams decodes the node's parameter bag into T.
func DecodeParams[T any](n *Node) (T, error) {
	var out T
	if len(n.Parameters) == 0 {
		return out, nil
	}
	data, err := json.Marshal(n.Parameters)
	if err != nil {
		return out, fmt.Errorf("marshal parameters of %q: %w", n.Name, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode parameters of %q: %w", n.Name, err)
	}
	return out, nil
}

// MergeParams overlays the fields of v onto the node's parameter bag. Keys
// that v does not model are kept as they are.
func (n *Node) MergeParams(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal parameters of %q: %w", n.Name, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("merge parameters of %q: %w", n.Name, err)
	}
	if n.Parameters == nil {
		n.Parameters = make(map[string]any, len(fields))
	}
	for k, val := range fields {
		n.Parameters[k] = val
	}
	return nil
}

// TypedParams decodes the parameter bag into the variant selected by the
// node's kind. Unknown kinds yield OpaqueParams.
func (n *Node) TypedParams() (any, error) {
	switch n.Kind() {
	case KindEntryTrigger:
		return DecodeParams[TriggerParams](n)
	case KindAgent:
		return DecodeParams[AgentParams](n)
	case KindProviderOpenAI, KindProviderGemini:
		return DecodeParams[ProviderParams](n)
	case KindChannel:
		return DecodeParams[ChannelParams](n)
	case KindCache, KindRelationalStore:
		return DecodeParams[StoreParams](n)
	case KindDecorative:
		return DecodeParams[NoteParams](n)
	default:
		return OpaqueParams(cloneMap(n.Parameters)), nil
	}
}

// SystemMessage reads the agent instructions straight from the bag.
func (n *Node) SystemMessage() string {
	opts, _ := n.Parameters["options"].(map[string]any)
	s, _ := opts[systemMessageKey].(string)
	return s
}

// SetSystemMessage writes the agent instructions straight into the bag,
// replacing an options value of the wrong shape.
func (n *Node) SetSystemMessage(msg string) {
	if n.Parameters == nil {
		n.Parameters = map[string]any{}
	}
	opts, ok := n.Parameters["options"].(map[string]any)
	if !ok {
		opts = map[string]any{}
		n.Parameters["options"] = opts
	}
	opts[systemMessageKey] = msg
}
