package events

// InitiationClientData is the first message a client sends after the
// transport connects. Unset fields are left out of the payload.
type InitiationClientData struct {
	outgoing
	Overrides          *Overrides
	CustomLLMExtraBody map[string]any
	DynamicVariables   map[string]any
	UserID             string
	Source             *SourceInfo
}

func (InitiationClientData) Kind() Kind { return KindInitiationClientData }

// Overrides replaces parts of the agent configuration for one conversation.
type Overrides struct {
	Agent        *AgentOverrides
	TTS          *TTSOverrides
	Conversation *ConversationOverrides
}

type AgentOverrides struct {
	Prompt       string
	FirstMessage string
	Language     string
}

type TTSOverrides struct {
	VoiceID string
}

type ConversationOverrides struct {
	// TextOnly disables audio for the conversation when set.
	TextOnly *bool
}

// SourceInfo identifies the SDK to the server.
type SourceInfo struct {
	Source  string
	Version string
}

func (o *Overrides) isEmpty() bool {
	if o == nil {
		return true
	}
	return o.agent() == nil && o.tts() == nil && o.conversation() == nil
}

func (o *Overrides) agent() *agentOverridesWire {
	if o.Agent == nil {
		return nil
	}
	a := o.Agent
	if a.Prompt == "" && a.FirstMessage == "" && a.Language == "" {
		return nil
	}
	wire := &agentOverridesWire{FirstMessage: a.FirstMessage, Language: a.Language}
	if a.Prompt != "" {
		wire.Prompt = &promptWire{Prompt: a.Prompt}
	}
	return wire
}

func (o *Overrides) tts() *ttsOverridesWire {
	if o.TTS == nil || o.TTS.VoiceID == "" {
		return nil
	}
	return &ttsOverridesWire{VoiceID: o.TTS.VoiceID}
}

func (o *Overrides) conversation() *conversationOverridesWire {
	if o.Conversation == nil || o.Conversation.TextOnly == nil {
		return nil
	}
	return &conversationOverridesWire{TextOnly: o.Conversation.TextOnly}
}

type initiationWire struct {
	Type               Kind            `json:"type"`
	Overrides          *overridesWire  `json:"conversation_config_override,omitempty"`
	CustomLLMExtraBody map[string]any  `json:"custom_llm_extra_body,omitempty"`
	DynamicVariables   map[string]any  `json:"dynamic_variables,omitempty"`
	UserID             string          `json:"user_id,omitempty"`
	Source             *sourceInfoWire `json:"source_info,omitempty"`
}

type overridesWire struct {
	Agent        *agentOverridesWire        `json:"agent,omitempty"`
	TTS          *ttsOverridesWire          `json:"tts,omitempty"`
	Conversation *conversationOverridesWire `json:"conversation,omitempty"`
}

type agentOverridesWire struct {
	Prompt       *promptWire `json:"prompt,omitempty"`
	FirstMessage string      `json:"first_message,omitempty"`
	Language     string      `json:"language,omitempty"`
}

type promptWire struct {
	Prompt string `json:"prompt"`
}

type ttsOverridesWire struct {
	VoiceID string `json:"voice_id"`
}

type conversationOverridesWire struct {
	TextOnly *bool `json:"text_only,omitempty"`
}

type sourceInfoWire struct {
	Source  string `json:"source,omitempty"`
	Version string `json:"version,omitempty"`
}

func (d InitiationClientData) wire() initiationWire {
	wire := initiationWire{
		Type:               KindInitiationClientData,
		CustomLLMExtraBody: d.CustomLLMExtraBody,
		DynamicVariables:   d.DynamicVariables,
		UserID:             d.UserID,
	}
	if !d.Overrides.isEmpty() {
		wire.Overrides = &overridesWire{
			Agent:        d.Overrides.agent(),
			TTS:          d.Overrides.tts(),
			Conversation: d.Overrides.conversation(),
		}
	}
	if d.Source != nil && (d.Source.Source != "" || d.Source.Version != "") {
		wire.Source = &sourceInfoWire{Source: d.Source.Source, Version: d.Source.Version}
	}
	return wire
}
