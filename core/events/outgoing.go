package events

const (
	KindUserMessage          Kind = "user_message"
	KindUserActivity         Kind = "user_activity"
	KindFeedback             Kind = "feedback"
	KindContextualUpdate     Kind = "contextual_update"
	KindClientToolResult     Kind = "client_tool_result"
	KindPong                 Kind = "pong"
	KindInitiationClientData Kind = "conversation_initiation_client_data"
	// KindUserAudioChunk has no `type` on the wire; the payload key is the
	// discriminator.
	KindUserAudioChunk Kind = "user_audio_chunk"
)

// FeedbackScore is the verdict sent with [Feedback].
type FeedbackScore string

const (
	FeedbackLike    FeedbackScore = "like"
	FeedbackDislike FeedbackScore = "dislike"
)

// UserMessage sends typed user text to the agent.
type UserMessage struct {
	outgoing
	Text string
}

func (UserMessage) Kind() Kind { return KindUserMessage }

// UserActivity tells the agent the user is active without saying anything.
type UserActivity struct{ outgoing }

func (UserActivity) Kind() Kind { return KindUserActivity }

// Feedback rates the agent response identified by EventID.
type Feedback struct {
	outgoing
	Score   FeedbackScore
	EventID int
}

func (Feedback) Kind() Kind { return KindFeedback }

// ContextualUpdate gives the agent background information without
// prompting a reply.
type ContextualUpdate struct {
	outgoing
	Text string
}

func (ContextualUpdate) Kind() Kind { return KindContextualUpdate }

// ToolOutcome is the `result` object of a [ClientToolResult].
type ToolOutcome struct {
	Success bool
	Result  string
	Error   string
}

// ClientToolResult answers a [ClientToolCall].
type ClientToolResult struct {
	outgoing
	ToolCallID string
	Result     ToolOutcome
	IsError    bool
}

func (ClientToolResult) Kind() Kind { return KindClientToolResult }

// Pong answers a [Ping].
type Pong struct {
	outgoing
	EventID int
}

func (Pong) Kind() Kind { return KindPong }

// UserAudioChunk carries raw microphone audio.
type UserAudioChunk struct {
	outgoing
	Audio []byte
}

func (UserAudioChunk) Kind() Kind { return KindUserAudioChunk }

func NewUserMessage(text string) UserMessage { return UserMessage{Text: text} }

func NewUserActivity() UserActivity { return UserActivity{} }

func NewContextualUpdate(text string) ContextualUpdate { return ContextualUpdate{Text: text} }

func NewFeedback(isPositive bool, eventID int) Feedback {
	score := FeedbackDislike
	if isPositive {
		score = FeedbackLike
	}
	return Feedback{Score: score, EventID: eventID}
}

func NewPong(eventID int) Pong { return Pong{EventID: eventID} }

func NewClientToolResult(toolCallID string, outcome ToolOutcome) ClientToolResult {
	return ClientToolResult{ToolCallID: toolCallID, Result: outcome, IsError: !outcome.Success}
}

func NewUserAudioChunk(audio []byte) UserAudioChunk { return UserAudioChunk{Audio: audio} }
