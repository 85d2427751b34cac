// Package events defines the typed conversation protocol and its JSON codec.
//
// Every message on the wire is a JSON object discriminated by its `type`
// field. Most inbound messages wrap their fields in a nested `<type>_event`
// object; the decoder falls back to the top-level object when the nested key
// is missing.
//
// Inbound events (agent → client)
//
//   - InitiationMetadata (conversation_initiation_metadata): server-assigned
//     conversation id and audio formats.
//   - Audio (audio): base64 agent audio chunk with its event id.
//   - AgentResponse (agent_response): agent reply text.
//   - AgentResponseCorrection (agent_response_correction): a reply truncated
//     by an interruption.
//   - UserTranscript (user_transcript): final transcript of user speech.
//   - ClientToolCall (client_tool_call): the agent asks the client to run a
//     registered tool.
//   - AgentToolResponse (agent_tool_response): outcome of a server-side tool.
//   - VadScore (vad_score): voice activity confidence for user audio.
//   - Ping (ping): keep-alive which must be answered with a Pong.
//   - Interruption (interruption): the user interrupted the agent.
//
// Outgoing events (client → agent)
//
//   - InitiationClientData (conversation_initiation_client_data): first
//     message after connecting, carries overrides and dynamic variables.
//   - UserMessage (user_message), UserActivity (user_activity),
//     ContextualUpdate (contextual_update): user side signals.
//   - Feedback (feedback): like/dislike for an agent response.
//   - ClientToolResult (client_tool_result): result of a client tool call.
//   - Pong (pong): ping answer.
//   - UserAudioChunk: in-band microphone audio for transports without a
//     media track.
//
// Tool call parameters keep their JSON kinds through [Value].
package events
