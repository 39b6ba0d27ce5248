package elevenlabs

// incoming covers every server event. ElevenLabs nests payloads in a
// per-type *_event object; the flat fields are accepted as a fallback.
type incoming struct {
	Type    string `json:"type"`
	Audio   string `json:"audio,omitempty"`
	Text    string `json:"text,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	InitiationMetadata      *initiationMetadataEvent      `json:"conversation_initiation_metadata_event,omitempty"`
	AudioEvent              *audioEvent                   `json:"audio_event,omitempty"`
	AgentResponse           *agentResponseEvent           `json:"agent_response_event,omitempty"`
	AgentResponseCorrection *agentResponseCorrectionEvent `json:"agent_response_correction_event,omitempty"`
	UserTranscription       *userTranscriptionEvent       `json:"user_transcription_event,omitempty"`
	PingEvent               *pingEvent                    `json:"ping_event,omitempty"`
	ErrorEvent              *errorEvent                   `json:"error_event,omitempty"`
}

type initiationMetadataEvent struct {
	ConversationID         string `json:"conversation_id"`
	AgentOutputAudioFormat string `json:"agent_output_audio_format"`
	UserInputAudioFormat   string `json:"user_input_audio_format"`
}

type audioEvent struct {
	EventID     int    `json:"event_id"`
	AudioBase64 string `json:"audio_base_64"`
}

type agentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
}

type agentResponseCorrectionEvent struct {
	OriginalAgentResponse  string `json:"original_agent_response"`
	CorrectedAgentResponse string `json:"corrected_agent_response"`
}

type userTranscriptionEvent struct {
	UserTranscript string `json:"user_transcript"`
}

type pingEvent struct {
	EventID int `json:"event_id"`
	PingMs  int `json:"ping_ms,omitempty"`
}

type errorEvent struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}
