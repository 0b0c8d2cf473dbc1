package tasks

// Conversation is a single plute-style conversation turn.
type Conversation struct {
	Meta
	Alternatives     []any          `json:"alternatives"`
	DataID           string         `json:"data_id"`
	AudioURL         any            `json:"audio_url"`
	CallUUID         string         `json:"call_uuid"`
	ConversationUUID string         `json:"conversation_uuid"`
	State            any            `json:"state"`
	Reftime          string         `json:"reftime"`
	Prediction       any            `json:"prediction"`
	Raw              map[string]any `json:"raw"`
}

func (c *Conversation) ID() any { return c.ConversationUUID }
func (c *Conversation) Kind() Type { return TypeConversation }
func (c *Conversation) Document() any { return c }
func (*Conversation) isTask() {}

// SimulatedTurn is one turn of a simulated call.
type SimulatedTurn struct {
	ID         any    `json:"id"`
	Type       string `json:"type"`
	SubType    any    `json:"sub_type"`
	Text       string `json:"text"`
	Prediction any    `json:"prediction"`
}

// SimulatedCall comes from user simulator scripts. Only input turns are kept.
type SimulatedCall struct {
	Meta
	CallID any             `json:"id"`
	Turns  []SimulatedTurn `json:"turns"`
}

func (s *SimulatedCall) ID() any { return s.CallID }
func (s *SimulatedCall) Kind() Type { return TypeSimulatedCall }
func (s *SimulatedCall) Document() any { return s }
func (*SimulatedCall) isTask() {}

// TranscriptionTurn is one turn of an agent-user transcribed call.
type TranscriptionTurn struct {
	ID   any    `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallTranscription holds the user turns of a transcribed call.
type CallTranscription struct {
	Meta
	CallID any                 `json:"id"`
	Turns  []TranscriptionTurn `json:"turns"`
}

func (c *CallTranscription) ID() any { return c.CallID }
func (c *CallTranscription) Kind() Type { return TypeCallTranscription }
func (c *CallTranscription) Document() any { return c }
func (*CallTranscription) isTask() {}

// AudioSegment is used for VAD and diarization style tagging.
type AudioSegment struct {
	Meta
	ConversationID any `json:"conversation_id"`
	AudioURL       any `json:"audio_url"`
}

func (a *AudioSegment) ID() any { return a.ConversationID }
func (a *AudioSegment) Kind() Type { return TypeAudioSegment }
func (a *AudioSegment) Document() any { return a }
func (*AudioSegment) isTask() {}

// DataGeneration is a direct intent-entity recording task.
type DataGeneration struct {
	Meta
	TaskID string `json:"id"`
}

func (d *DataGeneration) ID() any { return d.TaskID }
func (d *DataGeneration) Kind() Type { return TypeDataGeneration }
func (d *DataGeneration) Document() any { return d }
func (*DataGeneration) isTask() {}

// Dict wraps an arbitrary record. Its identity is supplied by the caller.
type Dict struct {
	Meta
	DataID any
	Body   map[string]any
}

func (d *Dict) ID() any { return d.DataID }
func (d *Dict) Kind() Type { return TypeDict }

// Document returns the wrapped record unchanged.
func (d *Dict) Document() any {
	if d.Body == nil {
		return map[string]any{}
	}
	return d.Body
}
func (*Dict) isTask() {}
