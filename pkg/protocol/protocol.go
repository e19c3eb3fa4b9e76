// Package protocol defines the JSON events exchanged with the realtime AI
// service over the session's auxiliary data channel.
//
// Every frame is a JSON object with a "type" discriminator. Decode maps the
// recognized types onto concrete event values; everything else comes back as
// an UnknownEvent so protocol additions never break the client.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire type discriminators.
const (
	TypeConversationItemCreated        = "conversation.item.created"
	TypeInputTranscriptionCompleted    = "conversation.item.input_audio_transcription.completed"
	TypeResponseAudioTranscriptDelta   = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone    = "response.audio_transcript.done"
	TypeResponseDone                   = "response.done"
	TypeResponseCreate                 = "response.create"
	TypeInputAudioBufferAppend         = "input_audio_buffer.append"
)

// Roles carried by conversation items.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentPart is one element of a conversation item's content array.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ConversationItem is a conversation entry announced by the service.
type ConversationItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// Text returns the first inline text content of the item, if any.
func (it ConversationItem) Text() string {
	for _, part := range it.Content {
		if part.Type == "text" && part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// AudioTranscript returns the first audio transcript content of the item, if any.
func (it ConversationItem) AudioTranscript() string {
	for _, part := range it.Content {
		if part.Transcript != "" {
			return part.Transcript
		}
	}
	return ""
}

// Usage carries token totals reported in a turn-completion envelope.
type Usage struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Response is the structured output of a completed turn.
type Response struct {
	ID     string             `json:"id,omitempty"`
	Output []ConversationItem `json:"output,omitempty"`
	Usage  *Usage             `json:"usage,omitempty"`
}

// Event is a decoded server event.
type Event interface {
	eventType() string
}

// ItemCreatedEvent announces a new conversation item (user or assistant).
type ItemCreatedEvent struct {
	Item ConversationItem
}

func (e ItemCreatedEvent) eventType() string { return TypeConversationItemCreated }

// TranscriptionCompletedEvent delivers the finished transcription of a user
// utterance, keyed by the item announced earlier.
type TranscriptionCompletedEvent struct {
	ItemID     string
	Transcript string
}

func (e TranscriptionCompletedEvent) eventType() string { return TypeInputTranscriptionCompleted }

// TranscriptDeltaEvent is a streaming fragment of the assistant's speech
// transcript for the in-flight turn.
type TranscriptDeltaEvent struct {
	ResponseID string
	Delta      string
}

func (e TranscriptDeltaEvent) eventType() string { return TypeResponseAudioTranscriptDelta }

// TranscriptDoneEvent carries the final full transcript for the in-flight turn.
type TranscriptDoneEvent struct {
	ResponseID string
	Transcript string
}

func (e TranscriptDoneEvent) eventType() string { return TypeResponseAudioTranscriptDone }

// ResponseDoneEvent closes a turn with its structured output and usage totals.
type ResponseDoneEvent struct {
	Response Response
}

func (e ResponseDoneEvent) eventType() string { return TypeResponseDone }

// UnknownEvent preserves frames the client does not recognize.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

// Decode parses a raw auxiliary-channel frame into a typed event.
// Unrecognized types decode to UnknownEvent; malformed JSON is an error.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("event frame missing type")
	}

	switch typ {
	case TypeConversationItemCreated:
		var frame struct {
			Item ConversationItem `json:"item"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return ItemCreatedEvent{Item: frame.Item}, nil
	case TypeInputTranscriptionCompleted:
		var frame struct {
			ItemID     string `json:"item_id"`
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return TranscriptionCompletedEvent{ItemID: frame.ItemID, Transcript: frame.Transcript}, nil
	case TypeResponseAudioTranscriptDelta:
		var frame struct {
			ResponseID string `json:"response_id"`
			Delta      string `json:"delta"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return TranscriptDeltaEvent{ResponseID: frame.ResponseID, Delta: frame.Delta}, nil
	case TypeResponseAudioTranscriptDone:
		var frame struct {
			ResponseID string `json:"response_id"`
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return TranscriptDoneEvent{ResponseID: frame.ResponseID, Transcript: frame.Transcript}, nil
	case TypeResponseDone:
		var frame struct {
			Response Response `json:"response"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return ResponseDoneEvent{Response: frame.Response}, nil
	default:
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// ResponseCreate is the client frame that asks the service to start a turn.
type ResponseCreate struct {
	Type string `json:"type"`
}

// NewResponseCreate builds a response.create client frame.
func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: TypeResponseCreate}
}

// AudioAppend is the client frame carrying base64 audio for transports that
// move audio over the event channel instead of a media track.
type AudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// NewAudioAppend builds an input_audio_buffer.append client frame.
func NewAudioAppend(audioB64 string) AudioAppend {
	return AudioAppend{Type: TypeInputAudioBufferAppend, Audio: audioB64}
}
