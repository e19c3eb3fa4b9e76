package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecode_ItemCreatedUser(t *testing.T) {
	t.Parallel()

	raw := `{"type":"conversation.item.created","item":{"id":"item_1","role":"user"}}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	created, ok := ev.(ItemCreatedEvent)
	if !ok {
		t.Fatalf("event type %T, want ItemCreatedEvent", ev)
	}
	if created.Item.ID != "item_1" || created.Item.Role != RoleUser {
		t.Fatalf("item = %+v", created.Item)
	}
}

func TestDecode_TranscriptionCompleted(t *testing.T) {
	t.Parallel()

	raw := `{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_1","transcript":"hello there"}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	done, ok := ev.(TranscriptionCompletedEvent)
	if !ok {
		t.Fatalf("event type %T, want TranscriptionCompletedEvent", ev)
	}
	if done.ItemID != "item_1" || done.Transcript != "hello there" {
		t.Fatalf("event = %+v", done)
	}
}

func TestDecode_DeltaAndDone(t *testing.T) {
	t.Parallel()

	ev, err := Decode([]byte(`{"type":"response.audio_transcript.delta","delta":"Hel"}`))
	if err != nil {
		t.Fatalf("Decode delta error: %v", err)
	}
	if delta, ok := ev.(TranscriptDeltaEvent); !ok || delta.Delta != "Hel" {
		t.Fatalf("event = %#v", ev)
	}

	ev, err = Decode([]byte(`{"type":"response.audio_transcript.done","transcript":"Final answer."}`))
	if err != nil {
		t.Fatalf("Decode done error: %v", err)
	}
	if done, ok := ev.(TranscriptDoneEvent); !ok || done.Transcript != "Final answer." {
		t.Fatalf("event = %#v", ev)
	}
}

func TestDecode_ResponseDone(t *testing.T) {
	t.Parallel()

	raw := `{
		"type": "response.done",
		"response": {
			"output": [
				{"id":"msg_1","role":"assistant","content":[{"type":"audio","transcript":"the full text"}]}
			],
			"usage": {"total_tokens": 321}
		}
	}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	done, ok := ev.(ResponseDoneEvent)
	if !ok {
		t.Fatalf("event type %T, want ResponseDoneEvent", ev)
	}
	if done.Response.Usage == nil || done.Response.Usage.TotalTokens != 321 {
		t.Fatalf("usage = %+v", done.Response.Usage)
	}
	if got := done.Response.Output[0].AudioTranscript(); got != "the full text" {
		t.Fatalf("AudioTranscript() = %q", got)
	}
}

func TestDecode_UnknownTypePassesThrough(t *testing.T) {
	t.Parallel()

	raw := `{"type":"session.updated","session":{"id":"sess_1"}}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	unknown, ok := ev.(UnknownEvent)
	if !ok {
		t.Fatalf("event type %T, want UnknownEvent", ev)
	}
	if unknown.Type != "session.updated" {
		t.Fatalf("Type = %q", unknown.Type)
	}
	var echo map[string]any
	if err := json.Unmarshal(unknown.Raw, &echo); err != nil {
		t.Fatalf("Raw not preserved: %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
	if _, err := Decode([]byte(`{"no_type":true}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestItemText(t *testing.T) {
	t.Parallel()

	item := ConversationItem{Content: []ContentPart{
		{Type: "audio", Transcript: "spoken"},
		{Type: "text", Text: "written"},
	}}
	if got := item.Text(); got != "written" {
		t.Fatalf("Text() = %q", got)
	}
	if got := item.AudioTranscript(); got != "spoken" {
		t.Fatalf("AudioTranscript() = %q", got)
	}
}
