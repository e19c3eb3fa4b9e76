package transcript

import (
	"time"

	"github.com/pushback-ai/voicechat/pkg/protocol"
)

// Effects are the side effects a single Apply step asks the caller to run.
// The reconciler itself never touches the network or any callback.
type Effects struct {
	// NewMessages are messages materialized by this step, in the order they
	// should be announced to the message callback.
	NewMessages []Message

	// ReportTokens is the turn's total token count to forward to the usage
	// reporter, or 0 when the step carried no usage envelope.
	ReportTokens int
}

// Apply advances the reconciler by one inbound event.
//
// Delivery order does not match conversational order: assistant speech can
// stream and finish before a concurrently-spoken user utterance's
// transcription completes. Apply keeps display order causal by inserting
// late user messages in front of any assistant message whose embedded
// timestamp postdates the user utterance's capture time.
//
// Unrecognized events are a no-op; Apply never fails.
func Apply(st State, ev protocol.Event, now func() time.Time) (State, Effects) {
	if now == nil {
		now = time.Now
	}

	switch e := ev.(type) {
	case protocol.ItemCreatedEvent:
		switch e.Item.Role {
		case protocol.RoleUser:
			return st.withPending(pendingItem{itemID: e.Item.ID, createdAt: now()}), Effects{}
		case protocol.RoleAssistant:
			// Text-only assistant turns arrive as finished items with inline
			// text and never stream deltas.
			if text := e.Item.Text(); text != "" {
				msg := Message{
					ID:      st.newMessageID(RoleAssistant, now()),
					Role:    RoleAssistant,
					Content: text,
					Final:   true,
				}
				st.Messages = append(append([]Message(nil), st.Messages...), msg)
				return st, Effects{NewMessages: []Message{msg}}
			}
		}
		return st, Effects{}

	case protocol.TranscriptionCompletedEvent:
		at := now()
		if pend, ok := st.pending[e.ItemID]; ok {
			at = pend.createdAt
		}
		msg := Message{
			ID:      st.newMessageID(RoleUser, at),
			Role:    RoleUser,
			Content: e.Transcript,
			Final:   true,
		}
		ts, _ := msg.Timestamp()
		st.Messages = insertByTimestamp(st.Messages, msg, ts)
		st = st.withoutPending(e.ItemID)
		return st, Effects{NewMessages: []Message{msg}}

	case protocol.TranscriptDeltaEvent:
		if st.CurrentAssistantID == "" {
			// The message is announced once its turn closes, not per fragment.
			msg := Message{
				ID:      st.newMessageID(RoleAssistant, now()),
				Role:    RoleAssistant,
				Content: e.Delta,
			}
			st.Messages = append(append([]Message(nil), st.Messages...), msg)
			st.CurrentAssistantID = msg.ID
			return st, Effects{}
		}
		if i := st.indexByID(st.CurrentAssistantID); i >= 0 && !st.Messages[i].Final {
			msgs := append([]Message(nil), st.Messages...)
			msgs[i].Content += e.Delta
			st.Messages = msgs
		}
		return st, Effects{}

	case protocol.TranscriptDoneEvent:
		if st.CurrentAssistantID != "" {
			var fx Effects
			if i := st.indexByID(st.CurrentAssistantID); i >= 0 {
				msgs := append([]Message(nil), st.Messages...)
				msgs[i].Content = e.Transcript
				msgs[i].Final = true
				st.Messages = msgs
				fx.NewMessages = []Message{msgs[i]}
			}
			st.CurrentAssistantID = ""
			return st, fx
		}
		// Deltas were never received; materialize the finished turn whole.
		msg := Message{
			ID:      st.newMessageID(RoleAssistant, now()),
			Role:    RoleAssistant,
			Content: e.Transcript,
			Final:   true,
		}
		st.Messages = append(append([]Message(nil), st.Messages...), msg)
		return st, Effects{NewMessages: []Message{msg}}

	case protocol.ResponseDoneEvent:
		var fx Effects
		if st.CurrentAssistantID != "" {
			// The turn is still open, so no transcript-done event announced
			// this message yet; finalize and announce it here.
			if i := st.indexByID(st.CurrentAssistantID); i >= 0 {
				msgs := append([]Message(nil), st.Messages...)
				if transcript := responseAudioTranscript(e.Response); transcript != "" {
					msgs[i].Content = transcript
				}
				msgs[i].Final = true
				st.Messages = msgs
				fx.NewMessages = []Message{msgs[i]}
			}
		}
		// The turn closes regardless of whether content was updated.
		st.CurrentAssistantID = ""
		if e.Response.Usage != nil && e.Response.Usage.TotalTokens > 0 {
			fx.ReportTokens = e.Response.Usage.TotalTokens
		}
		return st, fx

	default:
		return st, Effects{}
	}
}

// insertByTimestamp places msg immediately before the first assistant message
// whose embedded timestamp is strictly greater than ts, or appends when no
// such message exists.
func insertByTimestamp(messages []Message, msg Message, ts int64) []Message {
	at := len(messages)
	for i, m := range messages {
		if m.Role != RoleAssistant {
			continue
		}
		mts, ok := m.Timestamp()
		if !ok {
			continue
		}
		if mts > ts {
			at = i
			break
		}
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, messages[:at]...)
	out = append(out, msg)
	out = append(out, messages[at:]...)
	return out
}

func responseAudioTranscript(resp protocol.Response) string {
	for _, item := range resp.Output {
		if item.Role != protocol.RoleAssistant {
			continue
		}
		if transcript := item.AudioTranscript(); transcript != "" {
			return transcript
		}
	}
	return ""
}
