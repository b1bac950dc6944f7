package streamclient

import (
	"encoding/json"
	"strings"
	"time"
)

// FailureMessage replaces the trailing assistant text when the stream
// reports an error.
const FailureMessage = "Sorry, something went wrong while generating a response. Please try again."

// Apply folds one event into the conversation state and returns the next
// state. It is pure: no I/O besides logging, and malformed input degrades
// per-rule instead of raising.
func Apply(st State, ev StreamEvent) State {
	switch ev.Event {
	case EventPartial:
		return applyPartial(st, ev.Data)
	case EventUpdates:
		return applyUpdates(st, ev.Data)
	case EventConnection:
		st.Connected = true
		return st
	case EventCompletion:
		st.Done = true
		return st
	case EventError:
		return applyError(st)
	default:
		log.Debug().Str("event", ev.Event).Msg("ignoring unrecognized event kind")
		return st
	}
}

type partialEntry struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

func applyPartial(st State, data json.RawMessage) State {
	var entries []partialEntry
	if err := json.Unmarshal(data, &entries); err != nil || len(entries) == 0 {
		log.Warn().Msg("ignoring partial event with malformed payload")
		return st
	}
	last := entries[len(entries)-1]
	if last.Type != "ai" {
		return st
	}

	var text string
	if err := json.Unmarshal(last.Content, &text); err != nil {
		// content was a structured payload, not assistant text
		return st
	}
	if looksSerialized(text) {
		// known upstream quirk: tool-call payloads leaking into the text
		// channel; filter rather than render
		log.Debug().Msg("ignoring partial whose content looks like a serialized object")
		return st
	}

	msg := Message{
		Role:      RoleAssistant,
		Content:   text,
		Sources:   append([]SourceDocument(nil), st.PendingSources...),
		Timestamp: time.Now(),
	}

	msgs := append([]Message(nil), st.Messages...)
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleAssistant {
		msgs[n-1] = msg
	} else {
		msgs = append(msgs, msg)
	}
	st.Messages = msgs
	return st
}

type updatesPayload struct {
	RetrieveDocuments json.RawMessage `json:"retrieveDocuments"`
}

type retrievePayload struct {
	Documents []SourceDocument `json:"documents"`
}

func applyUpdates(st State, data json.RawMessage) State {
	var payload updatesPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn().Msg("resetting pending citations: malformed updates payload")
		st.PendingSources = []SourceDocument{}
		return st
	}
	if payload.RetrieveDocuments == nil {
		// updates event from another upstream node; not a retrieval
		return st
	}

	var ret retrievePayload
	if err := json.Unmarshal(payload.RetrieveDocuments, &ret); err != nil || ret.Documents == nil {
		log.Warn().Msg("resetting pending citations: documents list not well-formed")
		st.PendingSources = []SourceDocument{}
		return st
	}
	// replacement, never a merge
	st.PendingSources = ret.Documents
	return st
}

func applyError(st State) State {
	msg := Message{Role: RoleAssistant, Content: FailureMessage, Timestamp: time.Now()}
	msgs := append([]Message(nil), st.Messages...)
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleAssistant {
		msgs[n-1].Content = FailureMessage
		msgs[n-1].Timestamp = msg.Timestamp
	} else {
		msgs = append(msgs, msg)
	}
	st.Messages = msgs
	st.Failed = true
	st.Done = true
	return st
}

// looksSerialized reports whether text reads as an encoded JSON object or
// array rather than prose.
func looksSerialized(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < 2 {
		return false
	}
	if (t[0] == '{' && t[len(t)-1] == '}') || (t[0] == '[' && t[len(t)-1] == ']') {
		return json.Valid([]byte(t))
	}
	return false
}
