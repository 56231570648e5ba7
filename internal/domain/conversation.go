package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Speaker identifies who authored a conversation turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// ParseSpeaker accepts "user" and "assistant"; "model" is accepted as an
// alias of "assistant" because that is what Gemini-style clients send.
func ParseSpeaker(s string) (Speaker, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return SpeakerUser, nil
	case "assistant", "model":
		return SpeakerAssistant, nil
	default:
		return "", fmt.Errorf("unknown speaker %q", s)
	}
}

// ConversationTurn is one message in a chat transcript. The client owns the
// transcript and resubmits it on every request.
type ConversationTurn struct {
	Speaker Speaker `json:"role" yaml:"role"`
	Text    string  `json:"content" yaml:"content"`
}

// UnmarshalJSON normalizes the speaker so "model" turns decode as assistant turns.
func (t *ConversationTurn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	sp, err := ParseSpeaker(raw.Role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	t.Speaker = sp
	t.Text = raw.Content
	return nil
}

// InsightResult is free-form prose produced by the insight flow.
type InsightResult struct {
	Text string `json:"text"`
}

// ChatAnswer is the assistant's reply to the last user turn.
type ChatAnswer struct {
	Answer string `json:"answer"`
}
